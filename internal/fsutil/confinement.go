// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil keeps recording and encode output inside configured roots.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfineRelPath joins root and rel and fails when the result, after
// resolving symlinks, is not underneath root. rel must be relative; empty
// means root itself.
func ConfineRelPath(root, rel string) (string, error) {
	if strings.Contains(rel, "\\") {
		return "", fmt.Errorf("path contains backslash: %s", rel)
	}
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("path must be relative: %s", rel)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt: %s", rel)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		realRoot = absRoot
	}
	return resolveAndCheck(realRoot, filepath.Join(realRoot, clean))
}

// resolveAndCheck resolves the deepest existing ancestor of full and checks
// the result against realRoot.
func resolveAndCheck(realRoot, full string) (string, error) {
	existing := full
	var suffix []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		suffix = append([]string{filepath.Base(existing)}, suffix...)
		existing = parent
	}

	real := existing
	if rp, err := filepath.EvalSymlinks(existing); err == nil {
		real = rp
	} else if _, statErr := os.Lstat(existing); statErr == nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	real = filepath.Join(append([]string{real}, suffix...)...)

	rel, err := filepath.Rel(realRoot, real)
	if err != nil {
		return "", fmt.Errorf("rel computation failed: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root: %s", real)
	}
	return real, nil
}
