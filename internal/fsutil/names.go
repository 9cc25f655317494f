// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxNameBytes = 200

var nameReplacer = strings.NewReplacer(
	"/", "／", "\\", "＼", ":", "：", "*", "＊", "?", "？",
	"\"", "”", "<", "＜", ">", "＞", "|", "｜", "\x00", "",
)

// SanitizeName makes s usable as a single path element.
func SanitizeName(s string) string {
	s = strings.TrimSpace(nameReplacer.Replace(s))
	s = strings.Trim(s, ".")
	for len(s) > maxNameBytes {
		// Trim whole runes.
		_, size := lastRune(s)
		s = s[:len(s)-size]
	}
	if s == "" {
		return "untitled"
	}
	return s
}

func lastRune(s string) (rune, int) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i]&0xC0 != 0x80 {
			return rune(s[i]), len(s) - i
		}
	}
	return 0, 1
}

// UniquePath returns dir/stem+ext, or dir/stem(n)+ext for the first n that
// does not exist yet.
func UniquePath(dir, stem, ext string) (string, error) {
	p := filepath.Join(dir, stem+ext)
	for n := 1; ; n++ {
		_, err := os.Lstat(p)
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		if err != nil {
			return "", err
		}
		if n > 9999 {
			return "", fmt.Errorf("no free file name for %s%s in %s", stem, ext, dir)
		}
		p = filepath.Join(dir, fmt.Sprintf("%s(%d)%s", stem, n, ext))
	}
}
