// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recording

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/pvrd/internal/fsutil"
	"github.com/ManuGH/pvrd/internal/reserve"
)

const (
	DefaultFileNameFormat = "%YEAR%%MONTH%%DAY%%HOUR%%MIN%-%TITLE%"
	DefaultExtension      = ".m2ts"
)

// FileName expands format for r. Supported tokens are %TITLE%, %YEAR%,
// %MONTH%, %DAY%, %HOUR%, %MIN% and %CHID%; the result is one sanitized path
// element without extension.
func FileName(format string, r *reserve.Reserve, loc *time.Location) string {
	if format == "" {
		format = DefaultFileNameFormat
	}
	if loc == nil {
		loc = time.Local
	}
	t := r.StartAt.In(loc)
	repl := strings.NewReplacer(
		"%TITLE%", r.Name,
		"%YEAR%", fmt.Sprintf("%04d", t.Year()),
		"%MONTH%", fmt.Sprintf("%02d", int(t.Month())),
		"%DAY%", fmt.Sprintf("%02d", t.Day()),
		"%HOUR%", fmt.Sprintf("%02d", t.Hour()),
		"%MIN%", fmt.Sprintf("%02d", t.Minute()),
		"%CHID%", strconv.FormatInt(r.ChannelID, 10),
	)
	return fsutil.SanitizeName(repl.Replace(format))
}

// outputDir resolves the save directives of r under root.
func outputDir(root string, r *reserve.Reserve) (string, error) {
	rel := filepath.Join(r.Save.ParentDir, r.Save.Directory)
	dir, err := fsutil.ConfineRelPath(root, rel)
	if err != nil {
		return "", fmt.Errorf("save directory: %w", err)
	}
	return dir, nil
}
