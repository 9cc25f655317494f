// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package encode hands finished recordings to an external encode worker.
package encode

import (
	"context"

	"github.com/ManuGH/pvrd/internal/dvr"
	"github.com/ManuGH/pvrd/internal/log"
)

// Request asks the worker to encode one video file with one mode.
type Request struct {
	RecordedID        int64  `json:"recordedId"`
	SourceVideoFileID int64  `json:"sourceVideoFileId"`
	ParentDir         string `json:"parentDir,omitempty"`
	Directory         string `json:"directory,omitempty"`
	Mode              string `json:"mode"`
	RemoveOriginal    bool   `json:"removeOriginal"`
}

// Queue accepts encode requests. Pushing does not wait for the encode.
type Queue interface {
	PushEncode(ctx context.Context, req Request) error
}

// Plan expands an encode option into requests, at most dvr.MaxEncodeModes.
// The source is removed only after the last mode.
func Plan(recordedID, sourceFileID int64, opt *dvr.EncodeOption) []Request {
	if opt == nil || len(opt.Modes) == 0 {
		return nil
	}
	modes := opt.Modes
	if len(modes) > dvr.MaxEncodeModes {
		modes = modes[:dvr.MaxEncodeModes]
	}
	out := make([]Request, 0, len(modes))
	for i, m := range modes {
		out = append(out, Request{
			RecordedID:        recordedID,
			SourceVideoFileID: sourceFileID,
			ParentDir:         m.ParentDir,
			Directory:         m.Directory,
			Mode:              m.Mode,
			RemoveOriginal:    opt.RemoveOriginal && i == len(modes)-1,
		})
	}
	return out
}

// DiscardQueue drops requests. It backs the "none" encode backend.
type DiscardQueue struct{}

func (DiscardQueue) PushEncode(ctx context.Context, req Request) error {
	log.L().Debug().Int64(log.FieldRecordedID, req.RecordedID).Str("mode", req.Mode).Msg("encode disabled, request dropped")
	return nil
}
