// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/ManuGH/pvrd/internal/fsutil"
	"github.com/ManuGH/pvrd/internal/tuner"
)

var errStreamEnded = errors.New("stream ended before the recording was stopped")

const readBufferSize = tsPacketSize * 348

type sessionEventKind int

const (
	sessionFirstPacket sessionEventKind = iota
	sessionEnded
)

type sessionEvent struct {
	id     int64
	kind   sessionEventKind
	path   string
	result sessionResult
}

// sessionResult is what a session leaves behind once its goroutine exits.
type sessionResult struct {
	path  string
	size  int64
	stats PacketStats
	// err is nil when the session was stopped by the engine.
	err error
}

// Session copies one stream into one output file. It runs on its own
// goroutine and reports to the engine through events.
type Session struct {
	id     int64
	opener Opener
	handle *tuner.Handle
	target Target
	dir    string
	stem   string
	ext    string

	counter *packetCounter
	cancel  context.CancelFunc
	events  chan<- sessionEvent
}

func (s *Session) run(ctx context.Context) {
	var res sessionResult
	defer func() {
		res.stats = s.counter.Stats()
		s.events <- sessionEvent{id: s.id, kind: sessionEnded, path: res.path, result: res}
	}()

	stream, err := s.opener.Open(ctx, s.handle.Device, s.target)
	if err != nil {
		res.err = fmt.Errorf("open stream: %w", err)
		return
	}
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer func() {
		stop()
		_ = stream.Close()
	}()

	var (
		out *os.File
		w   *bufio.Writer
	)
	buf := make([]byte, readBufferSize)
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			if out == nil {
				if ctx.Err() != nil {
					break
				}
				out, err = createOutput(s.dir, s.stem, s.ext)
				if err != nil {
					res.err = err
					return
				}
				res.path = out.Name()
				w = bufio.NewWriterSize(out, readBufferSize)
				s.events <- sessionEvent{id: s.id, kind: sessionFirstPacket, path: res.path}
			}
			_, _ = s.counter.Write(buf[:n])
			if _, werr := w.Write(buf[:n]); werr != nil {
				res.err = fmt.Errorf("write output: %w", werr)
				break
			}
			res.size += int64(n)
		}
		if rerr != nil {
			if ctx.Err() == nil {
				if errors.Is(rerr, io.EOF) {
					rerr = errStreamEnded
				}
				res.err = rerr
			}
			break
		}
	}

	if out != nil {
		if err := w.Flush(); err != nil && res.err == nil {
			res.err = fmt.Errorf("flush output: %w", err)
		}
		_ = out.Sync()
		if err := out.Close(); err != nil && res.err == nil {
			res.err = fmt.Errorf("close output: %w", err)
		}
	}
}

// createOutput opens a new file next to any existing ones without
// overwriting them.
func createOutput(dir, stem, ext string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	for range 10 {
		p, err := fsutil.UniquePath(dir, stem, ext)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create output: %w", err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("create output: no free name for %s in %s", stem, dir)
}
