// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/pvrd/internal/fsutil"
	"github.com/ManuGH/pvrd/internal/ipc"
	"github.com/ManuGH/pvrd/internal/log"
	"github.com/ManuGH/pvrd/internal/procgroup"
	"github.com/ManuGH/pvrd/internal/recorded"
)

var ErrQueueFull = errors.New("encode worker queue is full")

// FileStore is the recorded persistence the worker reads sources from and
// registers output with.
type FileStore interface {
	VideoFile(ctx context.Context, id int64) (recorded.VideoFile, error)
	AppendVideoFile(ctx context.Context, recordedID int64, f recorded.VideoFile) (int64, error)
	DeleteVideoFile(ctx context.Context, id int64) error
}

type WorkerConfig struct {
	// Command is the encoder argv. %INPUT%, %OUTPUT% and %MODE% are
	// substituted per request.
	Command []string
	// OutputDir is used when a request has no parent dir.
	OutputDir string
	// TempDir receives partial output until the encoder exits.
	TempDir   string
	Extension string
	QueueSize int
	KillGrace time.Duration
}

// Worker runs encode requests one at a time. It is the far side of
// WorkerQueue and can also drain a RedisQueue.
type Worker struct {
	cfg    WorkerConfig
	files  FileStore
	jobs   chan Request
	logger zerolog.Logger

	mu      sync.Mutex
	running string // temp path of the active job
}

func NewWorker(cfg WorkerConfig, files FileStore) (*Worker, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("encode worker: command is required")
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "pvrd-encode")
	}
	if cfg.Extension == "" {
		cfg.Extension = ".mp4"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 5 * time.Second
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("encode worker: temp dir: %w", err)
	}
	return &Worker{
		cfg:    cfg,
		files:  files,
		jobs:   make(chan Request, cfg.QueueSize),
		logger: log.WithComponent("encode.worker"),
	}, nil
}

// PushEncode queues req without waiting.
func (w *Worker) PushEncode(_ context.Context, req Request) error {
	select {
	case w.jobs <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Register exposes the worker on an IPC server.
func (w *Worker) Register(s *ipc.Server) {
	s.Handle(IPCModel, FuncPush, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
		if req.Mode == "" {
			return nil, errors.New("mode is required")
		}
		return nil, w.PushEncode(ctx, req)
	})
	s.Handle(IPCModel, FuncCleanup, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return w.Cleanup(ctx)
	})
}

// Run processes queued requests until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-w.jobs:
			w.process(ctx, req)
		}
	}
}

// Popper is a blocking request source such as RedisQueue.
type Popper interface {
	Pop(ctx context.Context) (Request, error)
}

// Consume feeds requests from src into the worker queue until ctx is done.
func (w *Worker) Consume(ctx context.Context, src Popper) error {
	for {
		req, err := src.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn().Err(err).Msg("encode source failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		select {
		case w.jobs <- req:
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Worker) process(ctx context.Context, req Request) {
	logger := w.logger.With().
		Int64(log.FieldRecordedID, req.RecordedID).
		Int64("video_file_id", req.SourceVideoFileID).
		Str("mode", req.Mode).
		Logger()
	started := time.Now()
	out, err := w.encode(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("encode failed")
		return
	}
	logger.Info().Str(log.FieldPath, out).Dur("took", time.Since(started)).Msg("encode finished")
}

func (w *Worker) encode(ctx context.Context, req Request) (string, error) {
	src, err := w.files.VideoFile(ctx, req.SourceVideoFileID)
	if err != nil {
		return "", err
	}

	parent := req.ParentDir
	if parent == "" {
		parent = w.cfg.OutputDir
	}
	dir, err := fsutil.ConfineRelPath(parent, req.Directory)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	tmp := filepath.Join(w.cfg.TempDir, uuid.NewString()+w.cfg.Extension+".part")
	w.setRunning(tmp)
	defer w.setRunning("")
	defer func() { _ = os.Remove(tmp) }()

	if err := w.runCommand(ctx, expandArgs(w.cfg.Command, src.Path, tmp, req.Mode)); err != nil {
		return "", err
	}

	stem := strings.TrimSuffix(filepath.Base(src.Path), filepath.Ext(src.Path))
	final, err := fsutil.UniquePath(dir, stem, w.cfg.Extension)
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("move output: %w", err)
	}
	st, err := os.Stat(final)
	if err != nil {
		return "", err
	}
	if _, err := w.files.AppendVideoFile(ctx, src.RecordedID, recorded.VideoFile{
		Type: recorded.FileEncoded, Name: req.Mode, Path: final, Size: st.Size(),
	}); err != nil {
		return "", fmt.Errorf("register output: %w", err)
	}

	if req.RemoveOriginal {
		if err := os.Remove(src.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return final, fmt.Errorf("remove original: %w", err)
		}
		if err := w.files.DeleteVideoFile(ctx, src.ID); err != nil {
			return final, fmt.Errorf("unregister original: %w", err)
		}
	}
	return final, nil
}

func expandArgs(tmpl []string, input, output, mode string) []string {
	r := strings.NewReplacer("%INPUT%", input, "%OUTPUT%", output, "%MODE%", mode)
	out := make([]string, len(tmpl))
	for i, a := range tmpl {
		out[i] = r.Replace(a)
	}
	return out
}

func (w *Worker) runCommand(ctx context.Context, argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	procgroup.Set(cmd)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		if err != nil {
			return fmt.Errorf("encoder exited: %w: %s", err, lastLine(stderr.String()))
		}
		return nil
	case <-ctx.Done():
		_ = procgroup.Terminate(cmd, waitCh, w.cfg.KillGrace)
		return ctx.Err()
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func (w *Worker) setRunning(p string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = p
}

// Cleanup removes partial output left behind by interrupted encodes.
func (w *Worker) Cleanup(ctx context.Context) (CleanupResult, error) {
	res := CleanupResult{Removed: []string{}}
	entries, err := os.ReadDir(w.cfg.TempDir)
	if err != nil {
		return res, err
	}
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		p := filepath.Join(w.cfg.TempDir, e.Name())
		if p == running {
			continue
		}
		if err := os.Remove(p); err != nil {
			w.logger.Warn().Err(err).Str(log.FieldPath, p).Msg("cleanup failed")
			continue
		}
		res.Removed = append(res.Removed, e.Name())
	}
	return res, nil
}
