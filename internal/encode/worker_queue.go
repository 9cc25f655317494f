// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encode

import (
	"context"
	"time"

	"github.com/ManuGH/pvrd/internal/ipc"
	"github.com/ManuGH/pvrd/internal/metrics"
)

// Model and function names served by the encode worker.
const (
	IPCModel    = "encode"
	FuncPush    = "push"
	FuncCleanup = "cleanup"
)

// Caller is the subset of ipc.Client used by WorkerQueue.
type Caller interface {
	Call(ctx context.Context, model, fn string, args, out any, opts ...ipc.CallOption) error
}

// WorkerQueue forwards requests to a worker process over IPC.
type WorkerQueue struct {
	caller  Caller
	timeout time.Duration
}

// NewWorkerQueue uses ipc.DefaultTimeout when timeout is not positive.
func NewWorkerQueue(c Caller, timeout time.Duration) *WorkerQueue {
	if timeout <= 0 {
		timeout = ipc.DefaultTimeout
	}
	return &WorkerQueue{caller: c, timeout: timeout}
}

func (q *WorkerQueue) PushEncode(ctx context.Context, req Request) error {
	err := q.caller.Call(ctx, IPCModel, FuncPush, req, nil, ipc.WithTimeout(q.timeout))
	if err != nil {
		metrics.IncEncodePush("ipc", "error")
		return err
	}
	metrics.IncEncodePush("ipc", "ok")
	return nil
}

// CleanupResult reports what a maintenance cleanup removed.
type CleanupResult struct {
	Removed []string `json:"removed"`
}

// Cleanup asks the worker to remove stale temporary output. It may take
// arbitrarily long and is therefore not bounded by a timeout.
func (q *WorkerQueue) Cleanup(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	err := q.caller.Call(ctx, IPCModel, FuncCleanup, nil, &res, ipc.WithTimeout(ipc.NoTimeout))
	return res, err
}
