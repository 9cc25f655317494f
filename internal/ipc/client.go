// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/pvrd/internal/log"
	"github.com/ManuGH/pvrd/internal/metrics"
)

const maxLine = 4 << 20

type callOptions struct {
	timeout time.Duration
}

type CallOption func(*callOptions)

// WithTimeout overrides DefaultTimeout for one call. NoTimeout disables it.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// Client issues requests over a line-oriented stream and matches replies by
// id. It is safe for concurrent use.
type Client struct {
	r      io.Reader
	w      io.WriteCloser
	logger zerolog.Logger

	wmu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Reply
	closed  bool
	err     error

	done chan struct{}
}

// NewClient starts reading replies from r. Requests are written to w. Close
// closes w and, when it implements io.Closer, r.
func NewClient(r io.Reader, w io.WriteCloser) *Client {
	c := &Client{
		r:       r,
		w:       w,
		logger:  log.WithComponent("ipc.client"),
		pending: make(map[string]chan Reply),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.done)
	sc := bufio.NewScanner(c.r)
	sc.Buffer(make([]byte, 64<<10), maxLine)
	for sc.Scan() {
		var rep Reply
		if err := json.Unmarshal(sc.Bytes(), &rep); err != nil {
			c.logger.Warn().Err(err).Msg("discarding malformed reply")
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[rep.ID]
		delete(c.pending, rep.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug().Str("id", rep.ID).Msg("reply for unknown or expired request")
			continue
		}
		ch <- rep
	}

	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	c.mu.Lock()
	c.closed = true
	c.err = err
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// Call sends model.fn(args) and decodes the result into out, which may be nil.
func (c *Client) Call(ctx context.Context, model, fn string, args, out any, opts ...CallOption) error {
	o := callOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	err := c.call(ctx, model, fn, args, out, o)
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
	default:
		outcome = "error"
	}
	metrics.IncIPCCall(model, fn, outcome)
	return err
}

func (c *Client) call(ctx context.Context, model, fn string, args, out any, o callOptions) error {
	req := Request{ID: uuid.NewString(), Model: model, Func: fn}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("ipc: encode args: %w", err)
		}
		req.Args = raw
	}
	line, err := json.Marshal(req)
	if err != nil {
		return err
	}

	ch := make(chan Reply, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()
	forget := func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}

	var timeout <-chan time.Time
	if o.timeout > 0 {
		t := time.NewTimer(o.timeout)
		defer t.Stop()
		timeout = t.C
	}

	// The write may block on a peer that stopped reading; it runs on its own
	// so the timeout covers it. Close unblocks it.
	written := make(chan error, 1)
	go func() {
		c.wmu.Lock()
		defer c.wmu.Unlock()
		_, err := c.w.Write(append(line, '\n'))
		written <- err
	}()

	for {
		select {
		case err := <-written:
			if err != nil {
				forget()
				return fmt.Errorf("ipc: write request: %w", err)
			}
			written = nil
		case rep, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			if rep.Error != "" {
				return &RemoteError{Model: model, Func: fn, Message: rep.Error}
			}
			if out != nil && len(rep.Result) > 0 {
				if err := json.Unmarshal(rep.Result, out); err != nil {
					return fmt.Errorf("ipc: decode result: %w", err)
				}
			}
			return nil
		case <-timeout:
			forget()
			return fmt.Errorf("%w: %s.%s after %s", ErrTimeout, model, fn, o.timeout)
		case <-ctx.Done():
			forget()
			return ctx.Err()
		}
	}
}

// Call is the typed form of Client.Call.
func Call[T any](ctx context.Context, c *Client, model, fn string, args any, opts ...CallOption) (T, error) {
	var out T
	err := c.Call(ctx, model, fn, args, &out, opts...)
	return out, err
}

// Close shuts the request stream and waits for the reader to stop.
func (c *Client) Close() error {
	err := c.w.Close()
	if rc, ok := c.r.(io.Closer); ok {
		_ = rc.Close()
	}
	<-c.done
	return err
}
