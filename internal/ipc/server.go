// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/pvrd/internal/log"
)

// Handler serves one model function. The returned value is JSON encoded into
// the reply.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Server dispatches requests read from a stream to registered handlers. Each
// request runs on its own goroutine; replies may arrive out of order.
type Server struct {
	handlers map[string]Handler
	logger   zerolog.Logger
}

func NewServer() *Server {
	return &Server{handlers: make(map[string]Handler), logger: log.WithComponent("ipc.server")}
}

// Handle registers h for model.fn.
func (s *Server) Handle(model, fn string, h Handler) {
	s.handlers[model+"."+fn] = h
}

// Serve reads requests from r until EOF or ctx is done and writes replies to
// w. In-flight handlers are awaited before Serve returns.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wmu sync.Mutex
	write := func(rep Reply) {
		line, err := json.Marshal(rep)
		if err != nil {
			s.logger.Error().Err(err).Str("id", rep.ID).Msg("encode reply")
			return
		}
		wmu.Lock()
		defer wmu.Unlock()
		if _, err := w.Write(append(line, '\n')); err != nil {
			s.logger.Warn().Err(err).Str("id", rep.ID).Msg("write reply")
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64<<10), maxLine)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			var req Request
			if err := json.Unmarshal(line, &req); err != nil {
				s.logger.Warn().Err(err).Msg("discarding malformed request")
				continue
			}
			h, ok := s.handlers[req.Model+"."+req.Func]
			if !ok {
				write(Reply{ID: req.ID, Error: fmt.Sprintf("unknown function %s.%s", req.Model, req.Func)})
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				write(s.dispatch(ctx, req, h))
			}()
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req Request, h Handler) (rep Reply) {
	rep.ID = req.ID
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("func", req.Model+"."+req.Func).Msg("handler panicked")
			rep = Reply{ID: req.ID, Error: "internal error"}
		}
	}()

	res, err := h(ctx, req.Args)
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	if res != nil {
		raw, err := json.Marshal(res)
		if err != nil {
			rep.Error = fmt.Sprintf("encode result: %v", err)
			return rep
		}
		rep.Result = raw
	}
	return rep
}
