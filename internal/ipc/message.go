// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ipc is a small request/reply protocol to helper processes. Messages
// are JSON objects, one per line, correlated by id.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout applies to calls made without WithTimeout.
const DefaultTimeout = 5 * time.Second

// NoTimeout waits for the reply indefinitely. Use it for long maintenance
// calls only; ctx cancellation still applies.
const NoTimeout time.Duration = 0

var (
	ErrTimeout = errors.New("ipc: call timed out")
	ErrClosed  = errors.New("ipc: connection closed")
)

type Request struct {
	ID    string          `json:"id"`
	Model string          `json:"model"`
	Func  string          `json:"func"`
	Args  json.RawMessage `json:"args,omitempty"`
}

type Reply struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RemoteError is an error reported by the peer.
type RemoteError struct {
	Model   string
	Func    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ipc: %s.%s: %s", e.Model, e.Func, e.Message)
}
