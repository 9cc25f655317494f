// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("reserve not found")
	ErrInvalidReserveOption = errors.New("invalid reserve option")
	// ErrExecutionLocked is returned when another pass holds the store.
	ErrExecutionLocked = errors.New("reservation store is busy")
	// errStalePass is returned by a pass whose lock was force-released.
	errStalePass = errors.New("scheduler pass lost its lock")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidReserveOption, fmt.Sprintf(format, args...))
}
