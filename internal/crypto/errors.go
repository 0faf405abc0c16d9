// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package crypto

import (
	"errors"
)

var (
	// ErrInvalidKeyLength is returned for keys the selected algorithm
	// cannot use.
	ErrInvalidKeyLength = errors.New("invalid key length")
	// ErrInvalidLength is returned for buffers (or IVs) whose length does
	// not suit the selected mode.
	ErrInvalidLength = errors.New("invalid length")
	// ErrUnsupported is returned for algorithm and mode combinations the
	// engine does not implement.
	ErrUnsupported = errors.New("unsupported algorithm or mode")
	// ErrPhase is returned when an incremental operation is not started.
	ErrPhase = errors.New("operation not started")
)
