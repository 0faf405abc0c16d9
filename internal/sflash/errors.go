// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sflash

import (
	"errors"
	"fmt"

	"github.com/usbarmory/armory-sflash/internal/hwcrypto"
)

var (
	// ErrOutOfRange is returned for accesses beyond the secure region.
	ErrOutOfRange = errors.New("access exceeds secure region")
	// ErrConfig is returned for inconsistent region layouts.
	ErrConfig = errors.New("invalid secure region configuration")
)

// FlashError reports a raw flash operation failure.
type FlashError struct {
	Op   string
	Addr uint32
	Err  error
}

func (e *FlashError) Error() string {
	return fmt.Sprintf("flash %s at %#x: %v", e.Op, e.Addr, e.Err)
}

func (e *FlashError) Unwrap() error {
	return e.Err
}

// hardwareFault reports engine timeouts, the only errors worth retrying.
func hardwareFault(err error) bool {
	return errors.Is(err, hwcrypto.ErrHashFailed) || errors.Is(err, hwcrypto.ErrCipherFailed)
}
