// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package flash defines the raw NOR flash capability consumed by secure
// storage along with in-memory and image file backed implementations.
package flash

import (
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const (
	// ERASED is the value of erased NOR flash bytes.
	ERASED = 0xff
	// SECTOR_SIZE is the default erase sector size.
	SECTOR_SIZE = 512
	// BLOCK_SIZE is the default erase block size.
	BLOCK_SIZE = 64 * 1024
)

var (
	// ErrOutOfRange is returned for accesses beyond the device size.
	ErrOutOfRange = errors.New("address out of range")
	// ErrUnaligned is returned for erase addresses not aligned to the
	// erase unit.
	ErrUnaligned = errors.New("unaligned erase address")
)

// RawFlash represents a NOR flash device. Writes can only clear bits, a
// region must be erased before being written.
type RawFlash interface {
	Read(addr uint32, buf []byte) error
	Write(addr uint32, buf []byte) error
	EraseSector(addr uint32) error
	EraseBlock(addr uint32) error
}

// Fetch represents a read in flight.
type Fetch interface {
	// Wait blocks until the read completes, the destination buffer
	// must not be accessed before.
	Wait() error
}

// AsyncReader is implemented by devices able to overlap reads with other
// work.
type AsyncReader interface {
	Issue(addr uint32, buf []byte) Fetch
}

// Info describes the device geometry.
type Info struct {
	Size       uint32
	SectorSize uint32
	BlockSize  uint32
}

// Sizer is implemented by devices reporting their geometry.
type Sizer interface {
	Info() Info
}

type fetch struct {
	g errgroup.Group
}

func (f *fetch) Wait() error {
	return f.g.Wait()
}

// issue runs read on its own goroutine.
func issue(read func(uint32, []byte) error, addr uint32, buf []byte) Fetch {
	f := &fetch{}

	f.g.Go(func() error {
		return read(addr, buf)
	})

	return f
}

type done struct {
	err error
}

func (d done) Wait() error {
	return d.err
}

type syncReader struct {
	dev RawFlash
}

func (s syncReader) Issue(addr uint32, buf []byte) Fetch {
	return done{err: s.dev.Read(addr, buf)}
}

// Async returns the asynchronous reader of dev, devices lacking one are
// read synchronously at issue time.
func Async(dev RawFlash) AsyncReader {
	if r, ok := dev.(AsyncReader); ok {
		return r
	}

	return syncReader{dev: dev}
}

func (i Info) check(addr uint32, n int) error {
	if uint64(addr)+uint64(n) > uint64(i.Size) {
		return fmt.Errorf("%w: %#x+%d exceeds %#x", ErrOutOfRange, addr, n, i.Size)
	}

	return nil
}

func (i Info) checkErase(addr uint32, unit uint32) error {
	if unit == 0 || addr%unit != 0 {
		return fmt.Errorf("%w: %#x", ErrUnaligned, addr)
	}

	return i.check(addr, int(unit))
}
