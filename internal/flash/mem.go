// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package flash

import (
	"bytes"
	"sync"
)

// Mem is an in-memory NOR flash device.
type Mem struct {
	sync.Mutex

	info Info
	data []byte

	// operation counters
	Reads  int
	Writes int
	Erases int
}

// NewMem returns an erased device of the given size and erase geometry.
func NewMem(size uint32, sectorSize uint32, blockSize uint32) *Mem {
	return &Mem{
		info: Info{
			Size:       size,
			SectorSize: sectorSize,
			BlockSize:  blockSize,
		},
		data: bytes.Repeat([]byte{ERASED}, int(size)),
	}
}

// Info returns the device geometry.
func (m *Mem) Info() Info {
	return m.info
}

// Bytes returns the device content, for inspection or tampering.
func (m *Mem) Bytes() []byte {
	return m.data
}

// Read copies len(buf) bytes at addr into buf.
func (m *Mem) Read(addr uint32, buf []byte) (err error) {
	if err = m.info.check(addr, len(buf)); err != nil {
		return
	}

	m.Lock()
	defer m.Unlock()

	m.Reads++
	copy(buf, m.data[addr:])

	return
}

// Write programs buf at addr, only clearing bits.
func (m *Mem) Write(addr uint32, buf []byte) (err error) {
	if err = m.info.check(addr, len(buf)); err != nil {
		return
	}

	m.Lock()
	defer m.Unlock()

	m.Writes++

	for i, b := range buf {
		m.data[int(addr)+i] &= b
	}

	return
}

func (m *Mem) erase(addr uint32, unit uint32) (err error) {
	if err = m.info.checkErase(addr, unit); err != nil {
		return
	}

	m.Lock()
	defer m.Unlock()

	m.Erases++

	for i := addr; i < addr+unit; i++ {
		m.data[i] = ERASED
	}

	return
}

// EraseSector erases the sector starting at addr.
func (m *Mem) EraseSector(addr uint32) error {
	return m.erase(addr, m.info.SectorSize)
}

// EraseBlock erases the block starting at addr.
func (m *Mem) EraseBlock(addr uint32) error {
	return m.erase(addr, m.info.BlockSize)
}

// Issue starts an asynchronous read.
func (m *Mem) Issue(addr uint32, buf []byte) Fetch {
	return issue(m.Read, addr, buf)
}
