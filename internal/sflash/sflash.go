// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package sflash implements authenticated and encrypted storage over raw
// NOR flash.
//
// The secure region is a run of sectors, each holding DataSize bytes of
// plaintext sealed by a sector.Codec. Applications address the region by
// plaintext offset, partial sector writes are served with read, modify and
// write of the whole sector while multi-sector reads overlap the flash fetch
// of a sector with the verification of the previous one.
package sflash

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"

	"github.com/usbarmory/armory-sflash/internal/flash"
	"github.com/usbarmory/armory-sflash/internal/hwcrypto"
	"github.com/usbarmory/armory-sflash/internal/sector"
)

// KeySupply provides the sector encryption and authentication keys.
type KeySupply interface {
	Keys() (aesKey []byte, hmacKey []byte, err error)
}

// Manager serves plaintext reads and writes of a secure flash region. A
// Manager serializes its calls and may be shared across goroutines.
type Manager struct {
	mu sync.Mutex

	dev   flash.RawFlash
	async flash.AsyncReader
	codec *sector.Codec
	conf  *Config

	// read pipeline buffers
	bufs *pingPong
	// read-modify-write buffer, one erase unit or one sector whichever is
	// larger
	unit []byte
}

// New returns a Manager for the secure region of dev described by opts.
func New(dev flash.RawFlash, eng *hwcrypto.Engine, keys KeySupply, opts ...Option) (m *Manager, err error) {
	conf := defaultConfig()

	for _, o := range opts {
		o(conf)
	}

	geo := sector.Geometry{
		SectorSize: conf.SectorSize,
		TagSize:    sector.TAG_SIZE,
	}

	if err = geo.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if err = conf.layout(dev); err != nil {
		return
	}

	aesKey, hmacKey, err := keys.Keys()

	if err != nil {
		return nil, fmt.Errorf("could not get sector keys, %w", err)
	}

	codec, err := sector.NewCodec(eng, geo, aesKey, hmacKey)

	if err != nil {
		return
	}

	async, ok := dev.(flash.AsyncReader)

	if !ok {
		async = flash.Async(dev)
	}

	m = &Manager{
		dev:   dev,
		async: async,
		codec: codec,
		conf:  conf,
		bufs:  newPingPong(conf.SectorSize),
		unit:  hwcrypto.AlignedBuffer(max(conf.EraseSize, conf.SectorSize)),
	}

	glog.V(1).Infof("sflash: region %#x, %d sectors of %d bytes, erase unit %d", conf.Base, conf.Sectors, conf.SectorSize, conf.EraseSize)

	return
}

// layout completes the configuration with the device geometry and checks
// its consistency.
func (c *Config) layout(dev flash.RawFlash) error {
	var info flash.Info

	if s, ok := dev.(flash.Sizer); ok {
		info = s.Info()
	}

	if c.EraseSize == 0 {
		c.EraseSize = c.SectorSize

		if info.SectorSize != 0 {
			c.EraseSize = int(info.SectorSize)
		}
	}

	if c.BlockSize == 0 {
		c.BlockSize = int(info.BlockSize)
	}

	unit := max(c.EraseSize, c.SectorSize)

	switch {
	case c.EraseSize <= 0:
		return fmt.Errorf("%w: erase size %d", ErrConfig, c.EraseSize)
	case info.SectorSize != 0 && c.EraseSize != int(info.SectorSize):
		return fmt.Errorf("%w: erase size %d, device erases %d", ErrConfig, c.EraseSize, info.SectorSize)
	case info.BlockSize != 0 && c.BlockSize != int(info.BlockSize):
		return fmt.Errorf("%w: block size %d, device erases %d", ErrConfig, c.BlockSize, info.BlockSize)
	case unit%c.EraseSize != 0 || unit%c.SectorSize != 0:
		return fmt.Errorf("%w: erase size %d does not fit sector size %d", ErrConfig, c.EraseSize, c.SectorSize)
	case c.Base%uint32(unit) != 0:
		return fmt.Errorf("%w: base %#x not aligned to %d", ErrConfig, c.Base, unit)
	case c.BlockSize < 0 || (c.BlockSize > 0 && c.BlockSize%c.EraseSize != 0):
		return fmt.Errorf("%w: block size %d", ErrConfig, c.BlockSize)
	}

	perUnit := uint32(unit / c.SectorSize)

	if info.Size != 0 {
		if c.Base >= info.Size {
			return fmt.Errorf("%w: base %#x beyond device size %#x", ErrConfig, c.Base, info.Size)
		}

		avail := (info.Size - c.Base) / uint32(c.SectorSize)
		avail -= avail % perUnit

		if c.Sectors == 0 {
			c.Sectors = avail
		}

		if c.Sectors > avail {
			return fmt.Errorf("%w: %d sectors exceed device size", ErrConfig, c.Sectors)
		}
	}

	if c.Sectors == 0 || c.Sectors%perUnit != 0 {
		return fmt.Errorf("%w: %d sectors", ErrConfig, c.Sectors)
	}

	if uint64(c.Base)+uint64(c.Sectors)*uint64(c.SectorSize) > math.MaxUint32+1 {
		return fmt.Errorf("%w: region exceeds 32-bit address space", ErrConfig)
	}

	return nil
}

// Config returns a copy of the region configuration.
func (m *Manager) Config() Config {
	return *m.conf
}

// Size returns the plaintext capacity of the secure region.
func (m *Manager) Size() int64 {
	return int64(m.conf.Sectors) * int64(m.codec.Geometry().DataSize())
}

// Physical returns the flash address of the sector at the given index.
func (m *Manager) Physical(index uint32) uint32 {
	return m.conf.Base + index*uint32(m.conf.SectorSize)
}

// deviceIndex returns the device sector index, which keys the sector IV, of
// the region sector at the given index.
func (m *Manager) deviceIndex(index uint32) uint32 {
	return m.Physical(index) / uint32(m.conf.SectorSize)
}

// SecureAddress maps a plaintext address to the flash address of its sector
// and to the offset within the sector plaintext.
func (m *Manager) SecureAddress(addr uint32) (phys uint32, offset int) {
	data := uint32(m.codec.Geometry().DataSize())
	return m.Physical(addr / data), int(addr % data)
}

func (m *Manager) check(addr uint32, n int) error {
	if uint64(addr)+uint64(n) > uint64(m.Size()) {
		return fmt.Errorf("%w: %d bytes at %#x, size %d", ErrOutOfRange, n, addr, m.Size())
	}

	return nil
}

// sectors returns the first and last sector index spanned by n bytes at
// addr.
func (m *Manager) sectors(addr uint32, n int) (first uint32, last uint32) {
	data := uint64(m.codec.Geometry().DataSize())
	first = uint32(uint64(addr) / data)
	last = uint32((uint64(addr) + uint64(n) - 1) / data)
	return
}

// retry repeats fn on engine timeouts up to the configured number of
// times, any other error is returned at once.
func (m *Manager) retry(op string, fn func() error) error {
	b := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, m.conf.Retries)

	return backoff.RetryNotify(func() error {
		err := fn()

		if err != nil && !hardwareFault(err) {
			return backoff.Permanent(err)
		}

		return err
	}, b, func(err error, _ time.Duration) {
		glog.Warningf("sflash: %s failed, retrying (%v)", op, err)
	})
}

// Read fills out with the plaintext stored at addr. Every sector spanned is
// authenticated, an *sector.AuthError carrying the device sector index is
// returned for the first one that fails.
func (m *Manager) Read(addr uint32, out []byte) (err error) {
	if err = m.check(addr, len(out)); err != nil {
		return
	}

	if len(out) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	glog.V(1).Infof("sflash: read %d bytes at %#x", len(out), addr)

	return m.retry("read", func() error {
		return m.read(addr, out)
	})
}

func (m *Manager) read(addr uint32, out []byte) error {
	data := uint64(m.codec.Geometry().DataSize())
	start := uint64(addr)
	end := start + uint64(len(out))
	first, last := m.sectors(addr, len(out))

	return m.pipeline(first, last, func(index uint32, plaintext []byte, err error) error {
		if err != nil {
			return err
		}

		base := uint64(index) * data
		lo := max(start, base)
		hi := min(end, base+data)

		copy(out[lo-start:hi-start], plaintext[lo-base:hi-base])

		return nil
	})
}

// Write stores in at addr. Sectors are committed in order, on failure the
// ones already written are kept. A sector failing authentication is never
// overwritten, its *sector.AuthError is returned instead.
func (m *Manager) Write(addr uint32, in []byte) (err error) {
	if err = m.check(addr, len(in)); err != nil {
		return
	}

	if len(in) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	glog.V(1).Infof("sflash: write %d bytes at %#x", len(in), addr)

	return m.retry("write", func() error {
		return m.write(addr, in)
	})
}

func (m *Manager) write(addr uint32, in []byte) (err error) {
	data := uint64(m.codec.Geometry().DataSize())
	size := uint32(m.conf.SectorSize)
	perUnit := uint32(len(m.unit)) / size

	start := uint64(addr)
	end := start + uint64(len(in))

	for pos := start; pos < end; {
		index := uint32(pos / data)
		first := index - index%perUnit
		phys := m.Physical(first)

		if err = m.dev.Read(phys, m.unit); err != nil {
			return &FlashError{Op: "read", Addr: phys, Err: err}
		}

		for i := index; i < first+perUnit && pos < end; i++ {
			buf := m.unit[(i-first)*size:][:size]

			var plaintext []byte

			if sector.Erased(buf) {
				plaintext, err = m.codec.OpenErased(buf, m.deviceIndex(i))
			} else {
				plaintext, err = m.codec.Open(buf, m.deviceIndex(i))
			}

			if err != nil {
				return
			}

			n := copy(plaintext[pos-uint64(i)*data:], in[pos-start:])
			pos += uint64(n)

			if err = m.codec.Seal(buf, m.deviceIndex(i)); err != nil {
				return
			}

			if glog.V(2) {
				glog.Infof("sflash: sector %d sealed (%d bytes)", i, n)
			}
		}

		if err = m.program(phys, m.unit); err != nil {
			return
		}
	}

	return
}

// program erases and writes a buffer spanning whole erase units.
func (m *Manager) program(addr uint32, buf []byte) (err error) {
	for off := 0; off < len(buf); off += m.conf.EraseSize {
		a := addr + uint32(off)

		if err = m.dev.EraseSector(a); err != nil {
			return &FlashError{Op: "erase", Addr: a, Err: err}
		}
	}

	if err = m.dev.Write(addr, buf); err != nil {
		return &FlashError{Op: "write", Addr: addr, Err: err}
	}

	return
}

// ReadAt implements io.ReaderAt over the secure region plaintext.
func (m *Manager) ReadAt(p []byte, off int64) (n int, err error) {
	size := m.Size()

	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset", ErrOutOfRange)
	}

	if off >= size {
		return 0, io.EOF
	}

	n = len(p)

	if int64(n) > size-off {
		n = int(size - off)
		err = io.EOF
	}

	if rerr := m.Read(uint32(off), p[:n]); rerr != nil {
		return 0, rerr
	}

	return
}

// WriteAt implements io.WriterAt over the secure region plaintext.
func (m *Manager) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off > math.MaxUint32 {
		return 0, fmt.Errorf("%w: offset %d", ErrOutOfRange, off)
	}

	if err = m.Write(uint32(off), p); err != nil {
		return
	}

	return len(p), nil
}

// Format erases the whole secure region and seals zeroed plaintext into
// each sector, so that every subsequent read authenticates.
func (m *Manager) Format() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	glog.V(1).Infof("sflash: formatting %d sectors at %#x", m.conf.Sectors, m.conf.Base)

	return m.retry("format", m.format)
}

func (m *Manager) format() (err error) {
	start := uint64(m.conf.Base)
	end := start + uint64(m.conf.Sectors)*uint64(m.conf.SectorSize)

	if err = m.erase(start, end); err != nil {
		return
	}

	buf := m.bufs.work()

	for index := uint32(0); index < m.conf.Sectors; index++ {
		clear(buf)

		if err = m.codec.Seal(buf, m.deviceIndex(index)); err != nil {
			return
		}

		addr := m.Physical(index)

		if err = m.dev.Write(addr, buf); err != nil {
			return &FlashError{Op: "write", Addr: addr, Err: err}
		}
	}

	return
}

// erase clears [start, end) using block erases where the range covers
// whole aligned blocks. The range may end at the top of the 32-bit address
// space.
func (m *Manager) erase(start uint64, end uint64) (err error) {
	block := uint64(m.conf.BlockSize)
	unit := uint64(m.conf.EraseSize)

	for addr := start; addr < end; {
		a := uint32(addr)

		if block > 0 && addr%block == 0 && end-addr >= block {
			if err = m.dev.EraseBlock(a); err != nil {
				return &FlashError{Op: "erase", Addr: a, Err: err}
			}

			addr += block
			continue
		}

		if err = m.dev.EraseSector(a); err != nil {
			return &FlashError{Op: "erase", Addr: a, Err: err}
		}

		addr += unit
	}

	return
}

// Verify authenticates every sector of the region and returns the region
// relative indices of those failing. Sectors never written or formatted fail
// as well.
func (m *Manager) Verify() (bad []uint32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err = m.retry("verify", func() error {
		bad = nil

		return m.pipeline(0, m.conf.Sectors-1, func(index uint32, _ []byte, err error) error {
			var authErr *sector.AuthError

			if errors.As(err, &authErr) {
				bad = append(bad, index)
				return nil
			}

			return err
		})
	})

	glog.V(1).Infof("sflash: verified %d sectors, %d failing", m.conf.Sectors, len(bad))

	return
}
