// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package flash

import (
	"bytes"
	"fmt"
	"os"

	"github.com/golang/glog"
)

// File is a NOR flash device backed by an image file.
type File struct {
	f    *os.File
	info Info
}

// Create creates an erased image file.
func Create(path string, size uint32, sectorSize uint32, blockSize uint32) (d *File, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)

	if err != nil {
		return
	}

	if _, err = f.Write(bytes.Repeat([]byte{ERASED}, int(size))); err != nil {
		f.Close()
		return
	}

	glog.V(1).Infof("flash: created %s (%d bytes)", path, size)

	return &File{
		f:    f,
		info: Info{Size: size, SectorSize: sectorSize, BlockSize: blockSize},
	}, nil
}

// Open opens an existing image file.
func Open(path string, sectorSize uint32, blockSize uint32) (d *File, err error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)

	if err != nil {
		return
	}

	fi, err := f.Stat()

	if err != nil {
		f.Close()
		return
	}

	if fi.Size() > 1<<32-1 {
		f.Close()
		return nil, fmt.Errorf("image %s exceeds 32-bit address space", path)
	}

	return &File{
		f:    f,
		info: Info{Size: uint32(fi.Size()), SectorSize: sectorSize, BlockSize: blockSize},
	}, nil
}

// Close closes the image file.
func (d *File) Close() error {
	return d.f.Close()
}

// Info returns the device geometry.
func (d *File) Info() Info {
	return d.info
}

// Read copies len(buf) bytes at addr into buf.
func (d *File) Read(addr uint32, buf []byte) (err error) {
	if err = d.info.check(addr, len(buf)); err != nil {
		return
	}

	_, err = d.f.ReadAt(buf, int64(addr))

	return
}

// Write programs buf at addr, only clearing bits.
func (d *File) Write(addr uint32, buf []byte) (err error) {
	cur := make([]byte, len(buf))

	if err = d.Read(addr, cur); err != nil {
		return
	}

	for i := range cur {
		cur[i] &= buf[i]
	}

	_, err = d.f.WriteAt(cur, int64(addr))

	return
}

func (d *File) erase(addr uint32, unit uint32) (err error) {
	if err = d.info.checkErase(addr, unit); err != nil {
		return
	}

	_, err = d.f.WriteAt(bytes.Repeat([]byte{ERASED}, int(unit)), int64(addr))

	return
}

// EraseSector erases the sector starting at addr.
func (d *File) EraseSector(addr uint32) error {
	return d.erase(addr, d.info.SectorSize)
}

// EraseBlock erases the block starting at addr.
func (d *File) EraseBlock(addr uint32) error {
	return d.erase(addr, d.info.BlockSize)
}

// Issue starts an asynchronous read.
func (d *File) Issue(addr uint32, buf []byte) Fetch {
	return issue(d.Read, addr, buf)
}
