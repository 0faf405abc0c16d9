// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sflash

import (
	"github.com/golang/glog"

	"github.com/usbarmory/armory-sflash/internal/flash"
	"github.com/usbarmory/armory-sflash/internal/hwcrypto"
)

// pingPong holds the two sector buffers of the read pipeline, one is the
// target of the fetch in flight while the other holds the sector being
// verified.
type pingPong struct {
	bufs  [2][]byte
	fetch int
}

func newPingPong(size int) *pingPong {
	return &pingPong{
		bufs: [2][]byte{
			hwcrypto.AlignedBuffer(size),
			hwcrypto.AlignedBuffer(size),
		},
	}
}

// target returns the fetch destination.
func (p *pingPong) target() []byte {
	return p.bufs[p.fetch]
}

// work returns the buffer holding the last completed fetch.
func (p *pingPong) work() []byte {
	return p.bufs[p.fetch^1]
}

// swap waits for the fetch into the target buffer to complete and turns it
// into the work buffer.
func (p *pingPong) swap(f flash.Fetch) (err error) {
	if err = f.Wait(); err != nil {
		return
	}

	p.fetch ^= 1

	return
}

// visitor receives each sector of a pipelined read, a non nil return value
// aborts the read.
type visitor func(index uint32, plaintext []byte, err error) error

// pipeline reads and opens sectors [first, last] overlapping the fetch of
// each sector with the verification of the previous one.
func (m *Manager) pipeline(first uint32, last uint32, visit visitor) (err error) {
	var pending uint32
	var started bool

	for index := first; ; index++ {
		addr := m.Physical(index)
		f := m.async.Issue(addr, m.bufs.target())

		if started {
			if err = m.open(pending, visit); err != nil {
				// the buffer stays in use until the fetch lands
				f.Wait()
				return
			}
		}

		if err = m.bufs.swap(f); err != nil {
			return &FlashError{Op: "read", Addr: addr, Err: err}
		}

		pending = index
		started = true

		if index == last {
			break
		}
	}

	return m.open(pending, visit)
}

func (m *Manager) open(index uint32, visit visitor) error {
	plaintext, err := m.codec.Open(m.bufs.work(), m.deviceIndex(index))

	if glog.V(2) {
		glog.Infof("sflash: sector %d opened (err:%v)", index, err)
	}

	return visit(index, plaintext, err)
}
