// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package crypto

import (
	"github.com/usbarmory/armory-sflash/internal/hwcrypto"
)

const (
	IPAD = 0x36
	OPAD = 0x5c
)

// HMAC computes keyed message authentication codes as
// H(key ^ opad || H(key ^ ipad || message)).
type HMAC struct {
	h *Hash

	ipad [hwcrypto.HASH_BLOCK_SIZE]byte
	opad [hwcrypto.HASH_BLOCK_SIZE]byte
}

// NewHMAC returns an idle HMAC of the given hash algorithm.
func NewHMAC(eng *hwcrypto.Engine, alg hwcrypto.HashAlgorithm) (m *HMAC, err error) {
	h, err := NewHash(eng, alg)

	if err != nil {
		return
	}

	return &HMAC{h: h}, nil
}

// pads fills the inner and outer pads, keys longer than one hash block are
// hashed first.
func pads(eng *hwcrypto.Engine, alg hwcrypto.HashAlgorithm, key []byte, ipad []byte, opad []byte) (err error) {
	if len(key) > hwcrypto.HASH_BLOCK_SIZE {
		if key, err = Sum(eng, alg, key); err != nil {
			return
		}
	}

	clear(ipad)
	clear(opad)

	copy(ipad, key)
	copy(opad, key)

	for i := range ipad {
		ipad[i] ^= IPAD
		opad[i] ^= OPAD
	}

	return
}

func outer(eng *hwcrypto.Engine, alg hwcrypto.HashAlgorithm, opad []byte, inner []byte) ([]byte, error) {
	buf := hwcrypto.AlignedBuffer(len(opad) + len(inner))

	copy(buf, opad)
	copy(buf[len(opad):], inner)

	return Sum(eng, alg, buf)
}

// Size returns the tag size.
func (m *HMAC) Size() int {
	return m.h.Size()
}

// Phase returns the current phase of the inner hash.
func (m *HMAC) Phase() Phase {
	return m.h.Phase()
}

// Start sets the key and seeds the inner hash with the inner pad.
func (m *HMAC) Start(key []byte) (err error) {
	if err = pads(m.h.eng, m.h.alg, key, m.ipad[:], m.opad[:]); err != nil {
		return
	}

	return m.h.Start(m.ipad[:])
}

// Update feeds a message chunk.
func (m *HMAC) Update(chunk []byte) error {
	return m.h.Update(chunk)
}

// Finish feeds the last chunk and returns the tag.
func (m *HMAC) Finish(last []byte) (tag []byte, err error) {
	inner, err := m.h.Finish(last)

	if err != nil {
		return
	}

	return outer(m.h.eng, m.h.alg, m.opad[:], inner)
}

// HMACSum returns the tag of msg. Messages fitting a single engine command
// along with the inner pad are hashed in one go, larger ones go through the
// incremental inner hash.
func HMACSum(eng *hwcrypto.Engine, alg hwcrypto.HashAlgorithm, key []byte, msg []byte) (tag []byte, err error) {
	if err = checkHash(alg); err != nil {
		return
	}

	if hwcrypto.HASH_BLOCK_SIZE+len(msg) > hwcrypto.MAX_PAYLOAD_SIZE {
		var m *HMAC

		if m, err = NewHMAC(eng, alg); err != nil {
			return
		}

		if err = m.Start(key); err != nil {
			return
		}

		for len(msg) > hwcrypto.MAX_PAYLOAD_SIZE {
			if err = m.Update(msg[:hwcrypto.MAX_PAYLOAD_SIZE]); err != nil {
				return
			}

			msg = msg[hwcrypto.MAX_PAYLOAD_SIZE:]
		}

		return m.Finish(msg)
	}

	var opad [hwcrypto.HASH_BLOCK_SIZE]byte

	buf := hwcrypto.AlignedBuffer(hwcrypto.HASH_BLOCK_SIZE + len(msg))

	if err = pads(eng, alg, key, buf[:hwcrypto.HASH_BLOCK_SIZE], opad[:]); err != nil {
		return
	}

	copy(buf[hwcrypto.HASH_BLOCK_SIZE:], msg)

	inner, err := Sum(eng, alg, buf)

	if err != nil {
		return
	}

	return outer(eng, alg, opad[:], inner)
}
