// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package crypto

import (
	"crypto/aes"
	"crypto/des"

	"github.com/golang/glog"

	"github.com/usbarmory/armory-sflash/internal/hwcrypto"
)

// Key is an immutable block cipher key bound to an algorithm and mode.
type Key struct {
	alg  hwcrypto.CipherAlgorithm
	mode hwcrypto.Mode
	raw  []byte
}

// NewKey validates and copies a raw key. AES accepts 16, 24 and 32 bytes
// keys in ECB, CBC, CFB and CTR modes, DES 8 bytes keys and 3DES 16 or 24
// bytes keys in ECB and CBC modes only.
func NewKey(alg hwcrypto.CipherAlgorithm, mode hwcrypto.Mode, raw []byte) (k *Key, err error) {
	switch alg {
	case hwcrypto.AES:
		switch len(raw) {
		case 16, 24, 32:
		default:
			return nil, ErrInvalidKeyLength
		}

		if mode > hwcrypto.CTR {
			return nil, ErrUnsupported
		}
	case hwcrypto.DES, hwcrypto.TDES:
		switch {
		case alg == hwcrypto.DES && len(raw) == 8:
		case alg == hwcrypto.TDES && (len(raw) == 16 || len(raw) == 24):
		default:
			return nil, ErrInvalidKeyLength
		}

		if mode != hwcrypto.ECB && mode != hwcrypto.CBC {
			return nil, ErrUnsupported
		}
	default:
		return nil, ErrUnsupported
	}

	k = &Key{
		alg:  alg,
		mode: mode,
		raw:  make([]byte, len(raw)),
	}

	copy(k.raw, raw)

	return
}

// BlockSize returns the cipher block size.
func (k *Key) BlockSize() int {
	if k.alg == hwcrypto.AES {
		return aes.BlockSize
	}

	return des.BlockSize
}

// Mode returns the key mode of operation.
func (k *Key) Mode() hwcrypto.Mode {
	return k.mode
}

// Cipher performs block cipher operations on the accelerator.
//
// Caller buffers are handed to the engine directly when they honour the DMA
// alignment, otherwise they are copied through owned scratch buffers.
type Cipher struct {
	eng *hwcrypto.Engine

	in  []byte
	out []byte
}

// NewCipher returns a cipher bound to an engine.
func NewCipher(eng *hwcrypto.Engine) *Cipher {
	return &Cipher{
		eng: eng,
	}
}

// Encrypt encrypts src into dst, which may overlap entirely. In CBC, CFB and
// CTR modes iv is updated in place so that a further call continues the same
// stream, calls other than the last one should then process whole blocks.
func (c *Cipher) Encrypt(k *Key, iv []byte, dst []byte, src []byte) error {
	return c.crypt(k, hwcrypto.Encrypt, iv, dst, src)
}

// Decrypt decrypts src into dst, with the same rules as Encrypt.
func (c *Cipher) Decrypt(k *Key, iv []byte, dst []byte, src []byte) error {
	return c.crypt(k, hwcrypto.Decrypt, iv, dst, src)
}

func scratch(buf *[]byte, n int) []byte {
	if len(*buf) < n {
		*buf = hwcrypto.AlignedBuffer(n)
	}

	return (*buf)[:n]
}

func (c *Cipher) crypt(k *Key, dir hwcrypto.Direction, iv []byte, dst []byte, src []byte) (err error) {
	bs := k.BlockSize()

	if len(dst) < len(src) {
		return ErrInvalidLength
	}

	switch k.mode {
	case hwcrypto.ECB:
		iv = nil
	default:
		if len(iv) != bs {
			return ErrInvalidLength
		}
	}

	switch k.mode {
	case hwcrypto.ECB, hwcrypto.CBC:
		if len(src)%bs != 0 {
			return ErrInvalidLength
		}
	}

	dst = dst[:len(src)]
	chunk := hwcrypto.MAX_PAYLOAD_SIZE - hwcrypto.MAX_PAYLOAD_SIZE%bs

	for off := 0; off < len(src); {
		n := min(len(src)-off, chunk)

		in := src[off : off+n]
		out := dst[off : off+n]

		sin := in
		sout := out

		if !hwcrypto.Aligned(in) {
			sin = scratch(&c.in, n)
			copy(sin, in)
		}

		if !hwcrypto.Aligned(out) {
			sout = scratch(&c.out, n)
		}

		var desc []byte
		var res hwcrypto.Result

		if desc, err = hwcrypto.CipherCommand(k.alg, k.mode, dir, k.raw, iv, n); err != nil {
			return
		}

		if res, err = c.eng.Execute(desc, sin, sout); err != nil {
			glog.V(1).Infof("crypto: %v %v aborted at offset %d: %v", k.alg, k.mode, off, err)
			return
		}

		if !hwcrypto.Aligned(out) {
			copy(out, sout)
		}

		copy(iv, res.IV)
		off += n
	}

	return
}
