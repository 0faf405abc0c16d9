// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package hwcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
)

// NewBlock returns the block cipher selected by alg, 16 bytes 3DES keys are
// expanded as K1 K2 K1.
func NewBlock(alg CipherAlgorithm, key []byte) (block cipher.Block, err error) {
	switch alg {
	case AES:
		return aes.NewCipher(key)
	case DES:
		return des.NewCipher(key)
	case TDES:
		if len(key) == 16 {
			k := make([]byte, 0, 24)
			k = append(k, key...)
			k = append(k, key[:8]...)
			key = k
		}

		return des.NewTripleDESCipher(key)
	}

	return nil, ErrInvalidDescriptor
}

// nextIV returns the last block size bytes of iv || ct.
func nextIV(iv []byte, ct []byte) []byte {
	bs := len(iv)
	next := make([]byte, bs)

	if len(ct) >= bs {
		copy(next, ct[len(ct)-bs:])
	} else {
		n := copy(next, iv[len(ct):])
		copy(next[n:], ct)
	}

	return next
}

// incCounter returns iv incremented, as a big endian counter, by n.
func incCounter(iv []byte, n int) []byte {
	next := make([]byte, len(iv))
	copy(next, iv)

	carry := uint64(n)

	for i := len(next) - 1; i >= 0 && carry > 0; i-- {
		sum := uint64(next[i]) + carry&0xff
		next[i] = byte(sum)
		carry = carry>>8 + sum>>8
	}

	return next
}

func execCipher(d *Descriptor, in []byte, out []byte) (iv []byte, err error) {
	if len(out) < d.Length {
		return nil, ErrInvalidDescriptor
	}

	block, err := NewBlock(d.Cipher, d.Key)

	if err != nil {
		return nil, ErrInvalidDescriptor
	}

	bs := block.BlockSize()
	src := in[:d.Length]
	dst := out[:d.Length]

	if d.Mode != ECB {
		if d.IV == nil || (d.Cipher != AES && d.Mode != CBC) {
			return nil, ErrInvalidDescriptor
		}

		iv = d.IV[:bs]
	}

	switch d.Mode {
	case ECB, CBC:
		if d.Length%bs != 0 {
			return nil, ErrInvalidDescriptor
		}
	}

	// ciphertext side of the operation, captured before an in place
	// decryption overwrites it
	var ct []byte

	if d.Direction == Decrypt && d.Mode != ECB {
		ct = make([]byte, len(src))
		copy(ct, src)
	}

	switch d.Mode {
	case ECB:
		for i := 0; i < len(src); i += bs {
			if d.Direction == Encrypt {
				block.Encrypt(dst[i:i+bs], src[i:i+bs])
			} else {
				block.Decrypt(dst[i:i+bs], src[i:i+bs])
			}
		}

		return nil, nil
	case CBC:
		if d.Direction == Encrypt {
			cipher.NewCBCEncrypter(block, iv).CryptBlocks(dst, src)
		} else {
			cipher.NewCBCDecrypter(block, iv).CryptBlocks(dst, src)
		}
	case CFB:
		if d.Direction == Encrypt {
			cipher.NewCFBEncrypter(block, iv).XORKeyStream(dst, src)
		} else {
			cipher.NewCFBDecrypter(block, iv).XORKeyStream(dst, src)
		}
	case CTR:
		cipher.NewCTR(block, iv).XORKeyStream(dst, src)
		return incCounter(iv, (d.Length+bs-1)/bs), nil
	}

	if d.Direction == Encrypt {
		ct = dst
	}

	return nextIV(iv, ct), nil
}
