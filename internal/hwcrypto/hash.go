// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package hwcrypto

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding"
	"encoding/binary"
	"hash"
)

// Serialized hash states are laid out as a 4 bytes magic, the chaining
// words, the pending block and the message length.
const (
	stateMagicSize = 4
	stateLenSize   = 8
)

func (a HashAlgorithm) new() hash.Hash {
	switch a {
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	}

	return nil
}

// exportChain returns the chaining value of a state positioned on a block
// boundary.
func exportChain(h hash.Hash, size int) (chain []byte, err error) {
	m, ok := h.(encoding.BinaryMarshaler)

	if !ok {
		return nil, ErrHashFailed
	}

	s, err := m.MarshalBinary()

	if err != nil {
		return
	}

	if len(s) < stateMagicSize+size+stateLenSize {
		return nil, ErrHashFailed
	}

	chain = make([]byte, size)
	copy(chain, s[stateMagicSize:])

	return
}

// importChain rebuilds a hash state from a chaining value covering
// prevBlocks blocks.
func importChain(alg HashAlgorithm, chain []byte, prevBlocks uint32) (h hash.Hash, err error) {
	h = alg.new()

	m, ok := h.(encoding.BinaryMarshaler)

	if !ok {
		return nil, ErrHashFailed
	}

	s, err := m.MarshalBinary()

	if err != nil {
		return
	}

	copy(s[stateMagicSize:], chain)
	binary.BigEndian.PutUint64(s[len(s)-stateLenSize:], uint64(prevBlocks)*HASH_BLOCK_SIZE)

	err = h.(encoding.BinaryUnmarshaler).UnmarshalBinary(s)

	return
}

func execHash(d *Descriptor, in []byte, out []byte) (digest []byte, err error) {
	var h hash.Hash

	size := d.Hash.Size()
	payload := in[:d.Length]

	if len(out) < d.Length+size {
		return nil, ErrInvalidDescriptor
	}

	switch d.Op {
	case HashInit, HashUpdate:
		if d.Length%HASH_BLOCK_SIZE != 0 {
			return nil, ErrInvalidDescriptor
		}
	}

	switch d.Op {
	case HashFull, HashInit:
		h = d.Hash.new()
	default:
		if h, err = importChain(d.Hash, d.State, d.PrevBlocks); err != nil {
			return
		}
	}

	h.Write(payload)

	var sum []byte

	switch d.Op {
	case HashFull, HashFinal:
		sum = h.Sum(nil)
	default:
		if sum, err = exportChain(h, size); err != nil {
			return
		}
	}

	copy(out, payload)
	copy(out[d.Length:], sum)

	return out[d.Length : d.Length+size], nil
}
