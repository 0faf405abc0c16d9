// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package crypto

import (
	"github.com/golang/glog"

	"github.com/usbarmory/armory-sflash/internal/hwcrypto"
)

// Phase represents the progress of an incremental hash.
type Phase int

const (
	// Idle hashes have never been started, or were aborted by an engine
	// failure.
	Idle Phase = iota
	// Started hashes have buffered less than one hash block, the engine
	// state is not yet initialized.
	Started
	// Updating hashes carry an engine chaining value.
	Updating
	// Finished hashes returned their digest.
	Finished
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Started:
		return "started"
	case Updating:
		return "updating"
	case Finished:
		return "finished"
	}

	return "unknown"
}

// Hash is an incremental MD5, SHA-1 or SHA-256 computation driven by the
// accelerator.
//
// The engine only consumes HASH_BLOCK_SIZE multiples before the final
// command, input is therefore carried across calls until a full block is
// available and submitted in chunks of at most BLOCK_SIZE bytes.
type Hash struct {
	eng *hwcrypto.Engine
	alg hwcrypto.HashAlgorithm

	phase Phase
	total uint64

	// running digest, opaque engine chaining value
	chain      []byte
	prevBlocks uint32

	carry    [hwcrypto.HASH_BLOCK_SIZE]byte
	carryLen int

	// aligned DMA buffers, out receives payload and digest
	in  []byte
	out []byte
}

func checkHash(alg hwcrypto.HashAlgorithm) error {
	switch alg {
	case hwcrypto.MD5, hwcrypto.SHA1, hwcrypto.SHA256:
		return nil
	}

	return ErrUnsupported
}

// NewHash returns an idle hash of the given algorithm.
func NewHash(eng *hwcrypto.Engine, alg hwcrypto.HashAlgorithm) (h *Hash, err error) {
	if err = checkHash(alg); err != nil {
		return
	}

	h = &Hash{
		eng:   eng,
		alg:   alg,
		chain: make([]byte, alg.Size()),
		in:    hwcrypto.AlignedBuffer(hwcrypto.BLOCK_SIZE),
		out:   hwcrypto.AlignedBuffer(hwcrypto.BLOCK_SIZE + alg.Size()),
	}

	return
}

// Size returns the digest size.
func (h *Hash) Size() int {
	return h.alg.Size()
}

// Phase returns the current phase.
func (h *Hash) Phase() Phase {
	return h.phase
}

// Start resets the hash and feeds the first chunk.
func (h *Hash) Start(first []byte) (err error) {
	h.phase = Started
	h.total = 0
	h.prevBlocks = 0
	h.carryLen = 0

	clear(h.chain)

	return h.update(first)
}

// Update feeds a chunk of any length.
func (h *Hash) Update(chunk []byte) (err error) {
	if h.phase != Started && h.phase != Updating {
		return ErrPhase
	}

	return h.update(chunk)
}

// Finish feeds the last chunk and returns the digest.
func (h *Hash) Finish(last []byte) (digest []byte, err error) {
	if h.phase != Started && h.phase != Updating {
		return nil, ErrPhase
	}

	if err = h.update(last); err != nil {
		return
	}

	op := hwcrypto.HashFinal

	// less than one block was ever fed, the engine cannot be
	// initialized so the whole message goes through a single command
	if h.phase == Started {
		op = hwcrypto.HashFull
	}

	copy(h.in, h.carry[:h.carryLen])

	if err = h.command(op, h.in, h.carryLen); err != nil {
		return
	}

	h.carryLen = 0
	h.phase = Finished

	digest = make([]byte, len(h.chain))
	copy(digest, h.chain)

	return
}

func (h *Hash) update(p []byte) (err error) {
	h.total += uint64(len(p))

	if h.phase == Started {
		if h.carryLen+len(p) < hwcrypto.HASH_BLOCK_SIZE {
			h.carryLen += copy(h.carry[h.carryLen:], p)
			return
		}

		n := copy(h.in, h.carry[:h.carryLen])
		fill := hwcrypto.HASH_BLOCK_SIZE - n
		copy(h.in[n:], p[:fill])

		p = p[fill:]
		h.carryLen = 0

		if err = h.command(hwcrypto.HashInit, h.in, hwcrypto.HASH_BLOCK_SIZE); err != nil {
			return
		}

		h.phase = Updating
	}

	for h.carryLen+len(p) >= hwcrypto.HASH_BLOCK_SIZE {
		var src []byte

		n := min(h.carryLen+len(p), hwcrypto.BLOCK_SIZE)
		n -= n % hwcrypto.HASH_BLOCK_SIZE

		if h.carryLen == 0 && hwcrypto.Aligned(p) {
			src = p
		} else {
			off := copy(h.in, h.carry[:h.carryLen])
			copy(h.in[off:n], p)
			src = h.in
		}

		p = p[n-h.carryLen:]
		h.carryLen = 0

		if err = h.command(hwcrypto.HashUpdate, src, n); err != nil {
			return
		}
	}

	h.carryLen += copy(h.carry[h.carryLen:], p)

	return
}

func (h *Hash) command(op hwcrypto.HashOp, src []byte, n int) (err error) {
	desc, err := hwcrypto.HashCommand(h.alg, op, h.chain, h.prevBlocks, n)

	if err != nil {
		h.phase = Idle
		return
	}

	res, err := h.eng.Execute(desc, src, h.out)

	if err != nil {
		glog.V(1).Infof("crypto: %v %v aborted after %d bytes: %v", h.alg, op, h.total, err)
		h.phase = Idle
		return
	}

	copy(h.chain, res.Digest)
	h.prevBlocks += uint32(n / hwcrypto.HASH_BLOCK_SIZE)

	return
}

// Sum returns the digest of msg. Messages up to MAX_PAYLOAD_SIZE are hashed
// with a single engine command, larger ones incrementally.
func Sum(eng *hwcrypto.Engine, alg hwcrypto.HashAlgorithm, msg []byte) (digest []byte, err error) {
	if err = checkHash(alg); err != nil {
		return
	}

	if len(msg) > hwcrypto.MAX_PAYLOAD_SIZE {
		var h *Hash

		if h, err = NewHash(eng, alg); err != nil {
			return
		}

		if err = h.Start(msg); err != nil {
			return
		}

		return h.Finish(nil)
	}

	in := msg

	if !hwcrypto.Aligned(in) {
		in = hwcrypto.AlignedBuffer(len(msg))
		copy(in, msg)
	}

	out := hwcrypto.AlignedBuffer(len(msg) + alg.Size())
	desc, err := hwcrypto.HashCommand(alg, hwcrypto.HashFull, nil, 0, len(msg))

	if err != nil {
		return
	}

	res, err := eng.Execute(desc, in, out)

	if err != nil {
		return
	}

	digest = make([]byte, alg.Size())
	copy(digest, res.Digest)

	return
}
