// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package hwcrypto models a descriptor driven cryptographic accelerator
// (SPU-M style) able to perform block hashing (MD5, SHA-1, SHA-256) and block
// ciphers (AES, DES, 3DES).
//
// Every command is described by a fixed layout message descriptor (see
// descriptor.go) and operates on DMA buffers which must honour ALIGNMENT.
// The engine executes one command at a time, callers share a single *Engine
// across all hashing and cipher users.
package hwcrypto

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

const (
	// BLOCK_SIZE is the largest payload processed by a single incremental
	// hash command.
	BLOCK_SIZE = 512
	// ALIGNMENT is the DMA buffer alignment required by the engine.
	ALIGNMENT = 16
	// HASH_BLOCK_SIZE is the compression block size of all supported
	// hashes, incremental commands require payloads multiple of it.
	HASH_BLOCK_SIZE = 64
	// MAX_PAYLOAD_SIZE is the largest payload of a single command, the
	// largest HASH_BLOCK_SIZE multiple representable in the 16-bit
	// descriptor length field.
	MAX_PAYLOAD_SIZE = 0xffc0
)

var (
	// ErrHashFailed is returned when a hash command does not complete.
	ErrHashFailed = errors.New("hardware hash operation failed")
	// ErrCipherFailed is returned when a cipher command does not complete.
	ErrCipherFailed = errors.New("hardware cipher operation failed")
	// ErrMisaligned is returned when a DMA buffer violates ALIGNMENT.
	ErrMisaligned = errors.New("misaligned DMA buffer")
	// ErrPayloadTooLarge is returned for payloads above MAX_PAYLOAD_SIZE.
	ErrPayloadTooLarge = errors.New("payload exceeds engine capacity")
	// ErrInvalidDescriptor is returned for malformed or unsupported commands.
	ErrInvalidDescriptor = errors.New("invalid command descriptor")
)

// Result holds the output of a command besides the payload written to the
// output buffer.
type Result struct {
	// Digest is the hash chaining value (HashInit, HashUpdate) or final
	// digest (HashFull, HashFinal), it aliases the output buffer.
	Digest []byte
	// IV is the chaining IV to be used by the next cipher command
	// continuing the same stream.
	IV []byte
}

// Engine represents a cryptographic accelerator instance.
type Engine struct {
	sync.Mutex

	// fault, when set, is consulted before each command and reports a
	// busy timeout when it returns true.
	fault func(d *Descriptor) bool

	commands atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithFault installs a hook simulating engine busy timeouts, the command is
// failed whenever f returns true.
func WithFault(f func(d *Descriptor) bool) Option {
	return func(e *Engine) {
		e.fault = f
	}
}

// New returns an idle engine.
func New(opts ...Option) *Engine {
	e := &Engine{}

	for _, o := range opts {
		o(e)
	}

	return e
}

// Commands returns the number of commands submitted to the engine.
func (e *Engine) Commands() uint64 {
	return e.commands.Load()
}

// Execute runs the command encoded in desc over the first Length bytes of
// in, writing its output to out. For hash commands out receives the payload
// followed by the chaining value or digest, for cipher commands it receives
// the processed payload. The two buffers may be the same slice.
func (e *Engine) Execute(desc []byte, in []byte, out []byte) (res Result, err error) {
	d, err := ParseDescriptor(desc)

	if err != nil {
		return
	}

	if d.Length > MAX_PAYLOAD_SIZE {
		return res, ErrPayloadTooLarge
	}

	if len(in) < d.Length {
		return res, ErrInvalidDescriptor
	}

	if !Aligned(in) || !Aligned(out) {
		return res, ErrMisaligned
	}

	e.Lock()
	defer e.Unlock()

	e.commands.Add(1)

	switch {
	case d.Hash != HashNone && d.Cipher == CipherNone:
		if e.fault != nil && e.fault(d) {
			glog.Warningf("hwcrypto: hash command timeout (%v %v)", d.Hash, d.Op)
			return res, ErrHashFailed
		}

		res.Digest, err = execHash(d, in, out)
	case d.Cipher != CipherNone && d.Hash == HashNone:
		if e.fault != nil && e.fault(d) {
			glog.Warningf("hwcrypto: cipher command timeout (%v %v)", d.Cipher, d.Mode)
			return res, ErrCipherFailed
		}

		res.IV, err = execCipher(d, in, out)
	default:
		err = ErrInvalidDescriptor
	}

	if glog.V(3) {
		glog.Infof("hwcrypto: command hash:%v cipher:%v len:%d err:%v", d.Hash, d.Cipher, d.Length, err)
	}

	return
}
