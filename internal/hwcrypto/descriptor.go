// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package hwcrypto

import (
	"encoding/binary"
	"fmt"
)

// Message descriptor layout, all words are little endian.
//
//	0x00  MH     message header, presence flags
//	0x04  SCTX1  security context size in words
//	0x08  SCTX2  hash algorithm, hash operation, cipher algorithm, mode, direction
//	0x0c  SCTX3  ICV size in words, IV present flag
//	0x10  hash state (chaining value), 32 bytes
//	0x30  previous length in HASH_BLOCK_SIZE units
//	0x34  cipher key length
//	0x38  cipher key, 32 bytes
//	0x58  IV, 16 bytes
//	0x68  BDESC  MAC and cipher region lengths
//	0x6c  BD     payload length
const (
	MH_OFFSET         = 0x00
	SCTX1_OFFSET      = 0x04
	SCTX2_OFFSET      = 0x08
	SCTX3_OFFSET      = 0x0c
	HASH_STATE_OFFSET = 0x10
	PREV_LEN_OFFSET   = 0x30
	KEY_LEN_OFFSET    = 0x34
	KEY_OFFSET        = 0x38
	IV_OFFSET         = 0x58
	BDESC_OFFSET      = 0x68
	BD_OFFSET         = 0x6c

	DESCRIPTOR_SIZE = 0x70

	HASH_STATE_SIZE = PREV_LEN_OFFSET - HASH_STATE_OFFSET
	KEY_SIZE        = IV_OFFSET - KEY_OFFSET
	IV_SIZE         = BDESC_OFFSET - IV_OFFSET

	// MH presence flags
	MH_SCTX_PR  = 1 << 0
	MH_BDESC_PR = 1 << 1
	MH_BD_PR    = 1 << 2

	// SCTX2 fields
	SCTX2_HASH_ALG    = 0
	SCTX2_HASH_OP     = 4
	SCTX2_CIPHER_ALG  = 8
	SCTX2_CIPHER_MODE = 12
	SCTX2_DECRYPT     = 16
	SCTX2_FIELD_MASK  = 0xf

	// SCTX3 fields
	SCTX3_ICV_SIZE   = 0
	SCTX3_ICV_MASK   = 0xff
	SCTX3_IV_PRESENT = 8

	// BDESC fields
	BDESC_MAC_LEN    = 0
	BDESC_CIPHER_LEN = 16

	// BD fields
	BD_LEN      = 16
	BD_LEN_MASK = 0xffff
)

// HashAlgorithm selects the hash function of a command.
type HashAlgorithm uint32

const (
	HashNone HashAlgorithm = iota
	MD5
	SHA1
	SHA256
)

// Size returns the digest size in bytes.
func (a HashAlgorithm) Size() int {
	switch a {
	case MD5:
		return 16
	case SHA1:
		return 20
	case SHA256:
		return 32
	}

	return 0
}

func (a HashAlgorithm) String() string {
	switch a {
	case HashNone:
		return "none"
	case MD5:
		return "MD5"
	case SHA1:
		return "SHA1"
	case SHA256:
		return "SHA256"
	}

	return fmt.Sprintf("HashAlgorithm(%d)", uint32(a))
}

// HashOp selects how a hash command treats the running state.
type HashOp uint32

const (
	// HashFull hashes a complete message in one command.
	HashFull HashOp = iota
	// HashInit starts a new state over a HASH_BLOCK_SIZE multiple payload.
	HashInit
	// HashUpdate continues a state over a HASH_BLOCK_SIZE multiple payload.
	HashUpdate
	// HashFinal continues a state, pads and returns the digest.
	HashFinal
)

func (op HashOp) String() string {
	switch op {
	case HashFull:
		return "full"
	case HashInit:
		return "init"
	case HashUpdate:
		return "update"
	case HashFinal:
		return "final"
	}

	return fmt.Sprintf("HashOp(%d)", uint32(op))
}

// CipherAlgorithm selects the block cipher of a command.
type CipherAlgorithm uint32

const (
	CipherNone CipherAlgorithm = iota
	AES
	DES
	TDES
)

func (a CipherAlgorithm) String() string {
	switch a {
	case CipherNone:
		return "none"
	case AES:
		return "AES"
	case DES:
		return "DES"
	case TDES:
		return "3DES"
	}

	return fmt.Sprintf("CipherAlgorithm(%d)", uint32(a))
}

// Mode selects the block cipher mode of operation.
type Mode uint32

const (
	ECB Mode = iota
	CBC
	CFB
	CTR
)

func (m Mode) String() string {
	switch m {
	case ECB:
		return "ECB"
	case CBC:
		return "CBC"
	case CFB:
		return "CFB"
	case CTR:
		return "CTR"
	}

	return fmt.Sprintf("Mode(%d)", uint32(m))
}

// Direction selects encryption or decryption.
type Direction uint32

const (
	Encrypt Direction = iota
	Decrypt
)

// Descriptor is the decoded form of a message descriptor.
type Descriptor struct {
	Hash       HashAlgorithm
	Op         HashOp
	PrevBlocks uint32
	State      []byte

	Cipher    CipherAlgorithm
	Mode      Mode
	Direction Direction
	Key       []byte
	IV        []byte

	Length int
}

func field(w uint32, shift int) uint32 {
	return (w >> shift) & SCTX2_FIELD_MASK
}

// HashCommand builds the descriptor of a hash command. The state argument is
// the chaining value returned by the previous command of the same message and
// prevBlocks the number of HASH_BLOCK_SIZE blocks it covers, both are ignored
// by HashFull and HashInit.
func HashCommand(alg HashAlgorithm, op HashOp, state []byte, prevBlocks uint32, length int) (desc []byte, err error) {
	if length < 0 || length > MAX_PAYLOAD_SIZE {
		return nil, ErrPayloadTooLarge
	}

	if len(state) > HASH_STATE_SIZE {
		return nil, ErrInvalidDescriptor
	}

	desc = make([]byte, DESCRIPTOR_SIZE)

	sctx2 := uint32(alg)<<SCTX2_HASH_ALG | uint32(op)<<SCTX2_HASH_OP
	icv := uint32(alg.Size()/4) & SCTX3_ICV_MASK

	binary.LittleEndian.PutUint32(desc[MH_OFFSET:], MH_SCTX_PR|MH_BDESC_PR|MH_BD_PR)
	binary.LittleEndian.PutUint32(desc[SCTX1_OFFSET:], (BDESC_OFFSET-SCTX1_OFFSET)/4)
	binary.LittleEndian.PutUint32(desc[SCTX2_OFFSET:], sctx2)
	binary.LittleEndian.PutUint32(desc[SCTX3_OFFSET:], icv<<SCTX3_ICV_SIZE)

	copy(desc[HASH_STATE_OFFSET:], state)
	binary.LittleEndian.PutUint32(desc[PREV_LEN_OFFSET:], prevBlocks)

	binary.LittleEndian.PutUint32(desc[BDESC_OFFSET:], uint32(length)<<BDESC_MAC_LEN)
	binary.LittleEndian.PutUint32(desc[BD_OFFSET:], uint32(length)<<BD_LEN)

	return
}

// CipherCommand builds the descriptor of a cipher command.
func CipherCommand(alg CipherAlgorithm, mode Mode, dir Direction, key []byte, iv []byte, length int) (desc []byte, err error) {
	if length < 0 || length > MAX_PAYLOAD_SIZE {
		return nil, ErrPayloadTooLarge
	}

	if len(key) > KEY_SIZE || len(iv) > IV_SIZE {
		return nil, ErrInvalidDescriptor
	}

	desc = make([]byte, DESCRIPTOR_SIZE)

	sctx2 := uint32(alg)<<SCTX2_CIPHER_ALG | uint32(mode)<<SCTX2_CIPHER_MODE

	if dir == Decrypt {
		sctx2 |= 1 << SCTX2_DECRYPT
	}

	var sctx3 uint32

	if len(iv) > 0 {
		sctx3 |= 1 << SCTX3_IV_PRESENT
	}

	binary.LittleEndian.PutUint32(desc[MH_OFFSET:], MH_SCTX_PR|MH_BDESC_PR|MH_BD_PR)
	binary.LittleEndian.PutUint32(desc[SCTX1_OFFSET:], (BDESC_OFFSET-SCTX1_OFFSET)/4)
	binary.LittleEndian.PutUint32(desc[SCTX2_OFFSET:], sctx2)
	binary.LittleEndian.PutUint32(desc[SCTX3_OFFSET:], sctx3)

	binary.LittleEndian.PutUint32(desc[KEY_LEN_OFFSET:], uint32(len(key)))
	copy(desc[KEY_OFFSET:], key)
	copy(desc[IV_OFFSET:], iv)

	binary.LittleEndian.PutUint32(desc[BDESC_OFFSET:], uint32(length)<<BDESC_CIPHER_LEN)
	binary.LittleEndian.PutUint32(desc[BD_OFFSET:], uint32(length)<<BD_LEN)

	return
}

// ParseDescriptor decodes a message descriptor.
func ParseDescriptor(desc []byte) (d *Descriptor, err error) {
	if len(desc) != DESCRIPTOR_SIZE {
		return nil, ErrInvalidDescriptor
	}

	mh := binary.LittleEndian.Uint32(desc[MH_OFFSET:])

	if mh != MH_SCTX_PR|MH_BDESC_PR|MH_BD_PR {
		return nil, ErrInvalidDescriptor
	}

	sctx2 := binary.LittleEndian.Uint32(desc[SCTX2_OFFSET:])
	sctx3 := binary.LittleEndian.Uint32(desc[SCTX3_OFFSET:])
	bd := binary.LittleEndian.Uint32(desc[BD_OFFSET:])

	d = &Descriptor{
		Hash:       HashAlgorithm(field(sctx2, SCTX2_HASH_ALG)),
		Op:         HashOp(field(sctx2, SCTX2_HASH_OP)),
		Cipher:     CipherAlgorithm(field(sctx2, SCTX2_CIPHER_ALG)),
		Mode:       Mode(field(sctx2, SCTX2_CIPHER_MODE)),
		PrevBlocks: binary.LittleEndian.Uint32(desc[PREV_LEN_OFFSET:]),
		Length:     int((bd >> BD_LEN) & BD_LEN_MASK),
	}

	if sctx2&(1<<SCTX2_DECRYPT) != 0 {
		d.Direction = Decrypt
	}

	if d.Hash > SHA256 || d.Op > HashFinal || d.Cipher > TDES || d.Mode > CTR {
		return nil, ErrInvalidDescriptor
	}

	if d.Hash != HashNone {
		if int(sctx3>>SCTX3_ICV_SIZE&SCTX3_ICV_MASK)*4 != d.Hash.Size() {
			return nil, ErrInvalidDescriptor
		}

		d.State = desc[HASH_STATE_OFFSET : HASH_STATE_OFFSET+d.Hash.Size()]
	}

	if d.Cipher != CipherNone {
		keyLen := int(binary.LittleEndian.Uint32(desc[KEY_LEN_OFFSET:]))

		if keyLen > KEY_SIZE {
			return nil, ErrInvalidDescriptor
		}

		d.Key = desc[KEY_OFFSET : KEY_OFFSET+keyLen]

		if sctx3&(1<<SCTX3_IV_PRESENT) != 0 {
			d.IV = desc[IV_OFFSET : IV_OFFSET+IV_SIZE]
		}
	}

	return
}
