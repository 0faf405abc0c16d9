// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package sector implements the on-flash format of secure sectors.
//
// Each sector carries SectorSize-TagSize bytes of plaintext followed by its
// HMAC-SHA256 tag, the whole sector is then encrypted with AES-CBC under an
// IV derived from the sector index:
//
//	iv = SHA256(repeat(byte(index), len(aesKey)) ^ aesKey)[:16]
//
// so that no IV needs to be stored.
package sector

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/usbarmory/armory-sflash/internal/crypto"
	"github.com/usbarmory/armory-sflash/internal/hwcrypto"
)

const (
	// SECTOR_SIZE is the default physical sector size.
	SECTOR_SIZE = 512
	// TAG_SIZE is the size of the authentication tag (HMAC-SHA256).
	TAG_SIZE = sha256.Size
	// DATA_SIZE is the default plaintext capacity of a sector.
	DATA_SIZE = SECTOR_SIZE - TAG_SIZE
	// ERASED is the value of erased flash bytes.
	ERASED = 0xff
)

var (
	// ErrAuth matches every *AuthError.
	ErrAuth = errors.New("sector authentication failed")
	// ErrGeometry is returned for inconsistent sector geometries.
	ErrGeometry = errors.New("invalid sector geometry")
	// ErrNotErased is returned when an erased sector is expected.
	ErrNotErased = errors.New("sector is not erased")
)

// AuthError reports a sector whose tag does not match its content.
type AuthError struct {
	Sector uint32
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("sector %d: %v", e.Sector, ErrAuth)
}

// Is makes errors.Is(err, ErrAuth) hold for any *AuthError.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// Geometry describes the layout of a sector.
type Geometry struct {
	// SectorSize is the physical size of a sector.
	SectorSize int
	// TagSize is the size of the trailing authentication tag.
	TagSize int
}

// DefaultGeometry returns the 512 bytes sector layout.
func DefaultGeometry() Geometry {
	return Geometry{
		SectorSize: SECTOR_SIZE,
		TagSize:    TAG_SIZE,
	}
}

// DataSize returns the plaintext capacity of a sector.
func (g Geometry) DataSize() int {
	return g.SectorSize - g.TagSize
}

// Validate checks that the geometry can be sealed.
func (g Geometry) Validate() error {
	if g.TagSize != TAG_SIZE {
		return fmt.Errorf("%w: tag size %d, want %d", ErrGeometry, g.TagSize, TAG_SIZE)
	}

	if g.SectorSize <= g.TagSize || g.SectorSize%aes.BlockSize != 0 {
		return fmt.Errorf("%w: sector size %d", ErrGeometry, g.SectorSize)
	}

	if g.SectorSize > hwcrypto.MAX_PAYLOAD_SIZE {
		return fmt.Errorf("%w: sector size %d exceeds engine capacity", ErrGeometry, g.SectorSize)
	}

	return nil
}

// Codec seals and opens sectors in place. A Codec owns scratch buffers and
// must not be used concurrently.
type Codec struct {
	geo Geometry

	eng    *hwcrypto.Engine
	cipher *crypto.Cipher

	key     *crypto.Key
	aesKey  []byte
	hmacKey []byte

	// IV derivation input
	ivBuf []byte
	iv    []byte
}

// NewCodec returns a codec using the given sector encryption (AES-128,
// AES-192 or AES-256) and authentication keys.
func NewCodec(eng *hwcrypto.Engine, geo Geometry, aesKey []byte, hmacKey []byte) (c *Codec, err error) {
	if err = geo.Validate(); err != nil {
		return
	}

	if len(hmacKey) == 0 {
		return nil, crypto.ErrInvalidKeyLength
	}

	key, err := crypto.NewKey(hwcrypto.AES, hwcrypto.CBC, aesKey)

	if err != nil {
		return
	}

	c = &Codec{
		geo:     geo,
		eng:     eng,
		cipher:  crypto.NewCipher(eng),
		key:     key,
		aesKey:  append([]byte{}, aesKey...),
		hmacKey: append([]byte{}, hmacKey...),
		ivBuf:   hwcrypto.AlignedBuffer(len(aesKey)),
		iv:      make([]byte, aes.BlockSize),
	}

	return
}

// Geometry returns the codec sector layout.
func (c *Codec) Geometry() Geometry {
	return c.geo
}

// IV returns the IV of the sector at the given index.
func (c *Codec) IV(index uint32) (iv []byte, err error) {
	if err = c.deriveIV(index); err != nil {
		return
	}

	return append([]byte{}, c.iv...), nil
}

func (c *Codec) deriveIV(index uint32) (err error) {
	for i := range c.ivBuf {
		c.ivBuf[i] = byte(index) ^ c.aesKey[i]
	}

	digest, err := crypto.Sum(c.eng, hwcrypto.SHA256, c.ivBuf)

	if err != nil {
		return
	}

	copy(c.iv, digest)

	return
}

func (c *Codec) check(buf []byte) error {
	if len(buf) != c.geo.SectorSize {
		return fmt.Errorf("%w: sector buffer is %d bytes, want %d", crypto.ErrInvalidLength, len(buf), c.geo.SectorSize)
	}

	return nil
}

// Seal turns a sector buffer, whose first DataSize bytes hold the
// plaintext, into its on-flash representation.
func (c *Codec) Seal(buf []byte, index uint32) (err error) {
	if err = c.check(buf); err != nil {
		return
	}

	data := c.geo.DataSize()
	tag, err := crypto.HMACSum(c.eng, hwcrypto.SHA256, c.hmacKey, buf[:data])

	if err != nil {
		return
	}

	copy(buf[data:], tag)

	if err = c.deriveIV(index); err != nil {
		return
	}

	return c.cipher.Encrypt(c.key, c.iv, buf, buf)
}

// Open decrypts and authenticates a sector buffer in place, returning its
// plaintext as a slice of buf. On authentication failure the buffer is
// wiped and an *AuthError is returned.
func (c *Codec) Open(buf []byte, index uint32) (plaintext []byte, err error) {
	if err = c.check(buf); err != nil {
		return
	}

	if err = c.deriveIV(index); err != nil {
		return
	}

	if err = c.cipher.Decrypt(c.key, c.iv, buf, buf); err != nil {
		clear(buf)
		return
	}

	data := c.geo.DataSize()
	tag, err := crypto.HMACSum(c.eng, hwcrypto.SHA256, c.hmacKey, buf[:data])

	if err != nil {
		clear(buf)
		return
	}

	if !hmac.Equal(tag, buf[data:]) {
		glog.V(1).Infof("sector: %d failed authentication", index)
		clear(buf)
		return nil, &AuthError{Sector: index}
	}

	return buf[:data], nil
}

// OpenErased decrypts, without authentication, a sector which was never
// written. Erased flash carries no tag, its plaintext is the decryption of
// all ERASED bytes under the sector IV.
func (c *Codec) OpenErased(buf []byte, index uint32) (plaintext []byte, err error) {
	if err = c.check(buf); err != nil {
		return
	}

	if !Erased(buf) {
		return nil, ErrNotErased
	}

	if err = c.deriveIV(index); err != nil {
		return
	}

	if err = c.cipher.Decrypt(c.key, c.iv, buf, buf); err != nil {
		clear(buf)
		return
	}

	return buf[:c.geo.DataSize()], nil
}

// SealSector returns the sealed representation of a sector plaintext.
func (c *Codec) SealSector(plaintext []byte, index uint32) (sector []byte, err error) {
	if len(plaintext) != c.geo.DataSize() {
		return nil, fmt.Errorf("%w: plaintext is %d bytes, want %d", crypto.ErrInvalidLength, len(plaintext), c.geo.DataSize())
	}

	sector = hwcrypto.AlignedBuffer(c.geo.SectorSize)
	copy(sector, plaintext)

	if err = c.Seal(sector, index); err != nil {
		return nil, err
	}

	return
}

// OpenSector returns the plaintext of a sealed sector, leaving the sector
// untouched.
func (c *Codec) OpenSector(sector []byte, index uint32) (plaintext []byte, err error) {
	buf := hwcrypto.AlignedBuffer(len(sector))
	copy(buf, sector)

	return c.Open(buf, index)
}

// Erased reports whether a raw sector only holds erased flash bytes.
func Erased(buf []byte) bool {
	for _, b := range buf {
		if b != ERASED {
			return false
		}
	}

	return true
}
