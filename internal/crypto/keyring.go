// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package crypto

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// key derivation iteration count
	PBKDF2_ITER = 4096

	// sector encryption key derivation diversifier
	AES_DIV = "sflashAES"
	// sector authentication key derivation diversifier
	HMAC_DIV = "sflashHMAC"

	// AES_KEY_LEN is the length of derived sector encryption keys
	// (AES-128).
	AES_KEY_LEN = 16
	// HMAC_KEY_LEN is the length of derived sector authentication keys.
	HMAC_KEY_LEN = sha256.Size
	// MIN_SECRET_LEN is the minimum length of a root secret.
	MIN_SECRET_LEN = 16
)

// Key indices
const (
	AES_KEY = iota
	HMAC_KEY
)

// Keyring holds the sector encryption and authentication keys handed to
// secure storage instances.
type Keyring struct {
	// sector encryption key
	aes []byte
	// sector authentication key
	hmac []byte
}

// NewKeyring returns a keyring with keys provisioned externally (e.g. from
// OTP fuses).
func NewKeyring(aesKey []byte, hmacKey []byte) (k *Keyring, err error) {
	switch len(aesKey) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKeyLength
	}

	if len(hmacKey) == 0 {
		return nil, ErrInvalidKeyLength
	}

	k = &Keyring{
		aes:  append([]byte{}, aesKey...),
		hmac: append([]byte{}, hmacKey...),
	}

	return
}

// DeriveKeyring returns a keyring whose keys are diversified from a root
// secret.
func DeriveKeyring(secret []byte) (k *Keyring, err error) {
	if len(secret) < MIN_SECRET_LEN {
		return nil, errors.New("root secret too short")
	}

	k = &Keyring{}

	if k.aes, err = deriveKey(secret, []byte(AES_DIV), AES_KEY); err != nil {
		return
	}

	k.hmac, err = deriveKey(secret, []byte(HMAC_DIV), HMAC_KEY)

	return
}

// PassphraseSecret stretches a passphrase into a root secret suitable for
// DeriveKeyring.
func PassphraseSecret(passphrase []byte, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, PBKDF2_ITER, sha256.Size, sha256.New)
}

func deriveKey(secret []byte, diversifier []byte, index int) (key []byte, err error) {
	var size int

	switch index {
	case AES_KEY:
		size = AES_KEY_LEN
	case HMAC_KEY:
		size = HMAC_KEY_LEN
	default:
		return nil, errors.New("invalid key index")
	}

	key = make([]byte, size)
	_, err = io.ReadFull(hkdf.New(sha256.New, secret, nil, diversifier), key)

	return
}

// Keys returns copies of the sector encryption and authentication keys.
func (k *Keyring) Keys() (aesKey []byte, hmacKey []byte, err error) {
	if len(k.aes) == 0 || len(k.hmac) == 0 {
		return nil, nil, errors.New("keyring not initialized")
	}

	aesKey = append([]byte{}, k.aes...)
	hmacKey = append([]byte{}, k.hmac...)

	return
}

// Export returns a copy of the key at the given index.
func (k *Keyring) Export(index int) ([]byte, error) {
	switch index {
	case AES_KEY:
		return append([]byte{}, k.aes...), nil
	case HMAC_KEY:
		return append([]byte{}, k.hmac...), nil
	}

	return nil, errors.New("invalid key index")
}
