// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/usbarmory/armory-sflash/internal/crypto"
	"github.com/usbarmory/armory-sflash/internal/hwcrypto"
)

// fingerprint length in bytes
const FINGERPRINT_LEN = 8

func passphrase(c *Config) (pass []byte, err error) {
	if len(c.passphrase) > 0 {
		return []byte(c.passphrase), nil
	}

	fd := int(os.Stdin.Fd())

	if !term.IsTerminal(fd) {
		return nil, errors.New("missing passphrase, use -passphrase or run interactively")
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	pass, err = term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)

	if err == nil && len(pass) == 0 {
		err = errors.New("empty passphrase")
	}

	return
}

func keyring(c *Config) (*crypto.Keyring, error) {
	pass, err := passphrase(c)

	if err != nil {
		return nil, err
	}

	return crypto.DeriveKeyring(crypto.PassphraseSecret(pass, []byte(c.salt)))
}

// keygen prints the SHA-256 fingerprints of the derived sector keys.
func keygen(c *Config, eng *hwcrypto.Engine, w io.Writer) (err error) {
	k, err := keyring(c)

	if err != nil {
		return
	}

	for _, key := range []struct {
		name  string
		index int
	}{
		{"aes", crypto.AES_KEY},
		{"hmac", crypto.HMAC_KEY},
	} {
		raw, err := k.Export(key.index)

		if err != nil {
			return err
		}

		sum, err := crypto.Sum(eng, hwcrypto.SHA256, raw)

		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%-4s %s\n", key.name, hex.EncodeToString(sum[:FINGERPRINT_LEN]))
	}

	return
}
