// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package crypto

import (
	"crypto/hmac"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/usbarmory/armory-sflash/internal/hwcrypto"
)

func refHMAC(alg hwcrypto.HashAlgorithm, key []byte, msg []byte) []byte {
	m := hmac.New(reference(alg), key)
	m.Write(msg)
	return m.Sum(nil)
}

func TestHMAC(t *testing.T) {
	for _, test := range []struct {
		desc    string
		keySize int
		msgSize int
		cuts    []int
	}{
		{desc: "empty message", keySize: 32, msgSize: 0},
		{desc: "sector payload", keySize: 32, msgSize: 480, cuts: []int{100, 200}},
		{desc: "short key", keySize: 5, msgSize: 1000, cuts: []int{1}},
		{desc: "block key", keySize: 64, msgSize: 64},
		{desc: "long key", keySize: 100, msgSize: 129, cuts: []int{64}},
		{desc: "above engine capacity", keySize: 32, msgSize: hwcrypto.MAX_PAYLOAD_SIZE + 1000, cuts: []int{40000}},
	} {
		for _, alg := range algorithms {
			t.Run(test.desc+"/"+alg.String(), func(t *testing.T) {
				eng := hwcrypto.New()
				key := pattern(test.keySize + 1)[1:]
				msg := pattern(test.msgSize)
				want := refHMAC(alg, key, msg)

				one, err := HMACSum(eng, alg, key, msg)

				if err != nil {
					t.Fatalf("HMACSum: %v", err)
				}

				if diff := cmp.Diff(want, one); diff != "" {
					t.Errorf("one-shot tag mismatch (-want +got):\n%s", diff)
				}

				m, err := NewHMAC(eng, alg)

				if err != nil {
					t.Fatalf("NewHMAC: %v", err)
				}

				if err = m.Start(key); err != nil {
					t.Fatalf("Start: %v", err)
				}

				chunks := split(msg, test.cuts...)

				for _, c := range chunks[:len(chunks)-1] {
					if err = m.Update(c); err != nil {
						t.Fatalf("Update: %v", err)
					}
				}

				got, err := m.Finish(chunks[len(chunks)-1])

				if err != nil {
					t.Fatalf("Finish: %v", err)
				}

				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("incremental tag mismatch (-want +got):\n%s", diff)
				}

				if m.Size() != alg.Size() {
					t.Errorf("size %d, want %d", m.Size(), alg.Size())
				}
			})
		}
	}
}

func TestHMACInnerPadSeeding(t *testing.T) {
	m, _ := NewHMAC(hwcrypto.New(), hwcrypto.SHA256)

	if err := m.Start([]byte("key")); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// the inner pad is a full hash block, the engine state is initialized
	if m.Phase() != Updating {
		t.Errorf("phase %v, want %v", m.Phase(), Updating)
	}
}

func TestHMACFailure(t *testing.T) {
	eng := hwcrypto.New(hwcrypto.WithFault(func(d *hwcrypto.Descriptor) bool {
		return d.Op == hwcrypto.HashFull
	}))

	if _, err := HMACSum(eng, hwcrypto.SHA256, []byte("key"), []byte("msg")); !errors.Is(err, hwcrypto.ErrHashFailed) {
		t.Errorf("got %v, want %v", err, hwcrypto.ErrHashFailed)
	}
}
