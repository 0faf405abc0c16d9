// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package crypto

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"hash"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/usbarmory/armory-sflash/internal/hwcrypto"
)

func pattern(n int) []byte {
	b := make([]byte, n)

	for i := range b {
		b[i] = byte(i*13 + i>>8 + 1)
	}

	return b
}

func reference(alg hwcrypto.HashAlgorithm) func() hash.Hash {
	switch alg {
	case hwcrypto.MD5:
		return md5.New
	case hwcrypto.SHA1:
		return sha1.New
	}

	return sha256.New
}

func refSum(alg hwcrypto.HashAlgorithm, msg []byte) []byte {
	h := reference(alg)()
	h.Write(msg)
	return h.Sum(nil)
}

// split cuts msg at the given offsets.
func split(msg []byte, cuts ...int) (chunks [][]byte) {
	prev := 0

	for _, c := range cuts {
		chunks = append(chunks, msg[prev:c])
		prev = c
	}

	return append(chunks, msg[prev:])
}

var algorithms = []hwcrypto.HashAlgorithm{hwcrypto.MD5, hwcrypto.SHA1, hwcrypto.SHA256}

func TestHashIncremental(t *testing.T) {
	msg := pattern(3000)

	for _, test := range []struct {
		desc   string
		size   int
		chunks func(m []byte) [][]byte
	}{
		{desc: "empty", size: 0, chunks: func(m []byte) [][]byte { return split(m) }},
		{desc: "short", size: 63, chunks: func(m []byte) [][]byte { return split(m, 10, 30) }},
		{desc: "one block", size: 64, chunks: func(m []byte) [][]byte { return split(m, 1) }},
		{desc: "small first chunk", size: 700, chunks: func(m []byte) [][]byte { return split(m, 3, 70, 71, 600) }},
		{desc: "block multiples", size: 1024, chunks: func(m []byte) [][]byte { return split(m, 64, 576) }},
		{desc: "large single", size: 3000, chunks: func(m []byte) [][]byte { return split(m) }},
		{desc: "odd splits", size: 3000, chunks: func(m []byte) [][]byte { return split(m, 1, 2, 65, 129, 1000, 1001, 2999) }},
		{desc: "misaligned", size: 2000, chunks: func(m []byte) [][]byte { return split(m, 5, 1029) }},
	} {
		for _, alg := range algorithms {
			t.Run(test.desc+"/"+alg.String(), func(t *testing.T) {
				m := msg[:test.size]
				chunks := test.chunks(m)

				h, err := NewHash(hwcrypto.New(), alg)

				if err != nil {
					t.Fatalf("NewHash: %v", err)
				}

				if err = h.Start(chunks[0]); err != nil {
					t.Fatalf("Start: %v", err)
				}

				var last []byte

				rest := chunks[1:]

				if len(rest) > 0 {
					last = rest[len(rest)-1]
					rest = rest[:len(rest)-1]
				}

				for _, c := range rest {
					if err = h.Update(c); err != nil {
						t.Fatalf("Update: %v", err)
					}
				}

				got, err := h.Finish(last)

				if err != nil {
					t.Fatalf("Finish: %v", err)
				}

				if diff := cmp.Diff(refSum(alg, m), got); diff != "" {
					t.Errorf("digest mismatch (-want +got):\n%s", diff)
				}

				one, err := Sum(hwcrypto.New(), alg, m)

				if err != nil {
					t.Fatalf("Sum: %v", err)
				}

				if diff := cmp.Diff(got, one); diff != "" {
					t.Errorf("incremental and one-shot differ (-incremental +one-shot):\n%s", diff)
				}

				if h.Phase() != Finished {
					t.Errorf("phase %v, want %v", h.Phase(), Finished)
				}
			})
		}
	}
}

func TestHashPhases(t *testing.T) {
	h, err := NewHash(hwcrypto.New(), hwcrypto.SHA256)

	if err != nil {
		t.Fatalf("NewHash: %v", err)
	}

	if err = h.Update([]byte("x")); !errors.Is(err, ErrPhase) {
		t.Errorf("Update before Start: got %v, want %v", err, ErrPhase)
	}

	if err = h.Start(pattern(10)); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if h.Phase() != Started {
		t.Errorf("phase %v, want %v", h.Phase(), Started)
	}

	if err = h.Update(pattern(60)); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if h.Phase() != Updating {
		t.Errorf("phase %v, want %v", h.Phase(), Updating)
	}

	if _, err = h.Finish(nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if _, err = h.Finish(nil); !errors.Is(err, ErrPhase) {
		t.Errorf("Finish after Finish: got %v, want %v", err, ErrPhase)
	}

	// restart reuses the instance
	if err = h.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	got, err := h.Finish([]byte("abc"))

	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if diff := cmp.Diff(refSum(hwcrypto.SHA256, []byte("abc")), got); diff != "" {
		t.Errorf("digest mismatch (-want +got):\n%s", diff)
	}
}

func TestHashLarge(t *testing.T) {
	msg := pattern(hwcrypto.MAX_PAYLOAD_SIZE*2 + 100)

	got, err := Sum(hwcrypto.New(), hwcrypto.SHA256, msg)

	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	if diff := cmp.Diff(refSum(hwcrypto.SHA256, msg), got); diff != "" {
		t.Errorf("digest mismatch (-want +got):\n%s", diff)
	}
}

func TestHashChunking(t *testing.T) {
	eng := hwcrypto.New()
	h, _ := NewHash(eng, hwcrypto.SHA1)

	// one init block, then 1024 bytes in BLOCK_SIZE commands, then final
	if err := h.Start(pattern(64 + 1024 + 10)); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := h.Finish(nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if got, want := eng.Commands(), uint64(4); got != want {
		t.Errorf("engine commands %d, want %d", got, want)
	}
}

func TestHashFailure(t *testing.T) {
	fail := false

	eng := hwcrypto.New(hwcrypto.WithFault(func(d *hwcrypto.Descriptor) bool {
		return fail && d.Op == hwcrypto.HashUpdate
	}))

	h, _ := NewHash(eng, hwcrypto.SHA256)

	if err := h.Start(pattern(64)); err != nil {
		t.Fatalf("Start: %v", err)
	}

	fail = true

	if err := h.Update(pattern(128)); !errors.Is(err, hwcrypto.ErrHashFailed) {
		t.Fatalf("Update: got %v, want %v", err, hwcrypto.ErrHashFailed)
	}

	if h.Phase() != Idle {
		t.Errorf("phase %v, want %v", h.Phase(), Idle)
	}

	if _, err := h.Finish(nil); !errors.Is(err, ErrPhase) {
		t.Errorf("Finish after failure: got %v, want %v", err, ErrPhase)
	}
}

func TestHashUnsupported(t *testing.T) {
	if _, err := NewHash(hwcrypto.New(), hwcrypto.HashNone); !errors.Is(err, ErrUnsupported) {
		t.Errorf("got %v, want %v", err, ErrUnsupported)
	}
}
