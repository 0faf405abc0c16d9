// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package hwcrypto

import (
	"unsafe"
)

// Aligned reports whether buf starts on an ALIGNMENT boundary, empty
// buffers are always aligned.
func Aligned(buf []byte) bool {
	if len(buf) == 0 {
		return true
	}

	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))%ALIGNMENT == 0
}

// AlignedBuffer returns a zeroed buffer of size n starting on an ALIGNMENT
// boundary.
func AlignedBuffer(n int) []byte {
	buf := make([]byte, n+ALIGNMENT)
	off := 0

	if r := uintptr(unsafe.Pointer(unsafe.SliceData(buf))) % ALIGNMENT; r != 0 {
		off = ALIGNMENT - int(r)
	}

	return buf[off : off+n : off+n]
}
