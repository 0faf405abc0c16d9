// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"runtime"
)

// initialized at link time (-ldflags "-X main.Build=... -X main.Revision=...")
var Build string
var Revision string

func version() string {
	return fmt.Sprintf("armory-sflash %s (%s) %s/%s", Revision, Build, runtime.GOOS, runtime.GOARCH)
}
