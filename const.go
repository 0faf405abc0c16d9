// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

// DEFAULT_SALT is the passphrase stretching salt used when -salt is not set.
const DEFAULT_SALT = "armory-sflash"

const usage = `Usage: armory-sflash -image FILE [OPTIONS] COMMAND [ARGS]
  -h    show this help

Commands:
  create SIZE       create an erased flash image of SIZE bytes
  format            erase and initialize the secure region
  read ADDR LEN     decrypt LEN bytes at plaintext address ADDR
  write ADDR        encrypt input data at plaintext address ADDR
  verify            authenticate every sector of the secure region
  keygen            print the derived key fingerprints

Options:
  -image string
        flash image file
  -passphrase string
        key derivation passphrase (prompted when missing)
  -salt string
        key derivation salt (default "armory-sflash")
  -base uint
        secure region flash address
  -sectors uint
        number of secure sectors (default: up to the end of the image)
  -erase-size int
        flash erase sector size (default 512)
  -block-size int
        flash erase block size (default 65536)
  -retry uint
        retries on cryptographic engine timeouts
  -in string
        write input file (default: stdin)
  -out string
        read output file (default: stdout)
  -version
        show version

Logging options (-v, -logtostderr, -alsologtostderr) are also available.
`
