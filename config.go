// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/usbarmory/armory-sflash/internal/flash"
	"github.com/usbarmory/armory-sflash/internal/sflash"
)

type Config struct {
	image      string
	passphrase string
	salt       string

	in  string
	out string

	base      uint
	sectors   uint
	eraseSize int
	blockSize int
	retry     uint64

	version bool
}

var conf *Config

func init() {
	conf = &Config{}

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
	}

	flag.StringVar(&conf.image, "image", "", "flash image file")
	flag.StringVar(&conf.passphrase, "passphrase", "", "key derivation passphrase")
	flag.StringVar(&conf.salt, "salt", DEFAULT_SALT, "key derivation salt")

	flag.StringVar(&conf.in, "in", "", "write input file")
	flag.StringVar(&conf.out, "out", "", "read output file")

	flag.UintVar(&conf.base, "base", 0, "secure region flash address")
	flag.UintVar(&conf.sectors, "sectors", 0, "number of secure sectors")
	flag.IntVar(&conf.eraseSize, "erase-size", flash.SECTOR_SIZE, "flash erase sector size")
	flag.IntVar(&conf.blockSize, "block-size", flash.BLOCK_SIZE, "flash erase block size")
	flag.Uint64Var(&conf.retry, "retry", 0, "retries on cryptographic engine timeouts")

	flag.BoolVar(&conf.version, "version", false, "show version")
}

func (c *Config) options() (opts []sflash.Option, err error) {
	switch {
	case c.base > math.MaxUint32:
		return nil, fmt.Errorf("-base %#x exceeds the 32-bit flash address space", c.base)
	case c.sectors > math.MaxUint32:
		return nil, fmt.Errorf("-sectors %d exceeds the 32-bit flash address space", c.sectors)
	}

	opts = []sflash.Option{
		sflash.WithBase(uint32(c.base)),
		sflash.WithEraseSize(c.eraseSize),
		sflash.WithBlockSize(c.blockSize),
		sflash.WithRetry(c.retry),
	}

	if c.sectors != 0 {
		opts = append(opts, sflash.WithSectors(uint32(c.sectors)))
	}

	return
}
