// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sflash

import (
	"github.com/usbarmory/armory-sflash/internal/sector"
)

// Config holds the secure region layout and access policy.
type Config struct {
	// Base is the flash address of the first secure sector.
	Base uint32
	// Sectors is the number of secure sectors, when zero it is computed
	// from the device size.
	Sectors uint32
	// SectorSize is the size of a secure sector.
	SectorSize int
	// EraseSize is the device erase unit, a multiple of SectorSize.
	// When larger than a sector, neighbouring sectors sharing the erase
	// unit are rewritten unchanged.
	EraseSize int
	// BlockSize is the device block erase unit used by Format, zero
	// disables block erases.
	BlockSize int
	// Retries is the number of times a whole call is repeated after a
	// cryptographic engine timeout.
	Retries uint64
}

func defaultConfig() *Config {
	return &Config{
		SectorSize: sector.SECTOR_SIZE,
	}
}

// Option configures a Manager.
type Option func(*Config)

// WithBase sets the flash address of the secure region.
func WithBase(addr uint32) Option {
	return func(c *Config) {
		c.Base = addr
	}
}

// WithSectors sets the number of secure sectors.
func WithSectors(n uint32) Option {
	return func(c *Config) {
		c.Sectors = n
	}
}

// WithSectorSize sets the secure sector size.
func WithSectorSize(n int) Option {
	return func(c *Config) {
		c.SectorSize = n
	}
}

// WithEraseSize sets the device erase unit.
func WithEraseSize(n int) Option {
	return func(c *Config) {
		c.EraseSize = n
	}
}

// WithBlockSize sets the device block erase unit.
func WithBlockSize(n int) Option {
	return func(c *Config) {
		c.BlockSize = n
	}
}

// WithRetry repeats whole calls failing on engine timeouts up to n times.
func WithRetry(n uint64) Option {
	return func(c *Config) {
		c.Retries = n
	}
}
