// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// armory-sflash manages encrypted and authenticated storage within NOR
// flash images.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/golang/glog"

	"github.com/usbarmory/armory-sflash/internal/flash"
	"github.com/usbarmory/armory-sflash/internal/hwcrypto"
	"github.com/usbarmory/armory-sflash/internal/sflash"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	if conf.version {
		fmt.Println(version())
		return
	}

	if err := run(conf, flag.Args(), os.Stdin, os.Stdout); err != nil {
		glog.Exitf("armory-sflash: %v", err)
	}
}

func run(c *Config, args []string, stdin io.Reader, stdout io.Writer) (err error) {
	if len(args) == 0 {
		return errors.New("missing command, see -h")
	}

	cmd, args := args[0], args[1:]
	eng := hwcrypto.New()

	if cmd == "keygen" {
		return keygen(c, eng, stdout)
	}

	if len(c.image) == 0 {
		return errors.New("missing -image")
	}

	if cmd == "create" {
		return create(c, args)
	}

	dev, err := flash.Open(c.image, uint32(c.eraseSize), uint32(c.blockSize))

	if err != nil {
		return
	}

	defer dev.Close()

	k, err := keyring(c)

	if err != nil {
		return
	}

	opts, err := c.options()

	if err != nil {
		return
	}

	m, err := sflash.New(dev, eng, k, opts...)

	if err != nil {
		return
	}

	switch cmd {
	case "format":
		return m.Format()
	case "read":
		return read(c, m, args, stdout)
	case "write":
		return write(c, m, args, stdin)
	case "verify":
		return verify(m, stdout)
	}

	return fmt.Errorf("unknown command %q", cmd)
}

func parse(args []string, names ...string) (vals []uint32, err error) {
	if len(args) != len(names) {
		return nil, fmt.Errorf("expected arguments: %v", names)
	}

	for i, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 32)

		if err != nil {
			return nil, fmt.Errorf("invalid %s, %w", names[i], err)
		}

		vals = append(vals, uint32(v))
	}

	return
}

func create(c *Config, args []string) (err error) {
	vals, err := parse(args, "size")

	if err != nil {
		return
	}

	dev, err := flash.Create(c.image, vals[0], uint32(c.eraseSize), uint32(c.blockSize))

	if err != nil {
		return
	}

	return dev.Close()
}

func read(c *Config, m *sflash.Manager, args []string, stdout io.Writer) (err error) {
	vals, err := parse(args, "address", "length")

	if err != nil {
		return
	}

	buf := make([]byte, vals[1])

	if err = m.Read(vals[0], buf); err != nil {
		return
	}

	if len(c.out) > 0 {
		return os.WriteFile(c.out, buf, 0600)
	}

	_, err = stdout.Write(buf)

	return
}

func write(c *Config, m *sflash.Manager, args []string, stdin io.Reader) (err error) {
	var buf []byte

	vals, err := parse(args, "address")

	if err != nil {
		return
	}

	if len(c.in) > 0 {
		buf, err = os.ReadFile(c.in)
	} else {
		buf, err = io.ReadAll(stdin)
	}

	if err != nil {
		return
	}

	glog.Infof("writing %d bytes at %#x", len(buf), vals[0])

	return m.Write(vals[0], buf)
}

func verify(m *sflash.Manager, stdout io.Writer) (err error) {
	bad, err := m.Verify()

	if err != nil {
		return
	}

	for _, index := range bad {
		fmt.Fprintf(stdout, "sector %d: authentication failed\n", index)
	}

	if len(bad) > 0 {
		return fmt.Errorf("%d of %d sectors failed authentication", len(bad), m.Config().Sectors)
	}

	fmt.Fprintf(stdout, "%d sectors verified\n", m.Config().Sectors)

	return
}
