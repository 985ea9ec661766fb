// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-lpc/ssp/device"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

var errQuit = errors.New("quit")

func (c *ctl) newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive register console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(func(dev *device.Device) error {
				return shell(c.out, dev)
			})
		},
	}
}

func shell(w io.Writer, dev *device.Device) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(completer(dev))

	hist := filepath.Join(os.TempDir(), ".ssp-ctl.history")
	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	fmt.Fprintf(w, "connected to %v. type 'help' for the list of commands.\n", dev.Locator())
	for {
		line, err := term.Prompt("ssp> ")
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, liner.ErrPromptAborted):
			return nil
		default:
			return fmt.Errorf("could not read command: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		term.AppendHistory(line)

		err = execute(w, dev, line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintf(w, "error: %v\n", err)
		}
	}
}

func completer(dev *device.Device) liner.Completer {
	cmds := []string{"read ", "write ", "set ", "clear ", "dump", "configure", "help", "quit"}
	return func(line string) []string {
		var out []string
		toks := strings.Fields(line)
		switch {
		case len(toks) <= 1 && !strings.HasSuffix(line, " "):
			for _, cmd := range cmds {
				if strings.HasPrefix(cmd, line) {
					out = append(out, cmd)
				}
			}
		case len(toks) <= 2:
			prefix := ""
			if len(toks) == 2 {
				prefix = toks[1]
			}
			for _, name := range dev.RegMap().Names() {
				if strings.HasPrefix(name, prefix) {
					out = append(out, toks[0]+" "+name)
				}
			}
		}
		return out
	}
}

// execute runs one console command.
func execute(w io.Writer, dev *device.Device, line string) error {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return nil
	}
	nargs := func(n int) error {
		if len(toks)-1 != n {
			return fmt.Errorf("%s: invalid number of arguments (got=%d, want=%d)", toks[0], len(toks)-1, n)
		}
		return nil
	}

	switch toks[0] {
	case "read", "r":
		if err := nargs(1); err != nil {
			return err
		}
		return readReg(w, dev, toks[1])
	case "write", "w":
		if err := nargs(2); err != nil {
			return err
		}
		return writeReg(dev, toks[1], toks[2])
	case "set", "clear":
		if err := nargs(2); err != nil {
			return err
		}
		addr, err := resolve(dev, toks[1])
		if err != nil {
			return err
		}
		mask, err := parseU32(toks[2])
		if err != nil {
			return err
		}
		if toks[0] == "set" {
			return dev.Set(addr, mask)
		}
		return dev.Clear(addr, mask)
	case "dump":
		return dump(w, dev)
	case "configure":
		return dev.Configure()
	case "help", "?":
		fmt.Fprintf(w, `commands:
  read  NAME|ADDR        read a register
  write NAME|ADDR VALUE  write a register (arrays are filled)
  set   NAME|ADDR MASK   set the bits of mask
  clear NAME|ADDR MASK   clear the bits of mask
  dump                   dump all readable registers
  configure              write the default register set
  quit                   leave the console
`)
		return nil
	case "quit", "exit", "q":
		return errQuit
	}
	return fmt.Errorf("unknown command %q", toks[0])
}

func resolve(dev *device.Device, name string) (uint32, error) {
	if isAddr(name) {
		return parseU32(name)
	}
	reg, err := dev.RegMap().Lookup(name)
	if err != nil {
		return 0, err
	}
	return reg.Addr, nil
}
