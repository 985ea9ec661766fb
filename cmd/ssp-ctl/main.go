// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ssp-ctl inspects and configures SSP modules.
//
// Example:
//
//	$> ssp-ctl list
//	$> ssp-ctl --link=usb --id=0 reg read module_id
//	$> ssp-ctl --link=tcp --addr=192.168.1.2 reg write led_threshold[3] 30
//	$> ssp-ctl --link=usb reg dump
//	$> ssp-ctl --link=usb configure --cfg=run.yaml
//	$> ssp-ctl --link=usb shell
//	$> ssp-ctl runs --db=runs.db
package main // import "github.com/go-lpc/ssp/cmd/ssp-ctl"

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	tdaqlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/ssp"
	"github.com/go-lpc/ssp/config"
	"github.com/go-lpc/ssp/device"
	"github.com/go-lpc/ssp/registry"
	"github.com/go-lpc/ssp/runlog"
	"github.com/spf13/cobra"
)

func main() {
	log.SetPrefix("ssp-ctl: ")
	log.SetFlags(0)

	cmd := newRootCmd(os.Stdout, registry.New())
	err := cmd.Execute()
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type ctl struct {
	reg *registry.Registry
	out io.Writer

	link    string
	id      int
	addr    string
	verbose bool
}

func newRootCmd(out io.Writer, reg *registry.Registry) *cobra.Command {
	c := &ctl{reg: reg, out: out}
	cmd := &cobra.Command{
		Use:           "ssp-ctl",
		Short:         "Tool to inspect and configure SSP modules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&c.link, "link", "usb", "link to the module (usb, tcp, emu)")
	cmd.PersistentFlags().IntVar(&c.id, "id", 0, "USB unit index or emulated module number")
	cmd.PersistentFlags().StringVar(&c.addr, "addr", "", "address of the module (tcp link)")
	cmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose mode")

	cmd.AddCommand(c.newListCmd())
	cmd.AddCommand(c.newRegCmd())
	cmd.AddCommand(c.newConfigureCmd())
	cmd.AddCommand(c.newShellCmd())
	cmd.AddCommand(c.newRunsCmd())
	cmd.AddCommand(c.newVersionCmd())
	return cmd
}

func (c *ctl) msg() tdaqlog.MsgStream {
	lvl := tdaqlog.LvlWarning
	if c.verbose {
		lvl = tdaqlog.LvlDebug
	}
	return tdaqlog.NewMsgStream("ssp-ctl", lvl, os.Stderr)
}

// open opens the module for slow control.
func (c *ctl) open() (*device.Device, error) {
	kind, err := registry.ParseKind(c.link)
	if err != nil {
		return nil, err
	}
	loc := registry.Locator{Kind: kind, Index: c.id, Addr: c.addr}
	dev := device.New(c.reg, loc, device.WithMsgStream(c.msg()))
	err = dev.OpenSlowControl()
	if err != nil {
		return nil, fmt.Errorf("could not open %v: %w", loc, err)
	}
	return dev, nil
}

func (c *ctl) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the SSP modules on the USB bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := c.reg.List()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Fprintf(c.out, "no SSP module found\n")
				return nil
			}
			for _, info := range infos {
				state := ""
				if info.Open {
					state = " (open)"
				}
				fmt.Fprintf(c.out, "%d: serial=%s%s\n", info.Index, info.Serial, state)
			}
			return nil
		},
	}
}

func (c *ctl) newRegCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reg",
		Short: "Read and write SSP registers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "read NAME|ADDR",
		Short: "Read a register, by name or by hexadecimal address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(func(dev *device.Device) error {
				return readReg(c.out, dev, args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "write NAME|ADDR VALUE",
		Short: "Write a register, by name or by hexadecimal address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(func(dev *device.Device) error {
				return writeReg(dev, args[0], args[1])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Dump all readable registers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(func(dev *device.Device) error {
				return dump(c.out, dev)
			})
		},
	})
	return cmd
}

func (c *ctl) newConfigureCmd() *cobra.Command {
	var fname string
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Write the default register set, then the overrides of a run configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.Config
			if fname != "" {
				var err error
				cfg, err = config.Load(fname)
				if err != nil {
					return err
				}
			}
			return c.with(func(dev *device.Device) error {
				return cfg.Configure(context.Background(), dev, c.msg())
			})
		},
	}
	cmd.Flags().StringVar(&fname, "cfg", "", "path to YAML run configuration")
	return cmd
}

func (c *ctl) newRunsCmd() *cobra.Command {
	var fname string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the runs of a run catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := runlog.Open(fname)
			if err != nil {
				return err
			}
			defer rl.Close()

			runs, err := rl.Runs()
			if err != nil {
				return err
			}
			const layout = "2006-01-02 15:04:05 MST"
			for _, run := range runs {
				end := "running"
				if !run.End.IsZero() {
					end = run.End.Format(layout)
				}
				fmt.Fprintf(c.out, "run %d: device=%s beg=%s end=%s %v",
					run.ID, run.Device, run.Beg.Format(layout), end, run.Stats,
				)
				if run.Err != "" {
					fmt.Fprintf(c.out, " error=%q", run.Err)
				}
				fmt.Fprintf(c.out, "\n")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fname, "db", "runs.db", "path to run catalog")
	return cmd
}

func (c *ctl) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of ssp-ctl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vers, sum := ssp.Version()
			if vers == "" {
				vers = "(devel)"
			}
			fmt.Fprintf(c.out, "ssp-ctl %s %s\n", vers, sum)
			return nil
		},
	}
}

func (c *ctl) with(f func(dev *device.Device) error) error {
	dev, err := c.open()
	if err != nil {
		return err
	}
	err = f(dev)
	if e := dev.Shutdown(); e != nil && err == nil {
		err = e
	}
	return err
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("could not parse %q: %w", s, err)
	}
	return uint32(v), nil
}

func isAddr(s string) bool {
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}

func readReg(w io.Writer, dev *device.Device, name string) error {
	if isAddr(name) {
		addr, err := parseU32(name)
		if err != nil {
			return err
		}
		v, err := dev.ReadRegister(addr, 0xFFFFFFFF)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "0x%08x = 0x%08x\n", addr, v)
		return nil
	}

	reg, err := dev.RegMap().Lookup(name)
	if err != nil {
		return err
	}
	if reg.IsArray() {
		vs, err := dev.ReadRegisterArrayByName(name)
		if err != nil {
			return err
		}
		for i, v := range vs {
			fmt.Fprintf(w, "%s[%d] = 0x%08x\n", reg.Name, i, v&reg.ReadMask)
		}
		return nil
	}
	v, err := dev.ReadRegisterByName(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s = 0x%08x\n", reg.Name, v)
	return nil
}

func writeReg(dev *device.Device, name, value string) error {
	v, err := parseU32(value)
	if err != nil {
		return err
	}
	if isAddr(name) {
		addr, err := parseU32(name)
		if err != nil {
			return err
		}
		return dev.SetRegister(addr, v, 0xFFFFFFFF)
	}
	reg, err := dev.RegMap().Lookup(name)
	if err != nil {
		return err
	}
	if reg.IsArray() {
		return dev.FillRegisterArrayByName(name, v)
	}
	return dev.SetRegisterByName(name, v)
}

func dump(w io.Writer, dev *device.Device) error {
	var (
		regs  = dev.RegMap()
		names = regs.Names()
	)
	sort.Slice(names, func(i, j int) bool {
		ri, _ := regs.Lookup(names[i])
		rj, _ := regs.Lookup(names[j])
		return ri.Addr < rj.Addr
	})
	for _, name := range names {
		reg, err := regs.Lookup(name)
		if err != nil {
			return err
		}
		if reg.ReadMask == 0 {
			continue
		}
		err = readReg(w, dev, name)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", name, err)
		}
	}
	return nil
}
