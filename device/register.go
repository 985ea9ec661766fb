// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"

	"github.com/go-lpc/ssp/ctrl"
	"github.com/go-lpc/ssp/regmap"
)

const allBits = 0xFFFFFFFF

func (dev *Device) client() (*ctrl.Client, error) {
	if dev.cli == nil {
		return nil, ErrNotOpen
	}
	return dev.cli, nil
}

// SetRegister writes v to the register at addr.
// Only the bits of mask are modified, unless mask is 0xFFFFFFFF.
func (dev *Device) SetRegister(addr, v, mask uint32) error {
	cli, err := dev.client()
	if err != nil {
		return err
	}
	if mask == allBits {
		return cli.Write(addr, v)
	}
	return cli.WriteMask(addr, mask, v)
}

// ReadRegister reads the bits of mask of the register at addr.
func (dev *Device) ReadRegister(addr, mask uint32) (uint32, error) {
	cli, err := dev.client()
	if err != nil {
		return 0, err
	}
	if mask == allBits {
		return cli.Read(addr)
	}
	return cli.ReadMask(addr, mask)
}

// SetRegisterArray writes vs to consecutive registers starting at addr.
func (dev *Device) SetRegisterArray(addr uint32, vs []uint32) error {
	cli, err := dev.client()
	if err != nil {
		return err
	}
	return cli.ArrayWrite(addr, vs)
}

// ReadRegisterArray reads n consecutive registers starting at addr.
func (dev *Device) ReadRegisterArray(addr uint32, n int) ([]uint32, error) {
	cli, err := dev.client()
	if err != nil {
		return nil, err
	}
	return cli.ArrayRead(addr, n)
}

// Set sets the bits of mask of the register at addr.
func (dev *Device) Set(addr, mask uint32) error {
	cli, err := dev.client()
	if err != nil {
		return err
	}
	return cli.Set(addr, mask)
}

// Clear clears the bits of mask of the register at addr.
func (dev *Device) Clear(addr, mask uint32) error {
	cli, err := dev.client()
	if err != nil {
		return err
	}
	return cli.Clear(addr, mask)
}

// SetRegisterByName writes v to the named register, through its write mask.
// Array elements are addressed as "name[i]".
func (dev *Device) SetRegisterByName(name string, v uint32) error {
	reg, err := dev.regs.Lookup(name)
	if err != nil {
		return err
	}
	return dev.SetRegister(reg.Addr, v, reg.WriteMask)
}

// ReadRegisterByName reads the named register, through its read mask.
func (dev *Device) ReadRegisterByName(name string) (uint32, error) {
	reg, err := dev.regs.Lookup(name)
	if err != nil {
		return 0, err
	}
	return dev.ReadRegister(reg.Addr, reg.ReadMask)
}

// SetRegisterElementByName writes v to the i-th element of the named array register.
func (dev *Device) SetRegisterElementByName(name string, i int, v uint32) error {
	reg, err := dev.element(name, i)
	if err != nil {
		return err
	}
	return dev.SetRegister(reg.Addr, v, reg.WriteMask)
}

// ReadRegisterElementByName reads the i-th element of the named array register.
func (dev *Device) ReadRegisterElementByName(name string, i int) (uint32, error) {
	reg, err := dev.element(name, i)
	if err != nil {
		return 0, err
	}
	return dev.ReadRegister(reg.Addr, reg.ReadMask)
}

func (dev *Device) element(name string, i int) (regmap.Register, error) {
	reg, err := dev.regs.Lookup(name)
	if err != nil {
		return reg, err
	}
	return reg.Elem(i)
}

// SetRegisterArrayByName writes vs to the named array register.
// The number of values must match the size of the register.
func (dev *Device) SetRegisterArrayByName(name string, vs []uint32) error {
	reg, err := dev.regs.Lookup(name)
	if err != nil {
		return err
	}
	if len(vs) != reg.Size {
		dev.msg.Errorf(
			"request to set named register array %s, length %d with %d values",
			name, reg.Size, len(vs),
		)
		return fmt.Errorf(
			"device: invalid number of values for register %q (got=%d, want=%d)",
			name, len(vs), reg.Size,
		)
	}
	return dev.SetRegisterArray(reg.Addr, vs)
}

// FillRegisterArrayByName writes v to every element of the named array register.
func (dev *Device) FillRegisterArrayByName(name string, v uint32) error {
	reg, err := dev.regs.Lookup(name)
	if err != nil {
		return err
	}
	vs := make([]uint32, reg.Size)
	for i := range vs {
		vs[i] = v
	}
	return dev.SetRegisterArray(reg.Addr, vs)
}

// ReadRegisterArrayByName reads every element of the named array register.
func (dev *Device) ReadRegisterArrayByName(name string) ([]uint32, error) {
	reg, err := dev.regs.Lookup(name)
	if err != nil {
		return nil, err
	}
	return dev.ReadRegisterArray(reg.Addr, reg.Size)
}

// Apply writes the register overrides in order.
// A setting naming a whole array register fills every element.
func (dev *Device) Apply(settings ...regmap.Setting) error {
	for _, s := range settings {
		reg, err := dev.regs.Lookup(s.Name)
		if err != nil {
			return fmt.Errorf("device: could not apply setting: %w", err)
		}
		switch {
		case reg.IsArray():
			err = dev.FillRegisterArrayByName(s.Name, s.Value)
		default:
			err = dev.SetRegister(reg.Addr, s.Value, reg.WriteMask)
		}
		if err != nil {
			return fmt.Errorf("device: could not set %s=0x%08x: %w", s.Name, s.Value, err)
		}
		dev.msg.Debugf("%s = 0x%08x", s.Name, s.Value)
	}
	return nil
}

// NVWrite writes v to the non-volatile memory at addr.
func (dev *Device) NVWrite(addr, v uint32) error {
	cli, err := dev.client()
	if err != nil {
		return err
	}
	return cli.NVWrite(addr, v)
}

// NVArrayWrite writes vs to the non-volatile memory starting at addr.
func (dev *Device) NVArrayWrite(addr uint32, vs []uint32) error {
	cli, err := dev.client()
	if err != nil {
		return err
	}
	return cli.NVArrayWrite(addr, vs)
}

func (dev *Device) NVEraseSector(addr uint32) error {
	cli, err := dev.client()
	if err != nil {
		return err
	}
	return cli.NVEraseSector(addr)
}

func (dev *Device) NVEraseBlock(addr uint32) error {
	cli, err := dev.client()
	if err != nil {
		return err
	}
	return cli.NVEraseBlock(addr)
}

func (dev *Device) NVEraseChip(addr uint32) error {
	cli, err := dev.client()
	if err != nil {
		return err
	}
	return cli.NVEraseChip(addr)
}
