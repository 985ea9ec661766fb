// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regmap holds the human-readable names of the SSP registers.
//
// Zynq registers are in camelCase, Artix registers are
// spaced_with_underscores.
package regmap // import "github.com/go-lpc/ssp/regmap"

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NumChannels is the number of channels of an SSP module.
const NumChannels = 12

var (
	// ErrNoSuchRegister is returned when a register name is unknown.
	ErrNoSuchRegister = errors.New("regmap: no such register")
	// ErrIndex is returned when an array register is indexed past its end.
	ErrIndex = errors.New("regmap: index out of range")
)

// Register describes a (possibly array) SSP register.
type Register struct {
	Name      string
	Addr      uint32 // address of the first element in SSP space
	ReadMask  uint32 // readable bits
	WriteMask uint32 // writable bits
	Size      int    // number of 32b elements
}

// Elem returns the i-th element of an array register.
func (reg Register) Elem(i int) (Register, error) {
	if i < 0 || i >= reg.Size {
		return Register{}, fmt.Errorf(
			"regmap: register %q index %d beyond end of array (size=%d): %w",
			reg.Name, i, reg.Size, ErrIndex,
		)
	}
	elem := reg
	elem.Name = fmt.Sprintf("%s[%d]", reg.Name, i)
	elem.Addr = reg.Addr + 4*uint32(i)
	elem.Size = 1
	return elem, nil
}

// IsArray returns whether the register spans more than one word.
func (reg Register) IsArray() bool { return reg.Size > 1 }

// Setting is a register value override.
// Name may address a single element of an array register as "name[i]";
// an array register addressed without index is filled with Value.
type Setting struct {
	Name  string `json:"name"`
	Value uint32 `json:"value"`
}

// Map is a lookup table of named registers.
type Map struct {
	regs map[string]Register
}

// New creates a register map from the provided registers.
func New(regs ...Register) *Map {
	m := &Map{regs: make(map[string]Register, len(regs))}
	for _, reg := range regs {
		if reg.Size == 0 {
			reg.Size = 1
		}
		m.regs[reg.Name] = reg
	}
	return m
}

// Default returns the register map of the SSP firmware.
func Default() *Map {
	return New(table...)
}

// Lookup returns the register named name.
// Array elements can be addressed as "name[i]".
func (m *Map) Lookup(name string) (Register, error) {
	if reg, ok := m.regs[name]; ok {
		return reg, nil
	}

	base, idx, ok := splitIndex(name)
	if !ok {
		return Register{}, fmt.Errorf("regmap: could not find register %q: %w", name, ErrNoSuchRegister)
	}
	reg, ok := m.regs[base]
	if !ok {
		return Register{}, fmt.Errorf("regmap: could not find register %q: %w", name, ErrNoSuchRegister)
	}
	return reg.Elem(idx)
}

// Names returns the sorted list of register names.
func (m *Map) Names() []string {
	names := make([]string, 0, len(m.regs))
	for k := range m.regs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func splitIndex(name string) (string, int, bool) {
	beg := strings.LastIndex(name, "[")
	if beg <= 0 || !strings.HasSuffix(name, "]") {
		return "", 0, false
	}
	idx, err := strconv.Atoi(name[beg+1 : len(name)-1])
	if err != nil {
		return "", 0, false
	}
	return name[:beg], idx, true
}
