// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"

	"github.com/go-lpc/ssp/regmap"
)

// write is one step of the default configuration.
// Registers with more than one value are written as arrays.
type write struct {
	name string
	vs   []uint32
}

func fill(v uint32) []uint32 {
	vs := make([]uint32, regmap.NumChannels)
	for i := range vs {
		vs[i] = v
	}
	return vs
}

// defaultConfig sets the module up for self-triggered running, in
// increasing register address order.
func defaultConfig() []write {
	ws := []write{
		// Zynq FPGA
		{"c2c_control", []uint32{0x00000007}},
		{"c2c_master_intr_control", []uint32{0}},
		{"comm_clock_control", []uint32{0x00000001}},
		{"comm_led_config", []uint32{0}},
		{"comm_led_input", []uint32{0}},
		{"qi_dac_config", []uint32{0}},
		{"qi_dac_control", []uint32{0x00000001}},
	}
	for i := 0; i < regmap.NumChannels; i++ {
		ws = append(ws, write{fmt.Sprintf("bias_config[%d]", i), []uint32{0}})
	}
	ws = append(ws, []write{
		{"bias_control", []uint32{0x00000001}},
		{"mon_config", []uint32{0x0012F000}},
		{"mon_select", []uint32{0x00FFFF00}},
		{"mon_gpio", []uint32{0}},
		{"mon_control", []uint32{0x00010001}},

		// Artix FPGA
		{"module_id", []uint32{0xABC}},
		{"c2c_slave_intr_control", []uint32{0}},
		{"channel_control", []uint32{
			0x00F0E0C1, // channel 0 in slow timestamp triggered mode
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		}},
		{"led_threshold", fill(25)},
		{"cfd_parameters", fill(0x1800)},
		{"readout_pretrigger", fill(100)},
		{"readout_window", fill(2046)},
		{"p_window", fill(0)},
		{"i2_window", fill(500)},
		{"m1_window", fill(10)},
		{"m2_window", fill(10)},
		{"d_window", fill(20)},
		{"i1_window", fill(500)},
		{"disc_width", fill(10)},
		{"baseline_start", fill(0)},
		{"trigger_input_delay", []uint32{0x00000001}},
		{"gpio_output_width", []uint32{0x00001000}},
		{"front_panel_config", []uint32{0x00001111}},
		{"dsp_led_config", []uint32{0}},
		{"dsp_led_input", []uint32{0}},
		{"baseline_delay", []uint32{5}},
		{"diag_channel_input", []uint32{0}},
		{"qi_config", []uint32{0x0FFF1F00}},
		{"qi_delay", []uint32{0}},
		{"qi_pulse_width", []uint32{0}},
		{"external_gate_width", []uint32{0x00008000}},
		{"dsp_clock_control", []uint32{0}},
	}...)
	return ws
}

// Configure writes the default register set to a stopped device.
func (dev *Device) Configure() error {
	if dev.state != Stopped {
		dev.msg.Warnf("attempt to reconfigure %v device refused", dev.state)
		return ErrNotStopped
	}
	cli, err := dev.client()
	if err != nil {
		return err
	}

	for _, w := range defaultConfig() {
		reg, err := dev.regs.Lookup(w.name)
		if err != nil {
			return fmt.Errorf("device: could not configure: %w", err)
		}
		switch len(w.vs) {
		case 1:
			err = cli.Write(reg.Addr, w.vs[0])
		default:
			err = cli.ArrayWrite(reg.Addr, w.vs)
		}
		if err != nil {
			return fmt.Errorf("device: could not configure %s: %w", w.name, err)
		}
	}
	return nil
}
