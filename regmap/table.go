// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regmap

const (
	all = 0xFFFFFFFF
	n   = NumChannels
)

// table lists the registers of the Zynq ARM, the Zynq FPGA and the Artix FPGA.
var table = []Register{
	// Zynq ARM
	{Name: "IP4Address", Addr: 0x00000100, ReadMask: all, WriteMask: all},
	{Name: "IP4Netmask", Addr: 0x00000104, ReadMask: all, WriteMask: all},
	{Name: "IP4Gateway", Addr: 0x00000108, ReadMask: all, WriteMask: all},
	{Name: "MACAddressLSB", Addr: 0x00000110, ReadMask: all, WriteMask: all},
	{Name: "MACAddressMSB", Addr: 0x00000114, ReadMask: all, WriteMask: all},
	{Name: "EthernetReset", Addr: 0x00000180, ReadMask: all, WriteMask: all},
	{Name: "RestoreSelect", Addr: 0x00000200, ReadMask: all, WriteMask: all},
	{Name: "Restore", Addr: 0x00000204, ReadMask: all, WriteMask: all},
	{Name: "PurgeDDR", Addr: 0x00000300, ReadMask: all, WriteMask: all},

	// Zynq FPGA
	{Name: "eventDataInterfaceSelect", Addr: 0x40000020, ReadMask: all, WriteMask: 0},
	{Name: "codeErrCounts", Addr: 0x40000100, ReadMask: all, WriteMask: 0, Size: 5},
	{Name: "dispErrCounts", Addr: 0x40000120, ReadMask: all, WriteMask: 0, Size: 5},
	{Name: "link_rx_status", Addr: 0x40000140, ReadMask: all, WriteMask: 0},
	{Name: "eventDataControl", Addr: 0x40000144, ReadMask: all, WriteMask: 0x0033001F},
	{Name: "eventDataPhaseControl", Addr: 0x40000148, ReadMask: 0, WriteMask: 0x00000003},
	{Name: "eventDataPhaseStatus", Addr: 0x4000014C, ReadMask: all, WriteMask: 0},
	{Name: "c2c_master_status", Addr: 0x40000150, ReadMask: all, WriteMask: 0},
	{Name: "c2c_control", Addr: 0x40000154, ReadMask: all, WriteMask: 0x00000007},
	{Name: "c2c_master_intr_control", Addr: 0x40000158, ReadMask: all, WriteMask: 0x0000000F},
	{Name: "dspStatus", Addr: 0x40000160, ReadMask: all, WriteMask: 0},
	{Name: "comm_clock_status", Addr: 0x40000170, ReadMask: all, WriteMask: 0},
	{Name: "comm_clock_control", Addr: 0x40000174, ReadMask: all, WriteMask: 0x00000001},
	{Name: "comm_led_config", Addr: 0x40000180, ReadMask: all, WriteMask: 0x00000013},
	{Name: "comm_led_input", Addr: 0x40000184, ReadMask: all, WriteMask: all},
	{Name: "eventDataStatus", Addr: 0x40000190, ReadMask: all, WriteMask: 0},
	{Name: "qi_dac_control", Addr: 0x40000200, ReadMask: 0, WriteMask: 0x00000001},
	{Name: "qi_dac_config", Addr: 0x40000204, ReadMask: 0x0003FFFF, WriteMask: 0x0003FFFF},
	{Name: "bias_control", Addr: 0x40000300, ReadMask: 0, WriteMask: 0x00000001},
	{Name: "bias_status", Addr: 0x40000304, ReadMask: 0x00000FFF, WriteMask: 0},
	{Name: "bias_config", Addr: 0x40000340, ReadMask: all, WriteMask: all, Size: n},
	{Name: "bias_readback", Addr: 0x40000380, ReadMask: all, WriteMask: 0, Size: n},
	{Name: "mon_config", Addr: 0x40000400, ReadMask: 0x00FFFFFF, WriteMask: 0x00FFFFFF},
	{Name: "mon_select", Addr: 0x40000404, ReadMask: all, WriteMask: all},
	{Name: "mon_gpio", Addr: 0x40000408, ReadMask: 0x0000FFFF, WriteMask: 0x0000FFFF},
	{Name: "mon_config_readback", Addr: 0x40000410, ReadMask: 0x00FFFFFF, WriteMask: 0},
	{Name: "mon_select_readback", Addr: 0x40000414, ReadMask: all, WriteMask: 0},
	{Name: "mon_gpio_readback", Addr: 0x40000418, ReadMask: 0x0000FFFF, WriteMask: 0},
	{Name: "mon_id_readback", Addr: 0x4000041C, ReadMask: 0x000000FF, WriteMask: 0},
	{Name: "mon_control", Addr: 0x40000420, ReadMask: 0x00010100, WriteMask: 0x00010001},
	{Name: "mon_status", Addr: 0x40000424, ReadMask: all, WriteMask: 0},
	{Name: "mon_bias", Addr: 0x40000440, ReadMask: all, WriteMask: 0, Size: n},
	{Name: "mon_value", Addr: 0x40000480, ReadMask: all, WriteMask: 0, Size: 9},

	// Artix FPGA
	{Name: "board_id", Addr: 0x80000000, ReadMask: all, WriteMask: 0},
	{Name: "fifo_control", Addr: 0x80000004, ReadMask: 0x0FFFFFFF, WriteMask: 0x08000000},
	{Name: "dsp_clock_status", Addr: 0x80000020, ReadMask: all, WriteMask: 0},
	{Name: "module_id", Addr: 0x80000024, ReadMask: 0x00000FFF, WriteMask: 0x00000FFF},
	{Name: "c2c_slave_status", Addr: 0x80000030, ReadMask: all, WriteMask: 0},
	{Name: "c2c_slave_intr_control", Addr: 0x80000034, ReadMask: all, WriteMask: 0x0000000F},
	{Name: "channel_control", Addr: 0x80000040, ReadMask: all, WriteMask: all, Size: n},
	{Name: "led_threshold", Addr: 0x80000080, ReadMask: 0x00FFFFFF, WriteMask: 0x00FFFFFF, Size: n},
	{Name: "cfd_parameters", Addr: 0x800000C0, ReadMask: 0x00001FFF, WriteMask: 0x00001FFF, Size: n},
	{Name: "readout_pretrigger", Addr: 0x80000100, ReadMask: 0x000007FF, WriteMask: 0x000007FF, Size: n},
	{Name: "readout_window", Addr: 0x80000140, ReadMask: 0x000007FE, WriteMask: 0x000007FE, Size: n},
	{Name: "p_window", Addr: 0x80000180, ReadMask: 0x000003FF, WriteMask: 0x000003FF, Size: n},
	{Name: "i2_window", Addr: 0x800001C0, ReadMask: 0x000003FF, WriteMask: 0x000003FF, Size: n},
	{Name: "m1_window", Addr: 0x80000200, ReadMask: 0x000003FF, WriteMask: 0x000003FF, Size: n},
	{Name: "m2_window", Addr: 0x80000240, ReadMask: 0x0000007F, WriteMask: 0x0000007F, Size: n},
	{Name: "d_window", Addr: 0x80000280, ReadMask: 0x0000007F, WriteMask: 0x0000007F, Size: n},
	{Name: "i1_window", Addr: 0x800002C0, ReadMask: 0x000003FF, WriteMask: 0x000003FF, Size: n},
	{Name: "disc_width", Addr: 0x80000300, ReadMask: 0x0000FFFF, WriteMask: 0x0000FFFF, Size: n},
	{Name: "baseline_start", Addr: 0x80000340, ReadMask: 0x00003FFF, WriteMask: 0x00003FFF, Size: n},
	{Name: "trigger_input_delay", Addr: 0x80000400, ReadMask: 0x0000FFFF, WriteMask: 0x0000FFFF},
	{Name: "gpio_output_width", Addr: 0x80000404, ReadMask: 0x0000FFFF, WriteMask: 0x0000FFFF},
	{Name: "front_panel_config", Addr: 0x80000408, ReadMask: 0x00773333, WriteMask: 0x00773333},
	{Name: "channel_pulsed_control", Addr: 0x8000040C, ReadMask: 0, WriteMask: all},
	{Name: "dsp_led_config", Addr: 0x80000410, ReadMask: all, WriteMask: 0x00000003},
	{Name: "dsp_led_input", Addr: 0x80000414, ReadMask: all, WriteMask: all},
	{Name: "baseline_delay", Addr: 0x80000418, ReadMask: 0x000000FF, WriteMask: 0x000000FF},
	{Name: "diag_channel_input", Addr: 0x8000041C, ReadMask: all, WriteMask: all},
	{Name: "dsp_pulsed_control", Addr: 0x80000420, ReadMask: 0, WriteMask: all},
	{Name: "event_data_control", Addr: 0x80000424, ReadMask: 0x00020001, WriteMask: 0x00020001},
	{Name: "adc_config", Addr: 0x80000428, ReadMask: all, WriteMask: all},
	{Name: "adc_config_load", Addr: 0x8000042C, ReadMask: 0, WriteMask: 0x00000001},
	{Name: "qi_config", Addr: 0x80000430, ReadMask: 0x0FFF1F11, WriteMask: 0x0FFF1F11},
	{Name: "qi_delay", Addr: 0x80000434, ReadMask: 0x0000007F, WriteMask: 0x0000007F},
	{Name: "qi_pulse_width", Addr: 0x80000438, ReadMask: 0x0000FFFF, WriteMask: 0x0000FFFF},
	{Name: "qi_pulsed", Addr: 0x8000043C, ReadMask: 0, WriteMask: 0x00030001},
	{Name: "external_gate_width", Addr: 0x80000440, ReadMask: 0x0000FFFF, WriteMask: 0x0000FFFF},
	{Name: "lat_timestamp_lsb", Addr: 0x80000484, ReadMask: all, WriteMask: 0},
	{Name: "lat_timestamp_msb", Addr: 0x80000488, ReadMask: 0x0000FFFF, WriteMask: 0},
	{Name: "live_timestamp_lsb", Addr: 0x8000048C, ReadMask: all, WriteMask: 0},
	{Name: "live_timestamp_msb", Addr: 0x80000490, ReadMask: 0x0000FFFF, WriteMask: 0},
	{Name: "sync_period", Addr: 0x80000494, ReadMask: all, WriteMask: 0},
	{Name: "sync_delay", Addr: 0x80000498, ReadMask: all, WriteMask: 0},
	{Name: "sync_count", Addr: 0x8000049C, ReadMask: all, WriteMask: 0},
	{Name: "master_logic_control", Addr: 0x80000500, ReadMask: all, WriteMask: 0x00000073},
	{Name: "overflow_status", Addr: 0x80000508, ReadMask: all, WriteMask: 0},
	{Name: "phase_value", Addr: 0x8000050C, ReadMask: all, WriteMask: 0},
	{Name: "link_tx_status", Addr: 0x80000510, ReadMask: all, WriteMask: 0},
	{Name: "dsp_clock_control", Addr: 0x80000520, ReadMask: 0x00000713, WriteMask: 0x00000713},
	{Name: "dsp_clock_phase_control", Addr: 0x80000524, ReadMask: 0, WriteMask: 0x00000007},
	{Name: "code_revision", Addr: 0x80000600, ReadMask: all, WriteMask: 0},
	{Name: "code_date", Addr: 0x80000604, ReadMask: all, WriteMask: 0},
	{Name: "dropped_event_count", Addr: 0x80000700, ReadMask: all, WriteMask: 0, Size: n},
	{Name: "accepted_event_count", Addr: 0x80000740, ReadMask: all, WriteMask: 0, Size: n},
	{Name: "ahit_count", Addr: 0x80000780, ReadMask: all, WriteMask: 0, Size: n},
	{Name: "disc_count", Addr: 0x800007C0, ReadMask: all, WriteMask: 0, Size: n},
	{Name: "idelay_count", Addr: 0x80000800, ReadMask: all, WriteMask: 0, Size: n},
	{Name: "adc_data_monitor", Addr: 0x80000840, ReadMask: 0x0000FFFF, WriteMask: 0, Size: n},
	{Name: "adc_status", Addr: 0x80000880, ReadMask: all, WriteMask: 0, Size: n},
}

// Well-known registers driven by the run control.
const (
	PurgeDDR             = 0x00000300
	EventDataControl     = 0x40000144 // Zynq eventDataControl
	BiasControl          = 0x40000300
	MonControl           = 0x40000420
	FIFOControl          = 0x80000004
	ModuleID             = 0x80000024
	ChannelPulsedControl = 0x8000040C
	EventDataCtl         = 0x80000424 // Artix event_data_control
	MasterLogicControl   = 0x80000500
)
