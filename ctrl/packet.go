// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ctrl implements the SSP request/response control protocol,
// shared by the USB and the TCP links.
package ctrl // import "github.com/go-lpc/ssp/ctrl"

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// HeaderSize is the size in bytes of a control packet header.
	HeaderSize = 5 * 4
	// MaxData is the maximum number of 32b data words a packet may carry.
	MaxData = 256
)

var (
	// ErrTruncated reports a short or zero-byte control packet.
	ErrTruncated = errors.New("ctrl: truncated packet")
	// ErrTooLarge reports an array request beyond the packet capacity.
	ErrTooLarge = errors.New("ctrl: too many data words")
)

// Command is a control protocol command code.
type Command uint32

const (
	CmdNone Command = iota
	CmdRead
	CmdReadMask
	CmdWrite
	CmdWriteMask
	CmdArrayRead
	CmdArrayWrite
	CmdFifoRead
	CmdFifoWrite
	CmdNVWrite
	CmdNVArrayWrite
	CmdNVEraseSector
	CmdNVEraseBlock
	CmdNVEraseChip
)

func (cmd Command) String() string {
	switch cmd {
	case CmdNone:
		return "none"
	case CmdRead:
		return "read"
	case CmdReadMask:
		return "read-mask"
	case CmdWrite:
		return "write"
	case CmdWriteMask:
		return "write-mask"
	case CmdArrayRead:
		return "array-read"
	case CmdArrayWrite:
		return "array-write"
	case CmdFifoRead:
		return "fifo-read"
	case CmdFifoWrite:
		return "fifo-write"
	case CmdNVWrite:
		return "nv-write"
	case CmdNVArrayWrite:
		return "nv-array-write"
	case CmdNVEraseSector:
		return "nv-erase-sector"
	case CmdNVEraseBlock:
		return "nv-erase-block"
	case CmdNVEraseChip:
		return "nv-erase-chip"
	}
	return fmt.Sprintf("Command(%d)", uint32(cmd))
}

// Status is a control protocol status code.
type Status uint32

const (
	StatusNoError Status = iota
	StatusSend
	StatusReceive
	StatusTimeout
	StatusAddress
	StatusAlign
	StatusCommand
	StatusSize
	StatusRead  // register is write-only
	StatusWrite // register is read-only
	StatusFlashRead
	StatusFlashWrite
	StatusFlashErase
)

var statusNames = [...]string{
	StatusNoError:    "no error",
	StatusSend:       "send error",
	StatusReceive:    "receive error",
	StatusTimeout:    "timeout",
	StatusAddress:    "invalid address",
	StatusAlign:      "misaligned address",
	StatusCommand:    "invalid command",
	StatusSize:       "invalid size",
	StatusRead:       "read error",
	StatusWrite:      "write error",
	StatusFlashRead:  "flash read error",
	StatusFlashWrite: "flash write error",
	StatusFlashErase: "flash erase error",
}

func (st Status) String() string {
	if int(st) < len(statusNames) {
		return statusNames[st]
	}
	return fmt.Sprintf("Status(%d)", uint32(st))
}

// StatusError is returned when the device answers with a non-zero status.
type StatusError struct {
	Cmd    Command
	Addr   uint32
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ctrl: %s at 0x%08x failed: %s", e.Cmd, e.Addr, e.Status)
}

// Header is the fixed part of a control packet.
type Header struct {
	Length uint32 // packet length in bytes, header included
	Addr   uint32
	Cmd    Command
	Size   uint32 // number of elements
	Status Status
}

// LayerTypeCtrl is the gopacket layer type of SSP control packets.
var LayerTypeCtrl = gopacket.RegisterLayerType(
	1861,
	gopacket.LayerTypeMetadata{
		Name:    "SSPCtrl",
		Decoder: gopacket.DecodeFunc(decodePacket),
	},
)

// Packet is a control request or response.
type Packet struct {
	layers.BaseLayer
	Header
	Data []uint32
}

func (pkt *Packet) LayerType() gopacket.LayerType     { return LayerTypeCtrl }
func (pkt *Packet) CanDecode() gopacket.LayerClass    { return LayerTypeCtrl }
func (pkt *Packet) NextLayerType() gopacket.LayerType { return gopacket.LayerTypeZero }

func (pkt *Packet) String() string {
	return fmt.Sprintf("%s@0x%08x", pkt.Cmd, pkt.Addr)
}

func (pkt *Packet) wireSize() int { return HeaderSize + 4*len(pkt.Data) }

func (pkt *Packet) setLength() { pkt.Length = uint32(pkt.wireSize()) }

// SerializeTo writes the packet to b, little-endian.
func (pkt *Packet) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if len(pkt.Data) > MaxData {
		return fmt.Errorf("ctrl: could not serialize %d words: %w", len(pkt.Data), ErrTooLarge)
	}
	if opts.FixLengths {
		pkt.setLength()
	}
	buf, err := b.AppendBytes(pkt.wireSize())
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[0:], pkt.Length)
	binary.LittleEndian.PutUint32(buf[4:], pkt.Addr)
	binary.LittleEndian.PutUint32(buf[8:], uint32(pkt.Cmd))
	binary.LittleEndian.PutUint32(buf[12:], pkt.Size)
	binary.LittleEndian.PutUint32(buf[16:], uint32(pkt.Status))
	for i, v := range pkt.Data {
		binary.LittleEndian.PutUint32(buf[HeaderSize+4*i:], v)
	}
	return nil
}

// DecodeFromBytes decodes a packet from data.
// Trailing bytes that do not form a whole word are ignored.
func (pkt *Packet) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < HeaderSize {
		df.SetTruncated()
		return fmt.Errorf("ctrl: could not decode header (%d bytes): %w", len(data), ErrTruncated)
	}
	pkt.Length = binary.LittleEndian.Uint32(data[0:])
	pkt.Addr = binary.LittleEndian.Uint32(data[4:])
	pkt.Cmd = Command(binary.LittleEndian.Uint32(data[8:]))
	pkt.Size = binary.LittleEndian.Uint32(data[12:])
	pkt.Status = Status(binary.LittleEndian.Uint32(data[16:]))

	n := (len(data) - HeaderSize) / 4
	if n > MaxData {
		n = MaxData
	}
	pkt.Data = make([]uint32, n)
	for i := range pkt.Data {
		pkt.Data[i] = binary.LittleEndian.Uint32(data[HeaderSize+4*i:])
	}
	end := HeaderSize + 4*n
	pkt.BaseLayer = layers.BaseLayer{Contents: data[:end], Payload: data[end:]}
	return nil
}

func decodePacket(data []byte, p gopacket.PacketBuilder) error {
	pkt := &Packet{}
	err := pkt.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(pkt)
	return nil
}

// Marshal serializes the packet, fixing its length field.
func (pkt *Packet) Marshal() ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, pkt)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a packet from raw bytes.
func Unmarshal(raw []byte) (Packet, error) {
	var pkt Packet
	err := pkt.DecodeFromBytes(raw, gopacket.NilDecodeFeedback)
	return pkt, err
}

// NewRequest builds a request packet for cmd.
//
// size is the number of elements to transfer (for array reads), data the
// words carried by the request (mask and/or values).
func NewRequest(cmd Command, addr, size uint32, data ...uint32) (Packet, error) {
	if size > MaxData || len(data) > MaxData {
		return Packet{}, fmt.Errorf(
			"ctrl: could not build %s request at 0x%08x with size=%d: %w",
			cmd, addr, size, ErrTooLarge,
		)
	}
	pkt := Packet{
		Header: Header{
			Addr:   addr,
			Cmd:    cmd,
			Size:   size,
			Status: StatusNoError,
		},
		Data: data,
	}
	pkt.setLength()
	return pkt, nil
}

// ResponseSize returns the expected response size in bytes for a request.
func ResponseSize(req Packet) int {
	switch req.Cmd {
	case CmdRead, CmdReadMask, CmdWriteMask:
		return HeaderSize + 4
	case CmdArrayRead, CmdFifoRead:
		return HeaderSize + 4*int(req.Size)
	default:
		return HeaderSize
	}
}

// NewResponse builds the response to req, as a device would.
func NewResponse(req Packet, status Status, data ...uint32) Packet {
	rsp := Packet{
		Header: Header{
			Addr:   req.Addr,
			Cmd:    req.Cmd,
			Size:   req.Size,
			Status: status,
		},
		Data: data,
	}
	rsp.setLength()
	return rsp
}
