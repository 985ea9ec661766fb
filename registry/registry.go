// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry hands out links to SSP modules, at most one open
// link per physical unit.
package registry // import "github.com/go-lpc/ssp/registry"

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/ssp/transport"
	"github.com/ziutek/ftdi"
)

var (
	// ErrNoSuchDevice is returned when opening an unknown unit.
	ErrNoSuchDevice = errors.New("registry: no such device")
	// ErrBadDeviceList is returned when the FTDI units can not be
	// paired into SSP modules.
	ErrBadDeviceList = errors.New("registry: inconsistent FTDI device list")
	// ErrAlreadyOpen is returned when opening a unit twice.
	ErrAlreadyOpen = errors.New("registry: device already open")
)

// Kind is the kind of link to a module.
type Kind uint8

const (
	USB Kind = iota
	TCP
	Emulated
)

func (k Kind) String() string {
	switch k {
	case USB:
		return "usb"
	case TCP:
		return "tcp"
	case Emulated:
		return "emu"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind parses the name of a link kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "usb":
		return USB, nil
	case "tcp", "ethernet", "eth":
		return TCP, nil
	case "emu", "emulated", "emulator":
		return Emulated, nil
	}
	return 0, fmt.Errorf("registry: invalid link kind %q", name)
}

// Locator identifies a module.
type Locator struct {
	Kind  Kind
	Index int    // USB unit index or emulated module number
	Addr  string // module address for TCP links
}

func (loc Locator) String() string {
	if loc.Kind == TCP {
		return fmt.Sprintf("%v:%s", loc.Kind, loc.Addr)
	}
	return fmt.Sprintf("%v:%d", loc.Kind, loc.Index)
}

// Info describes a module found on the USB bus.
type Info struct {
	Index  int
	Serial string
	Open   bool
}

var (
	ftdiList = ftdiListImpl
)

func ftdiListImpl(vid, pid uint16) ([]string, error) {
	devs, err := ftdi.FindAll(int(vid), int(pid))
	if err != nil {
		return nil, err
	}
	serials := make([]string, 0, len(devs))
	for _, dev := range devs {
		serials = append(serials, dev.Serial)
		dev.Close()
	}
	return serials, nil
}

// Registry tracks the modules reachable from this host.
type Registry struct {
	mu  sync.Mutex
	msg log.MsgStream

	link []transport.Option
	emu  []transport.EmulatorOption

	scanned bool
	usb     []string // serial numbers of the USB modules
	open    map[string]transport.Transport
	emus    map[int]*transport.Emulator
}

// Option configures a Registry.
type Option func(*Registry)

// WithMsgStream sets the logger of the registry.
func WithMsgStream(msg log.MsgStream) Option {
	return func(r *Registry) { r.msg = msg }
}

// WithLinkOptions sets the options of the links created by the registry.
func WithLinkOptions(opts ...transport.Option) Option {
	return func(r *Registry) { r.link = opts }
}

// WithEmulatorOptions sets the options of the emulated modules.
func WithEmulatorOptions(opts ...transport.EmulatorOption) Option {
	return func(r *Registry) { r.emu = opts }
}

// New creates a device registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		msg:  log.NewMsgStream("ssp-registry", log.LvlInfo, os.Stdout),
		open: make(map[string]transport.Transport),
		emus: make(map[int]*transport.Emulator),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh scans the USB bus for SSP modules.
//
// An FT2232H either shows up as a single unit, or as two units whose
// serial numbers end with 'A' (data channel) and 'B' (control channel).
func (r *Registry) Refresh() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refresh()
}

func (r *Registry) refresh() error {
	for key := range r.open {
		if strings.HasPrefix(key, USB.String()+":") {
			r.msg.Warnf("refused to refresh device list: USB devices still open")
			return nil
		}
	}

	serials, err := ftdiList(transport.VendorID, transport.ProductID)
	if err != nil {
		return fmt.Errorf("registry: could not list FTDI units: %w", err)
	}

	var (
		whole = make(map[string]bool)
		data  = make(map[string]bool)
		ctrl  = make(map[string]bool)
	)
	for _, serial := range serials {
		if serial == "" {
			// probably opened by another process.
			continue
		}
		base := serial[:len(serial)-1]
		switch serial[len(serial)-1] {
		case 'A':
			data[base] = true
		case 'B':
			ctrl[base] = true
		default:
			if whole[serial] {
				return fmt.Errorf("registry: duplicate serial number %q: %w", serial, ErrBadDeviceList)
			}
			whole[serial] = true
		}
	}

	if len(data) != len(ctrl) {
		r.msg.Errorf("different number of data and control channels on FTDI")
		return fmt.Errorf(
			"registry: %d data channels, %d control channels: %w",
			len(data), len(ctrl), ErrBadDeviceList,
		)
	}

	var usb []string
	for base := range data {
		if !ctrl[base] {
			r.msg.Errorf("non-matching serial numbers for data and control channels on FTDI")
			return fmt.Errorf("registry: no control channel for %q: %w", base, ErrBadDeviceList)
		}
		usb = append(usb, base)
	}
	for serial := range whole {
		usb = append(usb, serial)
	}
	sort.Strings(usb)
	for _, serial := range usb {
		r.msg.Infof("found a device with serial %s", serial)
	}

	r.usb = usb
	r.scanned = true
	return nil
}

// List returns the USB modules found on the bus.
func (r *Registry) List() ([]Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.scanned {
		err := r.refresh()
		if err != nil {
			return nil, err
		}
	}
	infos := make([]Info, len(r.usb))
	for i, serial := range r.usb {
		_, open := r.open[key(Locator{Kind: USB, Index: i})]
		infos[i] = Info{Index: i, Serial: serial, Open: open}
	}
	return infos, nil
}

func key(loc Locator) string { return loc.String() }

// Open opens the link to the module at loc.
func (r *Registry) Open(loc Locator, ctrlOnly bool) (transport.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(loc)
	if _, dup := r.open[k]; dup {
		r.msg.Errorf("attempt to open already open device %v", loc)
		return nil, fmt.Errorf("registry: could not open %v: %w", loc, ErrAlreadyOpen)
	}

	var link transport.Transport
	switch loc.Kind {
	case USB:
		if !r.scanned {
			err := r.refresh()
			if err != nil {
				return nil, err
			}
		}
		if loc.Index < 0 || loc.Index >= len(r.usb) {
			return nil, fmt.Errorf(
				"registry: could not open USB device %d (found %d): %w",
				loc.Index, len(r.usb), ErrNoSuchDevice,
			)
		}
		link = transport.NewUSB(r.usb[loc.Index], r.link...)

	case TCP:
		if loc.Addr == "" {
			return nil, fmt.Errorf("registry: could not open TCP device without address: %w", ErrNoSuchDevice)
		}
		link = transport.NewTCP(loc.Addr, r.link...)

	case Emulated:
		if loc.Index < 0 {
			return nil, fmt.Errorf("registry: could not open emulated device %d: %w", loc.Index, ErrNoSuchDevice)
		}
		emu, ok := r.emus[loc.Index]
		if !ok {
			opts := append([]transport.EmulatorOption{transport.WithLinkOptions(r.link...)}, r.emu...)
			emu = transport.NewEmulator(loc.Index, opts...)
			r.emus[loc.Index] = emu
		}
		link = emu

	default:
		return nil, fmt.Errorf("registry: unrecognised link kind %v", loc.Kind)
	}

	err := link.Open(ctrlOnly)
	if err != nil {
		return nil, fmt.Errorf("registry: could not open %v: %w", loc, err)
	}
	r.open[k] = link
	return link, nil
}

// Close closes the link and releases its module.
func (r *Registry) Close(link transport.Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range r.open {
		if v != link {
			continue
		}
		delete(r.open, k)
		err := link.Close()
		if err != nil {
			return fmt.Errorf("registry: could not close %s: %w", k, err)
		}
		return nil
	}
	return fmt.Errorf("registry: could not close unknown link: %w", ErrNoSuchDevice)
}
