// Package mcp23017 drives the MCP23017 16-bit I2C port expander.
//
// The device is used with IOCON.BANK=0 (power-on default), so every A/B
// register pair is adjacent and one 3-byte write updates both ports. Pins are
// numbered 0..15: 0..7 are GPA0..7, 8..15 are GPB0..7.
//
// Outputs are written from a cached latch, so Set never reads the bus.
package mcp23017

import (
	"errors"

	"tinygo.org/x/drivers"
)

// Default I2C address (A2..A0 tied low).
const Address = 0x20

// Registers (BANK=0).
const (
	regIODIRA = 0x00
	regIPOLA  = 0x02
	regGPPUA  = 0x0C
	regGPIOA  = 0x12
	regOLATA  = 0x14
)

// Pins is the number of I/O lines.
const Pins = 16

var ErrPin = errors.New("mcp23017: pin out of range")

type Device struct {
	bus     drivers.I2C
	Address uint16

	dir    uint16 // 1 = input
	pullup uint16
	olat   uint16
	buf    [3]byte
}

// New returns a device with every pin an input, matching power-on state.
// It does not touch the bus.
func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address, dir: 0xFFFF}
}

// Configure pushes the cached direction, pull-up and latch state.
func (d *Device) Configure() error {
	if err := d.write16(regOLATA, d.olat); err != nil {
		return err
	}
	if err := d.write16(regGPPUA, d.pullup); err != nil {
		return err
	}
	if err := d.write16(regIPOLA, 0); err != nil {
		return err
	}
	return d.write16(regIODIRA, d.dir)
}

func (d *Device) write16(reg uint8, v uint16) error {
	d.buf[0] = reg
	d.buf[1] = uint8(v)
	d.buf[2] = uint8(v >> 8)
	return d.bus.Tx(d.Address, d.buf[:3], nil)
}

func (d *Device) read16(reg uint8) (uint16, error) {
	d.buf[0] = reg
	if err := d.bus.Tx(d.Address, d.buf[:1], d.buf[1:3]); err != nil {
		return 0, err
	}
	return uint16(d.buf[1]) | uint16(d.buf[2])<<8, nil
}

func bit(pin uint8) (uint16, error) {
	if pin >= Pins {
		return 0, ErrPin
	}
	return 1 << pin, nil
}

// SetDirection makes pin an input or an output.
func (d *Device) SetDirection(pin uint8, input bool) error {
	m, err := bit(pin)
	if err != nil {
		return err
	}
	if input {
		d.dir |= m
	} else {
		d.dir &^= m
	}
	return d.write16(regIODIRA, d.dir)
}

// SetPullUp enables the internal 100k pull-up on pin.
func (d *Device) SetPullUp(pin uint8, on bool) error {
	m, err := bit(pin)
	if err != nil {
		return err
	}
	if on {
		d.pullup |= m
	} else {
		d.pullup &^= m
	}
	return d.write16(regGPPUA, d.pullup)
}

// Set drives one output latch bit.
func (d *Device) Set(pin uint8, level bool) error {
	m, err := bit(pin)
	if err != nil {
		return err
	}
	if level {
		d.olat |= m
	} else {
		d.olat &^= m
	}
	return d.write16(regOLATA, d.olat)
}

// Get reads the level at pin.
func (d *Device) Get(pin uint8) (bool, error) {
	m, err := bit(pin)
	if err != nil {
		return false, err
	}
	v, err := d.ReadPort()
	if err != nil {
		return false, err
	}
	return v&m != 0, nil
}

// ReadPort reads both GPIO ports.
func (d *Device) ReadPort() (uint16, error) { return d.read16(regGPIOA) }

// WritePort replaces the whole output latch.
func (d *Device) WritePort(v uint16) error {
	d.olat = v
	return d.write16(regOLATA, v)
}

// Latch returns the cached output latch.
func (d *Device) Latch() uint16 { return d.olat }

// Direction returns the cached direction mask (1 = input).
func (d *Device) Direction() uint16 { return d.dir }
