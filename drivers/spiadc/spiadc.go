// Package spiadc reads a 4-channel, 12-bit SPI ADC (MCP3204 framing).
package spiadc

import (
	"errors"

	"tinygo.org/x/drivers"
)

const (
	Channels = 4
	Bits     = 12
	maxCode  = 1<<Bits - 1
)

var ErrChannel = errors.New("spiadc: channel out of range")

// ChipSelect is an active-low select line.
type ChipSelect interface {
	Set(level bool) error
}

type Device struct {
	bus drivers.SPI
	cs  ChipSelect
	w   [3]byte
	r   [3]byte
}

func New(bus drivers.SPI, cs ChipSelect) *Device {
	return &Device{bus: bus, cs: cs}
}

// Read converts one single-ended channel.
func (d *Device) Read(ch uint8) (uint16, error) {
	if ch >= Channels {
		return 0, ErrChannel
	}
	// start bit, single-ended, D2 (always 0 for 4 channels), then D1 D0.
	d.w = [3]byte{0x06, ch << 6, 0}
	if err := d.cs.Set(false); err != nil {
		return 0, err
	}
	err := d.bus.Tx(d.w[:], d.r[:])
	if e := d.cs.Set(true); err == nil {
		err = e
	}
	if err != nil {
		return 0, err
	}
	return (uint16(d.r[1])<<8 | uint16(d.r[2])) & maxCode, nil
}

// ReadAll converts every channel in order. It stops at the first failure,
// leaving the remaining entries untouched.
func (d *Device) ReadAll(dst *[Channels]uint16) error {
	for ch := uint8(0); ch < Channels; ch++ {
		v, err := d.Read(ch)
		if err != nil {
			return err
		}
		dst[ch] = v
	}
	return nil
}
