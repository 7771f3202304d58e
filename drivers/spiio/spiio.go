// Package spiio drives the SPI digital I/O ICs used on I/O modules: an
// 8-channel high-side output switch and an 8-channel digital input
// serializer. Both are selected through an explicit ChipSelect.
package spiio

import (
	"errors"

	"tinygo.org/x/drivers"
)

// ChipSelect is an active-low select line.
type ChipSelect interface {
	Set(level bool) error
}

var ErrFault = errors.New("spiio: device reports fault")

func transact(bus drivers.SPI, cs ChipSelect, w, r []byte) error {
	if err := cs.Set(false); err != nil {
		return err
	}
	err := bus.Tx(w, r)
	if e := cs.Set(true); err == nil {
		err = e
	}
	return err
}

// Output is the 8-channel output switch. One byte per frame sets all
// channels; the reply byte carries the fault flags of the previous frame.
type Output struct {
	bus   drivers.SPI
	cs    ChipSelect
	state uint8
	buf   [2]byte
}

func NewOutput(bus drivers.SPI, cs ChipSelect) *Output {
	return &Output{bus: bus, cs: cs}
}

// Write sets all eight channels. A non-zero fault byte returns ErrFault after
// the new state has been sent.
func (o *Output) Write(v uint8) error {
	o.buf[0] = v
	if err := transact(o.bus, o.cs, o.buf[:1], o.buf[1:2]); err != nil {
		return err
	}
	o.state = v
	if o.buf[1] != 0 {
		return ErrFault
	}
	return nil
}

// State returns the last written byte.
func (o *Output) State() uint8 { return o.state }

// Input is the 8-channel input serializer. A frame returns the channel levels
// followed by an alarm byte.
type Input struct {
	bus drivers.SPI
	cs  ChipSelect
	buf [2]byte
}

func NewInput(bus drivers.SPI, cs ChipSelect) *Input {
	return &Input{bus: bus, cs: cs}
}

// Read returns the eight input levels, bit n = channel n+1.
func (i *Input) Read() (uint8, error) {
	i.buf = [2]byte{}
	if err := transact(i.bus, i.cs, nil, i.buf[:]); err != nil {
		return 0, err
	}
	if i.buf[1] != 0 {
		return i.buf[0], ErrFault
	}
	return i.buf[0], nil
}
