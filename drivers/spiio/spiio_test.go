package spiio

import (
	"errors"
	"testing"
)

type csRec struct{ levels []bool }

func (c *csRec) Set(level bool) error { c.levels = append(c.levels, level); return nil }

type fakeSPI struct {
	w    []byte
	resp []byte
	err  error
}

func (s *fakeSPI) Tx(w, r []byte) error {
	s.w = append([]byte(nil), w...)
	copy(r, s.resp)
	return s.err
}

func (s *fakeSPI) Transfer(b byte) (byte, error) { return 0, nil }

func TestOutputFramesWithChipSelect(t *testing.T) {
	bus := &fakeSPI{resp: []byte{0}}
	cs := &csRec{}
	o := NewOutput(bus, cs)
	if err := o.Write(0xA5); err != nil {
		t.Fatal(err)
	}
	if len(bus.w) != 1 || bus.w[0] != 0xA5 {
		t.Fatalf("wrote %x", bus.w)
	}
	if len(cs.levels) != 2 || cs.levels[0] || !cs.levels[1] {
		t.Fatalf("chip select sequence %v", cs.levels)
	}
	if o.State() != 0xA5 {
		t.Fatalf("state %x", o.State())
	}
}

func TestOutputFault(t *testing.T) {
	o := NewOutput(&fakeSPI{resp: []byte{0x01}}, &csRec{})
	if err := o.Write(1); !errors.Is(err, ErrFault) {
		t.Fatalf("want ErrFault, got %v", err)
	}
	if o.State() != 1 {
		t.Fatalf("state should still update")
	}
}

func TestInputRead(t *testing.T) {
	in := NewInput(&fakeSPI{resp: []byte{0x81, 0}}, &csRec{})
	v, err := in.Read()
	if err != nil || v != 0x81 {
		t.Fatalf("read %x %v", v, err)
	}
}

func TestChipSelectReleasedOnBusError(t *testing.T) {
	boom := errors.New("boom")
	cs := &csRec{}
	in := NewInput(&fakeSPI{err: boom}, cs)
	if _, err := in.Read(); !errors.Is(err, boom) {
		t.Fatalf("want bus error, got %v", err)
	}
	if !cs.levels[len(cs.levels)-1] {
		t.Fatalf("chip select must end high")
	}
}
