// Package iface is the logical I/O layer: every physical point a module
// exposes is one Interface with a name, a kind, a value and validity flags.
//
// An interface starts invalid. Only its owning module may Validate it, once
// the backing descriptor or resource is confirmed live; Read and Write are
// refused until then.
package iface

import "backplane-go/errcode"

// Kind is the closed set of interface variants.
type Kind uint8

const (
	DigitalInput Kind = iota
	DigitalOutput
	AnalogInput
	AnalogOutput
	Relay
	Bus
)

func (k Kind) String() string {
	switch k {
	case DigitalInput:
		return "digital_input"
	case DigitalOutput:
		return "digital_output"
	case AnalogInput:
		return "analog_input"
	case AnalogOutput:
		return "analog_output"
	case Relay:
		return "relay"
	case Bus:
		return "bus"
	default:
		return "unknown"
	}
}

// Output reports whether values flow from the interface to hardware.
func (k Kind) Output() bool {
	return k == DigitalOutput || k == AnalogOutput || k == Relay
}

type Interface interface {
	Name() string
	Rename(name string)
	Kind() Kind

	// Q is the last stored value, regardless of validity.
	Q() uint32
	// Read returns Q when the interface is usable.
	Read() (uint32, error)
	// Write sets Q when the interface is usable. Out-of-range values are
	// clamped, never rejected.
	Write(v uint32) error
	// Update stores a value sampled from hardware. Owning module only.
	Update(v uint32)

	Validate()
	Invalidate()
	// Valid reports validated and not invalidated.
	Valid() bool

	// Reset returns the interface to its initial invalid zero state.
	Reset()
}

// point carries the state shared by every variant.
type point struct {
	name    string
	kind    Kind
	q       uint32
	valid   bool
	invalid bool
}

func newPoint(name string, k Kind) point {
	return point{name: name, kind: k, invalid: true}
}

func (p *point) Name() string       { return p.name }
func (p *point) Rename(name string) { p.name = name }
func (p *point) Kind() Kind         { return p.kind }
func (p *point) Q() uint32          { return p.q }

func (p *point) Validate() {
	p.valid = true
	p.invalid = false
}

func (p *point) Invalidate() {
	p.valid = false
	p.invalid = true
}

func (p *point) Valid() bool { return p.valid && !p.invalid }

func (p *point) Reset() {
	p.q = 0
	p.valid = false
	p.invalid = true
}

func (p *point) check() error {
	if !p.Valid() {
		return errcode.InterfaceInvalid
	}
	return nil
}

func (p *point) Read() (uint32, error) {
	if err := p.check(); err != nil {
		return 0, err
	}
	return p.q, nil
}
