// Package gpiotable virtualises backplane GPIO: a fixed, index-addressed
// table of output descriptors, each naming a native pin or an expander bit
// and the provider that drives it.
package gpiotable

import "fmt"

// Caps are the capability flags of one backplane point.
type Caps struct {
	Analog    bool
	PWM       bool
	InputOnly bool
}

// Mode is the electrical direction requested from a provider.
type Mode uint8

const (
	ModeOutput Mode = iota
	ModeInput
	ModeInputPullUp
	ModeInputPullDown
)

func (m Mode) String() string {
	switch m {
	case ModeOutput:
		return "output"
	case ModeInput:
		return "input"
	case ModeInputPullUp:
		return "input_pullup"
	case ModeInputPullDown:
		return "input_pulldown"
	default:
		return "unknown"
	}
}

// Descriptor describes one controllable/readable point. Identity fields are
// fixed at construction; only the initial level is mutable, and only through
// the Table that holds the descriptor.
type Descriptor struct {
	indirect bool
	id       uint8
	caps     Caps
	provider Provider
	initial  bool
}

// Native describes a controller pin.
func Native(pin uint8, caps Caps, p Provider) Descriptor {
	return Descriptor{id: pin, caps: caps, provider: p}
}

// Indirect describes a bit behind an expander or shift register.
func Indirect(bit uint8, caps Caps, p Provider) Descriptor {
	return Descriptor{indirect: true, id: bit, caps: caps, provider: p}
}

func (d Descriptor) Indirect() bool     { return d.indirect }
func (d Descriptor) ID() uint8          { return d.id }
func (d Descriptor) Caps() Caps         { return d.caps }
func (d Descriptor) Provider() Provider { return d.provider }
func (d Descriptor) Initial() bool      { return d.initial }

func (d Descriptor) String() string {
	return fmt.Sprintf("Descriptor(indirect=%t, id=%d, analog=%t, pwm=%t, input_only=%t)",
		d.indirect, d.id, d.caps.Analog, d.caps.PWM, d.caps.InputOnly)
}

// Provider is the driver behind a descriptor. Native pins and expander bits
// are served by different implementations; callers never need to know which.
type Provider interface {
	Configure(d Descriptor, mode Mode) error
	Set(d Descriptor, level bool) error
	Get(d Descriptor) (bool, error)
	// Enable gates every output the provider drives.
	Enable(on bool)
}

// PWMProvider is implemented by providers whose outputs can be driven with a
// duty cycle.
type PWMProvider interface {
	Provider
	RegisterChannel(d Descriptor) error
	SetDuty(d Descriptor, duty uint16) error
}
