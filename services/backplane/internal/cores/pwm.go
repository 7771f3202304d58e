package cores

import (
	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/resource"
	"backplane-go/x/mathx"
)

// PWMHardware is the timer block behind the PWM core.
type PWMHardware interface {
	Configure(pin uint8, freqHz uint32, bits uint8) error
	Set(pin uint8, duty uint32) error
}

// PWM is a single-user timer block driving any number of registered pins at
// one frequency and resolution.
type PWM struct {
	resource.Counter
	hw       PWMHardware
	freqHz   uint32
	bits     uint8
	channels map[uint8]bool
}

var _ resource.Resource = (*PWM)(nil)

func NewPWM(hw PWMHardware) *PWM {
	return &PWM{
		Counter:  resource.NewCounter(1),
		hw:       hw,
		freqHz:   1000,
		bits:     12,
		channels: make(map[uint8]bool),
	}
}

func (c *PWM) Type() resource.Type { return resource.PWM }
func (c *PWM) Bits() uint8         { return c.bits }
func (c *PWM) FrequencyHz() uint32 { return c.freqHz }

// Begin sets the frequency and resolution and reconfigures registered pins.
func (c *PWM) Begin(freqHz uint32, bits uint8) error {
	if freqHz == 0 || bits == 0 || bits > 16 {
		return errcode.InvalidParams
	}
	c.freqHz, c.bits = freqHz, bits
	for pin := range c.channels {
		if err := c.hw.Configure(pin, c.freqHz, c.bits); err != nil {
			return errcode.Wrap(errcode.IOError, "pwm begin", err)
		}
	}
	return nil
}

// RegisterChannel attaches pin to the timer.
func (c *PWM) RegisterChannel(pin uint8) error {
	if c.hw == nil {
		return errcode.NotBound
	}
	if c.channels[pin] {
		return nil
	}
	if err := c.hw.Configure(pin, c.freqHz, c.bits); err != nil {
		return errcode.Wrap(errcode.IOError, "pwm register", err)
	}
	c.channels[pin] = true
	return nil
}

func (c *PWM) Registered(pin uint8) bool { return c.channels[pin] }

// SetDuty drives pin with duty clamped to the core resolution.
func (c *PWM) SetDuty(pin uint8, duty uint32) error {
	if !c.channels[pin] {
		return errcode.InvalidDescriptor
	}
	return c.hw.Set(pin, mathx.Min(duty, mathx.FullScale(c.bits)))
}

func (c *PWM) Reset() error {
	c.ResetUsage()
	clear(c.channels)
	return nil
}
