package mainboard

import (
	"log/slog"

	"backplane-go/drivers/mcp23017"
	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/cores"
	"backplane-go/services/backplane/internal/gpiotable"
	"backplane-go/services/backplane/internal/platform"
)

// nativeProvider drives controller pins directly and routes duty cycles to
// the board PWM core.
type nativeProvider struct {
	pins    platform.PinBank
	pwm     *cores.PWM
	enabled bool
}

var _ gpiotable.PWMProvider = (*nativeProvider)(nil)

func (p *nativeProvider) Configure(d gpiotable.Descriptor, mode gpiotable.Mode) error {
	if d.Indirect() {
		return errcode.InvalidDescriptor
	}
	return p.pins.Configure(d.ID(), mode)
}

func (p *nativeProvider) Set(d gpiotable.Descriptor, level bool) error {
	return p.pins.Set(d.ID(), level)
}

func (p *nativeProvider) Get(d gpiotable.Descriptor) (bool, error) {
	return p.pins.Get(d.ID())
}

// Enable has no hardware gate for native pins; the flag is informational.
func (p *nativeProvider) Enable(on bool) { p.enabled = on }

func (p *nativeProvider) RegisterChannel(d gpiotable.Descriptor) error {
	if !d.Caps().PWM || d.Indirect() {
		return errcode.Unsupported
	}
	if p.pwm == nil {
		return errcode.NoResource
	}
	return p.pwm.RegisterChannel(d.ID())
}

func (p *nativeProvider) SetDuty(d gpiotable.Descriptor, duty uint16) error {
	if p.pwm == nil {
		return errcode.NoResource
	}
	return p.pwm.SetDuty(d.ID(), uint32(duty))
}

// expanderProvider serves indirect descriptors from the MCP23017. Its outputs
// only become usable once start has configured the device, which happens
// during pre-initialisation.
type expanderProvider struct {
	dev     *mcp23017.Device
	log     *slog.Logger
	started bool
	enabled bool
}

var _ gpiotable.Provider = (*expanderProvider)(nil)

func (p *expanderProvider) start() error {
	if p.started {
		return nil
	}
	if err := p.dev.Configure(); err != nil {
		return errcode.Wrap(errcode.IOError, "expander start", err)
	}
	p.started = true
	return nil
}

func (p *expanderProvider) Configure(d gpiotable.Descriptor, mode gpiotable.Mode) error {
	if !p.started {
		return errcode.NotBound
	}
	if err := p.dev.SetDirection(d.ID(), mode != gpiotable.ModeOutput); err != nil {
		return err
	}
	return p.dev.SetPullUp(d.ID(), mode == gpiotable.ModeInputPullUp)
}

func (p *expanderProvider) Set(d gpiotable.Descriptor, level bool) error {
	if !p.started {
		return errcode.NotBound
	}
	return p.dev.Set(d.ID(), level)
}

func (p *expanderProvider) Get(d gpiotable.Descriptor) (bool, error) {
	if !p.started {
		return false, errcode.NotBound
	}
	return p.dev.Get(d.ID())
}

// Enable drives the general output enable line.
func (p *expanderProvider) Enable(on bool) {
	p.enabled = on
	if !p.started {
		p.log.Warn("output enable before expander start", "on", on)
		return
	}
	if err := p.dev.Set(bitGeneralEnable, on); err != nil {
		p.log.Error("general enable failed", "on", on, "err", err)
	}
}

func (p *expanderProvider) reset() error {
	if !p.started {
		return nil
	}
	p.started = false
	p.enabled = false
	return p.dev.WritePort(0)
}
