// Package analog is the 4-in/4-out analog module. Outputs are PWM lines
// smoothed on the module; inputs come from an SPI ADC whose chip select is
// the fifth line of the module's range.
package analog

import (
	"errors"
	"log/slog"
	"strconv"

	"backplane-go/drivers/spiadc"
	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/core"
	"backplane-go/services/backplane/internal/cores"
	"backplane-go/services/backplane/internal/gpiotable"
	"backplane-go/services/backplane/internal/iface"
	"backplane-go/services/backplane/internal/logx"
	"backplane-go/services/backplane/internal/registry"
	"backplane-go/services/backplane/internal/resource"
	"backplane-go/x/mathx"
	"backplane-go/x/ramp"
)

const (
	Kind       = "analog"
	GPIODemand = 5
	Channels   = 4

	csOffset = 4
)

type Params struct {
	// Resolution of AQ1..AQ4. It should match the mainboard PWM bits.
	Resolution uint8 `yaml:"resolution"`
	// SlewPerTick caps how far an output moves per scan tick, in counts.
	// Zero applies writes immediately.
	SlewPerTick uint16 `yaml:"slew_per_tick"`
}

type pwmOut struct {
	p gpiotable.PWMProvider
	d gpiotable.Descriptor
}

type Module struct {
	core.Base
	res iface.Resolution
	log *slog.Logger

	pwm [Channels]gpiotable.Line
	out [Channels]pwmOut
	cs  gpiotable.Line
	spi *cores.SPI
	adc *spiadc.Device

	aq    [Channels]*iface.Analog
	slew  [Channels]ramp.Linear
	ai    [Channels]*iface.Analog
	codes [Channels]uint16
}

func New(p Params, log *slog.Logger) *Module {
	m := &Module{res: iface.Resolution(p.Resolution), log: logx.Named(log, Kind)}
	for i := range m.slew {
		m.slew[i].Rate = p.SlewPerTick
	}
	return m
}

func init() {
	registry.RegisterBuilder(Kind, registry.BuilderFunc(func(in registry.BuildInput) (core.Module, error) {
		p := Params{Resolution: uint8(iface.Res12)}
		if err := in.Decode(&p); err != nil {
			return nil, err
		}
		switch iface.Resolution(p.Resolution) {
		case iface.Res8, iface.Res10, iface.Res12, iface.Res16:
		default:
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "build", Msg: "analog resolution " + strconv.Itoa(int(p.Resolution))}
		}
		return New(p, in.Log), nil
	}))
}

func (m *Module) Info() core.Info {
	return core.Info{Kind: Kind, HWType: 3, HWVersion: "1.0", FWVersion: "1.0", GPIODemand: GPIODemand}
}

func (m *Module) RequestGPIOs(env *core.Env) error {
	var errs []error
	cs, err := env.Line(csOffset)
	if err != nil {
		m.log.Warn("adc chip select unavailable", "index", env.GPIOStart+csOffset, "err", err)
		errs = append(errs, err)
	} else {
		if err := cs.SetInitial(true); err != nil {
			errs = append(errs, err)
		}
		m.cs = cs
	}
	for i := range Channels {
		l, err := env.Line(i)
		if err != nil {
			m.log.Warn("pwm line unavailable", "output", i+1, "index", env.GPIOStart+i, "err", err)
			errs = append(errs, err)
			continue
		}
		m.pwm[i] = l
	}
	return errors.Join(errs...)
}

// RequestResources registers each PWM line with its provider and takes a
// share of the SPI bus for the ADC.
func (m *Module) RequestResources(env *core.Env) error {
	var errs []error
	for i, l := range m.pwm {
		if !l.Valid() {
			continue
		}
		p, d, err := l.PWM()
		if err == nil {
			err = p.RegisterChannel(d)
		}
		if err != nil {
			m.log.Warn("pwm channel refused", "output", i+1, "index", l.Index(), "err", err)
			errs = append(errs, err)
			continue
		}
		m.out[i] = pwmOut{p: p, d: d}
	}
	if m.cs.Valid() {
		spi, ok := resource.AcquireAs[*cores.SPI](env.Pool, resource.SPI)
		if !ok {
			errs = append(errs, &errcode.E{C: errcode.NoResource, Op: "request", Msg: "spi"})
		}
		m.spi = spi
	}
	return errors.Join(errs...)
}

func (m *Module) AddInterfaces(*core.Env) error {
	for i := range Channels {
		m.aq[i] = iface.NewAnalogOutput("AQ"+strconv.Itoa(i+1), m.res, m.log)
		if m.out[i].p != nil {
			m.aq[i].Validate()
		}
		m.AddInterface(m.aq[i])
	}
	for i := range Channels {
		m.ai[i] = iface.NewAnalogInput("AI"+strconv.Itoa(i+1), spiadc.Bits, m.log)
		if m.cs.Valid() && m.spi != nil {
			m.ai[i].Validate()
		}
		m.AddInterface(m.ai[i])
	}
	return nil
}

func (m *Module) PreInitialize(*core.Env) error {
	if !m.cs.Valid() {
		return nil
	}
	return m.cs.Configure(gpiotable.ModeOutput)
}

func (m *Module) Initialize(*core.Env) error {
	if m.cs.Valid() && m.spi != nil {
		m.adc = spiadc.New(m.spi, m.cs)
	}
	return nil
}

// Cycle burst-reads the ADC into AI1..AI4 and drives every valid AQ, slew
// limited.
// resp carries AI1..AI4 as little-endian 16-bit codes.
func (m *Module) Cycle(resp []byte) error {
	var errs []error
	if m.adc != nil {
		if err := m.adc.ReadAll(&m.codes); err != nil {
			m.log.Error("adc burst read failed", "err", err)
			errs = append(errs, err)
		} else {
			for i, c := range m.codes {
				m.ai[i].Update(uint32(c))
			}
		}
	}
	for i, a := range m.aq {
		if a == nil || !a.Valid() || m.out[i].p == nil {
			continue
		}
		duty := m.slew[i].Advance(uint16(mathx.Min(a.Q(), 0xFFFF)))
		if err := m.out[i].p.SetDuty(m.out[i].d, duty); err != nil {
			errs = append(errs, err)
		}
	}
	for i := 0; i < Channels && 2*i+1 < len(resp); i++ {
		resp[2*i], resp[2*i+1] = byte(m.codes[i]), byte(m.codes[i]>>8)
	}
	return errors.Join(errs...)
}

func (m *Module) Reset() error {
	m.pwm = [Channels]gpiotable.Line{}
	m.out = [Channels]pwmOut{}
	m.cs = gpiotable.Line{}
	m.spi, m.adc = nil, nil
	m.aq, m.ai = [Channels]*iface.Analog{}, [Channels]*iface.Analog{}
	m.codes = [Channels]uint16{}
	for i := range m.slew {
		m.slew[i].Reset(0)
	}
	return nil
}

// Output returns the duty last driven on AQ(ch+1).
func (m *Module) Output(ch int) uint16 { return m.slew[ch].Level() }
