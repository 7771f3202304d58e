// Package digital is the 8-in/8-out digital I/O module. Both ICs sit on the
// shared SPI bus behind chip selects borrowed from the output table. Channels
// 1..4 are flexible: the output mask picks output or input per channel.
package digital

import (
	"errors"
	"log/slog"
	"strconv"

	"backplane-go/drivers/spiio"
	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/core"
	"backplane-go/services/backplane/internal/cores"
	"backplane-go/services/backplane/internal/gpiotable"
	"backplane-go/services/backplane/internal/iface"
	"backplane-go/services/backplane/internal/logx"
	"backplane-go/services/backplane/internal/registry"
	"backplane-go/services/backplane/internal/resource"
)

const (
	Kind       = "digital"
	GPIODemand = 2

	// DefaultOutputMask makes Q5..Q8 outputs and channels 1..4 inputs.
	DefaultOutputMask = 0xF0

	csOutputs = 0
	csInputs  = 1
	channels  = 8
)

type Params struct {
	OutputMask uint8 `yaml:"output_mask"`
}

type Module struct {
	core.Base
	mask uint8
	log  *slog.Logger

	csOut, csIn gpiotable.Line
	spi         *cores.SPI
	outIC       *spiio.Output
	inIC        *spiio.Input

	// in[i] and out[i] are channel i+1.
	in  [channels]*iface.Digital
	out [channels]*iface.Digital

	inputs uint8
}

func New(p Params, log *slog.Logger) *Module {
	return &Module{mask: p.OutputMask, log: logx.Named(log, Kind)}
}

func init() {
	registry.RegisterBuilder(Kind, registry.BuilderFunc(func(in registry.BuildInput) (core.Module, error) {
		p := Params{OutputMask: DefaultOutputMask}
		if err := in.Decode(&p); err != nil {
			return nil, err
		}
		return New(p, in.Log), nil
	}))
}

func (m *Module) Info() core.Info {
	return core.Info{Kind: Kind, HWType: 2, HWVersion: "1.0", FWVersion: "1.0", GPIODemand: GPIODemand}
}

// Mask returns the output mask.
func (m *Module) Mask() uint8 { return m.mask }

func (m *Module) RequestGPIOs(env *core.Env) error {
	var errs []error
	claim := func(offset int, name string) gpiotable.Line {
		l, err := env.Line(offset)
		if err != nil {
			m.log.Warn("chip select unavailable", "cs", name, "index", env.GPIOStart+offset, "err", err)
			errs = append(errs, err)
			return gpiotable.Line{}
		}
		if err := l.SetInitial(true); err != nil {
			errs = append(errs, err)
		}
		return l
	}
	m.csOut = claim(csOutputs, "outputs")
	m.csIn = claim(csInputs, "inputs")
	return errors.Join(errs...)
}

func (m *Module) RequestResources(env *core.Env) error {
	spi, ok := resource.AcquireAs[*cores.SPI](env.Pool, resource.SPI)
	if !ok {
		return &errcode.E{C: errcode.NoResource, Op: "request", Msg: "spi"}
	}
	m.spi = spi
	return nil
}

// AddInterfaces publishes I8..I5, then Q1..Q4 or I4..I1 per the mask, then
// Q5..Q8.
func (m *Module) AddInterfaces(*core.Env) error {
	for i := range channels {
		m.in[i] = iface.NewDigitalInput("I" + strconv.Itoa(i+1))
		m.out[i] = iface.NewDigitalOutput("Q" + strconv.Itoa(i+1))
	}
	for i := 7; i >= 4; i-- {
		m.add(m.in[i])
	}
	for i := range 4 {
		if m.isOutput(i) {
			m.add(m.out[i])
		} else {
			m.add(m.in[3-i])
		}
	}
	for i := 4; i < channels; i++ {
		m.add(m.out[i])
	}
	return nil
}

func (m *Module) isOutput(ch int) bool { return m.mask&(1<<ch) != 0 }

func (m *Module) add(d *iface.Digital) {
	switch {
	case d.Kind() == iface.DigitalInput && m.csIn.Valid():
		d.Validate()
	case d.Kind() == iface.DigitalOutput && m.csOut.Valid():
		d.Validate()
	}
	m.AddInterface(d)
}

func (m *Module) PreInitialize(*core.Env) error {
	var errs []error
	for _, l := range []gpiotable.Line{m.csOut, m.csIn} {
		if !l.Valid() {
			continue
		}
		if err := l.Configure(gpiotable.ModeOutput); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Module) Initialize(*core.Env) error {
	if m.spi == nil {
		m.invalidateAll()
		return errcode.NotBound
	}
	if m.csOut.Valid() {
		m.outIC = spiio.NewOutput(m.spi, m.csOut)
	}
	if m.csIn.Valid() {
		m.inIC = spiio.NewInput(m.spi, m.csIn)
	}
	m.log.Info("digital io ready", "output_mask", "0b"+strconv.FormatUint(uint64(m.mask), 2),
		"cs_outputs", m.csOut.Index(), "cs_inputs", m.csIn.Index())
	return nil
}

func (m *Module) invalidateAll() {
	for i := range channels {
		m.in[i].Invalidate()
		m.out[i].Invalidate()
	}
}

// Cycle writes every masked output, then reads all eight inputs. resp[0]
// carries the output byte and resp[1] the input byte.
func (m *Module) Cycle(resp []byte) error {
	var errs []error
	if m.outIC != nil {
		var v uint8
		for i := range channels {
			v |= uint8(m.out[i].Q()) << i
		}
		v &= m.mask
		if err := m.outIC.Write(v); err != nil {
			errs = append(errs, err)
		}
	}
	if m.inIC != nil {
		v, err := m.inIC.Read()
		if err != nil && !errors.Is(err, spiio.ErrFault) {
			errs = append(errs, err)
		} else {
			if err != nil {
				m.log.Warn("input wire break", "levels", v)
			}
			m.inputs = v
			for i := range channels {
				m.in[i].Update(uint32(v>>i) & 1)
			}
		}
	}
	if len(resp) >= 2 && m.outIC != nil {
		resp[0] = m.outIC.State()
		resp[1] = m.inputs
	}
	return errors.Join(errs...)
}

// SetOutputs sets every masked output from a byte; bits outside the mask are
// ignored. An invalid output refuses its bit and the error is returned.
func (m *Module) SetOutputs(v uint8) error {
	var errs []error
	for i := range channels {
		if !m.isOutput(i) || m.out[i] == nil {
			continue
		}
		if err := m.out[i].SetState(v&(1<<i) != 0); err != nil {
			errs = append(errs, &errcode.E{C: errcode.Of(err), Op: "set outputs", Msg: m.out[i].Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// SetOutput sets one channel, 0-based. A channel outside the mask is
// rejected.
func (m *Module) SetOutput(ch int, on bool) error {
	if ch < 0 || ch >= channels {
		return errcode.IndexOutOfRange
	}
	if !m.isOutput(ch) {
		return &errcode.E{C: errcode.Unsupported, Op: "set output", Msg: "channel " + strconv.Itoa(ch+1) + " is an input"}
	}
	return m.out[ch].SetState(on)
}

// Inputs returns the last input byte read.
func (m *Module) Inputs() uint8 { return m.inputs }

func (m *Module) Reset() error {
	m.csOut, m.csIn = gpiotable.Line{}, gpiotable.Line{}
	m.spi, m.outIC, m.inIC = nil, nil, nil
	m.in, m.out = [channels]*iface.Digital{}, [channels]*iface.Digital{}
	m.inputs = 0
	return nil
}
