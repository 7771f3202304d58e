// Package relay is the four-channel relay board. Each coil is driven straight
// from a backplane line.
package relay

import (
	"errors"
	"log/slog"
	"strconv"

	"backplane-go/services/backplane/internal/core"
	"backplane-go/services/backplane/internal/gpiotable"
	"backplane-go/services/backplane/internal/iface"
	"backplane-go/services/backplane/internal/logx"
	"backplane-go/services/backplane/internal/registry"
)

const (
	Kind       = "relay"
	GPIODemand = 4
	Channels   = 4
)

// lineOffsets maps RQ1..RQ4 onto the board's crossed routing.
var lineOffsets = [Channels]int{0, 2, 1, 3}

type Module struct {
	core.Base
	log    *slog.Logger
	lines  [Channels]gpiotable.Line
	relays [Channels]*iface.Digital
	state  uint8
}

func New(log *slog.Logger) *Module { return &Module{log: logx.Named(log, Kind)} }

func init() {
	registry.RegisterBuilder(Kind, registry.BuilderFunc(func(in registry.BuildInput) (core.Module, error) {
		return New(in.Log), nil
	}))
}

func (m *Module) Info() core.Info {
	return core.Info{Kind: Kind, HWType: 4, HWVersion: "1.0", FWVersion: "1.0", GPIODemand: GPIODemand}
}

func (m *Module) RequestGPIOs(env *core.Env) error {
	var errs []error
	for i, off := range lineOffsets {
		l, err := env.Line(off)
		if err != nil {
			m.log.Warn("relay line unavailable", "relay", i+1, "index", env.GPIOStart+off, "err", err)
			errs = append(errs, err)
			continue
		}
		if err := l.SetInitial(false); err != nil {
			errs = append(errs, err)
		}
		m.lines[i] = l
	}
	return errors.Join(errs...)
}

func (m *Module) AddInterfaces(*core.Env) error {
	for i := range Channels {
		r := iface.NewRelay("RQ" + strconv.Itoa(i+1))
		if m.lines[i].Valid() {
			r.Validate()
		}
		m.relays[i] = r
		m.AddInterface(r)
	}
	return nil
}

func (m *Module) PreInitialize(*core.Env) error {
	var errs []error
	for i, l := range m.lines {
		if !l.Valid() {
			continue
		}
		if err := l.Configure(gpiotable.ModeOutput); err != nil {
			m.relays[i].Invalidate()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Cycle drives each valid relay from its Q. resp[0] holds the coil states.
func (m *Module) Cycle(resp []byte) error {
	var errs []error
	var st uint8
	for i, r := range m.relays {
		if r == nil || !r.Valid() {
			continue
		}
		if err := m.lines[i].Set(r.State()); err != nil {
			errs = append(errs, err)
			continue
		}
		if r.State() {
			st |= 1 << i
		}
	}
	m.state = st
	if len(resp) > 0 {
		resp[0] = st
	}
	return errors.Join(errs...)
}

// State returns the coil bitmap applied by the last cycle, bit 0 = RQ1.
func (m *Module) State() uint8 { return m.state }

func (m *Module) Reset() error {
	m.lines = [Channels]gpiotable.Line{}
	m.relays = [Channels]*iface.Digital{}
	m.state = 0
	return nil
}
