package core

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/gpiotable"
	"backplane-go/services/backplane/internal/logx"
	"backplane-go/services/backplane/internal/resource"
)

const DefaultMaxModules = 20

type Options struct {
	MaxModules   int
	MaxGPIO      int
	MaxResources int
	Logger       *slog.Logger
}

// System owns the module table, the output table and the resource pool.
// It is not safe for concurrent use: one goroutine attaches, initialises and
// loops.
type System struct {
	mods        []Module
	maxModules  int
	table       *gpiotable.Table
	pool        *resource.Pool
	log         *slog.Logger
	initialized bool
	ticks       uint64
}

func NewSystem(opts Options) *System {
	if opts.MaxModules <= 0 {
		opts.MaxModules = DefaultMaxModules
	}
	return &System{
		maxModules: opts.MaxModules,
		table:      gpiotable.New(opts.MaxGPIO, opts.Logger),
		pool:       resource.NewPool(opts.MaxResources, opts.Logger),
		log:        logx.Named(opts.Logger, "core"),
	}
}

func (s *System) Table() *gpiotable.Table { return s.table }
func (s *System) Pool() *resource.Pool    { return s.pool }
func (s *System) ProvidedGPIOs() int      { return s.table.Provided() }
func (s *System) UsedGPIOs() int          { return s.table.Used() }
func (s *System) Initialized() bool       { return s.initialized }
func (s *System) Ticks() uint64           { return s.ticks }
func (s *System) Len() int                { return len(s.mods) }

// Module returns the module attached at slot.
func (s *System) Module(slot int) (Module, bool) {
	if slot < 0 || slot >= len(s.mods) {
		return nil, false
	}
	return s.mods[slot], true
}

// Modules returns the attached modules in slot order.
func (s *System) Modules() []Module { return append([]Module(nil), s.mods...) }

// State returns the lifecycle bookkeeping of m.
func State(m Module) *Base { return m.lifecycle() }

func (s *System) env(m Module) *Env {
	b := m.lifecycle()
	return &Env{
		Table:     s.table,
		Pool:      s.pool,
		Log:       s.log.With("module", m.Info().Kind, "slot", b.slot),
		Slot:      b.slot,
		GPIOStart: b.gpioStart,
	}
}

// call runs one module step and converts a panic into an error so that a
// misbehaving module never unwinds the System.
func (s *System) call(m Module, op string, fn func() error) error {
	return s.guard(m.Info().Kind, op, fn)
}

// guard recovers a panic raised by fn, which runs code owned by who.
func (s *System) guard(who, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errcode.E{C: errcode.Error, Op: op, Msg: fmt.Sprint(who, " panic: ", r)}
			s.log.Error("module panicked", "module", who, "op", op, "panic", r)
		}
	}()
	return fn()
}

type step struct {
	stage Stage
	run   func(*Env) error
}

// Attach gives m the next slot and GPIO start index and drives its attach
// steps. Only a full module table is fatal. A failing step degrades the
// module, which stays attached; the returned error then carries
// errcode.Degraded and names every failed step.
func (s *System) Attach(m Module) error {
	b := m.lifecycle()
	info := m.Info()
	if b.attached {
		logx.Critical(s.log, "module attached twice", "module", info.Kind, "slot", b.slot)
		return errcode.AlreadyAttached
	}
	if len(s.mods) >= s.maxModules {
		logx.Critical(s.log, "module table full", "module", info.Kind, "capacity", s.maxModules)
		return errcode.ModuleTableFull
	}

	start := 0
	if n := len(s.mods); n > 0 {
		prev := s.mods[n-1]
		start = prev.lifecycle().gpioStart + prev.Info().GPIODemand
	}
	b.attached = true
	b.slot = len(s.mods)
	b.gpioStart = start
	b.stage = StageAttaching
	s.mods = append(s.mods, m)
	s.log.Info("attaching module", "module", info.Kind, "slot", b.slot, "gpio_start", start,
		"gpio_demand", info.GPIODemand, "gpio_supply", info.GPIOSupply)

	env := s.env(m)
	steps := []step{
		{StageGPIOProvided, m.ProvideGPIOs},
		{StageGPIORequested, m.RequestGPIOs},
		{StageResourcesProvided, m.ProvideResources},
		{StageResourcesRequested, m.RequestResources},
		{StageInterfacesAdded, m.AddInterfaces},
	}
	var failed []string
	for _, st := range steps {
		before := s.table.Provided()
		err := s.call(m, st.stage.String(), func() error { return st.run(env) })
		if st.stage == StageGPIOProvided {
			if got := s.table.Provided() - before; got != info.GPIOSupply {
				s.log.Warn("gpio supply mismatch", "module", info.Kind, "declared", info.GPIOSupply, "provided", got)
			}
		}
		b.stage = st.stage
		if err != nil {
			b.fail(st.stage)
			failed = append(failed, st.stage.String())
			s.log.Warn("attach step failed", "module", info.Kind, "slot", b.slot, "stage", st.stage.String(), "err", err)
		}
	}
	if len(failed) > 0 {
		return &errcode.E{
			C:   errcode.Degraded,
			Op:  "attach",
			Msg: info.Kind + " slot " + strconv.Itoa(b.slot) + ": " + strings.Join(failed, ","),
		}
	}
	s.log.Info("module attached", "module", info.Kind, "slot", b.slot, "interfaces", len(b.ifaces))
	return nil
}

// Initialize runs in two passes. Pass one pre-initialises every module so
// that expander providers are live. Pass two applies native initial levels,
// then indirect initial levels, initialises every module and enables every
// distinct provider. All failures are collected; none stops the sequence.
func (s *System) Initialize() error {
	if s.initialized {
		s.log.Warn("system already initialised")
		return errcode.AlreadyInit
	}
	var errs []error
	s.runAll("pre_initialize", StagePreInitialized, func(m Module, env *Env) error { return m.PreInitialize(env) }, &errs)

	for _, indirect := range []bool{false, true} {
		err := s.guard("provider", "initial_levels", func() error { return s.table.ApplyInitial(indirect) })
		if err != nil {
			errs = append(errs, err)
		}
	}

	s.runAll("initialize", StageInitialized, func(m Module, env *Env) error { return m.Initialize(env) }, &errs)

	for _, p := range s.table.Providers() {
		err := s.guard("provider", "enable", func() error { p.Enable(true); return nil })
		if err != nil {
			errs = append(errs, err)
		}
	}
	s.initialized = true
	s.log.Info("system initialised", "modules", len(s.mods), "gpio_provided", s.table.Provided(),
		"gpio_used", s.table.Used(), "resources", s.pool.Len(), "failures", len(errs))
	return errors.Join(errs...)
}

func (s *System) runAll(op string, stage Stage, fn func(Module, *Env) error, errs *[]error) {
	for _, m := range s.mods {
		b := m.lifecycle()
		env := s.env(m)
		err := s.call(m, op, func() error { return fn(m, env) })
		b.stage = stage
		if err != nil {
			b.fail(stage)
			s.log.Warn("module step failed", "module", m.Info().Kind, "slot", b.slot, "op", op, "err", err)
			*errs = append(*errs, &errcode.E{C: errcode.Of(err), Op: op, Msg: m.Info().Kind + " slot " + strconv.Itoa(b.slot), Err: err})
		}
	}
}

// Loop runs one scan tick: every module's Cycle exactly once, in slot order.
// It does no pacing. A failing cycle is logged and skipped; the module keeps
// its last known interface values. Loop returns the number of failed cycles.
func (s *System) Loop() int {
	failed := 0
	for _, m := range s.mods {
		b := m.lifecycle()
		b.stage = StageCycling
		clear(b.resp[:])
		if err := s.call(m, "cycle", func() error { return m.Cycle(b.resp[:]) }); err != nil {
			failed++
			s.log.Error("cycle failed", "module", m.Info().Kind, "slot", b.slot, "err", err)
		}
	}
	s.ticks++
	return failed
}

// Reset tears down every module, resource and descriptor and clears the
// initialised flag. It is idempotent.
func (s *System) Reset() error {
	var errs []error
	for _, m := range s.mods {
		if err := s.call(m, "reset", m.Reset); err != nil {
			errs = append(errs, err)
		}
		m.lifecycle().detach()
	}
	s.mods = nil
	if err := s.pool.Reset(); err != nil {
		errs = append(errs, err)
	}
	s.table.Reset()
	s.initialized = false
	s.ticks = 0
	s.log.Info("system reset")
	return errors.Join(errs...)
}
