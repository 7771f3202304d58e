package core

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/gpiotable"
	"backplane-go/services/backplane/internal/iface"
	"backplane-go/services/backplane/internal/resource"
)

// events is a shared, ordered log of everything the fakes observe.
type events []string

type fakeProvider struct {
	name    string
	ev      *events
	levels  map[uint8]bool
	enabled bool
	panicOn string
}

func newProvider(name string, ev *events) *fakeProvider {
	return &fakeProvider{name: name, ev: ev, levels: map[uint8]bool{}}
}

func (p *fakeProvider) Configure(gpiotable.Descriptor, gpiotable.Mode) error { return nil }
func (p *fakeProvider) Set(d gpiotable.Descriptor, level bool) error {
	if p.panicOn == "set" {
		panic(p.name + " set")
	}
	*p.ev = append(*p.ev, p.name+".set")
	p.levels[d.ID()] = level
	return nil
}
func (p *fakeProvider) Get(d gpiotable.Descriptor) (bool, error) { return p.levels[d.ID()], nil }
func (p *fakeProvider) Enable(on bool) {
	if p.panicOn == "enable" {
		panic(p.name + " enable")
	}
	*p.ev = append(*p.ev, p.name+".enable")
	p.enabled = on
}

type fakeCore struct {
	resource.Counter
	typ resource.Type
}

func (c *fakeCore) Type() resource.Type { return c.typ }
func (c *fakeCore) Reset() error        { c.ResetUsage(); return nil }

type fakeMod struct {
	Base
	info    Info
	ev      *events
	supply  []gpiotable.Descriptor
	initial map[int]bool
	cores   []*fakeCore
	needs   []resource.Type
	panicAt string
	failPre bool
	initErr error
	cycles  *[]int

	lines  []gpiotable.Line
	outs   []*iface.Digital
	got    []resource.Resource
	resets int
}

func (f *fakeMod) Info() Info { return f.info }

func (f *fakeMod) maybePanic(op string) {
	if f.panicAt == op {
		panic("boom in " + op)
	}
}

func (f *fakeMod) ProvideGPIOs(env *Env) error {
	f.maybePanic("provide_gpios")
	for _, d := range f.supply {
		i, err := env.Table.Add(d)
		if err != nil {
			return err
		}
		if lvl, ok := f.initial[i]; ok {
			if err := env.Table.SetInitial(i, lvl); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *fakeMod) RequestGPIOs(env *Env) error {
	f.maybePanic("request_gpios")
	var errs []error
	f.lines = make([]gpiotable.Line, f.info.GPIODemand)
	for i := range f.lines {
		l, err := env.Line(i)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		f.lines[i] = l
	}
	return errors.Join(errs...)
}

func (f *fakeMod) ProvideResources(env *Env) error {
	for _, c := range f.cores {
		if err := env.Pool.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMod) RequestResources(env *Env) error {
	for _, t := range f.needs {
		r, ok := env.Acquire(t)
		if !ok {
			return errcode.NoResource
		}
		f.got = append(f.got, r)
	}
	return nil
}

func (f *fakeMod) AddInterfaces(*Env) error {
	f.outs = nil
	for i, l := range f.lines {
		q := iface.NewDigitalOutput("Q" + string(rune('1'+i)))
		if l.Valid() {
			q.Validate()
		}
		f.outs = append(f.outs, q)
		f.AddInterface(q)
	}
	return nil
}

func (f *fakeMod) PreInitialize(*Env) error {
	if f.ev != nil {
		*f.ev = append(*f.ev, f.info.Kind+".pre")
	}
	if f.failPre {
		return errcode.Timeout
	}
	return nil
}

func (f *fakeMod) Initialize(*Env) error {
	if f.ev != nil {
		*f.ev = append(*f.ev, f.info.Kind+".init")
	}
	return f.initErr
}

func (f *fakeMod) Cycle([]byte) error {
	f.maybePanic("cycle")
	if f.cycles != nil {
		*f.cycles = append(*f.cycles, f.Slot())
	}
	return nil
}

func (f *fakeMod) Reset() error {
	f.resets++
	f.lines, f.outs, f.got = nil, nil, nil
	return nil
}

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newSys(t *testing.T, max int) *System {
	t.Helper()
	return NewSystem(Options{MaxModules: max, Logger: quietLog()})
}

func natives(p gpiotable.Provider, n int) []gpiotable.Descriptor {
	var out []gpiotable.Descriptor
	for i := 0; i < n; i++ {
		out = append(out, gpiotable.Native(uint8(i), gpiotable.Caps{}, p))
	}
	return out
}

func TestGPIOStartFollowsDemand(t *testing.T) {
	ev := &events{}
	s := newSys(t, 0)
	board := &fakeMod{info: Info{Kind: "board", GPIOSupply: 12}, supply: natives(newProvider("n", ev), 12)}
	a := &fakeMod{info: Info{Kind: "a", GPIODemand: 4}}
	b := &fakeMod{info: Info{Kind: "b", GPIODemand: 4}}
	require.NoError(t, s.Attach(board))
	require.NoError(t, s.Attach(a))
	require.NoError(t, s.Attach(b))

	assert.Equal(t, 0, a.GPIOStart())
	assert.Equal(t, a.GPIOStart()+4, b.GPIOStart())
	assert.Equal(t, 2, b.Slot())
	assert.Equal(t, 12, s.ProvidedGPIOs())
	assert.Equal(t, 8, s.UsedGPIOs())
	assert.Equal(t, StageInterfacesAdded, b.Stage())
	for _, q := range b.outs {
		assert.True(t, q.Valid())
	}
}

func TestMissingChipSelectDegradesButStaysAttached(t *testing.T) {
	s := newSys(t, 0)
	m := &fakeMod{info: Info{Kind: "digital", GPIODemand: 2}}
	err := s.Attach(m)
	require.Error(t, err)
	assert.Equal(t, errcode.Degraded, errcode.Of(err))
	assert.Contains(t, err.Error(), "gpio_requested")

	got, ok := s.Module(0)
	require.True(t, ok)
	assert.Same(t, m, got)
	assert.True(t, m.Degraded())
	assert.Equal(t, []Stage{StageGPIORequested}, m.FailedStages())
	require.Len(t, m.Interfaces(), 2)
	for _, i := range m.Interfaces() {
		assert.False(t, i.Valid(), i.Name())
	}
}

func TestMissingResourceDegrades(t *testing.T) {
	s := newSys(t, 0)
	owner := &fakeMod{info: Info{Kind: "owner"}, cores: []*fakeCore{{Counter: resource.NewCounter(1), typ: resource.UART}}}
	a := &fakeMod{info: Info{Kind: "a"}, needs: []resource.Type{resource.UART}}
	b := &fakeMod{info: Info{Kind: "b"}, needs: []resource.Type{resource.UART}}
	require.NoError(t, s.Attach(owner))
	require.NoError(t, s.Attach(a))
	err := s.Attach(b)
	require.ErrorIs(t, err, errcode.Degraded)
	assert.Len(t, a.got, 1)
	assert.Empty(t, b.got)
	assert.Equal(t, 3, s.Len())
}

func TestModuleTableFull(t *testing.T) {
	s := newSys(t, 2)
	require.NoError(t, s.Attach(&fakeMod{info: Info{Kind: "a"}}))
	require.NoError(t, s.Attach(&fakeMod{info: Info{Kind: "b"}}))
	c := &fakeMod{info: Info{Kind: "c"}}
	require.ErrorIs(t, s.Attach(c), errcode.ModuleTableFull)
	assert.Equal(t, 2, s.Len())
	assert.False(t, c.Attached())
}

func TestAttachTwiceRejected(t *testing.T) {
	s := newSys(t, 0)
	m := &fakeMod{info: Info{Kind: "a"}}
	require.NoError(t, s.Attach(m))
	require.ErrorIs(t, s.Attach(m), errcode.AlreadyAttached)
	assert.Equal(t, 1, s.Len())
}

func TestInitializeAppliesNativeBeforeIndirect(t *testing.T) {
	ev := &events{}
	native := newProvider("native", ev)
	exp := newProvider("exp", ev)
	board := &fakeMod{
		info: Info{Kind: "board", GPIOSupply: 5},
		ev:   ev,
		supply: []gpiotable.Descriptor{
			gpiotable.Indirect(0, gpiotable.Caps{}, exp),
			gpiotable.Native(1, gpiotable.Caps{}, native),
			gpiotable.Indirect(1, gpiotable.Caps{}, exp),
			gpiotable.Native(2, gpiotable.Caps{}, native),
			gpiotable.Native(3, gpiotable.Caps{}, native),
		},
		initial: map[int]bool{1: true, 3: true, 2: true},
	}
	user := &fakeMod{info: Info{Kind: "user", GPIODemand: 2}, ev: ev}
	s := newSys(t, 0)
	require.NoError(t, s.Attach(board))
	require.NoError(t, s.Attach(user))
	require.NoError(t, s.Initialize())
	assert.True(t, s.Initialized())

	want := events{
		"board.pre", "user.pre",
		"native.set", "native.set", "native.set",
		"exp.set", "exp.set",
		"board.init", "user.init",
		"exp.enable", "native.enable",
	}
	assert.Equal(t, want, *ev)
	assert.True(t, native.levels[1])
	assert.True(t, native.levels[2])
	assert.False(t, native.levels[3])
	assert.True(t, exp.levels[1])
	assert.True(t, native.enabled && exp.enabled)
	assert.Equal(t, StageInitialized, user.Stage())

	require.ErrorIs(t, s.Initialize(), errcode.AlreadyInit)
}

func TestInitializeCollectsFailures(t *testing.T) {
	s := newSys(t, 0)
	bad := &fakeMod{info: Info{Kind: "bad"}, failPre: true}
	good := &fakeMod{info: Info{Kind: "good"}, ev: &events{}}
	require.NoError(t, s.Attach(bad))
	require.NoError(t, s.Attach(good))
	err := s.Initialize()
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.Timeout)
	assert.Equal(t, events{"good.pre", "good.init"}, *good.ev)
	assert.True(t, bad.Degraded())
	assert.False(t, good.Degraded())
}

func TestInitializeKeepsJoinedStepCode(t *testing.T) {
	s := newSys(t, 0)
	m := &fakeMod{info: Info{Kind: "joined"}, initErr: errors.Join(errors.New("spi"), errcode.NoResource)}
	require.NoError(t, s.Attach(m))
	err := s.Initialize()
	require.ErrorIs(t, err, errcode.NoResource)

	var step *errcode.E
	require.ErrorAs(t, err, &step)
	assert.Equal(t, errcode.NoResource, step.C)
	assert.Equal(t, errcode.NoResource, errcode.Of(err))
	assert.Equal(t, []Stage{StageInitialized}, m.FailedStages())
}

func TestInitializeContainsProviderPanics(t *testing.T) {
	for _, at := range []string{"set", "enable"} {
		t.Run(at, func(t *testing.T) {
			ev := &events{}
			p := newProvider("native", ev)
			p.panicOn = at
			board := &fakeMod{
				info:    Info{Kind: "board", GPIOSupply: 2},
				ev:      ev,
				supply:  natives(p, 2),
				initial: map[int]bool{0: true},
			}
			s := newSys(t, 0)
			require.NoError(t, s.Attach(board))

			var err error
			require.NotPanics(t, func() { err = s.Initialize() })
			require.Error(t, err)
			assert.Equal(t, errcode.Error, errcode.Of(err))
			assert.Contains(t, err.Error(), "panic")
			assert.True(t, s.Initialized())
			assert.Contains(t, *ev, "board.init", "modules still initialise")
		})
	}
}

func TestLoopCyclesInSlotOrder(t *testing.T) {
	var order []int
	s := newSys(t, 0)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Attach(&fakeMod{info: Info{Kind: k}, cycles: &order}))
	}
	require.NoError(t, s.Initialize())
	for i := 0; i < 100; i++ {
		require.Equal(t, 0, s.Loop())
	}
	require.Len(t, order, 300)
	for i, slot := range order {
		require.Equal(t, i%3, slot, "call %d", i)
	}
	assert.Equal(t, uint64(100), s.Ticks())
	m, _ := s.Module(2)
	assert.Equal(t, StageCycling, State(m).Stage())
}

func TestPanicsAreContained(t *testing.T) {
	var order []int
	s := newSys(t, 0)
	bad := &fakeMod{info: Info{Kind: "bad"}, panicAt: "request_gpios"}
	err := s.Attach(bad)
	require.ErrorIs(t, err, errcode.Degraded)
	assert.Equal(t, StageInterfacesAdded, bad.Stage(), "later steps still ran")

	crash := &fakeMod{info: Info{Kind: "crash"}, panicAt: "cycle", cycles: &order}
	ok := &fakeMod{info: Info{Kind: "ok"}, cycles: &order}
	require.NoError(t, s.Attach(crash))
	require.NoError(t, s.Attach(ok))
	assert.Equal(t, 1, s.Loop())
	assert.Equal(t, []int{2}, order)
}

func TestResetEmptiesEverything(t *testing.T) {
	ev := &events{}
	s := newSys(t, 0)
	board := &fakeMod{
		info:   Info{Kind: "board", GPIOSupply: 6},
		supply: natives(newProvider("n", ev), 6),
		cores:  []*fakeCore{{Counter: resource.NewCounter(0), typ: resource.I2C}},
	}
	user := &fakeMod{info: Info{Kind: "user", GPIODemand: 3}, needs: []resource.Type{resource.I2C}}
	require.NoError(t, s.Attach(board))
	require.NoError(t, s.Attach(user))
	require.NoError(t, s.Initialize())
	s.Loop()

	require.NoError(t, s.Reset())
	assert.Equal(t, 0, s.ProvidedGPIOs())
	assert.Equal(t, 0, s.UsedGPIOs())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Pool().Len())
	assert.False(t, s.Initialized())
	assert.False(t, user.Attached())
	assert.Empty(t, user.Interfaces())
	assert.Equal(t, 1, user.resets)

	require.NoError(t, s.Reset(), "reset is idempotent")
	assert.Equal(t, 0, s.Len())
}

type snapshot struct {
	descs    []string
	provided int
	used     int
	res      []string
}

func snap(s *System) snapshot {
	var out snapshot
	s.Table().Each(func(_ int, d gpiotable.Descriptor) { out.descs = append(out.descs, d.String()) })
	out.provided = s.ProvidedGPIOs()
	out.used = s.UsedGPIOs()
	s.Pool().Each(func(_ int, r resource.Resource) {
		out.res = append(out.res, r.Type().String()+":"+string(rune('0'+r.Usages())))
	})
	return out
}

func TestResetThenReattachRoundTrips(t *testing.T) {
	ev := &events{}
	board := &fakeMod{
		info:   Info{Kind: "board", GPIOSupply: 8},
		supply: natives(newProvider("n", ev), 8),
		cores:  []*fakeCore{{Counter: resource.NewCounter(1), typ: resource.PWM}, {Counter: resource.NewCounter(0), typ: resource.SPI}},
	}
	a := &fakeMod{info: Info{Kind: "a", GPIODemand: 2}, needs: []resource.Type{resource.SPI}}
	b := &fakeMod{info: Info{Kind: "b", GPIODemand: 5}, needs: []resource.Type{resource.PWM, resource.SPI}}
	mods := []*fakeMod{board, a, b}

	s := newSys(t, 0)
	for _, m := range mods {
		require.NoError(t, s.Attach(m))
	}
	first := snap(s)
	require.NoError(t, s.Reset())
	for _, m := range mods {
		require.NoError(t, s.Attach(m))
	}
	assert.Equal(t, first, snap(s))
	assert.Equal(t, 2, b.GPIOStart())
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "resources_requested", StageResourcesRequested.String())
	assert.Equal(t, "unknown", Stage(99).String())
}
