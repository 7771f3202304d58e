package gpiotable

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backplane-go/errcode"
)

type recProvider struct {
	levels  map[uint8]bool
	modes   map[uint8]Mode
	order   []uint8
	enabled bool
	failSet bool
}

func newRec() *recProvider {
	return &recProvider{levels: map[uint8]bool{}, modes: map[uint8]Mode{}}
}

func (p *recProvider) Configure(d Descriptor, m Mode) error { p.modes[d.ID()] = m; return nil }
func (p *recProvider) Set(d Descriptor, level bool) error {
	if p.failSet {
		return errcode.IOError
	}
	p.levels[d.ID()] = level
	p.order = append(p.order, d.ID())
	return nil
}
func (p *recProvider) Get(d Descriptor) (bool, error) { return p.levels[d.ID()], nil }
func (p *recProvider) Enable(on bool)                 { p.enabled = on }

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAddFillsDensely(t *testing.T) {
	tbl := New(4, quietLog())
	p := newRec()
	for i := 0; i < 4; i++ {
		idx, err := tbl.Add(Native(uint8(i), Caps{}, p))
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}
	_, err := tbl.Add(Native(9, Caps{}, p))
	require.ErrorIs(t, err, errcode.CapacityExceeded)
	assert.Equal(t, 4, tbl.Provided())
}

func TestPutOccupiedRejectedWithoutOverwrite(t *testing.T) {
	tbl := New(8, quietLog())
	p := newRec()
	_, err := tbl.Add(Native(1, Caps{PWM: true}, p))
	require.NoError(t, err)

	err = tbl.Put(0, Native(2, Caps{}, p), false)
	require.ErrorIs(t, err, errcode.SlotOccupied)
	d, ok := tbl.Get(0)
	require.True(t, ok)
	assert.Equal(t, uint8(1), d.ID(), "rejected put leaves the table unchanged")
	assert.Equal(t, 1, tbl.Provided())

	require.NoError(t, tbl.Put(0, Native(2, Caps{}, p), true))
	d, _ = tbl.Get(0)
	assert.Equal(t, uint8(2), d.ID())
	assert.Equal(t, 1, tbl.Provided(), "overwrite does not grow the table")
}

func TestPutMustNotLeaveGap(t *testing.T) {
	tbl := New(8, quietLog())
	p := newRec()
	require.ErrorIs(t, tbl.Put(3, Native(0, Caps{}, p), false), errcode.IndexOutOfRange)
	require.ErrorIs(t, tbl.Put(-1, Native(0, Caps{}, p), false), errcode.IndexOutOfRange)
	require.ErrorIs(t, tbl.Put(8, Native(0, Caps{}, p), false), errcode.CapacityExceeded)
	require.NoError(t, tbl.Put(0, Native(0, Caps{}, p), false))
	require.NoError(t, tbl.Put(1, Native(1, Caps{}, p), false))
	assert.Equal(t, 2, tbl.Provided())
}

func TestPutRejectsDescriptorWithoutProvider(t *testing.T) {
	tbl := New(2, quietLog())
	_, err := tbl.Add(Native(0, Caps{}, nil))
	require.ErrorIs(t, err, errcode.InvalidDescriptor)
	assert.Equal(t, 0, tbl.Provided())
}

func TestGetDoesNotClaimUseDoes(t *testing.T) {
	tbl := New(4, quietLog())
	p := newRec()
	_, err := tbl.AddAll([]Descriptor{Native(0, Caps{}, p), Indirect(3, Caps{}, p)})
	require.NoError(t, err)

	_, ok := tbl.Get(1)
	require.True(t, ok)
	assert.Equal(t, 0, tbl.Used())

	l, err := tbl.Use(1)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Used())
	_, err = tbl.Use(1)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Used(), "second claim of the same index is not counted")

	d, err := l.Descriptor()
	require.NoError(t, err)
	assert.True(t, d.Indirect())
	assert.Equal(t, uint8(3), d.ID())

	_, err = tbl.Use(2)
	require.ErrorIs(t, err, errcode.InvalidDescriptor)
	_, err = tbl.Use(100)
	require.ErrorIs(t, err, errcode.IndexOutOfRange)
	_, ok = tbl.Get(-4)
	assert.False(t, ok)
}

func TestLineRoutesToProvider(t *testing.T) {
	tbl := New(4, quietLog())
	p := newRec()
	_, err := tbl.AddAll([]Descriptor{Native(7, Caps{}, p), Native(8, Caps{InputOnly: true}, p)})
	require.NoError(t, err)

	out, err := tbl.Use(0)
	require.NoError(t, err)
	require.NoError(t, out.Configure(ModeOutput))
	require.NoError(t, out.Set(true))
	v, err := out.Get()
	require.NoError(t, err)
	assert.True(t, v)
	assert.Equal(t, ModeOutput, p.modes[7])

	in, err := tbl.Use(1)
	require.NoError(t, err)
	require.ErrorIs(t, in.Configure(ModeOutput), errcode.Unsupported)
	require.NoError(t, in.Configure(ModeInputPullUp))

	_, _, err = out.PWM()
	require.ErrorIs(t, err, errcode.Unsupported, "recProvider has no duty control")
}

func TestLineAfterResetFailsCleanly(t *testing.T) {
	tbl := New(2, quietLog())
	_, err := tbl.Add(Native(0, Caps{}, newRec()))
	require.NoError(t, err)
	l, err := tbl.Use(0)
	require.NoError(t, err)

	tbl.Reset()
	require.ErrorIs(t, l.Set(true), errcode.InvalidDescriptor)
	assert.False(t, Line{}.Valid())
}

func TestApplyInitialPassesAreSeparate(t *testing.T) {
	tbl := New(8, quietLog())
	native := newRec()
	exp := newRec()
	_, err := tbl.AddAll([]Descriptor{
		Native(1, Caps{}, native),
		Indirect(10, Caps{}, exp),
		Native(2, Caps{}, native),
	})
	require.NoError(t, err)
	require.NoError(t, tbl.SetInitial(0, true))
	require.NoError(t, tbl.SetInitial(1, true))

	require.NoError(t, tbl.ApplyInitial(false))
	assert.Equal(t, []uint8{1, 2}, native.order)
	assert.Empty(t, exp.order)
	assert.True(t, native.levels[1])
	assert.False(t, native.levels[2])

	require.NoError(t, tbl.ApplyInitial(true))
	assert.Equal(t, []uint8{10}, exp.order)

	exp.failSet = true
	err = tbl.ApplyInitial(true)
	require.Error(t, err)
	assert.Equal(t, errcode.IOError, errcode.Of(err))
}

func TestProvidersAreDistinctInIndexOrder(t *testing.T) {
	tbl := New(8, quietLog())
	a, b := newRec(), newRec()
	_, err := tbl.AddAll([]Descriptor{Native(0, Caps{}, a), Indirect(0, Caps{}, b), Native(1, Caps{}, a)})
	require.NoError(t, err)
	got := tbl.Providers()
	require.Len(t, got, 2)
	assert.Same(t, a, got[0])
	assert.Same(t, b, got[1])
}

func TestInvariantsUnderRandomOps(t *testing.T) {
	tbl := New(16, quietLog())
	p := newRec()
	rng := rand.New(rand.NewSource(3))
	for step := 0; step < 3000; step++ {
		switch rng.Intn(5) {
		case 0:
			_, _ = tbl.Add(Native(uint8(rng.Intn(40)), Caps{}, p))
		case 1:
			_ = tbl.Put(rng.Intn(20)-2, Native(1, Caps{}, p), rng.Intn(2) == 0)
		case 2, 3:
			_, _ = tbl.Use(rng.Intn(20))
		case 4:
			if rng.Intn(50) == 0 {
				tbl.Reset()
			}
		}
		require.LessOrEqual(t, tbl.Used(), tbl.Provided())
		for i := 0; i < tbl.Capacity(); i++ {
			if tbl.slots[i].ok {
				require.Less(t, i, tbl.Provided())
			}
		}
	}
}

func TestResetClearsCounters(t *testing.T) {
	tbl := New(4, quietLog())
	_, err := tbl.Add(Native(0, Caps{}, newRec()))
	require.NoError(t, err)
	_, err = tbl.Use(0)
	require.NoError(t, err)
	tbl.Reset()
	assert.Equal(t, 0, tbl.Provided())
	assert.Equal(t, 0, tbl.Used())
	_, ok := tbl.Get(0)
	assert.False(t, ok)
}

func TestDescriptorString(t *testing.T) {
	d := Indirect(4, Caps{PWM: true}, nil)
	assert.Equal(t, "Descriptor(indirect=true, id=4, analog=false, pwm=true, input_only=false)", d.String())
	assert.Equal(t, "input_pullup", ModeInputPullUp.String())
}
