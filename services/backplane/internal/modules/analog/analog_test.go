package analog

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/core"
	"backplane-go/services/backplane/internal/modules/mainboard"
	"backplane-go/services/backplane/internal/platform"
	"backplane-go/services/backplane/internal/registry"
)

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// Indices 0..4 are native pins 23, 19, 32, 15 (PWM) and 33 (ADC select).
var pwmPins = [Channels]uint8{23, 19, 32, 15}

const csPin = 33

func setup(t *testing.T, b *platform.Board, p Params) (*core.System, *Module, error) {
	t.Helper()
	sys := core.NewSystem(core.Options{Logger: quietLog()})
	require.NoError(t, sys.Attach(mainboard.New(b, mainboard.Params{}, quietLog())))
	m := New(p, quietLog())
	err := sys.Attach(m)
	return sys, m, err
}

func TestOutputsDrivePWM(t *testing.T) {
	sim := platform.NewSim()
	sys, m, err := setup(t, sim.Board(), Params{Resolution: 12})
	require.NoError(t, err)
	require.NoError(t, sys.Initialize())
	assert.Equal(t, GPIODemand, sys.UsedGPIOs())

	for i, pin := range pwmPins {
		assert.Equal(t, uint8(12), sim.PWM.Bits[pin], "channel %d registered", i+1)
	}
	aq1, _ := m.Interface("AQ1")
	aq4, _ := m.Interface("AQ4")
	require.NoError(t, aq1.Write(2048))
	require.NoError(t, aq4.Write(4095))
	require.Equal(t, 0, sys.Loop())
	assert.Equal(t, uint32(2048), sim.PWM.Duty[23])
	assert.Equal(t, uint32(4095), sim.PWM.Duty[15])
	assert.Equal(t, uint32(0), sim.PWM.Duty[19])
}

func TestSlewLimitsOutputs(t *testing.T) {
	sim := platform.NewSim()
	sys, m, err := setup(t, sim.Board(), Params{Resolution: 12, SlewPerTick: 1000})
	require.NoError(t, err)
	require.NoError(t, sys.Initialize())

	aq1, _ := m.Interface("AQ1")
	require.NoError(t, aq1.Write(2500))
	var seen []uint32
	for range 4 {
		require.Equal(t, 0, sys.Loop())
		seen = append(seen, sim.PWM.Duty[23])
	}
	assert.Equal(t, []uint32{1000, 2000, 2500, 2500}, seen)
	assert.Equal(t, uint16(2500), m.Output(0))

	require.NoError(t, aq1.Write(0))
	require.Equal(t, 0, sys.Loop())
	assert.Equal(t, uint32(1500), sim.PWM.Duty[23])
}

func TestInputsReadADC(t *testing.T) {
	sim := platform.NewSim()
	adc := &platform.SimADC{Codes: [4]uint16{100, 200, 0x0ABC, 4095}}
	sim.SPI.AttachNative(csPin, adc)
	sys, m, err := setup(t, sim.Board(), Params{Resolution: 12})
	require.NoError(t, err)
	require.NoError(t, sys.Initialize())
	assert.True(t, sim.Pins.Level(csPin))

	require.Equal(t, 0, sys.Loop())
	for i, want := range adc.Codes {
		ai := m.Interfaces()[Channels+i]
		require.True(t, ai.Valid(), ai.Name())
		v, err := ai.Read()
		require.NoError(t, err)
		assert.Equal(t, uint32(want), v, ai.Name())
	}
	resp := core.State(m).Response()
	assert.Equal(t, []byte{100, 0, 200, 0, 0xBC, 0x0A, 0xFF, 0x0F}, resp)
}

func TestLowResolutionClamps(t *testing.T) {
	sim := platform.NewSim()
	sys, m, err := setup(t, sim.Board(), Params{Resolution: 8})
	require.NoError(t, err)
	require.NoError(t, sys.Initialize())

	aq2, _ := m.Interface("AQ2")
	require.NoError(t, aq2.Write(300))
	require.Equal(t, 0, sys.Loop())
	assert.Equal(t, uint32(255), sim.PWM.Duty[19])
}

func TestNoPWMDegradesOutputsOnly(t *testing.T) {
	b := platform.NewSim().Board()
	b.PWM = nil
	sys, m, err := setup(t, b, Params{Resolution: 12})
	require.ErrorIs(t, err, errcode.Degraded)
	assert.Equal(t, []core.Stage{core.StageResourcesRequested}, m.FailedStages())

	for _, i := range m.Interfaces() {
		switch i.Name()[:2] {
		case "AQ":
			assert.False(t, i.Valid(), i.Name())
		case "AI":
			assert.True(t, i.Valid(), i.Name())
		}
	}
	require.NoError(t, sys.Initialize())
	assert.Equal(t, 0, sys.Loop())
}

func TestBuilderValidatesResolution(t *testing.T) {
	mod, err := registry.Build(registry.BuildInput{Kind: Kind, Log: quietLog()})
	require.NoError(t, err)
	assert.Equal(t, GPIODemand, mod.Info().GPIODemand)

	var n yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("resolution: 10\nslew_per_tick: 64"), &n))
	mod, err = registry.Build(registry.BuildInput{Kind: Kind, Params: n, Log: quietLog()})
	require.NoError(t, err)
	assert.Equal(t, uint16(64), mod.(*Module).slew[3].Rate)

	var bad yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("resolution: 11"), &bad))
	_, err = registry.Build(registry.BuildInput{Kind: Kind, Params: bad, Log: quietLog()})
	assert.ErrorIs(t, err, errcode.InvalidParams)
}
