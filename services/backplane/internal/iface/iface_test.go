package iface

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backplane-go/errcode"
)

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestStartsInvalid(t *testing.T) {
	all := []Interface{
		NewDigitalInput("I1"),
		NewDigitalOutput("Q1"),
		NewRelay("RQ1"),
		NewAnalogInput("AI1", Res12, quietLog()),
		NewAnalogOutput("AQ1", Res10, quietLog()),
		NewBus("CAN1", "can"),
	}
	for _, i := range all {
		assert.False(t, i.Valid(), i.Name())
		_, err := i.Read()
		assert.ErrorIs(t, err, errcode.InterfaceInvalid, i.Name())
	}
}

func TestValidateInvalidate(t *testing.T) {
	d := NewDigitalOutput("Q1")
	require.ErrorIs(t, d.Write(1), errcode.InterfaceInvalid)
	assert.Equal(t, uint32(0), d.Q(), "refused write must not store")

	d.Validate()
	assert.True(t, d.Valid())
	require.NoError(t, d.Write(7))
	assert.Equal(t, uint32(1), d.Q())
	assert.True(t, d.State())

	d.Invalidate()
	assert.False(t, d.Valid())
	require.ErrorIs(t, d.SetState(false), errcode.InterfaceInvalid)
	assert.True(t, d.State(), "last known value is kept")

	d.Reset()
	assert.False(t, d.Valid())
	assert.Equal(t, uint32(0), d.Q())
}

func TestDigitalUpdateIgnoresValidity(t *testing.T) {
	d := NewDigitalInput("I1")
	d.Update(3)
	assert.Equal(t, uint32(1), d.Q())
	d.SetPull(PullUp)
	assert.Equal(t, PullUp, d.Pull())
	assert.Equal(t, DigitalInput, d.Kind())
}

func TestAnalogClampsWithWarning(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	for _, res := range []Resolution{Res8, Res10, Res12, Res16} {
		a := NewAnalogOutput("AQ1", res, log)
		a.Validate()
		max := uint32(1)<<res - 1
		require.Equal(t, max, a.Max())

		require.NoError(t, a.Write(max))
		assert.Equal(t, max, a.Q())

		buf.Reset()
		require.NoError(t, a.Write(max+1), "overrange is clamped, not rejected")
		assert.Equal(t, max, a.Q())
		assert.Contains(t, buf.String(), "analog value clamped")

		a.Update(1 << 20)
		assert.Equal(t, max, a.Q())
	}
}

func TestAnalogDefaultResolution(t *testing.T) {
	a := NewAnalogInput("AI1", 0, nil)
	assert.Equal(t, Res12, a.Resolution())
}

type loopEP struct {
	sent [][]byte
	in   []byte
}

func (e *loopEP) Send(p []byte) error {
	e.sent = append(e.sent, append([]byte(nil), p...))
	return nil
}

func (e *loopEP) Receive(p []byte) (int, error) {
	n := copy(p, e.in)
	e.in = e.in[n:]
	return n, nil
}

func TestBusSendReceive(t *testing.T) {
	b := NewBus("UART1", "uart")
	assert.ErrorIs(t, b.Send([]byte{1}), errcode.InterfaceInvalid)

	b.Validate()
	assert.ErrorIs(t, b.Send([]byte{1}), errcode.NotBound)

	ep := &loopEP{in: []byte("hi")}
	b.Bind(ep)
	require.NoError(t, b.Send([]byte{1, 2}))
	assert.Equal(t, uint32(1), b.Q())
	assert.Equal(t, [][]byte{{1, 2}}, ep.sent)

	buf := make([]byte, 8)
	n, err := b.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))

	assert.ErrorIs(t, b.Write(1), errcode.Unsupported)
	assert.Equal(t, "uart", b.Proto())

	b.Reset()
	assert.False(t, b.Bound())
	assert.False(t, b.Valid())
}

func TestRenameAndKinds(t *testing.T) {
	r := NewRelay("RQ1")
	r.Rename("pump")
	assert.Equal(t, "pump", r.Name())
	assert.True(t, Relay.Output())
	assert.False(t, AnalogInput.Output())
	assert.Equal(t, "analog_output", AnalogOutput.String())
}
