// Package busmod is the bus adapter module. It borrows no lines; it exposes
// the shared UART and I2C cores as bus interfaces for external devices.
package busmod

import (
	"errors"
	"log/slog"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/core"
	"backplane-go/services/backplane/internal/cores"
	"backplane-go/services/backplane/internal/iface"
	"backplane-go/services/backplane/internal/logx"
	"backplane-go/services/backplane/internal/registry"
	"backplane-go/services/backplane/internal/resource"
	"backplane-go/x/shmring"
)

const (
	Kind          = "busmod"
	DefaultBaud   = 9600
	DefaultRxSize = 256
)

type Params struct {
	Baud uint32 `yaml:"baud"`
	// RxBuffer is the UART receive ring size in bytes, a power of two.
	RxBuffer int `yaml:"rx_buffer"`
}

type Module struct {
	core.Base
	baud uint32
	log  *slog.Logger
	rx   *shmring.Ring

	uartCore *cores.UART
	i2cCore  *cores.I2C
	uart     *iface.BusPoint
	i2c      *iface.BusPoint

	// OnCycle, when set, runs every scan tick with the module's response
	// buffer.
	OnCycle func(resp []byte) error
}

// New panics if p.RxBuffer is set and not a power of two; the builder
// rejects that case with errcode.InvalidParams.
func New(p Params, log *slog.Logger) *Module {
	if p.Baud == 0 {
		p.Baud = DefaultBaud
	}
	if p.RxBuffer == 0 {
		p.RxBuffer = DefaultRxSize
	}
	return &Module{baud: p.Baud, log: logx.Named(log, Kind), rx: shmring.New(p.RxBuffer)}
}

func init() {
	registry.RegisterBuilder(Kind, registry.BuilderFunc(func(in registry.BuildInput) (core.Module, error) {
		var p Params
		if err := in.Decode(&p); err != nil {
			return nil, err
		}
		if n := p.RxBuffer; n != 0 && (n < 2 || n&(n-1) != 0) {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "build", Msg: "busmod rx_buffer must be a power of two"}
		}
		return New(p, in.Log), nil
	}))
}

// uartEndpoint sends straight to the core. Received bytes come from the ring
// that Cycle fills, so readers never touch the port.
type uartEndpoint struct {
	core *cores.UART
	rx   *shmring.Ring
}

func (e uartEndpoint) Send(p []byte) error { return e.core.Send(p) }

func (e uartEndpoint) Receive(p []byte) (int, error) { return e.rx.TryRead(p), nil }

func (m *Module) Info() core.Info {
	return core.Info{Kind: Kind, HWType: 5, HWVersion: "1.0", FWVersion: "1.0"}
}

// RequestResources takes the UART for exclusive use and a share of I2C. A
// missing core only costs its interface.
func (m *Module) RequestResources(env *core.Env) error {
	var errs []error
	if u, ok := resource.AcquireAs[*cores.UART](env.Pool, resource.UART); ok {
		m.uartCore = u
	} else {
		errs = append(errs, &errcode.E{C: errcode.NoResource, Op: "request", Msg: "uart"})
	}
	if c, ok := resource.AcquireAs[*cores.I2C](env.Pool, resource.I2C); ok {
		m.i2cCore = c
	} else {
		errs = append(errs, &errcode.E{C: errcode.NoResource, Op: "request", Msg: "i2c"})
	}
	return errors.Join(errs...)
}

func (m *Module) AddInterfaces(*core.Env) error {
	m.uart = iface.NewBus("UART1", "uart")
	if m.uartCore != nil {
		m.uart.Bind(uartEndpoint{core: m.uartCore, rx: m.rx})
	}
	m.i2c = iface.NewBus("I2C1", "i2c")
	if m.i2cCore != nil {
		m.i2c.Bind(m.i2cCore.Endpoint())
	}
	m.AddInterface(m.uart)
	m.AddInterface(m.i2c)
	return nil
}

// PreInitialize begins both buses; each interface is validated only once its
// core is running.
func (m *Module) PreInitialize(*core.Env) error {
	var errs []error
	if m.uartCore != nil {
		if err := m.uartCore.Begin(m.baud); err != nil {
			m.uart.Invalidate()
			errs = append(errs, err)
		} else {
			m.uart.Validate()
		}
	} else {
		m.log.Warn("uart interface unbound, skipping")
	}
	if m.i2cCore != nil {
		if err := m.i2cCore.Begin(); err != nil {
			m.i2c.Invalidate()
			errs = append(errs, err)
		} else {
			m.i2c.Validate()
		}
	} else {
		m.log.Warn("i2c interface unbound, skipping")
	}
	return errors.Join(errs...)
}

// Cycle moves pending UART input into the receive ring, then runs OnCycle.
// Input that does not fit stays in the port until a reader makes room.
// resp[0] is the ring fill, saturated at 255; resp[1] is set while the ring
// is full.
func (m *Module) Cycle(resp []byte) error {
	if m.uartCore != nil && m.uart.Valid() {
		var chunk [64]byte
		for m.rx.Space() > 0 {
			n, err := m.uartCore.Receive(chunk[:min(len(chunk), m.rx.Space())])
			if err != nil {
				return &errcode.E{C: errcode.IOError, Op: "cycle", Msg: "uart receive", Err: err}
			}
			if n == 0 {
				break
			}
			m.rx.TryWrite(chunk[:n])
		}
		resp[0] = byte(min(m.rx.Available(), 255))
		if m.rx.Space() == 0 {
			resp[1] = 1
		}
	}
	if m.OnCycle == nil {
		return nil
	}
	return m.OnCycle(resp)
}

// Pending is the number of received bytes waiting in the ring.
func (m *Module) Pending() int { return m.rx.Available() }

// UART returns the UART bus interface.
func (m *Module) UART() *iface.BusPoint { return m.uart }

// I2C returns the I2C bus interface.
func (m *Module) I2C() *iface.BusPoint { return m.i2c }

func (m *Module) Reset() error {
	m.uartCore, m.i2cCore = nil, nil
	m.uart, m.i2c = nil, nil
	m.OnCycle = nil
	m.rx.Reset()
	return nil
}
