// Package mainboard is the controller board. It owns every native backplane
// pin plus the expander bits, and every shared peripheral; other modules
// reach them only through the output table and the resource pool.
package mainboard

import (
	"errors"
	"log/slog"

	"backplane-go/drivers/mcp23017"
	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/core"
	"backplane-go/services/backplane/internal/cores"
	"backplane-go/services/backplane/internal/gpiotable"
	"backplane-go/services/backplane/internal/iface"
	"backplane-go/services/backplane/internal/logx"
	"backplane-go/services/backplane/internal/platform"
	"backplane-go/services/backplane/internal/registry"
	"backplane-go/services/backplane/internal/resource"
)

const (
	Kind       = "mainboard"
	GPIOSupply = 25

	// ExpanderAddr is the MCP23017 address on the board I2C bus.
	ExpanderAddr = 0x27
	expanderHz   = 400_000

	bitLEDWarning    = 0
	bitLEDError      = 1
	bitGeneralEnable = 8
)

// Backplane order: 12 PWM-capable controller pins, then 13 expander bits.
var (
	nativePins   = [...]uint8{23, 19, 32, 15, 33, 2, 25, 0, 26, 4, 27, 5}
	expanderBits = [...]uint8{15, 2, 14, 3, 13, 4, 12, 5, 11, 6, 10, 7, 9}
)

type Params struct {
	CANBitrate uint32 `yaml:"can_bitrate"`
	CANID      uint32 `yaml:"can_id"`
	PWMHz      uint32 `yaml:"pwm_hz"`
	PWMBits    uint8  `yaml:"pwm_bits"`
}

func (p *Params) defaults() {
	if p.CANBitrate == 0 {
		p.CANBitrate = 500_000
	}
	if p.CANID == 0 {
		p.CANID = 0x100
	}
	if p.PWMHz == 0 {
		p.PWMHz = 1000
	}
	if p.PWMBits == 0 {
		p.PWMBits = 12
	}
}

type Module struct {
	core.Base
	board *platform.Board
	p     Params
	log   *slog.Logger

	native *nativeProvider
	exp    *expanderProvider
	descs  []gpiotable.Descriptor

	i2c  *cores.I2C
	spi  *cores.SPI
	uart *cores.UART
	pwm  *cores.PWM
	can  *cores.CAN

	busI2C *cores.I2C
	canBus *cores.CAN
	can1   *iface.BusPoint
}

func New(board *platform.Board, p Params, log *slog.Logger) *Module {
	p.defaults()
	return &Module{board: board, p: p, log: logx.Named(log, Kind)}
}

func init() {
	registry.RegisterBuilder(Kind, registry.BuilderFunc(func(in registry.BuildInput) (core.Module, error) {
		var p Params
		if err := in.Decode(&p); err != nil {
			return nil, err
		}
		if in.Board == nil || in.Board.Pins == nil {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "build", Msg: Kind + " needs a board with pins"}
		}
		return New(in.Board, p, in.Log), nil
	}))
}

func (m *Module) Info() core.Info {
	return core.Info{
		Kind:       Kind,
		HWType:     1,
		HWVersion:  "1.0",
		FWVersion:  "1.0",
		GPIOSupply: GPIOSupply,
	}
}

func (m *Module) ProvideGPIOs(env *core.Env) error {
	if m.board.PWM != nil {
		m.pwm = cores.NewPWM(m.board.PWM)
	}
	m.native = &nativeProvider{pins: m.board.Pins, pwm: m.pwm}
	if m.board.I2C != nil {
		m.i2c = cores.NewI2C(m.board.I2C)
		dev := mcp23017.New(m.i2c)
		dev.Address = ExpanderAddr
		m.exp = &expanderProvider{dev: dev, log: m.log}
	}

	m.descs = m.descs[:0]
	for _, pin := range nativePins {
		m.descs = append(m.descs, gpiotable.Native(pin, gpiotable.Caps{PWM: true}, m.native))
	}
	if m.exp == nil {
		m.log.Warn("no i2c bus, expander outputs unavailable")
	} else {
		for _, bit := range expanderBits {
			m.descs = append(m.descs, gpiotable.Indirect(bit, gpiotable.Caps{}, m.exp))
		}
	}
	_, err := env.Table.AddAll(m.descs)
	return err
}

func (m *Module) ProvideResources(env *core.Env) error {
	var errs []error
	register := func(r resource.Resource) {
		if err := env.Pool.Register(r); err != nil {
			errs = append(errs, err)
		}
	}
	if m.i2c != nil {
		m.i2c.SetMaxFrequency(expanderHz)
		register(m.i2c)
	}
	if m.board.SPI != nil {
		m.spi = cores.NewSPI(m.board.SPI)
		register(m.spi)
	}
	if m.board.UART != nil {
		m.uart = cores.NewUART(m.board.UART)
		register(m.uart)
	}
	if m.pwm != nil {
		register(m.pwm)
	}
	if m.board.CAN != nil {
		m.can = cores.NewCAN(m.board.CAN)
		register(m.can)
	}
	return errors.Join(errs...)
}

func (m *Module) RequestResources(env *core.Env) error {
	var errs []error
	if m.exp != nil {
		bus, ok := resource.AcquireAs[*cores.I2C](env.Pool, resource.I2C)
		if !ok {
			errs = append(errs, &errcode.E{C: errcode.NoResource, Op: "request", Msg: "i2c"})
		}
		m.busI2C = bus
	}
	can, ok := resource.AcquireAs[*cores.CAN](env.Pool, resource.CAN)
	if !ok {
		errs = append(errs, &errcode.E{C: errcode.NoResource, Op: "request", Msg: "can"})
	}
	m.canBus = can
	return errors.Join(errs...)
}

func (m *Module) AddInterfaces(*core.Env) error {
	m.can1 = iface.NewBus("CAN1", "can")
	if m.canBus != nil {
		m.can1.Bind(m.canBus.Endpoint(m.p.CANID))
		m.can1.Validate()
	}
	m.AddInterface(m.can1)
	return nil
}

// PreInitialize brings up I2C and the expander so that indirect initial
// levels can be applied, then configures every owned line as an output.
func (m *Module) PreInitialize(*core.Env) error {
	if m.exp == nil {
		return m.configureOutputs()
	}
	if m.busI2C == nil {
		return errcode.NoResource
	}
	if err := m.busI2C.Begin(); err != nil {
		return err
	}
	if err := m.exp.start(); err != nil {
		return err
	}
	for _, bit := range []uint8{bitLEDWarning, bitLEDError, bitGeneralEnable} {
		if err := m.exp.dev.SetDirection(bit, false); err != nil {
			return err
		}
	}
	return m.configureOutputs()
}

func (m *Module) configureOutputs() error {
	var errs []error
	for _, d := range m.descs {
		if err := d.Provider().Configure(d, gpiotable.ModeOutput); err != nil {
			m.log.Error("configure output failed", "descriptor", d.String(), "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Module) Initialize(*core.Env) error {
	var errs []error
	// The UART user picked the baud rate when it began the port.
	if m.uart != nil && m.uart.InUse() {
		if err := m.uart.Begin(0); err != nil {
			errs = append(errs, err)
		}
	}
	if m.pwm != nil {
		if err := m.pwm.Begin(m.p.PWMHz, m.p.PWMBits); err != nil {
			errs = append(errs, err)
		}
	}
	if m.canBus != nil {
		if err := m.canBus.Begin(m.p.CANBitrate); err != nil {
			m.can1.Invalidate()
			errs = append(errs, err)
		}
	}
	if m.exp != nil && m.exp.started {
		if err := m.exp.dev.Set(bitLEDError, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Cycle reports the expander latch in the first two response bytes.
func (m *Module) Cycle(resp []byte) error {
	if m.exp == nil || !m.exp.started || len(resp) < 2 {
		return nil
	}
	l := m.exp.dev.Latch()
	resp[0], resp[1] = byte(l), byte(l>>8)
	return nil
}

// SetWarning drives the warning LED.
func (m *Module) SetWarning(on bool) error {
	if m.exp == nil || !m.exp.started {
		return errcode.NotBound
	}
	return m.exp.dev.Set(bitLEDWarning, on)
}

// Enabled reports the general output enable state.
func (m *Module) Enabled() bool { return m.exp != nil && m.exp.enabled }

func (m *Module) Reset() error {
	var err error
	if m.exp != nil {
		err = m.exp.reset()
	}
	m.native, m.exp, m.descs = nil, nil, nil
	m.i2c, m.spi, m.uart, m.pwm, m.can = nil, nil, nil, nil, nil
	m.busI2C, m.canBus, m.can1 = nil, nil, nil
	return err
}
