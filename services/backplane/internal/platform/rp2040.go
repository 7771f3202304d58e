//go:build rp2040

package platform

import (
	"log/slog"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/gpiotable"
	"backplane-go/services/backplane/internal/logx"
)

// openRP2040 configures I2C0, SPI0 and UART0 on their default pins. PWM and
// CAN are not wired on this board.
func openRP2040(log *slog.Logger) (*Board, error) {
	log = logx.Named(log, "platform")
	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	}); err != nil {
		return nil, errcode.Wrap(errcode.IOError, "i2c0 configure", err)
	}

	spi := machine.SPI0
	if err := spi.Configure(machine.SPIConfig{Frequency: 1 * machine.MHz, Mode: 0}); err != nil {
		return nil, errcode.Wrap(errcode.IOError, "spi0 configure", err)
	}

	u := uartx.UART0
	if err := u.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	}); err != nil {
		log.Warn("uart0 configure failed", "err", err)
	}

	return &Board{
		Name: "rp2040",
		Pins: rp2Pins{},
		I2C:  &rp2I2C{bus: i2c},
		SPI:  spi,
		UART: &rp2UART{u: u},
	}, nil
}

type rp2Pins struct{}

func (rp2Pins) Configure(n uint8, mode gpiotable.Mode) error {
	var m machine.PinMode
	switch mode {
	case gpiotable.ModeOutput:
		m = machine.PinOutput
	case gpiotable.ModeInputPullUp:
		m = machine.PinInputPullup
	case gpiotable.ModeInputPullDown:
		m = machine.PinInputPulldown
	default:
		m = machine.PinInput
	}
	machine.Pin(n).Configure(machine.PinConfig{Mode: m})
	return nil
}

func (rp2Pins) Set(n uint8, level bool) error {
	machine.Pin(n).Set(level)
	return nil
}

func (rp2Pins) Get(n uint8) (bool, error) { return machine.Pin(n).Get(), nil }

type rp2I2C struct{ bus *machine.I2C }

func (b *rp2I2C) Tx(addr uint16, w, r []byte) error { return b.bus.Tx(addr, w, r) }

func (b *rp2I2C) SetFrequency(hz uint32) error { return b.bus.SetBaudRate(hz) }

// rp2UART adapts uartx to the core's buffered port.
type rp2UART struct{ u *uartx.UART }

func (p *rp2UART) Write(b []byte) (int, error) { return p.u.Write(b) }
func (p *rp2UART) Read(b []byte) (int, error)  { return p.u.Read(b) }
func (p *rp2UART) Buffered() int               { return p.u.Buffered() }
func (p *rp2UART) SetBaudRate(br uint32)       { p.u.SetBaudRate(br) }
