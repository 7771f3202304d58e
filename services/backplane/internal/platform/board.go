// Package platform opens the hardware a backplane controller runs on: native
// pins, the shared I2C and SPI masters, a UART, a CAN controller and the PWM
// timer block. Modules never open hardware themselves; the mainboard wraps
// what a Board exposes into providers and cores.
package platform

import (
	"log/slog"

	"tinygo.org/x/drivers"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/cores"
	"backplane-go/services/backplane/internal/gpiotable"
)

// PinBank is the controller's native GPIO.
type PinBank interface {
	Configure(pin uint8, mode gpiotable.Mode) error
	Set(pin uint8, level bool) error
	Get(pin uint8) (bool, error)
}

// Board is the hardware handed to the module builders. Any field except Pins
// may be nil when the platform lacks that peripheral.
type Board struct {
	Name string
	Pins PinBank
	I2C  drivers.I2C
	SPI  drivers.SPI
	UART cores.UARTPort
	CAN  cores.CANPort
	PWM  cores.PWMHardware

	closers []func() error
}

// Close releases whatever the platform opened.
func (b *Board) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// PeriphConfig names the Linux devices used by the periph board. Empty names
// pick the first registered bus or port.
type PeriphConfig struct {
	I2CBus  string
	SPIPort string
	SPIHz   uint32
}

// Open returns the board for name: "sim", "periph" or "rp2040".
func Open(name string, pc PeriphConfig, log *slog.Logger) (*Board, error) {
	switch name {
	case "", "sim":
		return NewSim().Board(), nil
	case "periph":
		return openPeriph(pc, log)
	case "rp2040":
		return openRP2040(log)
	default:
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "platform open", Msg: "unknown platform " + name}
	}
}
