// Package resource brokers shared peripherals (UART, SPI, I2C, PWM, CAN) as
// usage-counted capacity slots.
package resource

import "strconv"

type Type uint8

const (
	UART Type = iota
	SPI
	I2C
	PWM
	CAN
)

func (t Type) String() string {
	switch t {
	case UART:
		return "uart"
	case SPI:
		return "spi"
	case I2C:
		return "i2c"
	case PWM:
		return "pwm"
	case CAN:
		return "can"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// Resource is one shared peripheral instance. Concrete cores embed Counter
// and add their type-specific begin/send/receive calls.
type Resource interface {
	Type() Type
	// RequestUsage increments the usage count if capacity remains.
	RequestUsage() bool
	// Release gives back every usage; release is voluntary and all-or-nothing.
	Release()
	Usages() int
	// MaxUsages is the concurrent-user limit; 0 means unbounded.
	MaxUsages() int
	InUse() bool
	// Reset zeroes the usage count and returns the peripheral to its
	// power-on state.
	Reset() error
}

// Counter implements the usage accounting part of Resource.
type Counter struct {
	usages int
	max    int
}

// NewCounter returns a counter allowing max concurrent users (0 = unbounded).
func NewCounter(max int) Counter {
	if max < 0 {
		max = 0
	}
	return Counter{max: max}
}

func (c *Counter) RequestUsage() bool {
	if c.max > 0 && c.usages >= c.max {
		return false
	}
	c.usages++
	return true
}

func (c *Counter) Release() { c.usages = 0 }

func (c *Counter) Usages() int    { return c.usages }
func (c *Counter) MaxUsages() int { return c.max }
func (c *Counter) InUse() bool    { return c.usages > 0 }

// Remaining reports free usages, or -1 when unbounded.
func (c *Counter) Remaining() int {
	if c.max == 0 {
		return -1
	}
	return c.max - c.usages
}

// ResetUsage zeroes the counter. Cores call it from their Reset.
func (c *Counter) ResetUsage() { c.usages = 0 }
