// Package cores holds the concrete shared peripherals that modules register
// into the resource pool.
package cores

import (
	"tinygo.org/x/drivers"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/resource"
)

// DefaultI2CHz is used until a user asks for something slower.
const DefaultI2CHz = 400_000

// FrequencySetter is implemented by buses whose clock can be changed after
// construction.
type FrequencySetter interface {
	SetFrequency(hz uint32) error
}

// I2C is a shared I2C master. Any number of modules may use it; the bus runs
// at the lowest frequency any of them requested.
type I2C struct {
	resource.Counter
	bus   drivers.I2C
	hz    uint32
	begun bool
}

var (
	_ resource.Resource = (*I2C)(nil)
	_ drivers.I2C       = (*I2C)(nil)
)

func NewI2C(bus drivers.I2C) *I2C {
	return &I2C{Counter: resource.NewCounter(0), bus: bus, hz: DefaultI2CHz}
}

func (c *I2C) Type() resource.Type { return resource.I2C }

// SetMaxFrequency lowers the bus clock to hz if it is below the current one.
// Takes effect on the next Begin.
func (c *I2C) SetMaxFrequency(hz uint32) {
	if hz > 0 && hz < c.hz {
		c.hz = hz
	}
}

func (c *I2C) Frequency() uint32 { return c.hz }
func (c *I2C) Begun() bool       { return c.begun }

// Begin applies the negotiated clock. Calling it again is harmless.
func (c *I2C) Begin() error {
	if c.bus == nil {
		return errcode.NotBound
	}
	if fs, ok := c.bus.(FrequencySetter); ok {
		if err := fs.SetFrequency(c.hz); err != nil {
			return errcode.Wrap(errcode.IOError, "i2c begin", err)
		}
	}
	c.begun = true
	return nil
}

// Tx implements drivers.I2C.
func (c *I2C) Tx(addr uint16, w, r []byte) error {
	if c.bus == nil {
		return errcode.NotBound
	}
	return c.bus.Tx(addr, w, r)
}

func (c *I2C) Reset() error {
	c.ResetUsage()
	c.hz = DefaultI2CHz
	c.begun = false
	return nil
}

// Endpoint exposes the bus as a bus interface transport. A sent frame starts
// with the 7-bit target address; Receive reads from the last addressed target.
func (c *I2C) Endpoint() *I2CEndpoint { return &I2CEndpoint{c: c} }

type I2CEndpoint struct {
	c    *I2C
	addr uint16
}

func (e *I2CEndpoint) Send(p []byte) error {
	if len(p) == 0 {
		return errcode.InvalidParams
	}
	e.addr = uint16(p[0])
	return e.c.Tx(e.addr, p[1:], nil)
}

func (e *I2CEndpoint) Receive(p []byte) (int, error) {
	if e.addr == 0 || len(p) == 0 {
		return 0, nil
	}
	if err := e.c.Tx(e.addr, nil, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
