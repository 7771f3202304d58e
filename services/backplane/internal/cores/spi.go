package cores

import (
	"tinygo.org/x/drivers"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/resource"
)

// SPI is a shared SPI master. Device selection is done by the modules through
// their chip-select lines, so any number of users can share it.
type SPI struct {
	resource.Counter
	bus drivers.SPI
}

var (
	_ resource.Resource = (*SPI)(nil)
	_ drivers.SPI       = (*SPI)(nil)
)

func NewSPI(bus drivers.SPI) *SPI {
	return &SPI{Counter: resource.NewCounter(0), bus: bus}
}

func (c *SPI) Type() resource.Type { return resource.SPI }

func (c *SPI) Tx(w, r []byte) error {
	if c.bus == nil {
		return errcode.NotBound
	}
	return c.bus.Tx(w, r)
}

func (c *SPI) Transfer(b byte) (byte, error) {
	if c.bus == nil {
		return 0, errcode.NotBound
	}
	return c.bus.Transfer(b)
}

func (c *SPI) Reset() error {
	c.ResetUsage()
	return nil
}
