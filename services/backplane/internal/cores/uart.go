package cores

import (
	"io"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/resource"
)

// UARTPort is a buffered serial port. Buffered reports bytes readable without
// blocking.
type UARTPort interface {
	io.ReadWriter
	Buffered() int
}

// BaudSetter is implemented by ports whose rate can be changed.
type BaudSetter interface {
	SetBaudRate(br uint32)
}

// UART is a single-user serial port.
type UART struct {
	resource.Counter
	port UARTPort
	baud uint32
}

var _ resource.Resource = (*UART)(nil)

func NewUART(port UARTPort) *UART {
	return &UART{Counter: resource.NewCounter(1), port: port, baud: 115200}
}

func (c *UART) Type() resource.Type { return resource.UART }
func (c *UART) Baud() uint32        { return c.baud }

func (c *UART) Begin(baud uint32) error {
	if c.port == nil {
		return errcode.NotBound
	}
	if baud != 0 {
		c.baud = baud
	}
	if bs, ok := c.port.(BaudSetter); ok {
		bs.SetBaudRate(c.baud)
	}
	return nil
}

func (c *UART) Send(p []byte) error {
	if c.port == nil {
		return errcode.NotBound
	}
	_, err := c.port.Write(p)
	return err
}

// Receive never blocks: it reads at most what is already buffered.
func (c *UART) Receive(p []byte) (int, error) {
	if c.port == nil {
		return 0, errcode.NotBound
	}
	n := c.port.Buffered()
	if n == 0 {
		return 0, nil
	}
	if n < len(p) {
		p = p[:n]
	}
	return c.port.Read(p)
}

func (c *UART) Reset() error {
	c.ResetUsage()
	return nil
}
