package cores

import (
	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/resource"
)

// Frame is a classic CAN data frame.
type Frame struct {
	ID   uint32
	Data [8]byte
	Len  uint8
}

func (f Frame) Payload() []byte { return f.Data[:f.Len] }

// CANPort is a CAN controller.
type CANPort interface {
	Configure(bitrate uint32) error
	Tx(f Frame) error
	// Rx returns the next pending frame without blocking.
	Rx() (Frame, bool, error)
}

// CAN is a single-user CAN controller.
type CAN struct {
	resource.Counter
	port    CANPort
	bitrate uint32
	begun   bool
}

var _ resource.Resource = (*CAN)(nil)

func NewCAN(port CANPort) *CAN {
	return &CAN{Counter: resource.NewCounter(1), port: port, bitrate: 500_000}
}

func (c *CAN) Type() resource.Type { return resource.CAN }
func (c *CAN) Bitrate() uint32     { return c.bitrate }

func (c *CAN) Begin(bitrate uint32) error {
	if c.port == nil {
		return errcode.NotBound
	}
	if bitrate != 0 {
		c.bitrate = bitrate
	}
	if err := c.port.Configure(c.bitrate); err != nil {
		return errcode.Wrap(errcode.IOError, "can begin", err)
	}
	c.begun = true
	return nil
}

func (c *CAN) Send(f Frame) error {
	if !c.begun {
		return errcode.NotBound
	}
	return c.port.Tx(f)
}

func (c *CAN) Receive() (Frame, bool, error) {
	if !c.begun {
		return Frame{}, false, errcode.NotBound
	}
	return c.port.Rx()
}

func (c *CAN) Reset() error {
	c.ResetUsage()
	c.begun = false
	return nil
}

// Endpoint adapts the controller to a byte-oriented bus interface. Sent
// payloads go out under id; received frames are delivered payload only.
func (c *CAN) Endpoint(id uint32) *CANEndpoint { return &CANEndpoint{c: c, id: id} }

type CANEndpoint struct {
	c  *CAN
	id uint32
}

func (e *CANEndpoint) Send(p []byte) error {
	if len(p) > 8 {
		return errcode.InvalidParams
	}
	f := Frame{ID: e.id, Len: uint8(len(p))}
	copy(f.Data[:], p)
	return e.c.Send(f)
}

func (e *CANEndpoint) Receive(p []byte) (int, error) {
	f, ok, err := e.c.Receive()
	if err != nil || !ok {
		return 0, err
	}
	return copy(p, f.Payload()), nil
}
