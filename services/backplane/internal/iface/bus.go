package iface

import "backplane-go/errcode"

// Endpoint is the transport behind a bus interface, typically a UART, CAN or
// I2C core.
type Endpoint interface {
	Send(p []byte) error
	// Receive copies at most len(p) bytes of pending input into p.
	Receive(p []byte) (int, error)
}

// BusPoint exposes send/receive instead of a scalar. Q counts frames sent.
type BusPoint struct {
	point
	proto string
	ep    Endpoint
}

// NewBus returns an unbound bus interface; proto is "can", "uart" or "i2c".
func NewBus(name, proto string) *BusPoint {
	return &BusPoint{point: newPoint(name, Bus), proto: proto}
}

func (b *BusPoint) Proto() string { return b.proto }

// Bind attaches the transport. The owning module validates afterwards.
func (b *BusPoint) Bind(ep Endpoint) { b.ep = ep }

func (b *BusPoint) Bound() bool { return b.ep != nil }

// Write is not meaningful for a bus.
func (b *BusPoint) Write(uint32) error { return errcode.Unsupported }

func (b *BusPoint) Update(v uint32) { b.q = v }

func (b *BusPoint) Send(p []byte) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.ep == nil {
		return errcode.NotBound
	}
	if err := b.ep.Send(p); err != nil {
		return err
	}
	b.q++
	return nil
}

func (b *BusPoint) Receive(p []byte) (int, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	if b.ep == nil {
		return 0, errcode.NotBound
	}
	return b.ep.Receive(p)
}

func (b *BusPoint) Reset() {
	b.point.Reset()
	b.ep = nil
}
