//go:build linux && !tinygo

package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/gpiotable"
	"backplane-go/services/backplane/internal/logx"
	"backplane-go/x/mathx"
)

// openPeriph opens a Linux single-board computer through periph.io. Pins are
// addressed by BCM number ("GPIO<n>"). The board has no UART or CAN.
func openPeriph(pc PeriphConfig, log *slog.Logger) (*Board, error) {
	log = logx.Named(log, "platform")
	if _, err := host.Init(); err != nil {
		return nil, errcode.Wrap(errcode.IOError, "periph host init", err)
	}
	pins := &periphPins{pins: map[uint8]gpio.PinIO{}}
	b := &Board{Name: "periph", Pins: pins, PWM: &periphPWM{pins: pins, cfg: map[uint8]pwmCfg{}}}

	bus, err := i2creg.Open(pc.I2CBus)
	if err != nil {
		log.Warn("no i2c bus", "name", pc.I2CBus, "err", err)
	} else {
		b.I2C = &periphI2C{bus: bus}
		b.closers = append(b.closers, bus.Close)
	}

	port, err := spireg.Open(pc.SPIPort)
	if err != nil {
		log.Warn("no spi port", "name", pc.SPIPort, "err", err)
		return b, nil
	}
	hz := pc.SPIHz
	if hz == 0 {
		hz = 1_000_000
	}
	conn, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		_ = b.Close()
		return nil, errcode.Wrap(errcode.IOError, "spi connect", err)
	}
	b.SPI = &periphSPI{conn: conn}
	b.closers = append(b.closers, port.Close)
	return b, nil
}

type periphPins struct {
	mu   sync.Mutex
	pins map[uint8]gpio.PinIO
}

func (p *periphPins) lookup(n uint8) (gpio.PinIO, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pin, ok := p.pins[n]; ok {
		return pin, nil
	}
	pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
	if pin == nil {
		return nil, errcode.InvalidDescriptor
	}
	p.pins[n] = pin
	return pin, nil
}

func (p *periphPins) Configure(n uint8, mode gpiotable.Mode) error {
	pin, err := p.lookup(n)
	if err != nil {
		return err
	}
	switch mode {
	case gpiotable.ModeOutput:
		return pin.Out(gpio.Low)
	case gpiotable.ModeInputPullUp:
		return pin.In(gpio.PullUp, gpio.NoEdge)
	case gpiotable.ModeInputPullDown:
		return pin.In(gpio.PullDown, gpio.NoEdge)
	default:
		return pin.In(gpio.Float, gpio.NoEdge)
	}
}

func (p *periphPins) Set(n uint8, level bool) error {
	pin, err := p.lookup(n)
	if err != nil {
		return err
	}
	return pin.Out(gpio.Level(level))
}

func (p *periphPins) Get(n uint8) (bool, error) {
	pin, err := p.lookup(n)
	if err != nil {
		return false, err
	}
	return pin.Read() == gpio.High, nil
}

// periphI2C adds clock control to a periph bus; Tx already matches
// drivers.I2C.
type periphI2C struct {
	bus i2c.BusCloser
}

func (b *periphI2C) Tx(addr uint16, w, r []byte) error { return b.bus.Tx(addr, w, r) }

func (b *periphI2C) SetFrequency(hz uint32) error {
	return b.bus.SetSpeed(physic.Frequency(hz) * physic.Hertz)
}

type periphSPI struct {
	conn spi.Conn
	one  [2]byte
}

func (s *periphSPI) Tx(w, r []byte) error {
	if len(w) == 0 {
		// periph needs a write buffer as long as the read.
		w = make([]byte, len(r))
	}
	if len(r) > 0 && len(r) < len(w) {
		full := make([]byte, len(w))
		if err := s.conn.Tx(w, full); err != nil {
			return err
		}
		copy(r, full)
		return nil
	}
	return s.conn.Tx(w, r)
}

func (s *periphSPI) Transfer(b byte) (byte, error) {
	s.one[0] = b
	if err := s.conn.Tx(s.one[:1], s.one[1:2]); err != nil {
		return 0, err
	}
	return s.one[1], nil
}

type pwmCfg struct {
	freqHz uint32
	bits   uint8
}

// periphPWM drives pins through gpio.PinOut.PWM, which uses hardware PWM
// where the SoC has it.
type periphPWM struct {
	pins *periphPins
	cfg  map[uint8]pwmCfg
}

func (p *periphPWM) Configure(pin uint8, freqHz uint32, bits uint8) error {
	if _, err := p.pins.lookup(pin); err != nil {
		return err
	}
	p.cfg[pin] = pwmCfg{freqHz: freqHz, bits: bits}
	return nil
}

func (p *periphPWM) Set(pin uint8, duty uint32) error {
	c, ok := p.cfg[pin]
	if !ok {
		return errcode.InvalidDescriptor
	}
	io, err := p.pins.lookup(pin)
	if err != nil {
		return err
	}
	d := mathx.Rescale(duty, mathx.FullScale(c.bits), uint32(gpio.DutyMax))
	return io.PWM(gpio.Duty(d), physic.Frequency(c.freqHz)*physic.Hertz)
}
