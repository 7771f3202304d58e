package platform

import (
	"bytes"
	"sync"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/cores"
	"backplane-go/services/backplane/internal/gpiotable"
)

// Sim is a host-side board. Every peripheral records what it was asked to do
// and can be scripted from tests.
type Sim struct {
	Pins *SimPins
	I2C  *SimI2C
	SPI  *SimSPI
	UART *SimUART
	CAN  *SimCAN
	PWM  *SimPWM
	// Expander is the MCP23017 model answering at SimExpanderAddr on I2C.
	Expander *SimMCP23017
}

// SimExpanderAddr is where the mainboard expects its MCP23017.
const SimExpanderAddr = 0x27

func NewSim() *Sim {
	pins := NewSimPins()
	exp := &SimMCP23017{}
	exp.regs[0x00], exp.regs[0x01] = 0xFF, 0xFF
	i2c := &SimI2C{devs: map[uint16]SimI2CDevice{SimExpanderAddr: exp}}
	return &Sim{
		Pins:     pins,
		I2C:      i2c,
		SPI:      &SimSPI{pins: pins, exp: exp},
		UART:     &SimUART{},
		CAN:      &SimCAN{},
		PWM:      &SimPWM{Duty: map[uint8]uint32{}, Freq: map[uint8]uint32{}, Bits: map[uint8]uint8{}},
		Expander: exp,
	}
}

// Board exposes the simulated peripherals through the Board contract.
func (s *Sim) Board() *Board {
	return &Board{
		Name: "sim",
		Pins: s.Pins,
		I2C:  s.I2C,
		SPI:  s.SPI,
		UART: s.UART,
		CAN:  s.CAN,
		PWM:  s.PWM,
	}
}

// ---- pins ----

type SimPins struct {
	mu     sync.Mutex
	levels map[uint8]bool
	modes  map[uint8]gpiotable.Mode
	// Writes counts Set calls per pin.
	Writes map[uint8]int
}

func NewSimPins() *SimPins {
	return &SimPins{levels: map[uint8]bool{}, modes: map[uint8]gpiotable.Mode{}, Writes: map[uint8]int{}}
}

func (p *SimPins) Configure(pin uint8, mode gpiotable.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modes[pin] = mode
	if mode == gpiotable.ModeInputPullUp {
		p.levels[pin] = true
	}
	return nil
}

func (p *SimPins) Set(pin uint8, level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels[pin] = level
	p.Writes[pin]++
	return nil
}

func (p *SimPins) Get(pin uint8) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.levels[pin], nil
}

// Drive sets an input level from outside, as wiring would.
func (p *SimPins) Drive(pin uint8, level bool) { _ = p.Set(pin, level) }

func (p *SimPins) Mode(pin uint8) (gpiotable.Mode, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.modes[pin]
	return m, ok
}

func (p *SimPins) Level(pin uint8) bool {
	v, _ := p.Get(pin)
	return v
}

// ---- I2C ----

// SimI2CDevice answers transactions for one address.
type SimI2CDevice interface {
	Tx(w, r []byte) error
}

type SimI2C struct {
	mu   sync.Mutex
	devs map[uint16]SimI2CDevice
	// Hz is the last frequency applied through SetFrequency.
	Hz  uint32
	Txs int
}

func (b *SimI2C) Attach(addr uint16, d SimI2CDevice) {
	b.mu.Lock()
	b.devs[addr] = d
	b.mu.Unlock()
}

func (b *SimI2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Txs++
	d, ok := b.devs[addr]
	if !ok {
		return errcode.Wrap(errcode.IOError, "i2c tx", errcode.Timeout)
	}
	return d.Tx(w, r)
}

func (b *SimI2C) SetFrequency(hz uint32) error {
	b.mu.Lock()
	b.Hz = hz
	b.mu.Unlock()
	return nil
}

// SimMCP23017 is a register model of the expander with BANK=0 sequential
// addressing. Reads of GPIO return OLAT for output pins and Inputs for
// input pins.
type SimMCP23017 struct {
	regs   [0x16]byte
	Inputs uint16
}

func (m *SimMCP23017) Tx(w, r []byte) error {
	if len(w) == 0 {
		return nil
	}
	reg := int(w[0])
	for i, b := range w[1:] {
		if reg+i < len(m.regs) {
			m.regs[reg+i] = b
		}
	}
	for i := range r {
		a := reg + i
		switch {
		case a == 0x12 || a == 0x13:
			shift := uint(a-0x12) * 8
			dir := uint8(m.reg16(0x00) >> shift)
			olat := uint8(m.reg16(0x14) >> shift)
			in := uint8(m.Inputs >> shift)
			r[i] = olat&^dir | in&dir
		case a < len(m.regs):
			r[i] = m.regs[a]
		default:
			r[i] = 0
		}
	}
	return nil
}

func (m *SimMCP23017) reg16(a int) uint16 { return uint16(m.regs[a]) | uint16(m.regs[a+1])<<8 }

// Direction is IODIR (1 = input).
func (m *SimMCP23017) Direction() uint16 { return m.reg16(0x00) }

// Latch is OLAT.
func (m *SimMCP23017) Latch() uint16 { return m.reg16(0x14) }

// ---- SPI ----

// SimSPIDevice answers one selected frame.
type SimSPIDevice interface {
	Tx(w, r []byte) error
}

type spiTarget struct {
	indirect bool
	id       uint8
	dev      SimSPIDevice
}

// SimSPI routes each frame to the one device whose chip select is low. Chip
// selects are native pins or expander latch bits.
type SimSPI struct {
	mu      sync.Mutex
	pins    *SimPins
	exp     *SimMCP23017
	targets []spiTarget
	Frames  int
}

func (s *SimSPI) AttachNative(pin uint8, d SimSPIDevice) {
	s.mu.Lock()
	s.targets = append(s.targets, spiTarget{id: pin, dev: d})
	s.mu.Unlock()
}

func (s *SimSPI) AttachExpander(bit uint8, d SimSPIDevice) {
	s.mu.Lock()
	s.targets = append(s.targets, spiTarget{indirect: true, id: bit, dev: d})
	s.mu.Unlock()
}

func (s *SimSPI) selected(t spiTarget) bool {
	if t.indirect {
		return s.exp.Latch()&(1<<t.id) == 0
	}
	return !s.pins.Level(t.id)
}

func (s *SimSPI) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames++
	var sel SimSPIDevice
	for _, t := range s.targets {
		if !s.selected(t) {
			continue
		}
		if sel != nil {
			return errcode.Wrap(errcode.IOError, "spi tx", errcode.Error)
		}
		sel = t.dev
	}
	clear(r)
	if sel == nil {
		return nil
	}
	return sel.Tx(w, r)
}

func (s *SimSPI) Transfer(b byte) (byte, error) {
	r := []byte{0}
	err := s.Tx([]byte{b}, r)
	return r[0], err
}

// SimOutputIC models an 8-channel SPI output switch.
type SimOutputIC struct {
	State uint8
	Fault uint8
}

func (o *SimOutputIC) Tx(w, r []byte) error {
	if len(w) > 0 {
		o.State = w[0]
	}
	if len(r) > 0 {
		r[0] = o.Fault
	}
	return nil
}

// SimInputIC models an 8-channel SPI input serializer.
type SimInputIC struct {
	Levels uint8
}

func (i *SimInputIC) Tx(_, r []byte) error {
	if len(r) > 0 {
		r[0] = i.Levels
	}
	return nil
}

// SimADC models a 4-channel 12-bit ADC with MCP3204 framing.
type SimADC struct {
	Codes [4]uint16
}

func (a *SimADC) Tx(w, r []byte) error {
	if len(w) < 2 || len(r) < 3 {
		return errcode.InvalidParams
	}
	ch := (w[1] >> 6) & 3
	v := a.Codes[ch] & 0x0FFF
	r[0], r[1], r[2] = 0, byte(v>>8), byte(v)
	return nil
}

// ---- UART ----

// SimUART is a non-blocking port: Feed queues receive data, Sent returns
// everything written.
type SimUART struct {
	mu   sync.Mutex
	rx   bytes.Buffer
	tx   bytes.Buffer
	Baud uint32
}

func (u *SimUART) Write(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tx.Write(p)
}

func (u *SimUART) Read(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.rx.Len() == 0 {
		return 0, nil
	}
	return u.rx.Read(p)
}

func (u *SimUART) Buffered() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rx.Len()
}

func (u *SimUART) SetBaudRate(br uint32) {
	u.mu.Lock()
	u.Baud = br
	u.mu.Unlock()
}

func (u *SimUART) Feed(p []byte) {
	u.mu.Lock()
	u.rx.Write(p)
	u.mu.Unlock()
}

func (u *SimUART) Sent() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]byte(nil), u.tx.Bytes()...)
}

// ---- CAN ----

// SimCAN is a loopback controller.
type SimCAN struct {
	mu      sync.Mutex
	q       []cores.Frame
	Bitrate uint32
	Sent    []cores.Frame
}

func (c *SimCAN) Configure(bitrate uint32) error {
	c.mu.Lock()
	c.Bitrate = bitrate
	c.mu.Unlock()
	return nil
}

func (c *SimCAN) Tx(f cores.Frame) error {
	c.mu.Lock()
	c.Sent = append(c.Sent, f)
	c.q = append(c.q, f)
	c.mu.Unlock()
	return nil
}

func (c *SimCAN) Rx() (cores.Frame, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.q) == 0 {
		return cores.Frame{}, false, nil
	}
	f := c.q[0]
	c.q = c.q[1:]
	return f, true, nil
}

// Inject queues a received frame.
func (c *SimCAN) Inject(f cores.Frame) {
	c.mu.Lock()
	c.q = append(c.q, f)
	c.mu.Unlock()
}

// ---- PWM ----

type SimPWM struct {
	mu   sync.Mutex
	Duty map[uint8]uint32
	Freq map[uint8]uint32
	Bits map[uint8]uint8
}

func (p *SimPWM) Configure(pin uint8, freqHz uint32, bits uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Freq[pin] = freqHz
	p.Bits[pin] = bits
	return nil
}

func (p *SimPWM) Set(pin uint8, duty uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.Freq[pin]; !ok {
		return errcode.InvalidDescriptor
	}
	p.Duty[pin] = duty
	return nil
}
