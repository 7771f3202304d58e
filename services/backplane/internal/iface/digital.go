package iface

// Pull is the bias requested for a digital input.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Digital is a two-state point. Any non-zero value is stored as 1.
type Digital struct {
	point
	pull Pull
}

func NewDigitalInput(name string) *Digital  { return &Digital{point: newPoint(name, DigitalInput)} }
func NewDigitalOutput(name string) *Digital { return &Digital{point: newPoint(name, DigitalOutput)} }
func NewRelay(name string) *Digital         { return &Digital{point: newPoint(name, Relay)} }

func bit(v uint32) uint32 {
	if v != 0 {
		return 1
	}
	return 0
}

func (d *Digital) Write(v uint32) error {
	if err := d.check(); err != nil {
		return err
	}
	d.q = bit(v)
	return nil
}

func (d *Digital) Update(v uint32) { d.q = bit(v) }

// State is Q as a level.
func (d *Digital) State() bool { return d.q != 0 }

// SetState is Write for a level.
func (d *Digital) SetState(on bool) error {
	if on {
		return d.Write(1)
	}
	return d.Write(0)
}

func (d *Digital) Pull() Pull     { return d.pull }
func (d *Digital) SetPull(p Pull) { d.pull = p }
