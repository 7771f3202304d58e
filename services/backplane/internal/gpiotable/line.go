package gpiotable

import "backplane-go/errcode"

// Line is a claimed table index. It resolves the descriptor on every call, so
// a Line outliving a table reset fails cleanly instead of driving stale state.
type Line struct {
	t   *Table
	idx int
}

func (l Line) Index() int { return l.idx }

// Valid reports whether the line was obtained from a table.
func (l Line) Valid() bool { return l.t != nil }

func (l Line) Descriptor() (Descriptor, error) {
	if l.t == nil || l.idx < 0 || l.idx >= len(l.t.slots) {
		return Descriptor{}, errcode.InvalidDescriptor
	}
	s := l.t.slots[l.idx]
	if !s.ok {
		return Descriptor{}, errcode.InvalidDescriptor
	}
	return s.d, nil
}

func (l Line) Configure(mode Mode) error {
	d, err := l.Descriptor()
	if err != nil {
		return err
	}
	if d.caps.InputOnly && mode == ModeOutput {
		return errcode.Unsupported
	}
	return d.provider.Configure(d, mode)
}

func (l Line) Set(level bool) error {
	d, err := l.Descriptor()
	if err != nil {
		return err
	}
	return d.provider.Set(d, level)
}

func (l Line) Get() (bool, error) {
	d, err := l.Descriptor()
	if err != nil {
		return false, err
	}
	return d.provider.Get(d)
}

// SetInitial records the level applied during system initialisation.
func (l Line) SetInitial(level bool) error {
	if l.t == nil {
		return errcode.InvalidDescriptor
	}
	return l.t.SetInitial(l.idx, level)
}

// PWM returns the line's provider as a PWMProvider when the point is
// PWM-capable and the provider supports it.
func (l Line) PWM() (PWMProvider, Descriptor, error) {
	d, err := l.Descriptor()
	if err != nil {
		return nil, Descriptor{}, err
	}
	p, ok := d.provider.(PWMProvider)
	if !ok || !d.caps.PWM {
		return nil, d, errcode.Unsupported
	}
	return p, d, nil
}
