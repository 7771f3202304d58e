package gpiotable

import (
	"errors"
	"log/slog"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/logx"
)

// DefaultCapacity covers native pins plus expander outputs.
const DefaultCapacity = 100

type slot struct {
	d       Descriptor
	ok      bool
	claimed bool
}

// Table maps a GPIO index to at most one descriptor. Indices are filled
// densely from zero, so every populated index is below Provided(), and
// Used() <= Provided() always holds.
//
// The table owns descriptors by value; modules hold Line handles (table plus
// index), never pointers into module storage.
type Table struct {
	slots    []slot
	provided int
	used     int
	log      *slog.Logger
}

func New(capacity int, log *slog.Logger) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{
		slots: make([]slot, capacity),
		log:   logx.Named(log, "gpiotable"),
	}
}

func (t *Table) Capacity() int { return len(t.slots) }
func (t *Table) Provided() int { return t.provided }
func (t *Table) Used() int     { return t.used }

// Add inserts d at the first empty index and returns that index.
func (t *Table) Add(d Descriptor) (int, error) {
	for i := range t.slots {
		if !t.slots[i].ok {
			return i, t.Put(i, d, false)
		}
	}
	logx.Critical(t.log, "no empty slot in output table", "capacity", len(t.slots))
	return -1, errcode.CapacityExceeded
}

// AddAll registers ds in order and returns the index of the first one.
// Registration stops at the first failure.
func (t *Table) AddAll(ds []Descriptor) (int, error) {
	first := -1
	for _, d := range ds {
		i, err := t.Add(d)
		if err != nil {
			return first, err
		}
		if first < 0 {
			first = i
		}
	}
	return first, nil
}

// Put stores d at index. An occupied index is rejected with SlotOccupied
// unless overwrite is set; the table is unchanged on any error. index must
// not leave a gap: it either replaces an existing entry or appends at
// Provided().
func (t *Table) Put(index int, d Descriptor, overwrite bool) error {
	if index >= len(t.slots) {
		logx.Critical(t.log, "output table index exceeds capacity", "index", index, "capacity", len(t.slots))
		return errcode.CapacityExceeded
	}
	if index < 0 || index > t.provided {
		logx.Critical(t.log, "output table index leaves a gap", "index", index, "provided", t.provided)
		return errcode.IndexOutOfRange
	}
	if d.provider == nil {
		logx.Critical(t.log, "descriptor without provider", "index", index, "descriptor", d.String())
		return errcode.InvalidDescriptor
	}
	s := &t.slots[index]
	if s.ok {
		if !overwrite {
			t.log.Error("output table index occupied", "index", index, "existing", s.d.String())
			return errcode.SlotOccupied
		}
		t.log.Warn("overwriting output descriptor", "index", index, "old", s.d.String(), "new", d.String())
		s.d = d
		return nil
	}
	t.log.Debug("output descriptor added", "index", index, "descriptor", d.String())
	*s = slot{d: d, ok: true}
	t.provided++
	return nil
}

// Get is a pure lookup for inspection; it does not count as a claim.
func (t *Table) Get(index int) (Descriptor, bool) {
	if index < 0 || index >= len(t.slots) {
		logx.Critical(t.log, "output table index out of bounds", "index", index, "capacity", len(t.slots))
		return Descriptor{}, false
	}
	s := t.slots[index]
	if !s.ok {
		t.log.Warn("no output descriptor at index", "index", index)
		return Descriptor{}, false
	}
	return s.d, true
}

// Use claims index for a module and returns a handle to it. The used
// counter grows only on the first claim of an index.
func (t *Table) Use(index int) (Line, error) {
	if index < 0 || index >= len(t.slots) {
		logx.Critical(t.log, "output table index out of bounds", "index", index, "capacity", len(t.slots))
		return Line{}, errcode.IndexOutOfRange
	}
	s := &t.slots[index]
	if !s.ok {
		t.log.Warn("no output descriptor to claim", "index", index)
		return Line{}, errcode.InvalidDescriptor
	}
	if !s.claimed {
		s.claimed = true
		t.used++
	}
	return Line{t: t, idx: index}, nil
}

// SetInitial records the level applied to index during system initialisation.
func (t *Table) SetInitial(index int, level bool) error {
	if index < 0 || index >= len(t.slots) || !t.slots[index].ok {
		return errcode.InvalidDescriptor
	}
	t.slots[index].d.initial = level
	return nil
}

// Each visits populated indices in ascending order.
func (t *Table) Each(fn func(index int, d Descriptor)) {
	for i := 0; i < t.provided && i < len(t.slots); i++ {
		if t.slots[i].ok {
			fn(i, t.slots[i].d)
		}
	}
}

// ApplyInitial drives the initial level of every descriptor whose indirect
// flag equals indirect. Native and indirect points are applied in separate
// passes because expander providers only come up during pre-initialisation.
func (t *Table) ApplyInitial(indirect bool) error {
	var errs []error
	t.Each(func(i int, d Descriptor) {
		if d.indirect != indirect {
			return
		}
		if err := d.provider.Set(d, d.initial); err != nil {
			t.log.Error("initial level failed", "index", i, "descriptor", d.String(), "err", err)
			errs = append(errs, errcode.Wrap(errcode.IOError, "initial level", err))
			return
		}
		t.log.Info("initial level applied", "index", i, "indirect", indirect, "id", d.id, "level", d.initial)
	})
	return errors.Join(errs...)
}

// Providers returns the distinct providers in first-seen index order.
// Providers must be comparable (pointer types in practice).
func (t *Table) Providers() []Provider {
	var out []Provider
	t.Each(func(_ int, d Descriptor) {
		for _, p := range out {
			if p == d.provider {
				return
			}
		}
		out = append(out, d.provider)
	})
	return out
}

// Reset empties the table and zeroes both counters.
func (t *Table) Reset() {
	for i := range t.slots {
		t.slots[i] = slot{}
	}
	t.provided = 0
	t.used = 0
}
