package resource

import (
	"log/slog"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/logx"
)

// DefaultCapacity is the number of resource slots a board exposes.
const DefaultCapacity = 30

// Pool is a fixed-capacity list of registered resources. Acquisition is
// first-fit in registration order.
type Pool struct {
	slots []Resource
	n     int
	log   *slog.Logger
}

func NewPool(capacity int, log *slog.Logger) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{
		slots: make([]Resource, capacity),
		log:   logx.Named(log, "resource"),
	}
}

func (p *Pool) Capacity() int { return len(p.slots) }
func (p *Pool) Len() int      { return p.n }

// Register inserts r into the first free slot.
func (p *Pool) Register(r Resource) error {
	if r == nil {
		logx.Critical(p.log, "nil resource registration")
		return errcode.Wrap(errcode.InvalidParams, "register", nil)
	}
	for i, s := range p.slots {
		if s != nil {
			continue
		}
		p.slots[i] = r
		p.n++
		p.log.Debug("resource registered", "type", r.Type().String(), "index", i, "max_usages", r.MaxUsages())
		return nil
	}
	logx.Critical(p.log, "resource pool full", "type", r.Type().String(), "capacity", len(p.slots))
	return errcode.CapacityExceeded
}

// Acquire returns the first registered resource of type t that grants a
// usage. Exhaustion is not fatal: it logs a warning and reports false.
func (p *Pool) Acquire(t Type) (Resource, bool) {
	for _, r := range p.slots {
		if r == nil || r.Type() != t {
			continue
		}
		if !r.RequestUsage() {
			continue
		}
		p.log.Debug("resource acquired", "type", t.String(), "usages", r.Usages(), "max_usages", r.MaxUsages())
		return r, true
	}
	p.log.Warn("no resource available", "type", t.String())
	return nil, false
}

// AcquireAs is Acquire plus a type assertion to the concrete core. A
// resource of the wrong concrete type is skipped without taking a usage.
func AcquireAs[T Resource](p *Pool, t Type) (T, bool) {
	var zero T
	for _, r := range p.slots {
		if r == nil || r.Type() != t {
			continue
		}
		c, ok := r.(T)
		if !ok {
			continue
		}
		if !r.RequestUsage() {
			continue
		}
		return c, true
	}
	p.log.Warn("no resource available", "type", t.String())
	return zero, false
}

// Each visits registered resources in registration order.
func (p *Pool) Each(fn func(i int, r Resource)) {
	for i, r := range p.slots {
		if r != nil {
			fn(i, r)
		}
	}
}

// Reset resets every resource and unregisters it.
func (p *Pool) Reset() error {
	var first error
	for i, r := range p.slots {
		if r == nil {
			continue
		}
		if err := r.Reset(); err != nil {
			p.log.Warn("resource reset failed", "type", r.Type().String(), "err", err)
			if first == nil {
				first = err
			}
		}
		p.slots[i] = nil
	}
	p.n = 0
	return first
}
