// Package core holds the module lifecycle and the System that attaches,
// initialises, cycles and resets modules.
package core

import (
	"log/slog"

	"backplane-go/services/backplane/internal/gpiotable"
	"backplane-go/services/backplane/internal/iface"
	"backplane-go/services/backplane/internal/resource"
)

// Stage is a module's position in its lifecycle. Stages only advance; the
// one way back is Reset, which returns to StageUnattached.
type Stage uint8

const (
	StageUnattached Stage = iota
	StageAttaching
	StageGPIOProvided
	StageGPIORequested
	StageResourcesProvided
	StageResourcesRequested
	StageInterfacesAdded
	StagePreInitialized
	StageInitialized
	StageCycling
)

var stageNames = [...]string{
	"unattached",
	"attaching",
	"gpio_provided",
	"gpio_requested",
	"resources_provided",
	"resources_requested",
	"interfaces_added",
	"pre_initialized",
	"initialized",
	"cycling",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// RespSize is the per-module cycle response buffer, one CAN payload.
const RespSize = 8

// Info is a module's identity and its GPIO budget.
type Info struct {
	Kind      string
	HWType    uint8
	HWVersion string
	FWVersion string
	// GPIODemand is how many table indices the module consumes from its
	// GPIOStart. GPIOSupply is how many descriptors it registers.
	GPIODemand int
	GPIOSupply int
}

// Env is what a module sees of the System during lifecycle calls.
type Env struct {
	Table     *gpiotable.Table
	Pool      *resource.Pool
	Log       *slog.Logger
	Slot      int
	GPIOStart int
}

// Line claims the table index at GPIOStart+offset.
func (e *Env) Line(offset int) (gpiotable.Line, error) {
	return e.Table.Use(e.GPIOStart + offset)
}

// Acquire takes one usage of the first available resource of type t.
func (e *Env) Acquire(t resource.Type) (resource.Resource, bool) {
	return e.Pool.Acquire(t)
}

// Module is one attached hardware unit. Implementations embed Base, which
// supplies no-op defaults for every step a module does not need.
//
// Lifecycle steps run once each, in declaration order below. A step that
// fails leaves the module attached and degraded; the module is expected to
// have invalidated whatever interfaces depend on the failure.
type Module interface {
	Info() Info

	ProvideGPIOs(env *Env) error
	RequestGPIOs(env *Env) error
	ProvideResources(env *Env) error
	RequestResources(env *Env) error
	AddInterfaces(env *Env) error
	PreInitialize(env *Env) error
	Initialize(env *Env) error

	// Cycle runs once per scan tick. It must not block beyond the latency
	// of its own bus transactions.
	Cycle(resp []byte) error

	// Reset drops every cached line, resource and interface. Idempotent.
	Reset() error

	Interfaces() []iface.Interface

	lifecycle() *Base
}

// Base carries the System-owned per-module state and default lifecycle
// implementations.
type Base struct {
	attached  bool
	slot      int
	gpioStart int
	stage     Stage
	failed    []Stage
	ifaces    []iface.Interface
	resp      [RespSize]byte
}

func (b *Base) lifecycle() *Base { return b }

func (b *Base) ProvideGPIOs(*Env) error     { return nil }
func (b *Base) RequestGPIOs(*Env) error     { return nil }
func (b *Base) ProvideResources(*Env) error { return nil }
func (b *Base) RequestResources(*Env) error { return nil }
func (b *Base) AddInterfaces(*Env) error    { return nil }
func (b *Base) PreInitialize(*Env) error    { return nil }
func (b *Base) Initialize(*Env) error       { return nil }
func (b *Base) Cycle([]byte) error          { return nil }
func (b *Base) Reset() error                { return nil }

func (b *Base) Attached() bool   { return b.attached }
func (b *Base) Slot() int        { return b.slot }
func (b *Base) GPIOStart() int   { return b.gpioStart }
func (b *Base) Stage() Stage     { return b.stage }
func (b *Base) Degraded() bool   { return len(b.failed) > 0 }
func (b *Base) Response() []byte { return b.resp[:] }

// FailedStages lists the steps that failed, in the order they ran.
func (b *Base) FailedStages() []Stage { return append([]Stage(nil), b.failed...) }

func (b *Base) Interfaces() []iface.Interface { return b.ifaces }

// AddInterface appends i to the module's interface list.
func (b *Base) AddInterface(i iface.Interface) { b.ifaces = append(b.ifaces, i) }

// Interface finds an interface by name.
func (b *Base) Interface(name string) (iface.Interface, bool) {
	for _, i := range b.ifaces {
		if i.Name() == name {
			return i, true
		}
	}
	return nil, false
}

func (b *Base) fail(s Stage) { b.failed = append(b.failed, s) }

func (b *Base) detach() {
	for _, i := range b.ifaces {
		i.Reset()
	}
	*b = Base{}
}
