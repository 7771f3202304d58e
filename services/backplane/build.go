// Package backplane turns a setup document into an initialised System and
// runs its scan loop as a service.
package backplane

import (
	"errors"
	"log/slog"
	"strconv"

	"backplane-go/errcode"
	"backplane-go/services/backplane/internal/core"
	"backplane-go/services/backplane/internal/logx"
	"backplane-go/services/backplane/internal/platform"
	"backplane-go/services/backplane/internal/registry"
	"backplane-go/types"

	// Module builders register themselves by kind.
	_ "backplane-go/services/backplane/internal/modules/analog"
	_ "backplane-go/services/backplane/internal/modules/busmod"
	_ "backplane-go/services/backplane/internal/modules/digital"
	_ "backplane-go/services/backplane/internal/modules/mainboard"
	_ "backplane-go/services/backplane/internal/modules/relay"
)

// Backplane is a built System plus the names its modules publish under.
type Backplane struct {
	Sys   *core.System
	Board *platform.Board
	names []string
	// Warnings holds every non-fatal attach and initialise failure.
	Warnings []error
}

// Name is the telemetry name of the module in slot: its configured name, or
// kind followed by slot.
func (b *Backplane) Name(slot int) string {
	if slot >= 0 && slot < len(b.names) {
		return b.names[slot]
	}
	return "slot" + strconv.Itoa(slot)
}

// Build creates every module in setup order, attaches it and initialises the
// System. Unknown kinds, bad params and a full module table are fatal.
// Degraded modules are kept and reported through Warnings.
func Build(setup *types.Setup, board *platform.Board, log *slog.Logger) (*Backplane, error) {
	log = logx.Named(log, "build")
	sys := core.NewSystem(core.Options{
		MaxModules:   setup.Limits.MaxModules,
		MaxGPIO:      setup.Limits.MaxGPIO,
		MaxResources: setup.Limits.MaxResources,
		Logger:       log,
	})
	bp := &Backplane{Sys: sys, Board: board}

	for i, ms := range setup.Modules {
		mod, err := registry.Build(registry.BuildInput{Board: board, Kind: ms.Kind, Params: ms.Params, Log: log})
		if err != nil {
			logx.Critical(log, "module build failed", "index", i, "kind", ms.Kind, "err", err)
			return nil, err
		}
		if err := sys.Attach(mod); err != nil {
			if !errors.Is(err, errcode.Degraded) {
				return nil, err
			}
			bp.Warnings = append(bp.Warnings, err)
		}
		name := ms.Name
		if name == "" {
			name = ms.Kind + strconv.Itoa(i)
		}
		bp.names = append(bp.names, name)
	}

	if err := sys.Initialize(); err != nil {
		bp.Warnings = append(bp.Warnings, err)
	}
	log.Info("backplane built", "modules", sys.Len(), "gpio_provided", sys.ProvidedGPIOs(),
		"gpio_used", sys.UsedGPIOs(), "warnings", len(bp.Warnings))
	return bp, nil
}

// Status snapshots the module in slot.
func (b *Backplane) Status(slot int) (types.ModuleStatus, bool) {
	m, ok := b.Sys.Module(slot)
	if !ok {
		return types.ModuleStatus{}, false
	}
	st := core.State(m)
	info := m.Info()
	out := types.ModuleStatus{
		Slot:       slot,
		Kind:       info.Kind,
		Name:       b.Name(slot),
		HWType:     info.HWType,
		HWVersion:  info.HWVersion,
		FWVersion:  info.FWVersion,
		Stage:      st.Stage().String(),
		Degraded:   st.Degraded(),
		GPIOStart:  st.GPIOStart(),
		Interfaces: len(m.Interfaces()),
	}
	for _, s := range st.FailedStages() {
		out.Failed = append(out.Failed, s.String())
	}
	return out, true
}

// Close resets the System and releases the board.
func (b *Backplane) Close() error {
	err := b.Sys.Reset()
	if b.Board != nil {
		err = errors.Join(err, b.Board.Close())
	}
	return err
}
