package iface

import (
	"log/slog"

	"backplane-go/services/backplane/internal/logx"
	"backplane-go/x/mathx"
)

// Resolution is an analog bit width.
type Resolution uint8

const (
	Res8  Resolution = 8
	Res10 Resolution = 10
	Res12 Resolution = 12
	Res16 Resolution = 16
)

// Analog is a scalar point of fixed resolution. Values above
// 2^resolution-1 are clamped to the maximum with a warning.
type Analog struct {
	point
	res Resolution
	log *slog.Logger
}

func NewAnalogInput(name string, res Resolution, log *slog.Logger) *Analog {
	return newAnalog(name, AnalogInput, res, log)
}

func NewAnalogOutput(name string, res Resolution, log *slog.Logger) *Analog {
	return newAnalog(name, AnalogOutput, res, log)
}

func newAnalog(name string, k Kind, res Resolution, log *slog.Logger) *Analog {
	if res == 0 || res > 16 {
		res = Res12
	}
	return &Analog{point: newPoint(name, k), res: res, log: logx.Named(log, "iface")}
}

func (a *Analog) Resolution() Resolution { return a.res }

// Max is the largest representable value.
func (a *Analog) Max() uint32 { return mathx.FullScale(uint8(a.res)) }

func (a *Analog) clamp(v uint32) uint32 {
	max := a.Max()
	if v > max {
		a.log.Warn("analog value clamped", "interface", a.name, "value", v, "max", max)
	}
	return mathx.Clamp(v, 0, max)
}

func (a *Analog) Write(v uint32) error {
	if err := a.check(); err != nil {
		return err
	}
	a.q = a.clamp(v)
	return nil
}

func (a *Analog) Update(v uint32) { a.q = a.clamp(v) }
