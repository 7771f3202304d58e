// Package ramp limits how fast an integer level may move.
package ramp

import "backplane-go/x/mathx"

// Linear moves a level toward a target by at most Rate per Advance. A zero
// Rate snaps straight to the target.
type Linear struct {
	Rate uint16
	cur  uint16
}

// Advance takes one step toward target and returns the new level.
func (l *Linear) Advance(target uint16) uint16 {
	if l.Rate == 0 {
		l.cur = target
		return l.cur
	}
	d := int32(target) - int32(l.cur)
	step := mathx.Clamp(d, -int32(l.Rate), int32(l.Rate))
	l.cur = uint16(int32(l.cur) + step)
	return l.cur
}

// Level is the last value Advance returned.
func (l *Linear) Level() uint16 { return l.cur }

// Settled reports whether the level equals target.
func (l *Linear) Settled(target uint16) bool { return l.cur == target }

// Reset jumps to v without ramping.
func (l *Linear) Reset(v uint16) { l.cur = v }
