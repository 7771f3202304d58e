package backplane

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"backplane-go/bus"
	"backplane-go/services/backplane/config"
	"backplane-go/services/backplane/internal/logx"
	"backplane-go/types"
	"backplane-go/x/timex"
)

const topicPrefix = "backplane"

// StateTopic carries the retained service state.
var StateTopic = bus.T(topicPrefix, "state")

// StatusTopic is the retained status topic of the module in slot.
func StatusTopic(slot int) bus.Topic {
	return bus.T(topicPrefix, "module", strconv.Itoa(slot), "status")
}

// ValueTopic is the value topic of one interface.
func ValueTopic(module, iface string) bus.Topic {
	return bus.T(topicPrefix, "iface", module, iface, "value")
}

type ServiceOptions struct {
	Period time.Duration
	// MaxTicks stops Run after that many ticks; 0 runs until cancelled.
	MaxTicks uint64
	Metrics  *Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

type ifaceSnap struct {
	q     uint32
	valid bool
}

// Service paces System.Loop and publishes what changed after each tick. Run
// and Tick must not be called concurrently.
type Service struct {
	bp      *Backplane
	conn    *bus.Connection
	period  time.Duration
	max     uint64
	metrics *Metrics
	log     *slog.Logger
	now     func() time.Time

	status []types.ModuleStatus
	values map[string]ifaceSnap
}

func NewService(bp *Backplane, conn *bus.Connection, opts ServiceOptions) *Service {
	if opts.Period <= 0 {
		opts.Period = config.DefaultScanPeriod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		bp:      bp,
		conn:    conn,
		period:  opts.Period,
		max:     opts.MaxTicks,
		metrics: opts.Metrics,
		log:     logx.Named(opts.Logger, "service"),
		now:     opts.Now,
		values:  map[string]ifaceSnap{},
	}
}

// Period is the current scan period.
func (s *Service) Period() time.Duration { return s.period }

// Run ticks until ctx is cancelled or MaxTicks is reached. A setup retained
// on the config topic with a different scan period re-paces the loop.
func (s *Service) Run(ctx context.Context) error {
	cfgSub := s.conn.Subscribe(config.Topic)
	defer s.conn.Unsubscribe(cfgSub)
	cfgCh := cfgSub.Channel()

	s.publishState("running", "")
	s.publishStatus(true)
	s.publishValues(true)
	if s.metrics != nil {
		s.metrics.observeTables(s.bp.Sys)
	}

	tick := time.NewTicker(s.period)
	defer tick.Stop()
	s.log.Info("scan loop started", "period", s.period, "scan_hz", timex.HzFromPeriod(s.period), "max_ticks", s.max)

	for {
		select {
		case <-ctx.Done():
			s.publishState("stopped", "cancelled")
			s.log.Info("scan loop stopped", "ticks", s.bp.Sys.Ticks())
			return nil
		case <-tick.C:
			s.Tick()
			if s.max > 0 && s.bp.Sys.Ticks() >= s.max {
				s.publishState("stopped", "max ticks")
				s.log.Info("scan loop finished", "ticks", s.bp.Sys.Ticks())
				return nil
			}
		case msg, ok := <-cfgCh:
			if !ok {
				cfgCh = nil
				continue
			}
			setup, ok := msg.Payload.(*types.Setup)
			if !ok || setup.ScanPeriod <= 0 || setup.ScanPeriod == s.period {
				continue
			}
			s.period = setup.ScanPeriod
			tick.Reset(s.period)
			s.log.Info("scan period changed", "period", s.period, "scan_hz", timex.HzFromPeriod(s.period))
		}
	}
}

// Tick runs one scan and publishes changes. It returns the number of failed
// module cycles.
func (s *Service) Tick() int {
	start := time.Now()
	failed := s.bp.Sys.Loop()
	elapsed := time.Since(start)
	if elapsed > s.period {
		s.log.Warn("scan tick overran period", "tick", s.bp.Sys.Ticks(), "elapsed", elapsed, "period", s.period)
	}
	if s.metrics != nil {
		s.metrics.Ticks.Inc()
		s.metrics.TickSeconds.Observe(elapsed.Seconds())
		s.metrics.CycleFailures.Add(float64(failed))
		s.metrics.observeTables(s.bp.Sys)
	}
	if failed > 0 {
		s.log.Debug("tick had failed cycles", "tick", s.bp.Sys.Ticks(), "failed", failed)
	}
	s.publishStatus(false)
	s.publishValues(false)
	return failed
}

func (s *Service) publishState(level, status string) {
	st := types.BackplaneState{Level: level, Status: status, Ticks: s.bp.Sys.Ticks(), TS: s.now().UnixMilli()}
	s.conn.Publish(s.conn.NewMessage(StateTopic, st, true))
}

func sameStatus(a, b types.ModuleStatus) bool {
	if a.Stage != b.Stage || a.Degraded != b.Degraded || a.Interfaces != b.Interfaces || len(a.Failed) != len(b.Failed) {
		return false
	}
	for i := range a.Failed {
		if a.Failed[i] != b.Failed[i] {
			return false
		}
	}
	return true
}

func (s *Service) publishStatus(force bool) {
	n := s.bp.Sys.Len()
	for slot := range n {
		st, ok := s.bp.Status(slot)
		if !ok {
			continue
		}
		if !force && slot < len(s.status) && sameStatus(s.status[slot], st) {
			continue
		}
		st.TS = s.now().UnixMilli()
		if slot < len(s.status) {
			s.status[slot] = st
		} else {
			s.status = append(s.status, st)
		}
		s.conn.Publish(s.conn.NewMessage(StatusTopic(slot), st, true))
	}
}

func (s *Service) publishValues(force bool) {
	for slot, m := range s.bp.Sys.Modules() {
		mod := s.bp.Name(slot)
		for _, i := range m.Interfaces() {
			key := mod + "/" + i.Name()
			snap := ifaceSnap{q: i.Q(), valid: i.Valid()}
			if last, seen := s.values[key]; seen && last == snap && !force {
				continue
			}
			s.values[key] = snap
			v := types.InterfaceValue{
				Module: mod,
				Name:   i.Name(),
				Kind:   i.Kind().String(),
				Value:  snap.q,
				Valid:  snap.valid,
				TS:     s.now().UnixMilli(),
			}
			s.conn.Publish(s.conn.NewMessage(ValueTopic(mod, i.Name()), v, false))
		}
	}
}
