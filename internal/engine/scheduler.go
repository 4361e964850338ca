package engine

import (
	"context"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-vumeter/internal/meter"
)

// DefaultTickRate is the meter frame rate in Hz. The needle constants are
// tuned for it.
const DefaultTickRate = 60

// SilenceHandler receives silence detector events.
type SilenceHandler interface {
	HandleEvent(event meter.SilenceEvent)
	Reset()
}

// Scheduler drives one Meter at a fixed tick rate. It is the only writer of
// the meter state; readers get copies through Snapshot.
type Scheduler struct {
	meter    *meter.Meter
	switcher *Switcher
	interval time.Duration

	silence       *meter.SilenceDetector
	silenceConfig func() meter.SilenceConfig
	handler       SilenceHandler
	lastGen       uint64

	mu   sync.RWMutex
	snap meter.Snapshot
}

// NewScheduler creates a scheduler ticking tickRate times per second.
// silenceConfig and handler may be nil to disable silence monitoring.
func NewScheduler(m *meter.Meter, sw *Switcher, tickRate int, silenceConfig func() meter.SilenceConfig, handler SilenceHandler) *Scheduler {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	return &Scheduler{
		meter:         m,
		switcher:      sw,
		interval:      time.Second / time.Duration(tickRate),
		silence:       meter.NewSilenceDetector(),
		silenceConfig: silenceConfig,
		handler:       handler,
		snap:          m.Snapshot(),
	}
}

// Interval returns the tick period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Run ticks until ctx is cancelled. Ticks that fall behind are dropped.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Step(now)
		}
	}
}

// Step runs exactly one tick at now and returns the published snapshot.
func (s *Scheduler) Step(now time.Time) meter.Snapshot {
	session, gen := s.switcher.Current()
	active := session != nil

	var samples []byte
	if active {
		samples = session.Latest()
	}
	level := s.meter.Tick(samples, active)

	if gen != s.lastGen {
		s.lastGen = gen
		s.silence.Reset()
		if s.handler != nil {
			s.handler.Reset()
		}
	}

	var event meter.SilenceEvent
	if active && s.silenceConfig != nil {
		event = s.silence.Update(level, s.silenceConfig(), now)
		if s.handler != nil {
			s.handler.HandleEvent(event)
		}
	}

	snap := s.meter.Snapshot()
	snap.Session = gen
	snap.Silence = event.InSilence
	snap.SilenceDuration = event.Duration

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return snap
}

// Reset puts the needle at rest and clears the silence monitor. It must not
// run concurrently with Run.
func (s *Scheduler) Reset() {
	s.meter.Reset()
	s.silence.Reset()
	if s.handler != nil {
		s.handler.Reset()
	}

	snap := s.meter.Snapshot()
	snap.Session = s.lastGen
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Snapshot returns a copy of the most recently published frame.
func (s *Scheduler) Snapshot() meter.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
