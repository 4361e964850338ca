// Package engine runs the meter: it owns the frame scheduler and switches
// capture sessions without ever letting a stale session feed the needle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oszuidwest/zwfm-vumeter/internal/capture"
	"github.com/oszuidwest/zwfm-vumeter/internal/meter"
	"github.com/oszuidwest/zwfm-vumeter/internal/types"
)

// StartFunc opens a capture session on the source with the given id.
type StartFunc func(ctx context.Context, id string) (capture.Session, error)

// ListFunc enumerates the available sources.
type ListFunc func() ([]types.Source, error)

// Options configures an Engine.
type Options struct {
	Backend  capture.Backend
	Capture  capture.Options
	Meter    meter.Options
	Strategy meter.Strategy
	TickRate int

	// SilenceConfig returns the current silence thresholds. Nil disables
	// silence monitoring.
	SilenceConfig  func() meter.SilenceConfig
	SilenceHandler SilenceHandler

	// Start and List override the capture backend.
	Start StartFunc
	List  ListFunc
}

// Engine manages the active capture session and the frame scheduler.
type Engine struct {
	opts      Options
	switcher  *Switcher
	scheduler *Scheduler

	// startMu serializes session start and stop so a device is released
	// before the next one is opened.
	startMu sync.Mutex
	wg      sync.WaitGroup

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	state     types.CaptureState
	sourceID  string
	lastError string
	startTime time.Time
}

// New creates an Engine. The scheduler does not run until Start.
func New(opts Options) *Engine {
	if opts.Start == nil {
		backend, captureOpts := opts.Backend, opts.Capture
		opts.Start = func(ctx context.Context, id string) (capture.Session, error) {
			return capture.Start(ctx, backend, id, captureOpts)
		}
	}
	if opts.List == nil {
		backend := opts.Backend
		opts.List = func() ([]types.Source, error) {
			return capture.ListSources(backend)
		}
	}
	if opts.TickRate <= 0 {
		opts.TickRate = DefaultTickRate
	}
	if opts.Strategy == "" {
		opts.Strategy = meter.StrategySpring
	}

	sw := NewSwitcher()
	return &Engine{
		opts:      opts,
		switcher:  sw,
		scheduler: NewScheduler(meter.New(opts.Meter), sw, opts.TickRate, opts.SilenceConfig, opts.SilenceHandler),
		state:     types.StateIdle,
	}
}

// Start runs the scheduler and, when initialID is one of the listed
// sources, selects it.
func (e *Engine) Start(ctx context.Context, initialID string) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.running = true
	runCtx := e.ctx
	e.mu.Unlock()

	e.wg.Go(func() {
		e.scheduler.Run(runCtx)
	})

	log.Info().
		Int("tick_rate", e.opts.TickRate).
		Str("strategy", string(e.opts.Strategy)).
		Str("backend", string(e.opts.Backend)).
		Msg("meter engine started")

	if initialID == "" {
		return nil
	}
	sources, err := e.Sources()
	if err != nil {
		log.Warn().Err(err).Msg("failed to list sources")
		return nil
	}
	for _, src := range sources {
		if src.ID == initialID {
			e.SelectSource(initialID)
			return nil
		}
	}
	log.Info().Str("source", initialID).Msg("saved source not available, starting without input")
	return nil
}

// Stop detaches and stops the current session, then stops the scheduler.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.state = types.StateStopping
	cancel := e.cancel
	e.mu.Unlock()

	_, old := e.switcher.Begin()
	cancel()

	e.startMu.Lock()
	if old != nil {
		stopSession(old)
	}
	e.startMu.Unlock()

	e.wg.Wait()
	e.scheduler.Reset()

	e.mu.Lock()
	e.state = types.StateIdle
	e.sourceID = ""
	e.mu.Unlock()

	log.Info().Msg("meter engine stopped")
	return nil
}

// SelectSource switches the meter to the source with the given id and
// returns the generation of the request. The previous source is detached
// immediately so the meter falls to silence; the new session is opened in
// the background and only attached if no newer request was made meanwhile.
// An empty id, or one starting with "--", selects no source.
func (e *Engine) SelectSource(id string) uint64 {
	gen, old := e.switcher.Begin()

	e.mu.Lock()
	ctx, running := e.ctx, e.running
	if running {
		e.lastError = ""
		if isNoSource(id) {
			e.state = types.StateIdle
			e.sourceID = ""
		} else {
			e.state = types.StateStarting
			e.sourceID = id
		}
	}
	e.mu.Unlock()

	if !running {
		if old != nil {
			e.startMu.Lock()
			stopSession(old)
			e.startMu.Unlock()
		}
		return gen
	}

	e.wg.Go(func() {
		e.activate(ctx, gen, id, old)
	})
	return gen
}

// activate stops the detached session and opens the requested one.
func (e *Engine) activate(ctx context.Context, gen uint64, id string, old capture.Session) {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if old != nil {
		stopSession(old)
	}
	if isNoSource(id) || !e.switcher.IsLatest(gen) || ctx.Err() != nil {
		return
	}

	session, err := e.opts.Start(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("source", id).Uint64("session", gen).Msg("failed to start capture")
		e.update(gen, func() {
			e.state = types.StateIdle
			e.lastError = err.Error()
		})
		return
	}

	if !e.switcher.Apply(gen, session) {
		log.Debug().Str("source", id).Uint64("session", gen).Msg("discarding superseded capture session")
		stopSession(session)
		return
	}

	e.update(gen, func() {
		e.state = types.StateCapturing
		e.startTime = time.Now()
	})
	log.Info().Str("source", id).Uint64("session", gen).Msg("source selected")
}

// update applies fn under the status lock if gen is still the latest request.
func (e *Engine) update(gen uint64, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.switcher.IsLatest(gen) {
		fn()
	}
}

func stopSession(s capture.Session) {
	if err := s.Stop(); err != nil {
		log.Warn().Err(err).Str("source", s.ID()).Msg("failed to stop capture session")
	}
}

func isNoSource(id string) bool {
	return id == "" || strings.HasPrefix(id, "--")
}

// Snapshot returns the most recently published meter frame.
func (e *Engine) Snapshot() meter.Snapshot {
	return e.scheduler.Snapshot()
}

// Sources lists the sources the capture backend can open.
func (e *Engine) Sources() ([]types.Source, error) {
	sources, err := e.opts.List()
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// Status returns the engine status for the status panel.
func (e *Engine) Status() types.EngineStatus {
	session, gen := e.switcher.Current()

	e.mu.RLock()
	defer e.mu.RUnlock()

	status := types.EngineStatus{
		State:     e.state,
		SourceID:  e.sourceID,
		Session:   gen,
		LastError: e.lastError,
		Backend:   string(e.opts.Backend),
		TickRate:  e.opts.TickRate,
		Strategy:  string(e.opts.Strategy),
	}
	if e.state == types.StateCapturing {
		d := time.Since(e.startTime)
		status.Uptime = fmt.Sprintf("%dh %dm %ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
	if session != nil {
		if msg := session.Err(); msg != "" {
			status.LastError = msg
		}
	}
	return status
}
