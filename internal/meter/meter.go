// Package meter implements the VU meter engine: level detection, needle
// dynamics and peak hold over a fixed dB scale.
package meter

import "math"

const (
	// MinDB is the bottom of the meter scale and the level reported for silence.
	MinDB = -20.0
	// MaxDB is the top of the meter scale.
	MaxDB = 3.0
	// PeakLampThreshold is the peak level above which the PEAK lamp lights.
	PeakLampThreshold = -3.0
)

// State is the mutable record of one meter needle.
type State struct {
	Value        float64 // Displayed level in dB, never below MinDB
	Peak         float64 // Peak-hold level in dB, never below MinDB
	Velocity     float64 // Spring strategy only
	Acceleration float64 // Spring strategy only
}

// NewState returns a needle resting on the bottom of the scale.
func NewState() State {
	return State{Value: MinDB, Peak: MinDB}
}

// Snapshot is a consistent, read-only view of a meter after one tick.
type Snapshot struct {
	Value           float64 `json:"value"`
	Peak            float64 `json:"peak"`
	Level           float64 `json:"level"` // Instantaneous detected level
	Normalized      float64 `json:"normalized"`
	PeakNormalized  float64 `json:"peak_normalized"`
	PeakActive      bool    `json:"peak_active"`
	Session         uint64  `json:"session"`
	Silence         bool    `json:"silence,omitzero"`
	SilenceDuration float64 `json:"silence_duration,omitzero"`
}

// Normalize maps a level onto the needle sweep, clamped to [0, 1] so that
// transient overshoot past MaxDB never swings the needle off the scale.
func Normalize(db float64) float64 {
	if math.IsNaN(db) {
		return 0
	}
	return min(max((db-MinDB)/(MaxDB-MinDB), 0), 1)
}

// PeakActive reports whether the PEAK lamp is lit for the given peak level.
func PeakActive(peak float64) bool {
	return peak > PeakLampThreshold
}

// floor replaces non-finite levels with MinDB and applies the lower bound.
func floor(db float64) float64 {
	if math.IsNaN(db) || math.IsInf(db, 0) {
		return MinDB
	}
	return max(db, MinDB)
}

// Meter ties the level detector, needle dynamics and peak tracker together
// around one explicitly owned State. A Meter is not safe for concurrent use;
// the scheduler owns it and publishes snapshots.
type Meter struct {
	state    State
	level    float64
	detector Detector
	dynamics Dynamics
	peak     PeakTracker
}

// Options configures a Meter. Zero values select the defaults.
type Options struct {
	Detector  Detector
	Dynamics  Dynamics
	PeakDecay float64
}

// New creates a meter at rest on MinDB.
func New(opts Options) *Meter {
	if opts.Dynamics == nil {
		opts.Dynamics = DefaultSpring()
	}
	if opts.Detector.Estimator == "" {
		opts.Detector.Estimator = EstimatorRMS
	}
	if opts.Detector.Gain <= 0 {
		opts.Detector.Gain = DefaultGain
	}
	if opts.PeakDecay <= 0 {
		opts.PeakDecay = DefaultPeakDecay
	}
	return &Meter{
		state:    NewState(),
		level:    MinDB,
		detector: opts.Detector,
		dynamics: opts.Dynamics,
		peak:     PeakTracker{Decay: opts.PeakDecay},
	}
}

// Tick runs one frame of the pipeline. When active is false the samples are
// ignored and the target is silence. It returns the detected target level.
func (m *Meter) Tick(samples []byte, active bool) float64 {
	target := MinDB
	if active {
		target = m.detector.Detect(samples)
	}
	m.level = target
	m.dynamics.Advance(&m.state, target)
	m.peak.Advance(&m.state)
	return target
}

// State returns a copy of the needle state.
func (m *Meter) State() State {
	return m.state
}

// Snapshot returns the read view of the current state. Value and Peak are
// clamped to the scale; the stored state keeps any spring overshoot.
func (m *Meter) Snapshot() Snapshot {
	return Snapshot{
		Value:          min(m.state.Value, MaxDB),
		Peak:           min(m.state.Peak, MaxDB),
		Level:          m.level,
		Normalized:     Normalize(m.state.Value),
		PeakNormalized: Normalize(m.state.Peak),
		PeakActive:     PeakActive(m.state.Peak),
	}
}

// Reset puts the needle back at rest on MinDB.
func (m *Meter) Reset() {
	m.state = NewState()
	m.level = MinDB
}
