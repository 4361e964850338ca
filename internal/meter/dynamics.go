package meter

import (
	"cmp"
	"fmt"
	"math"
)

// Dynamics advances a needle toward a target level by one tick.
//
// Implementations assume a roughly constant tick period; there is no elapsed
// time term, so the scheduler pins the tick rate.
type Dynamics interface {
	Advance(s *State, targetDB float64)
}

// Strategy names a Dynamics implementation in configuration.
type Strategy string

const (
	// StrategySpring selects the second-order spring-damper needle.
	StrategySpring Strategy = "spring"
	// StrategyExponential selects first-order exponential smoothing.
	StrategyExponential Strategy = "exponential"
)

// Default needle constants, tuned for a 60 Hz tick.
const (
	DefaultStiffness = 0.07
	DefaultDamping   = 0.88
	DefaultAlpha     = 0.2
)

// NewDynamics builds the strategy with the given constants. Zero constants
// fall back to the defaults.
func NewDynamics(strategy Strategy, stiffness, damping, alpha float64) (Dynamics, error) {
	switch strategy {
	case StrategySpring, "":
		return Spring{
			Stiffness: cmp.Or(stiffness, DefaultStiffness),
			Damping:   cmp.Or(damping, DefaultDamping),
		}, nil
	case StrategyExponential:
		return Exponential{Alpha: cmp.Or(alpha, DefaultAlpha)}, nil
	default:
		return nil, fmt.Errorf("unknown needle strategy: %q", strategy)
	}
}

// Spring treats the needle as a unit point mass pulled toward the target by a
// spring and slowed by damping. It overshoots and settles like a real meter.
type Spring struct {
	Stiffness float64
	Damping   float64
}

// DefaultSpring returns the spring with the default constants.
func DefaultSpring() Spring {
	return Spring{Stiffness: DefaultStiffness, Damping: DefaultDamping}
}

// Advance implements Dynamics.
func (sp Spring) Advance(s *State, targetDB float64) {
	s.Acceleration = (targetDB - s.Value) * sp.Stiffness
	s.Velocity = (s.Velocity + s.Acceleration) * sp.Damping
	s.Value += s.Velocity

	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) || math.IsNaN(s.Velocity) {
		*s = State{Value: MinDB, Peak: s.Peak}
		return
	}

	// End stop: the needle rests on the pin instead of storing momentum below it.
	if s.Value < MinDB {
		s.Value = MinDB
		s.Velocity = 0
	}
}

// Exponential moves the needle a fixed fraction of the way to the target on
// every tick. It approaches monotonically and never overshoots.
type Exponential struct {
	Alpha float64
}

// Advance implements Dynamics.
func (e Exponential) Advance(s *State, targetDB float64) {
	s.Value = s.Value*(1-e.Alpha) + targetDB*e.Alpha
	s.Velocity = 0
	s.Acceleration = 0
	s.Value = floor(s.Value)
}
