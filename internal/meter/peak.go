package meter

// DefaultPeakDecay is how far the peak indicator falls per tick, in dB.
const DefaultPeakDecay = 0.04

// PeakTracker holds the running maximum of the needle with linear decay.
type PeakTracker struct {
	Decay float64
}

// Advance snaps the peak up to the needle when it is exceeded, otherwise
// lets it fall by Decay. The peak never drops below MinDB.
// Call it once per tick, after the needle has moved.
func (p PeakTracker) Advance(s *State) {
	if s.Value > s.Peak {
		s.Peak = s.Value
	} else {
		s.Peak -= p.Decay
	}
	s.Peak = floor(s.Peak)
}
