package meter

import "time"

// SilenceConfig holds the configurable thresholds for silence detection.
type SilenceConfig struct {
	Threshold float64 // dB level below which audio is considered silent
	Duration  float64 // seconds of silence before alerting
	Recovery  float64 // seconds of audio before considering recovered
}

// SilenceEvent is the result of one silence detector update.
type SilenceEvent struct {
	InSilence     bool    // Confirmed silence, including the recovery window
	Duration      float64 // Seconds in the current silence period
	JustEntered   bool    // Silence was confirmed on this update
	JustRecovered bool    // Recovery completed on this update
	TotalDuration float64 // Length of the silence that just ended
}

// SilenceDetector tracks silence with hysteresis. It reports silence only
// after Duration seconds below the threshold and recovery only after
// Recovery seconds above it.
type SilenceDetector struct {
	silenceStart  time.Time
	recoveryStart time.Time
	inSilence     bool
}

// NewSilenceDetector creates a new silence detector.
func NewSilenceDetector() *SilenceDetector {
	return &SilenceDetector{}
}

// Update feeds one level reading taken at now.
func (d *SilenceDetector) Update(levelDB float64, cfg SilenceConfig, now time.Time) SilenceEvent {
	var event SilenceEvent

	if levelDB < cfg.Threshold {
		d.recoveryStart = time.Time{}
		if d.silenceStart.IsZero() {
			d.silenceStart = now
		}
		elapsed := now.Sub(d.silenceStart).Seconds()

		if !d.inSilence && elapsed >= cfg.Duration {
			d.inSilence = true
			event.JustEntered = true
		}
		if d.inSilence {
			event.InSilence = true
			event.Duration = elapsed
		}
		return event
	}

	if !d.inSilence {
		d.silenceStart = time.Time{}
		return event
	}

	if d.recoveryStart.IsZero() {
		d.recoveryStart = now
	}
	if now.Sub(d.recoveryStart).Seconds() >= cfg.Recovery {
		event.JustRecovered = true
		event.TotalDuration = d.recoveryStart.Sub(d.silenceStart).Seconds()
		d.Reset()
		return event
	}

	event.InSilence = true
	event.Duration = now.Sub(d.silenceStart).Seconds()
	return event
}

// Reset clears the silence detection state.
func (d *SilenceDetector) Reset() {
	d.silenceStart = time.Time{}
	d.recoveryStart = time.Time{}
	d.inSilence = false
}
