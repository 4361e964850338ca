package meter

import (
	"fmt"
	"math"
)

// Estimator selects how byte magnitudes are aggregated into one amplitude.
type Estimator string

const (
	// EstimatorRMS uses the root mean square of the normalized magnitudes.
	EstimatorRMS Estimator = "rms"
	// EstimatorMean uses the arithmetic mean of the normalized magnitudes.
	EstimatorMean Estimator = "mean"
)

// DefaultGain scales the aggregate amplitude before conversion to dB.
const DefaultGain = 1.6

// ParseEstimator returns the estimator with the given name.
func ParseEstimator(name string) (Estimator, error) {
	switch e := Estimator(name); e {
	case EstimatorRMS, EstimatorMean:
		return e, nil
	case "":
		return EstimatorRMS, nil
	default:
		return "", fmt.Errorf("unknown level estimator: %q", name)
	}
}

// Detector converts one frame of spectral byte magnitudes into a level in dB.
// It holds configuration only and is safe to call at any rate.
type Detector struct {
	Estimator Estimator
	Gain      float64
}

// DefaultDetector returns the RMS detector with the default gain.
func DefaultDetector() Detector {
	return Detector{Estimator: EstimatorRMS, Gain: DefaultGain}
}

// DetectLevel runs the default detector over samples.
func DetectLevel(samples []byte) float64 {
	return DefaultDetector().Detect(samples)
}

// Detect returns the loudness of samples in dB, never below MinDB.
// Empty buffers are treated as silence.
func (d Detector) Detect(samples []byte) float64 {
	if len(samples) == 0 {
		return MinDB
	}

	var amplitude float64
	switch d.Estimator {
	case EstimatorMean:
		var sum float64
		for _, b := range samples {
			sum += float64(b) / 255
		}
		amplitude = sum / float64(len(samples))
	default:
		var sumSquares float64
		for _, b := range samples {
			a := float64(b) / 255
			sumSquares += a * a
		}
		amplitude = math.Sqrt(sumSquares / float64(len(samples)))
	}

	gain := d.Gain
	if gain <= 0 {
		gain = DefaultGain
	}
	return AmplitudeToDB(amplitude * gain)
}

// AmplitudeToDB converts a linear amplitude to dB. The amplitude is clamped
// to [0, 1]; zero and non-finite input map to MinDB exactly.
func AmplitudeToDB(amplitude float64) float64 {
	if math.IsNaN(amplitude) {
		return MinDB
	}
	amplitude = min(max(amplitude, 0), 1)
	if amplitude == 0 {
		return MinDB
	}
	return floor(20 * math.Log10(amplitude))
}
