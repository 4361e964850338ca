package capture

import (
	"math"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	vecmath "github.com/cwbudde/algo-vecmath"
	"github.com/rs/zerolog/log"
)

// Analyzer defaults, matching a browser AnalyserNode configured for the meter.
const (
	DefaultFFTSize   = 2048
	DefaultSmoothing = 0.25
	MinDecibels      = -100.0
	MaxDecibels      = -30.0
)

// Analyzer turns a stream of PCM samples into byte frequency magnitudes.
// Writers push samples from the capture goroutine; the meter reads the
// latest spectrum with Latest. Both are safe to call concurrently.
type Analyzer struct {
	mu        sync.Mutex
	size      int
	smoothing float64
	ring      []float64
	write     int

	plan     *algofft.Plan[complex128]
	window   []float64
	frame    []float64
	input    []complex128
	output   []complex128
	re, im   []float64
	mag      []float64
	smoothed []float64
	scratch  []float64
}

// NewAnalyzer creates an analyzer. fftSize must be a power of two between
// 32 and 32768; other values select DefaultFFTSize. smoothing outside
// [0, 1) selects DefaultSmoothing.
func NewAnalyzer(fftSize int, smoothing float64) *Analyzer {
	if fftSize < 32 || fftSize > 32768 || fftSize&(fftSize-1) != 0 {
		fftSize = DefaultFFTSize
	}
	if smoothing < 0 || smoothing >= 1 {
		smoothing = DefaultSmoothing
	}

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		log.Error().Err(err).Int("size", fftSize).Msg("failed to create fft plan")
	}

	bins := fftSize / 2
	return &Analyzer{
		size:      fftSize,
		smoothing: smoothing,
		ring:      make([]float64, fftSize),
		plan:      plan,
		window:    blackman(fftSize),
		frame:     make([]float64, fftSize),
		input:     make([]complex128, fftSize),
		output:    make([]complex128, fftSize),
		re:        make([]float64, bins),
		im:        make([]float64, bins),
		mag:       make([]float64, bins),
		smoothed:  make([]float64, bins),
	}
}

// Bins returns the number of magnitudes Latest produces.
func (a *Analyzer) Bins() int {
	return a.size / 2
}

// Write appends samples to the rolling window.
func (a *Analyzer) Write(samples []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.push(samples)
}

// WritePCM decodes S16LE PCM and appends it to the rolling window.
func (a *Analyzer) WritePCM(pcm []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scratch = decodeS16LE(a.scratch, pcm)
	a.push(a.scratch)
}

func (a *Analyzer) push(samples []float64) {
	if len(samples) > a.size {
		samples = samples[len(samples)-a.size:]
	}
	for _, s := range samples {
		a.ring[a.write] = s
		a.write++
		if a.write == a.size {
			a.write = 0
		}
	}
}

// Latest analyzes the current window and returns a copy of the byte
// magnitudes. Each call applies one step of temporal smoothing.
func (a *Analyzer) Latest() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]byte, a.size/2)
	if a.plan == nil {
		return out
	}

	// Unroll the ring oldest-first, then window it.
	n := copy(a.frame, a.ring[a.write:])
	copy(a.frame[n:], a.ring[:a.write])
	vecmath.MulBlockInPlace(a.frame, a.window)

	for i, s := range a.frame {
		a.input[i] = complex(s, 0)
	}
	if err := a.plan.Forward(a.output, a.input); err != nil {
		log.Debug().Err(err).Msg("fft failed")
		return out
	}

	for k := range a.re {
		a.re[k] = real(a.output[k])
		a.im[k] = imag(a.output[k])
	}
	vecmath.Magnitude(a.mag, a.re, a.im)

	scale := 1 / float64(a.size)
	byteScale := 255 / (MaxDecibels - MinDecibels)
	for k, m := range a.mag {
		v := a.smoothing*a.smoothed[k] + (1-a.smoothing)*m*scale
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		a.smoothed[k] = v

		if v <= 0 {
			continue
		}
		db := 20 * math.Log10(v)
		out[k] = byte(min(max((db-MinDecibels)*byteScale, 0), 255))
	}
	return out
}

// Reset clears the sample window and the smoothing history.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.write = 0
}

// blackman returns the classic Blackman window (alpha 0.16) of length n.
func blackman(n int) []float64 {
	const alpha = 0.16
	a0 := (1 - alpha) / 2
	a1 := 0.5
	a2 := alpha / 2

	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}
