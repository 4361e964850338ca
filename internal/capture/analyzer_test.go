package capture

import (
	"math"
	"testing"
)

func TestAnalyzerSilence(t *testing.T) {
	a := NewAnalyzer(0, 0)
	if got := a.Bins(); got != DefaultFFTSize/2 {
		t.Fatalf("Bins() = %d, want %d", got, DefaultFFTSize/2)
	}

	out := a.Latest()
	if len(out) != a.Bins() {
		t.Fatalf("len(Latest()) = %d, want %d", len(out), a.Bins())
	}
	for i, b := range out {
		if b != 0 {
			t.Fatalf("bin %d = %d, want 0 before any audio", i, b)
		}
	}
}

func TestAnalyzerSinePeak(t *testing.T) {
	const size = 1024
	a := NewAnalyzer(size, 0)

	// Exactly on bin 64.
	bin := 64
	samples := make([]float64, size)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*float64(bin)*float64(i)/size)
	}
	a.Write(samples)

	out := a.Latest()
	peak := 0
	for i, b := range out {
		if b > out[peak] {
			peak = i
		}
	}
	if peak < bin-1 || peak > bin+1 {
		t.Errorf("loudest bin = %d, want near %d", peak, bin)
	}
	if out[peak] == 0 {
		t.Error("expected a non-zero magnitude for a sine")
	}
	if out[size/4] != 0 {
		t.Errorf("bin %d = %d, want 0 far from the tone", size/4, out[size/4])
	}
}

func TestAnalyzerReturnsCopy(t *testing.T) {
	a := NewAnalyzer(64, 0)
	first := a.Latest()
	first[0] = 255

	if a.Latest()[0] != 0 {
		t.Error("Latest() must return an independent copy")
	}
}

func TestAnalyzerSmoothing(t *testing.T) {
	const size = 256
	a := NewAnalyzer(size, 0.5)

	tone := make([]float64, size)
	for i := range tone {
		tone[i] = 0.01 * math.Sin(2*math.Pi*16*float64(i)/size)
	}
	a.Write(tone)
	loud := a.Latest()[16]

	a.Write(make([]float64, size))
	decayed := a.Latest()[16]

	if decayed == 0 || decayed >= loud {
		t.Errorf("smoothed magnitude = %d after silence, want between 0 and %d", decayed, loud)
	}
}

func TestAnalyzerReset(t *testing.T) {
	a := NewAnalyzer(64, 0)
	samples := make([]float64, 64)
	for i := range samples {
		samples[i] = 0.9
	}
	a.Write(samples)
	a.Reset()

	for i, b := range a.Latest() {
		if b != 0 {
			t.Fatalf("bin %d = %d after reset", i, b)
		}
	}
}

func TestNewAnalyzerInvalidSize(t *testing.T) {
	for _, size := range []int{-1, 0, 100, 1 << 20} {
		if got := NewAnalyzer(size, 0).Bins(); got != DefaultFFTSize/2 {
			t.Errorf("NewAnalyzer(%d).Bins() = %d, want %d", size, got, DefaultFFTSize/2)
		}
	}
}

func TestDecodeS16LE(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0xff, 0x7f, 0x00, 0x80, 0x01}
	got := decodeS16LE(nil, pcm)

	want := []float64{0, 32767.0 / 32768, -1}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %f, want %f", i, got[i], want[i])
		}
	}
}
