// Package capture provides cross-platform audio capture and the spectrum
// analyzer that feeds byte magnitudes to the meter.
package capture

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"github.com/oszuidwest/zwfm-vumeter/internal/types"
)

var (
	// ErrNoAudioDevice is returned when no audio input device is available.
	ErrNoAudioDevice = errors.New("no audio input device found")
	// ErrUnknownBackend is returned for a backend name that is not supported.
	ErrUnknownBackend = errors.New("unknown capture backend")
	// ErrSessionStopped is returned when a session was stopped before it
	// produced audio.
	ErrSessionStopped = errors.New("capture session stopped")
)

// Backend selects how audio is captured.
type Backend string

const (
	// BackendExec runs arecord or ffmpeg and reads PCM from its stdout.
	BackendExec Backend = "exec"
	// BackendMalgo captures natively through miniaudio.
	BackendMalgo Backend = "malgo"
)

// ParseBackend returns the backend with the given name. Empty selects exec.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(name); b {
	case BackendExec, BackendMalgo:
		return b, nil
	case "":
		return BackendExec, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// Session is a running capture of one source.
type Session interface {
	// ID returns the source id the session captures.
	ID() string
	// Latest returns a copy of the most recent byte magnitudes. It never
	// blocks and returns zeros before the first audio arrives.
	Latest() []byte
	// Err returns the last capture error, if any.
	Err() string
	// Stop ends the capture. It is safe to call more than once.
	Stop() error
}

// Options configures the analyzer of a capture session. Zero values select
// DefaultFFTSize and DefaultSmoothing.
type Options struct {
	FFTSize   int
	Smoothing float64
}

// Start opens a capture session on the source with the given id.
func Start(ctx context.Context, backend Backend, id string, opts Options) (Session, error) {
	analyzer := NewAnalyzer(opts.FFTSize, cmp.Or(opts.Smoothing, DefaultSmoothing))

	switch backend {
	case BackendExec, "":
		return startExec(ctx, id, analyzer)
	case BackendMalgo:
		return startMalgo(id, analyzer)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// ListSources returns the capture targets available to the backend.
func ListSources(backend Backend) ([]types.Source, error) {
	switch backend {
	case BackendExec, "":
		return ListDevices(), nil
	case BackendMalgo:
		return listMalgoSources()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
