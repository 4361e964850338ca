//go:build windows

package util

import (
	"errors"
	"os"
)

// ErrGracefulNotSupported indicates graceful shutdown is not supported.
// When returned from exec.Cmd.Cancel, Go waits WaitDelay and then kills.
var ErrGracefulNotSupported = errors.New("graceful signal not supported on Windows")

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal returns ErrGracefulNotSupported so exec.Cmd falls back to
// killing the capture process after WaitDelay.
func GracefulSignal(p *os.Process) error {
	return ErrGracefulNotSupported
}
