//go:build !windows

package util

import (
	"os"
	"syscall"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// GracefulSignal asks a capture process to exit by sending SIGINT.
// It is installed as exec.Cmd.Cancel so WaitDelay applies before SIGKILL.
func GracefulSignal(p *os.Process) error {
	return p.Signal(syscall.SIGINT)
}
