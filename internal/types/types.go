// Package types provides shared type definitions used across the meter service.
package types

import "time"

// CaptureState represents the state of the active capture session.
type CaptureState string

const (
	// StateIdle indicates no source is selected; the meter shows silence.
	StateIdle CaptureState = "idle"
	// StateStarting indicates a capture session is being established.
	StateStarting CaptureState = "starting"
	// StateCapturing indicates a source is feeding the meter.
	StateCapturing CaptureState = "capturing"
	// StateStopping indicates the engine is shutting down.
	StateStopping CaptureState = "stopping"
)

// Retry settings for capture processes.
const (
	InitialRetryDelay = 3 * time.Second
	MaxRetryDelay     = 60 * time.Second
	MaxRetries        = 10
	SuccessThreshold  = 30 * time.Second // Reset retry count after running this long
)

// Shutdown settings.
const (
	ShutdownTimeout = 3 * time.Second // Time to wait for a capture process before SIGKILL
)

// Source is a capturable audio target.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EngineStatus summarizes the meter engine for the status panel.
type EngineStatus struct {
	State     CaptureState `json:"state"`
	SourceID  string       `json:"source_id,omitzero"`
	Session   uint64       `json:"session"`
	Uptime    string       `json:"uptime,omitzero"`
	LastError string       `json:"last_error,omitzero"`
	Backend   string       `json:"backend"`
	TickRate  int          `json:"tick_rate"`
	Strategy  string       `json:"strategy"`
}

// SilenceLogEntry is one line of the JSON-lines silence log.
type SilenceLogEntry struct {
	Timestamp   string  `json:"timestamp"`
	Event       string  `json:"event"`
	SourceID    string  `json:"source_id,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	ThresholdDB float64 `json:"threshold_db"`
}

// VersionInfo describes the running and latest released version.
type VersionInfo struct {
	Current     string `json:"current"`
	Latest      string `json:"latest,omitzero"`
	UpdateAvail bool   `json:"update_available"`
	Commit      string `json:"commit,omitzero"`
	BuildTime   string `json:"build_time,omitzero"`
}

// WSTestResult is sent to a WebSocket client after a notification test.
type WSTestResult struct {
	Type     string `json:"type"`
	TestType string `json:"test_type"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitzero"`
}

// WSSilenceLogResult carries silence log entries to a WebSocket client.
type WSSilenceLogResult struct {
	Type    string            `json:"type"`
	Success bool              `json:"success"`
	Error   string            `json:"error,omitzero"`
	Entries []SilenceLogEntry `json:"entries,omitzero"`
	Path    string            `json:"path,omitzero"`
}
