package notify

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/oszuidwest/zwfm-vumeter/internal/types"
	"github.com/oszuidwest/zwfm-vumeter/internal/util"
)

// Silence log event names.
const (
	EventSilenceStart = "silence_start"
	EventSilenceEnd   = "silence_end"
	EventTest         = "test"
)

// MaxLogEntries is the number of most recent entries ReadSilenceLog returns.
const MaxLogEntries = 100

// LogSilenceStart records the beginning of a silence period.
func LogSilenceStart(logPath, sourceID string, threshold float64) error {
	return appendLogEntry(logPath, types.SilenceLogEntry{
		Timestamp:   util.RFC3339Now(),
		Event:       EventSilenceStart,
		SourceID:    sourceID,
		ThresholdDB: threshold,
	})
}

// LogSilenceEnd records the end of a silence period with its total duration.
func LogSilenceEnd(logPath, sourceID string, silenceDuration, threshold float64) error {
	return appendLogEntry(logPath, types.SilenceLogEntry{
		Timestamp:   util.RFC3339Now(),
		Event:       EventSilenceEnd,
		SourceID:    sourceID,
		DurationSec: silenceDuration,
		ThresholdDB: threshold,
	})
}

// WriteTestLog writes a test entry to verify the log file configuration.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return errors.New("log file path not configured")
	}

	return appendLogEntry(logPath, types.SilenceLogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     EventTest,
	})
}

// ReadSilenceLog returns up to MaxLogEntries of the most recent entries,
// newest first. Lines that do not parse are skipped.
func ReadSilenceLog(logPath string) ([]types.SilenceLogEntry, error) {
	if logPath == "" {
		return nil, errors.New("log file path not configured")
	}

	f, err := os.Open(logPath)
	if errors.Is(err, os.ErrNotExist) {
		return []types.SilenceLogEntry{}, nil
	}
	if err != nil {
		return nil, util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	var entries []types.SilenceLogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry types.SilenceLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			log.Debug().Err(err).Str("path", logPath).Msg("skipping malformed log line")
			continue
		}
		entries = append(entries, entry)
		if len(entries) > MaxLogEntries {
			entries = entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, util.WrapError("read log file", err)
	}

	slices.Reverse(entries)
	return entries, nil
}

// appendLogEntry appends one JSON line to the file. An empty path is a no-op.
func appendLogEntry(logPath string, entry types.SilenceLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(data); err != nil {
		return util.WrapError("write log entry", err)
	}
	return nil
}
