package server

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/oszuidwest/zwfm-vumeter/internal/config"
	"github.com/oszuidwest/zwfm-vumeter/internal/notify"
	"github.com/oszuidwest/zwfm-vumeter/internal/types"
	"github.com/oszuidwest/zwfm-vumeter/internal/util"
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Meter is the part of the engine the commands drive.
type Meter interface {
	SelectSource(id string) uint64
	Sources() ([]types.Source, error)
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg          *config.Config
	meter        Meter
	testTriggers map[string]func() error

	mu      sync.RWMutex
	sources []types.Source

	// wg tracks background replies.
	wg sync.WaitGroup
}

// NewCommandHandler creates a new command handler. testTriggers maps a test
// name ("webhook", "email", "log") to the function that runs it.
func NewCommandHandler(cfg *config.Config, meter Meter, testTriggers map[string]func() error) *CommandHandler {
	return &CommandHandler{
		cfg:          cfg,
		meter:        meter,
		testTriggers: testTriggers,
	}
}

// Handle processes a WebSocket command. Replies are written to out;
// triggerStatusUpdate asks the connection to push a fresh status.
func (h *CommandHandler) Handle(cmd WSCommand, out JSONWriter, triggerStatusUpdate func()) {
	switch cmd.Type {
	case "select_source":
		h.handleSelectSource(cmd)
	case "refresh_sources":
		h.RefreshSources()
	case "update_settings":
		h.handleUpdateSettings(cmd)
	case "test_webhook", "test_log", "test_email":
		h.handleTest(out, cmd.Type)
	case "view_silence_log":
		h.handleViewSilenceLog(out)
	default:
		log.Warn().Str("type", cmd.Type).Msg("unknown websocket command")
	}

	triggerStatusUpdate()
}

// Wait blocks until background replies have been written.
func (h *CommandHandler) Wait() {
	h.wg.Wait()
}

// Sources returns the most recently enumerated sources.
func (h *CommandHandler) Sources() []types.Source {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sources
}

// RefreshSources enumerates the capture sources again.
func (h *CommandHandler) RefreshSources() {
	sources, err := h.meter.Sources()
	if err != nil {
		log.Error().Err(err).Msg("refresh_sources: failed to list sources")
		return
	}
	h.mu.Lock()
	h.sources = sources
	h.mu.Unlock()
	log.Debug().Int("count", len(sources)).Msg("refresh_sources: sources listed")
}

func (h *CommandHandler) handleSelectSource(cmd WSCommand) {
	id := strings.TrimSpace(cmd.ID)
	if err := util.ValidateMaxLength("id", id, 512); err != nil {
		log.Warn().Str("error", err.Message).Msg("select_source: validation failed")
		return
	}

	// Placeholder entries ("-- select --") mean no source.
	saved := id
	if strings.HasPrefix(saved, "--") {
		saved = ""
	}
	if err := h.cfg.SetAudioInput(saved); err != nil {
		log.Error().Err(err).Msg("select_source: failed to save")
	}

	gen := h.meter.SelectSource(id)
	log.Info().Str("source", id).Uint64("session", gen).Msg("select_source: switching source")
}

// updateFloatSetting validates and updates a float64 setting.
func updateFloatSetting(value *float64, lo, hi float64, name string, setter func(float64) error) {
	if value == nil {
		return
	}
	v := *value
	if err := util.ValidateRangeFloat(name, v, lo, hi); err != nil {
		log.Warn().Str("setting", name).Str("error", err.Message).Msg("update_settings: validation failed")
		return
	}
	log.Info().Str("setting", name).Float64("value", v).Msg("update_settings: changing setting")
	if err := setter(v); err != nil {
		log.Error().Err(err).Msg("update_settings: failed to save")
	}
}

// updateStringSetting validates the length of and updates a string setting.
func updateStringSetting(value *string, maxLen int, name string, setter func(string) error) {
	if value == nil {
		return
	}
	if err := util.ValidateMaxLength(name, *value, maxLen); err != nil {
		log.Warn().Str("setting", name).Str("error", err.Message).Msg("update_settings: validation failed")
		return
	}
	log.Info().Str("setting", name).Msg("update_settings: changing setting")
	if err := setter(*value); err != nil {
		log.Error().Err(err).Msg("update_settings: failed to save")
	}
}

// settingsUpdate is the payload of update_settings. Absent fields are left
// unchanged.
type settingsUpdate struct {
	SilenceThreshold *float64 `json:"silence_threshold"`
	SilenceDuration  *float64 `json:"silence_duration"`
	SilenceRecovery  *float64 `json:"silence_recovery"`
	SilenceWebhook   *string  `json:"silence_webhook"`
	SilenceLogPath   *string  `json:"silence_log_path"`
	EmailSMTPHost    *string  `json:"email_smtp_host"`
	EmailSMTPPort    *int     `json:"email_smtp_port"`
	EmailFromName    *string  `json:"email_from_name"`
	EmailUsername    *string  `json:"email_username"`
	EmailPassword    *string  `json:"email_password"`
	EmailRecipients  *string  `json:"email_recipients"`
}

func (u *settingsUpdate) hasEmail() bool {
	return u.EmailSMTPHost != nil || u.EmailSMTPPort != nil ||
		u.EmailFromName != nil || u.EmailUsername != nil ||
		u.EmailPassword != nil || u.EmailRecipients != nil
}

func (h *CommandHandler) handleUpdateSettings(cmd WSCommand) {
	var settings settingsUpdate
	if err := json.Unmarshal(cmd.Data, &settings); err != nil {
		log.Warn().Err(err).Msg("update_settings: invalid JSON data")
		return
	}

	// The meter scale bottoms out at -20 dB, so thresholds below it never trigger.
	updateFloatSetting(settings.SilenceThreshold, -20, 0, "silence threshold", h.cfg.SetSilenceThreshold)
	updateFloatSetting(settings.SilenceDuration, 1, 300, "silence duration", h.cfg.SetSilenceDuration)
	updateFloatSetting(settings.SilenceRecovery, 1, 60, "silence recovery", h.cfg.SetSilenceRecovery)
	updateStringSetting(settings.SilenceWebhook, 2048, "webhook URL", h.cfg.SetWebhookURL)
	updateStringSetting(settings.SilenceLogPath, 1024, "log path", h.cfg.SetLogPath)

	if !settings.hasEmail() {
		return
	}

	cur := h.cfg.Snapshot()
	host, port := cur.EmailSMTPHost, cur.EmailSMTPPort
	fromName, username := cur.EmailFromName, cur.EmailUsername
	password, recipients := cur.EmailPassword, cur.EmailRecipients
	if settings.EmailSMTPHost != nil {
		host = *settings.EmailSMTPHost
	}
	if settings.EmailSMTPPort != nil {
		if err := util.ValidatePort("email port", *settings.EmailSMTPPort); err != nil {
			log.Warn().Str("error", err.Message).Msg("update_settings: validation failed")
			return
		}
		port = *settings.EmailSMTPPort
	}
	if settings.EmailFromName != nil {
		fromName = *settings.EmailFromName
	}
	if settings.EmailUsername != nil {
		username = *settings.EmailUsername
	}
	if settings.EmailPassword != nil {
		password = *settings.EmailPassword
	}
	if settings.EmailRecipients != nil {
		recipients = *settings.EmailRecipients
	}

	log.Info().Msg("update_settings: updating email configuration")
	if err := h.cfg.SetEmailConfig(host, port, fromName, username, password, recipients); err != nil {
		log.Error().Err(err).Msg("update_settings: failed to save email config")
	}
}

// handleTest runs a notification test in the background and replies with
// the outcome. testCmd has the form "test_<type>".
func (h *CommandHandler) handleTest(out JSONWriter, testCmd string) {
	testType := strings.TrimPrefix(testCmd, "test_")
	trigger, ok := h.testTriggers[testType]
	if !ok {
		log.Warn().Str("command", testCmd).Msg("unknown test type")
		return
	}

	h.wg.Go(func() {
		result := types.WSTestResult{
			Type:     "test_result",
			TestType: testType,
			Success:  true,
		}

		if err := trigger(); err != nil {
			log.Error().Err(err).Str("command", testCmd).Msg("notification test failed")
			result.Success = false
			result.Error = err.Error()
		} else {
			log.Info().Str("command", testCmd).Msg("notification test succeeded")
		}

		if err := out.WriteJSON(result); err != nil {
			log.Error().Err(err).Str("command", testCmd).Msg("failed to send test response")
		}
	})
}

// handleViewSilenceLog replies with the most recent silence log entries.
func (h *CommandHandler) handleViewSilenceLog(out JSONWriter) {
	logPath := h.cfg.LogPath()

	h.wg.Go(func() {
		result := types.WSSilenceLogResult{
			Type:    "silence_log_result",
			Success: true,
			Path:    logPath,
		}

		entries, err := notify.ReadSilenceLog(logPath)
		if err != nil {
			result.Success = false
			result.Error = err.Error()
		} else {
			result.Entries = entries
		}

		if err := out.WriteJSON(result); err != nil {
			log.Error().Err(err).Msg("failed to send silence log response")
		}
	})
}
