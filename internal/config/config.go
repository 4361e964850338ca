// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oszuidwest/zwfm-vumeter/internal/meter"
	"github.com/oszuidwest/zwfm-vumeter/internal/util"
)

// Configuration defaults.
const (
	DefaultWebPort          = 8080
	DefaultWebUsername      = "admin"
	DefaultWebPassword      = "vumeter"
	DefaultAudioBackend     = "exec"
	DefaultTickRate         = 60
	DefaultFFTSize          = 2048
	DefaultSmoothing        = 0.25
	DefaultSilenceThreshold = -19.0
	DefaultSilenceDuration  = 15.0
	DefaultSilenceRecovery  = 5.0
	DefaultEmailSMTPPort    = 587
	DefaultEmailFromName    = "ZuidWest FM VU Meter"
	DefaultLogLevel         = "info"
)

// WebConfig contains web server configuration.
type WebConfig struct {
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// AudioConfig contains audio input configuration. Input holds the last
// selected source and is restored at startup.
type AudioConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	Input   string `json:"input" yaml:"input"`
}

// MeterConfig contains needle and analyzer tuning. Zero values select the
// defaults.
type MeterConfig struct {
	Strategy  string  `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Stiffness float64 `json:"stiffness,omitempty" yaml:"stiffness,omitempty"`
	Damping   float64 `json:"damping,omitempty" yaml:"damping,omitempty"`
	Alpha     float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	PeakDecay float64 `json:"peak_decay,omitempty" yaml:"peak_decay,omitempty"`
	Gain      float64 `json:"gain,omitempty" yaml:"gain,omitempty"`
	Estimator string  `json:"estimator,omitempty" yaml:"estimator,omitempty"`
	TickRate  int     `json:"tick_rate,omitempty" yaml:"tick_rate,omitempty"`
	FFTSize   int     `json:"fft_size,omitempty" yaml:"fft_size,omitempty"`
	Smoothing float64 `json:"smoothing,omitempty" yaml:"smoothing,omitempty"`
}

// SilenceDetectionConfig contains silence detection configuration.
type SilenceDetectionConfig struct {
	ThresholdDB     float64 `json:"threshold_db,omitempty" yaml:"threshold_db,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	RecoverySeconds float64 `json:"recovery_seconds,omitempty" yaml:"recovery_seconds,omitempty"`
}

// EmailConfig contains email notification configuration.
type EmailConfig struct {
	Host       string `json:"host,omitempty" yaml:"host,omitempty"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	FromName   string `json:"from_name,omitempty" yaml:"from_name,omitempty"`
	Username   string `json:"username,omitempty" yaml:"username,omitempty"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty"`
	Recipients string `json:"recipients,omitempty" yaml:"recipients,omitempty"`
}

// NotificationsConfig contains all notification configuration.
type NotificationsConfig struct {
	WebhookURL string      `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	LogPath    string      `json:"log_path,omitempty" yaml:"log_path,omitempty"`
	Email      EmailConfig `json:"email,omitzero" yaml:"email,omitempty"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	Web              WebConfig              `json:"web" yaml:"web"`
	Audio            AudioConfig            `json:"audio" yaml:"audio"`
	Meter            MeterConfig            `json:"meter,omitzero" yaml:"meter,omitempty"`
	SilenceDetection SilenceDetectionConfig `json:"silence_detection,omitzero" yaml:"silence_detection,omitempty"`
	Notifications    NotificationsConfig    `json:"notifications,omitzero" yaml:"notifications,omitempty"`
	LogLevel         string                 `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		Web: WebConfig{
			Port:     DefaultWebPort,
			Username: DefaultWebUsername,
			Password: DefaultWebPassword,
		},
		Audio: AudioConfig{
			Backend: DefaultAudioBackend,
		},
		filePath: filePath,
	}
}

// Path returns the file the configuration is stored in.
func (c *Config) Path() string {
	return c.filePath
}

// isYAML reports whether the file is stored as YAML.
func (c *Config) isYAML() bool {
	switch strings.ToLower(filepath.Ext(c.filePath)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if c.isYAML() {
		err = yaml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()
	return c.validateLocked()
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	c.Web.Port = cmp.Or(c.Web.Port, DefaultWebPort)
	c.Web.Username = cmp.Or(c.Web.Username, DefaultWebUsername)
	c.Web.Password = cmp.Or(c.Web.Password, DefaultWebPassword)
	c.Audio.Backend = cmp.Or(c.Audio.Backend, DefaultAudioBackend)
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validateLocked()
}

func (c *Config) validateLocked() error {
	checks := []*util.ValidationError{
		util.ValidatePort("web.port", c.Web.Port),
		util.ValidateOneOf("audio.backend", c.Audio.Backend, "exec", "malgo"),
		util.ValidateOneOf("meter.strategy", cmp.Or(c.Meter.Strategy, string(meter.StrategySpring)),
			string(meter.StrategySpring), string(meter.StrategyExponential)),
		util.ValidateOneOf("meter.estimator", cmp.Or(c.Meter.Estimator, string(meter.EstimatorRMS)),
			string(meter.EstimatorRMS), string(meter.EstimatorMean)),
		util.ValidateRange("meter.tick_rate", cmp.Or(c.Meter.TickRate, DefaultTickRate), 10, 240),
		util.ValidateRangeFloat("meter.damping", cmp.Or(c.Meter.Damping, meter.DefaultDamping), 0, 1),
		util.ValidateRangeFloat("meter.alpha", cmp.Or(c.Meter.Alpha, meter.DefaultAlpha), 0, 1),
		util.ValidateRangeFloat("meter.smoothing", cmp.Or(c.Meter.Smoothing, DefaultSmoothing), 0, 0.99),
		util.ValidateOneOf("log_level", cmp.Or(c.LogLevel, DefaultLogLevel),
			"trace", "debug", "info", "warn", "error"),
	}
	for _, v := range checks {
		if v != nil {
			return v
		}
	}
	return nil
}

// Save writes the configuration to file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	var (
		data []byte
		err  error
	)
	if c.isYAML() {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// WebPort returns the web server port.
func (c *Config) WebPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Web.Port
}

// WebUser returns the web authentication username.
func (c *Config) WebUser() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Web.Username
}

// WebPassword returns the web authentication password.
func (c *Config) WebPassword() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Web.Password
}

// AudioBackend returns the capture backend name.
func (c *Config) AudioBackend() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.Backend
}

// AudioInput returns the last selected source id.
func (c *Config) AudioInput() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.Input
}

// SetAudioInput updates the selected source and saves the configuration.
func (c *Config) SetAudioInput(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.Input = input
	return c.saveLocked()
}

// LogLevelName returns the configured log level.
func (c *Config) LogLevelName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cmp.Or(c.LogLevel, DefaultLogLevel)
}

// MeterSettings returns the meter configuration with defaults applied.
func (c *Config) MeterSettings() MeterConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meterLocked()
}

func (c *Config) meterLocked() MeterConfig {
	m := c.Meter
	return MeterConfig{
		Strategy:  cmp.Or(m.Strategy, string(meter.StrategySpring)),
		Stiffness: cmp.Or(m.Stiffness, meter.DefaultStiffness),
		Damping:   cmp.Or(m.Damping, meter.DefaultDamping),
		Alpha:     cmp.Or(m.Alpha, meter.DefaultAlpha),
		PeakDecay: cmp.Or(m.PeakDecay, meter.DefaultPeakDecay),
		Gain:      cmp.Or(m.Gain, meter.DefaultGain),
		Estimator: cmp.Or(m.Estimator, string(meter.EstimatorRMS)),
		TickRate:  cmp.Or(m.TickRate, DefaultTickRate),
		FFTSize:   cmp.Or(m.FFTSize, DefaultFFTSize),
		Smoothing: cmp.Or(m.Smoothing, DefaultSmoothing),
	}
}

// SilenceThreshold returns the configured silence threshold in decibels.
func (c *Config) SilenceThreshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cmp.Or(c.SilenceDetection.ThresholdDB, DefaultSilenceThreshold)
}

// SetSilenceThreshold updates the silence detection threshold and saves the configuration.
func (c *Config) SetSilenceThreshold(threshold float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SilenceDetection.ThresholdDB = threshold
	return c.saveLocked()
}

// SilenceDuration returns the silence duration before alerting.
func (c *Config) SilenceDuration() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cmp.Or(c.SilenceDetection.DurationSeconds, DefaultSilenceDuration)
}

// SetSilenceDuration updates the silence duration and saves the configuration.
func (c *Config) SetSilenceDuration(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SilenceDetection.DurationSeconds = seconds
	return c.saveLocked()
}

// SilenceRecovery returns the audio duration before considering silence recovered.
func (c *Config) SilenceRecovery() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cmp.Or(c.SilenceDetection.RecoverySeconds, DefaultSilenceRecovery)
}

// SetSilenceRecovery updates the silence recovery time and saves the configuration.
func (c *Config) SetSilenceRecovery(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SilenceDetection.RecoverySeconds = seconds
	return c.saveLocked()
}

// SilenceConfig returns the silence thresholds in detector form.
func (c *Config) SilenceConfig() meter.SilenceConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return meter.SilenceConfig{
		Threshold: cmp.Or(c.SilenceDetection.ThresholdDB, DefaultSilenceThreshold),
		Duration:  cmp.Or(c.SilenceDetection.DurationSeconds, DefaultSilenceDuration),
		Recovery:  cmp.Or(c.SilenceDetection.RecoverySeconds, DefaultSilenceRecovery),
	}
}

// WebhookURL returns the configured webhook URL for notifications.
func (c *Config) WebhookURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.WebhookURL
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.WebhookURL = url
	return c.saveLocked()
}

// LogPath returns the configured log file path for notifications.
func (c *Config) LogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.LogPath
}

// SetLogPath updates the log file path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.LogPath = path
	return c.saveLocked()
}

// SetEmailConfig updates all email configuration fields and saves.
func (c *Config) SetEmailConfig(host string, port int, fromName, username, password, recipients string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email = EmailConfig{
		Host:       host,
		Port:       port,
		FromName:   fromName,
		Username:   username,
		Password:   password,
		Recipients: recipients,
	}
	return c.saveLocked()
}

// Snapshot contains a point-in-time copy of all configuration values.
// Use this instead of multiple individual getters to reduce mutex contention.
type Snapshot struct {
	// Web
	WebPort     int
	WebUser     string
	WebPassword string

	// Audio
	AudioBackend string
	AudioInput   string

	// Meter (with defaults)
	Meter MeterConfig

	// Silence Detection
	SilenceThreshold float64
	SilenceDuration  float64
	SilenceRecovery  float64

	// Notifications
	WebhookURL string
	LogPath    string

	// Email
	EmailSMTPHost   string
	EmailSMTPPort   int
	EmailFromName   string
	EmailUsername   string
	EmailPassword   string
	EmailRecipients string

	LogLevel string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		WebPort:     c.Web.Port,
		WebUser:     c.Web.Username,
		WebPassword: c.Web.Password,

		AudioBackend: c.Audio.Backend,
		AudioInput:   c.Audio.Input,

		Meter: c.meterLocked(),

		SilenceThreshold: cmp.Or(c.SilenceDetection.ThresholdDB, DefaultSilenceThreshold),
		SilenceDuration:  cmp.Or(c.SilenceDetection.DurationSeconds, DefaultSilenceDuration),
		SilenceRecovery:  cmp.Or(c.SilenceDetection.RecoverySeconds, DefaultSilenceRecovery),

		WebhookURL: c.Notifications.WebhookURL,
		LogPath:    c.Notifications.LogPath,

		EmailSMTPHost:   c.Notifications.Email.Host,
		EmailSMTPPort:   cmp.Or(c.Notifications.Email.Port, DefaultEmailSMTPPort),
		EmailFromName:   cmp.Or(c.Notifications.Email.FromName, DefaultEmailFromName),
		EmailUsername:   c.Notifications.Email.Username,
		EmailPassword:   c.Notifications.Email.Password,
		EmailRecipients: c.Notifications.Email.Recipients,

		LogLevel: cmp.Or(c.LogLevel, DefaultLogLevel),
	}
}

// HasWebhook returns true if a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasEmail returns true if email notifications are configured.
func (s *Snapshot) HasEmail() bool {
	return util.IsConfigured(s.EmailSMTPHost, s.EmailRecipients)
}

// HasLogPath returns true if a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}
