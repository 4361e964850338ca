package notify

import (
	"sync"

	"github.com/oszuidwest/zwfm-vumeter/internal/config"
	"github.com/oszuidwest/zwfm-vumeter/internal/meter"
	"github.com/oszuidwest/zwfm-vumeter/internal/util"
)

// SilenceNotifier turns silence detector events into notifications. Each
// channel fires at most once per silence period, and a recovery message is
// sent only on channels that reported the silence.
type SilenceNotifier struct {
	cfg *config.Config

	// mu protects the sent flags.
	mu          sync.Mutex
	webhookSent bool
	emailSent   bool
	logSent     bool

	// wg tracks in-flight deliveries.
	wg sync.WaitGroup
}

// NewSilenceNotifier returns a SilenceNotifier configured with the given config.
func NewSilenceNotifier(cfg *config.Config) *SilenceNotifier {
	return &SilenceNotifier{cfg: cfg}
}

// HandleEvent processes one silence detector event. Deliveries run in the
// background so the meter tick is never blocked.
func (n *SilenceNotifier) HandleEvent(event meter.SilenceEvent) {
	if event.JustEntered {
		n.handleSilenceStart(event.Duration)
	}
	if event.JustRecovered {
		n.handleSilenceEnd(event.TotalDuration)
	}
}

// Reset forgets which notifications were sent for the current period.
func (n *SilenceNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
}

// Wait blocks until in-flight deliveries have finished.
func (n *SilenceNotifier) Wait() {
	n.wg.Wait()
}

func (n *SilenceNotifier) handleSilenceStart(duration float64) {
	cfg := n.cfg.Snapshot()

	n.trySend(&n.webhookSent, cfg.HasWebhook(), func() {
		util.LogNotifyResult(func() error {
			return SendSilenceWebhook(cfg.WebhookURL, cfg.AudioInput, duration, cfg.SilenceThreshold)
		}, "silence webhook", true)
	})
	n.trySend(&n.emailSent, cfg.HasEmail(), func() {
		util.LogNotifyResult(func() error {
			return SendSilenceAlert(emailConfig(&cfg), cfg.AudioInput, duration, cfg.SilenceThreshold)
		}, "silence email", true)
	})
	n.trySend(&n.logSent, cfg.HasLogPath(), func() {
		util.LogNotifyResult(func() error {
			return LogSilenceStart(cfg.LogPath, cfg.AudioInput, cfg.SilenceThreshold)
		}, "silence log", true)
	})
}

// trySend sets the flag and starts sender if the channel is enabled and has
// not fired yet in this period.
func (n *SilenceNotifier) trySend(sent *bool, enabled bool, sender func()) {
	n.mu.Lock()
	shouldSend := !*sent && enabled
	if shouldSend {
		*sent = true
	}
	n.mu.Unlock()

	if shouldSend {
		n.wg.Go(sender)
	}
}

func (n *SilenceNotifier) handleSilenceEnd(totalDuration float64) {
	cfg := n.cfg.Snapshot()

	n.mu.Lock()
	webhook, email, logged := n.webhookSent, n.emailSent, n.logSent
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.mu.Unlock()

	if webhook {
		n.wg.Go(func() {
			util.LogNotifyResult(func() error {
				return SendRecoveryWebhook(cfg.WebhookURL, cfg.AudioInput, totalDuration)
			}, "recovery webhook", true)
		})
	}
	if email {
		n.wg.Go(func() {
			util.LogNotifyResult(func() error {
				return SendRecoveryAlert(emailConfig(&cfg), cfg.AudioInput, totalDuration)
			}, "recovery email", true)
		})
	}
	if logged {
		n.wg.Go(func() {
			util.LogNotifyResult(func() error {
				return LogSilenceEnd(cfg.LogPath, cfg.AudioInput, totalDuration, cfg.SilenceThreshold)
			}, "recovery log", true)
		})
	}
}

// emailConfig extracts the SMTP settings from a config snapshot.
func emailConfig(cfg *config.Snapshot) *EmailConfig {
	return &EmailConfig{
		Host:       cfg.EmailSMTPHost,
		Port:       cfg.EmailSMTPPort,
		FromName:   cfg.EmailFromName,
		Username:   cfg.EmailUsername,
		Password:   cfg.EmailPassword,
		Recipients: cfg.EmailRecipients,
	}
}

// EmailConfigFrom returns the SMTP settings of cfg.
func EmailConfigFrom(cfg *config.Config) *EmailConfig {
	snap := cfg.Snapshot()
	return emailConfig(&snap)
}
