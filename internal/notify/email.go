// Package notify delivers silence alerts by webhook, e-mail and log file.
package notify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/oszuidwest/zwfm-vumeter/internal/util"
)

// EmailConfig contains SMTP server settings for email notifications.
type EmailConfig struct {
	Host       string
	Port       int
	FromName   string
	Username   string
	Password   string
	Recipients string
}

// SendSilenceAlert mails that the meter has been silent for duration seconds.
// It does nothing when email is not configured.
func SendSilenceAlert(cfg *EmailConfig, sourceID string, duration, threshold float64) error {
	if !util.IsConfigured(cfg.Host, cfg.Username, cfg.Recipients) {
		return nil
	}

	subject := "[ALERT] Silence Detected - ZuidWest FM VU Meter"
	body := fmt.Sprintf(
		"The VU meter input has been silent.\n\n"+
			"Source:    %s\n"+
			"Duration:  %.1f seconds\n"+
			"Threshold: %.1f dB\n"+
			"Time:      %s\n\n"+
			"Please check the audio source.",
		sourceLabel(sourceID), duration, threshold, util.HumanTime(),
	)

	return sendEmail(cfg, subject, body)
}

// SendRecoveryAlert mails that audio returned on the meter input.
func SendRecoveryAlert(cfg *EmailConfig, sourceID string, silenceDuration float64) error {
	if !util.IsConfigured(cfg.Host, cfg.Username, cfg.Recipients) {
		return nil
	}

	subject := "[OK] Audio Recovered - ZuidWest FM VU Meter"
	body := fmt.Sprintf(
		"Audio returned on the VU meter input.\n\n"+
			"Source:         %s\n"+
			"Silence lasted: %.1f seconds\n"+
			"Time:           %s",
		sourceLabel(sourceID), silenceDuration, util.HumanTime(),
	)

	return sendEmail(cfg, subject, body)
}

// SendTestEmail sends a test email to verify SMTP configuration.
func SendTestEmail(cfg *EmailConfig) error {
	switch {
	case cfg.Host == "":
		return errors.New("SMTP host not configured")
	case cfg.Username == "":
		return errors.New("email username not configured")
	case cfg.Recipients == "":
		return errors.New("email recipients not configured")
	}

	subject := "[TEST] ZuidWest FM VU Meter"
	body := fmt.Sprintf(
		"Test email from the VU meter.\n\n"+
			"Time: %s\n\n"+
			"SMTP configuration is working correctly.",
		util.HumanTime(),
	)

	return sendEmail(cfg, subject, body)
}

func sourceLabel(id string) string {
	if id == "" {
		return "(none)"
	}
	return id
}

// parseRecipients splits a comma-separated address list.
func parseRecipients(list string) []string {
	var recipients []string
	for r := range strings.SplitSeq(list, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return recipients
}

// tlsOptions returns the TLS policy for the SMTP port.
func tlsOptions(port int) mail.Option {
	switch port {
	case 465: // SMTPS - implicit TLS
		return mail.WithSSL()
	case 587: // Submission - STARTTLS required
		return mail.WithTLSPortPolicy(mail.TLSMandatory)
	default: // Port 25 or custom - opportunistic TLS
		return mail.WithTLSPortPolicy(mail.TLSOpportunistic)
	}
}

// sendEmail delivers an email message to configured recipients.
func sendEmail(cfg *EmailConfig, subject, body string) error {
	recipients := parseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return errors.New("no valid recipients")
	}

	m := mail.NewMsg()
	if cfg.FromName != "" {
		if err := m.FromFormat(cfg.FromName, cfg.Username); err != nil {
			return util.WrapError("set from address", err)
		}
	} else if err := m.From(cfg.Username); err != nil {
		return util.WrapError("set from address", err)
	}
	if err := m.To(recipients...); err != nil {
		return util.WrapError("set recipient address", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)

	c, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		tlsOptions(cfg.Port),
	)
	if err != nil {
		return util.WrapError("create SMTP client", err)
	}

	if err := c.DialAndSend(m); err != nil {
		return util.WrapError("send email", err)
	}

	return nil
}
