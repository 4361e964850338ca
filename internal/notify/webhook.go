package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-vumeter/internal/util"
)

// webhookClient is shared by all webhook deliveries.
var webhookClient = &http.Client{Timeout: 10 * time.Second}

// WebhookPayload is the JSON body posted to the webhook URL.
type WebhookPayload struct {
	Event           string  `json:"event"`
	SourceID        string  `json:"source_id,omitzero"`
	SilenceDuration float64 `json:"silence_duration,omitzero"`
	Threshold       float64 `json:"threshold,omitzero"`
	Message         string  `json:"message,omitzero"`
	Timestamp       string  `json:"timestamp"`
}

// SendSilenceWebhook reports that the meter has been silent for duration seconds.
func SendSilenceWebhook(webhookURL, sourceID string, duration, threshold float64) error {
	return sendWebhook(webhookURL, WebhookPayload{
		Event:           "silence_detected",
		SourceID:        sourceID,
		SilenceDuration: duration,
		Threshold:       threshold,
		Timestamp:       util.RFC3339Now(),
	})
}

// SendRecoveryWebhook reports that audio returned after silenceDuration seconds.
func SendRecoveryWebhook(webhookURL, sourceID string, silenceDuration float64) error {
	return sendWebhook(webhookURL, WebhookPayload{
		Event:           "silence_recovered",
		SourceID:        sourceID,
		SilenceDuration: silenceDuration,
		Timestamp:       util.RFC3339Now(),
	})
}

// SendTestWebhook posts a test event to verify the webhook configuration.
func SendTestWebhook(webhookURL string) error {
	if webhookURL == "" {
		return errors.New("webhook URL not configured")
	}

	return sendWebhook(webhookURL, WebhookPayload{
		Event:     "test",
		Message:   "This is a test notification from ZuidWest FM VU Meter",
		Timestamp: util.RFC3339Now(),
	})
}

// sendWebhook posts payload as JSON. An empty URL is a no-op.
func sendWebhook(webhookURL string, payload WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	resp, err := webhookClient.Post(webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
