package util

import "github.com/rs/zerolog/log"

// LogNotifyResult executes a notification function and logs the outcome.
// Errors are logged internally, so no error is returned.
func LogNotifyResult(fn func() error, notifyType string, enabled bool) {
	if err := fn(); err != nil {
		log.Error().Str("notification", notifyType).Err(err).Msg("notification failed")
		return
	}
	if enabled {
		log.Info().Str("notification", notifyType).Msg("notification sent")
	}
}
