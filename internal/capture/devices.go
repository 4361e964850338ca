package capture

import (
	"os/exec"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/oszuidwest/zwfm-vumeter/internal/types"
)

// ListDevices returns the capture devices the exec backend can open on the
// current platform.
func ListDevices() []types.Source {
	cfg := getPlatformConfig()
	return parseDeviceList(&cfg.Devices)
}

// DeviceListConfig defines how to list audio devices for a platform.
type DeviceListConfig struct {
	// Command and args to list devices.
	Command []string

	// AudioStartMarker indicates the start of the audio devices section.
	AudioStartMarker string

	// AudioStopMarker indicates the end of the audio devices section (optional).
	AudioStopMarker string

	// DevicePattern extracts device info from one line.
	DevicePattern *regexp.Regexp

	// ParseDevice converts regex matches to a Source.
	ParseDevice func(matches []string) *types.Source

	// FallbackDevices are returned if detection fails.
	FallbackDevices []types.Source
}

// parseDeviceList runs the listing command and parses its output.
func parseDeviceList(cfg *DeviceListConfig) []types.Source {
	if len(cfg.Command) == 0 {
		return cfg.FallbackDevices
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil && len(output) == 0 {
		log.Error().Err(err).Str("command", cfg.Command[0]).Msg("failed to list audio devices")
		return cfg.FallbackDevices
	}

	return parseDeviceOutput(cfg, string(output))
}

// parseDeviceOutput extracts devices from listing output. ffmpeg prints its
// device list on stderr with a non-zero exit, so output is parsed regardless
// of the command's exit status.
func parseDeviceOutput(cfg *DeviceListConfig, output string) []types.Source {
	var devices []types.Source
	seen := make(map[string]bool)
	inAudioSection := cfg.AudioStartMarker == ""

	for line := range strings.SplitSeq(output, "\n") {
		if cfg.AudioStartMarker != "" && strings.Contains(line, cfg.AudioStartMarker) {
			inAudioSection = true
			continue
		}
		if cfg.AudioStopMarker != "" && strings.Contains(line, cfg.AudioStopMarker) {
			inAudioSection = false
			continue
		}
		if !inAudioSection || cfg.DevicePattern == nil || cfg.ParseDevice == nil {
			continue
		}

		// DirectShow repeats each device with its moniker.
		if strings.Contains(line, "Alternative name") {
			continue
		}

		matches := cfg.DevicePattern.FindStringSubmatch(line)
		if len(matches) == 0 {
			continue
		}
		if dev := cfg.ParseDevice(matches); dev != nil && !seen[dev.ID] {
			seen[dev.ID] = true
			devices = append(devices, *dev)
		}
	}

	if len(devices) == 0 {
		return cfg.FallbackDevices
	}
	return devices
}
