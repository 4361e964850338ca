//go:build windows

package capture

import (
	"regexp"
	"strings"

	"github.com/oszuidwest/zwfm-vumeter/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-vumeter/internal/types"
)

var dshowPattern = regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"`)

func getPlatformConfig() PlatformConfig {
	return PlatformConfig{
		Command:       "ffmpeg",
		DefaultDevice: "", // No safe default on Windows
		BuildArgs: func(device string) []string {
			return ffmpeg.CaptureArgs("dshow", device)
		},
		Devices: DeviceListConfig{
			Command:          []string{"ffmpeg", "-f", "dshow", "-list_devices", "true", "-i", "dummy"},
			AudioStartMarker: "DirectShow audio devices",
			AudioStopMarker:  "DirectShow video devices",
			DevicePattern:    dshowPattern,
			ParseDevice: func(matches []string) *types.Source {
				if len(matches) < 2 {
					return nil
				}
				name := strings.TrimSpace(matches[1])
				return &types.Source{
					ID:   "audio=" + name,
					Name: name,
				}
			},
		},
	}
}
