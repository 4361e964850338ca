//go:build darwin

package capture

import (
	"regexp"

	"github.com/oszuidwest/zwfm-vumeter/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-vumeter/internal/types"
)

var avfoundationPattern = regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`)

func getPlatformConfig() PlatformConfig {
	return PlatformConfig{
		Command:       "ffmpeg",
		DefaultDevice: ":0",
		BuildArgs: func(device string) []string {
			return ffmpeg.CaptureArgs("avfoundation", device)
		},
		Devices: DeviceListConfig{
			Command:          []string{"ffmpeg", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
			AudioStartMarker: "AVFoundation audio devices:",
			AudioStopMarker:  "AVFoundation video devices:",
			DevicePattern:    avfoundationPattern,
			ParseDevice: func(matches []string) *types.Source {
				if len(matches) < 3 {
					return nil
				}
				return &types.Source{
					ID:   ":" + matches[1],
					Name: matches[2],
				}
			},
		},
	}
}
