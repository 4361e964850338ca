//go:build linux

package capture

import (
	"regexp"
	"strconv"

	"github.com/oszuidwest/zwfm-vumeter/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-vumeter/internal/types"
)

var arecordCardPattern = regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`)

func getPlatformConfig() PlatformConfig {
	return PlatformConfig{
		Command:       "arecord",
		DefaultDevice: "default",
		BuildArgs:     buildLinuxArgs,
		Devices:       linuxDeviceList(),
	}
}

func buildLinuxArgs(device string) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(ffmpeg.SampleRate),
		"-c", strconv.Itoa(ffmpeg.Channels),
		"-t", "raw",
		"-q",
		"-",
	}
}

func linuxDeviceList() DeviceListConfig {
	return DeviceListConfig{
		Command:       []string{"arecord", "-l"},
		DevicePattern: arecordCardPattern,
		ParseDevice: func(matches []string) *types.Source {
			if len(matches) < 4 {
				return nil
			}
			return &types.Source{
				ID:   "default:CARD=" + matches[2],
				Name: matches[3],
			}
		},
		FallbackDevices: []types.Source{
			{ID: "default", Name: "System default"},
		},
	}
}
