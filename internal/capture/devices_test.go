package capture

import (
	"errors"
	"regexp"
	"testing"

	"github.com/oszuidwest/zwfm-vumeter/internal/types"
)

func TestParseDeviceOutput(t *testing.T) {
	avfoundation := &DeviceListConfig{
		AudioStartMarker: "AVFoundation audio devices:",
		AudioStopMarker:  "AVFoundation video devices:",
		DevicePattern:    regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`),
		ParseDevice: func(m []string) *types.Source {
			return &types.Source{ID: ":" + m[1], Name: m[2]}
		},
	}
	arecord := &DeviceListConfig{
		DevicePattern: regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`),
		ParseDevice: func(m []string) *types.Source {
			return &types.Source{ID: "default:CARD=" + m[2], Name: m[3]}
		},
		FallbackDevices: []types.Source{{ID: "default", Name: "System default"}},
	}

	tests := []struct {
		name   string
		cfg    *DeviceListConfig
		output string
		want   []types.Source
	}{
		{
			name: "avfoundation audio section only",
			cfg:  avfoundation,
			output: `[AVFoundation indev @ 0x1] AVFoundation video devices:
[AVFoundation indev @ 0x1] [0] FaceTime HD Camera
[AVFoundation indev @ 0x1] AVFoundation audio devices:
[AVFoundation indev @ 0x1] [0] MacBook Pro Microphone
[AVFoundation indev @ 0x1] [1] BlackHole 2ch`,
			want: []types.Source{
				{ID: ":0", Name: "MacBook Pro Microphone"},
				{ID: ":1", Name: "BlackHole 2ch"},
			},
		},
		{
			name: "arecord cards with duplicate subdevices",
			cfg:  arecord,
			output: `**** List of CAPTURE Hardware Devices ****
card 0: PCH [HDA Intel PCH], device 0: ALC3246 Analog [ALC3246 Analog]
card 0: PCH [HDA Intel PCH], device 2: ALC3246 Alt Analog [ALC3246 Alt Analog]
card 1: sndrpihifiberry [snd_rpi_hifiberry_dacplusadc], device 0: HiFiBerry`,
			want: []types.Source{
				{ID: "default:CARD=PCH", Name: "HDA Intel PCH"},
				{ID: "default:CARD=sndrpihifiberry", Name: "snd_rpi_hifiberry_dacplusadc"},
			},
		},
		{
			name:   "no devices falls back",
			cfg:    arecord,
			output: "arecord: device_list:279: no soundcards found...",
			want:   []types.Source{{ID: "default", Name: "System default"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseDeviceOutput(tt.cfg, tt.output)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d devices %+v, want %d", len(got), got, len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("device %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		name    string
		want    Backend
		wantErr bool
	}{
		{"", BackendExec, false},
		{"exec", BackendExec, false},
		{"malgo", BackendMalgo, false},
		{"pulse", "", true},
	}

	for _, tt := range tests {
		got, err := ParseBackend(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if tt.wantErr && !errors.Is(err, ErrUnknownBackend) {
			t.Errorf("ParseBackend(%q) err = %v, want ErrUnknownBackend", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("ParseBackend(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestStartUnknownBackend(t *testing.T) {
	_, err := Start(t.Context(), Backend("jack"), "x", Options{})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("err = %v, want ErrUnknownBackend", err)
	}
}
