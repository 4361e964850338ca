// Package ffmpeg builds FFmpeg capture commands and interprets their output.
package ffmpeg

import (
	"bytes"

	ffmpeggo "github.com/u2takey/ffmpeg-go"
)

// MaxStderrSize limits the stderr buffer to prevent memory exhaustion.
const MaxStderrSize = 64 * 1024 // 64KB

// Capture PCM format shared by every backend.
const (
	SampleRate = 48000
	Channels   = 1
)

func init() {
	ffmpeggo.LogCompiledCommand = false
}

// ExtractLastError extracts the last meaningful error line from FFmpeg stderr.
// Returns empty string if no meaningful error found.
func ExtractLastError(stderr string) string {
	if stderr == "" {
		return ""
	}
	lines := bytes.Split([]byte(stderr), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := string(bytes.TrimSpace(lines[i]))
		if line != "" {
			if len(line) > 200 {
				return line[:200] + "..."
			}
			return line
		}
	}
	return ""
}

// CaptureArgs returns FFmpeg arguments that read device through the given
// input format (avfoundation, dshow, pulse, ...) and write mono S16LE PCM
// to stdout.
func CaptureArgs(inputFormat, device string) []string {
	return ffmpeggo.Input(device, ffmpeggo.KwArgs{"f": inputFormat}).
		Output("pipe:1", ffmpeggo.KwArgs{
			"f":  "s16le",
			"ac": Channels,
			"ar": SampleRate,
		}).
		GlobalArgs("-nostdin", "-hide_banner", "-loglevel", "warning").
		GetArgs()
}
