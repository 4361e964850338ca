package capture

// PlatformConfig defines how the exec backend captures on one platform.
type PlatformConfig struct {
	// Command is the executable name (e.g., "arecord", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is selected. Empty means the
	// first listed device.
	DefaultDevice string

	// BuildArgs returns the arguments that capture device as mono S16LE
	// PCM on stdout.
	BuildArgs func(device string) []string

	// Devices lists the capture devices.
	Devices DeviceListConfig
}

// BuildCaptureCommand returns the command and arguments for capturing
// device. If device is empty, the platform default or the first listed
// device is used.
func BuildCaptureCommand(device string) (cmd string, args []string, err error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultDevice
	}
	if device == "" {
		devices := parseDeviceList(&cfg.Devices)
		if len(devices) == 0 {
			return "", nil, ErrNoAudioDevice
		}
		device = devices[0].ID
	}

	return cfg.Command, cfg.BuildArgs(device), nil
}
