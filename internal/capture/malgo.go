package capture

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"

	"github.com/oszuidwest/zwfm-vumeter/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-vumeter/internal/types"
	"github.com/oszuidwest/zwfm-vumeter/internal/util"
)

// DefaultMalgoSource selects the system default capture device.
const DefaultMalgoSource = "default"

// malgoSession captures through a miniaudio device.
type malgoSession struct {
	id       string
	analyzer *Analyzer
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	stopOnce sync.Once
}

func initMalgoContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Str("source", "miniaudio").Msg(message)
	})
	if err != nil {
		return nil, util.WrapError("initialize audio context", err)
	}
	return ctx, nil
}

func freeMalgoContext(ctx *malgo.AllocatedContext) {
	if err := ctx.Uninit(); err != nil {
		log.Warn().Err(err).Msg("failed to release audio context")
	}
	ctx.Free()
}

func listMalgoSources() ([]types.Source, error) {
	ctx, err := initMalgoContext()
	if err != nil {
		return nil, err
	}
	defer freeMalgoContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, util.WrapError("enumerate capture devices", err)
	}

	sources := []types.Source{{ID: DefaultMalgoSource, Name: "System default"}}
	for _, info := range infos {
		sources = append(sources, types.Source{ID: info.ID.String(), Name: info.Name()})
	}
	return sources, nil
}

func startMalgo(id string, analyzer *Analyzer) (Session, error) {
	ctx, err := initMalgoContext()
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(ffmpeg.Channels)
	deviceConfig.SampleRate = uint32(ffmpeg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if id != "" && id != DefaultMalgoSource {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			freeMalgoContext(ctx)
			return nil, util.WrapError("enumerate capture devices", err)
		}
		found := false
		for i := range infos {
			if infos[i].ID.String() == id {
				deviceConfig.Capture.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			freeMalgoContext(ctx)
			return nil, fmt.Errorf("%w: %s", ErrNoAudioDevice, id)
		}
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			analyzer.WritePCM(input)
		},
	})
	if err != nil {
		freeMalgoContext(ctx)
		return nil, util.WrapError("initialize capture device", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		freeMalgoContext(ctx)
		return nil, util.WrapError("start capture device", err)
	}

	log.Info().Str("device", id).Msg("native audio capture started")
	return &malgoSession{id: id, analyzer: analyzer, ctx: ctx, device: device}, nil
}

// ID implements Session.
func (s *malgoSession) ID() string { return s.id }

// Latest implements Session.
func (s *malgoSession) Latest() []byte { return s.analyzer.Latest() }

// Err implements Session. miniaudio reports failures at start only.
func (s *malgoSession) Err() string { return "" }

// Stop implements Session.
func (s *malgoSession) Stop() error {
	s.stopOnce.Do(func() {
		s.device.Uninit()
		freeMalgoContext(s.ctx)
		log.Info().Str("device", s.id).Msg("native audio capture stopped")
	})
	return nil
}
