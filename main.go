// Package main runs the VU meter: it captures audio from a selectable
// source, drives an analog-style needle and serves it over HTTP.
//
// Usage:
//
//	vumeter [-config path/to/config.yaml] [-list-sources] [-log-level debug]
//
// If -config is not specified, the meter looks for config.json in the same
// directory as the binary.
package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"

	"github.com/oszuidwest/zwfm-vumeter/internal/capture"
	"github.com/oszuidwest/zwfm-vumeter/internal/config"
	"github.com/oszuidwest/zwfm-vumeter/internal/engine"
	"github.com/oszuidwest/zwfm-vumeter/internal/logger"
	"github.com/oszuidwest/zwfm-vumeter/internal/meter"
	"github.com/oszuidwest/zwfm-vumeter/internal/notify"
	"github.com/oszuidwest/zwfm-vumeter/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file, .json or .yaml (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	listSources := flag.Bool("list-sources", false, "List capture sources and exit")
	logLevel := flag.String("log-level", "", "Override the configured log level (trace, debug, info, warn, error)")
	flag.Parse()

	logger.Setup(os.Stderr, "info")

	if *showVersion {
		color.New(color.Bold).Printf("zwfm-vumeter %s", Version)
		fmt.Printf(" (commit %s, built %s)\n", Commit, BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get executable path")
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
	}
	logger.SetLevel(cmp.Or(*logLevel, cfg.LogLevelName()))
	log.Info().Str("path", cfg.Path()).Msg("using config file")

	if *listSources {
		if err := printSources(cfg.AudioBackend()); err != nil {
			log.Fatal().Err(err).Msg("failed to list sources")
		}
		return
	}

	notifier := notify.NewSilenceNotifier(cfg)
	opts, err := engineOptions(cfg, notifier)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid meter configuration")
	}
	eng := engine.New(opts)

	ctx, cancel := signal.NotifyContext(context.Background(), util.ShutdownSignals()...)
	defer cancel()

	if err := eng.Start(ctx, cfg.AudioInput()); err != nil {
		log.Fatal().Err(err).Msg("failed to start meter")
	}

	version := NewVersionChecker()
	go version.Run(ctx)

	srv := NewServer(cfg, eng, version)
	httpServer := srv.Start(ctx)

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := eng.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping meter")
	}
	notifier.Wait()

	log.Info().Msg("shutdown complete")
}

// engineOptions translates the meter configuration into engine options.
func engineOptions(cfg *config.Config, handler engine.SilenceHandler) (engine.Options, error) {
	m := cfg.MeterSettings()

	backend, err := capture.ParseBackend(cfg.AudioBackend())
	if err != nil {
		return engine.Options{}, err
	}
	strategy := meter.Strategy(m.Strategy)
	dynamics, err := meter.NewDynamics(strategy, m.Stiffness, m.Damping, m.Alpha)
	if err != nil {
		return engine.Options{}, err
	}
	estimator, err := meter.ParseEstimator(m.Estimator)
	if err != nil {
		return engine.Options{}, err
	}

	return engine.Options{
		Backend: backend,
		Capture: capture.Options{
			FFTSize:   m.FFTSize,
			Smoothing: m.Smoothing,
		},
		Meter: meter.Options{
			Detector:  meter.Detector{Estimator: estimator, Gain: m.Gain},
			Dynamics:  dynamics,
			PeakDecay: m.PeakDecay,
		},
		Strategy:       strategy,
		TickRate:       m.TickRate,
		SilenceConfig:  cfg.SilenceConfig,
		SilenceHandler: handler,
	}, nil
}

func printSources(backendName string) error {
	backend, err := capture.ParseBackend(backendName)
	if err != nil {
		return err
	}
	sources, err := capture.ListSources(backend)
	if err != nil {
		return err
	}

	header := color.New(color.FgCyan, color.Bold)
	id := color.New(color.FgGreen)
	header.Printf("Capture sources (%s):\n", backend)
	for _, s := range sources {
		fmt.Printf("  %s  %s\n", id.Sprint(s.ID), s.Name)
	}
	return nil
}
