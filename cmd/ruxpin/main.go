// Ruxpin - animatronic bear controller.
//
// Drives the eyes and mouth motors, speaks and plays sounds with the mouth
// following the audio, and serves the control API and WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-ruxpin/internal/config"
	"github.com/teslashibe/go-ruxpin/internal/log"
	"github.com/teslashibe/go-ruxpin/pkg/actuator"
	"github.com/teslashibe/go-ruxpin/pkg/audio"
	"github.com/teslashibe/go-ruxpin/pkg/bear"
	"github.com/teslashibe/go-ruxpin/pkg/gpio"
	"github.com/teslashibe/go-ruxpin/pkg/metrics"
	"github.com/teslashibe/go-ruxpin/pkg/tts"
	"github.com/teslashibe/go-ruxpin/pkg/web"
)

var version = "dev"

const stopTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ruxpin: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config/ruxpin.yaml", "Path to the YAML config file")
	debug := flag.Bool("debug", false, "Enable debug logging and request logs")
	sim := flag.Bool("sim", false, "Run without hardware: simulated GPIO and audio, mock speech")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("ruxpin", version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *debug {
		cfg.Debug = true
		cfg.LogLevel = "DEBUG"
	}
	if *sim {
		cfg.Hardware.GPIOBackend = gpio.BackendSim
		cfg.TTS.Engine = tts.EngineMock
	}

	log.Init(cfg.LogLevel, cfg.LogFormat)
	logger := log.L()
	logger.Info("starting ruxpin",
		"version", version,
		"environment", cfg.Environment,
		"gpio", cfg.Hardware.GPIOBackend,
		"tts", cfg.TTS.Engine,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()

	driver, err := gpio.NewDriver(cfg.Hardware.GPIOBackend, logger)
	if err != nil {
		return err
	}
	pins := gpio.NewManager(driver, logger)
	defer func() {
		pins.CleanupAll()
		if err := driver.Cleanup(); err != nil {
			logger.Error("gpio release failed", "error", err)
		}
	}()

	eyes, err := newActuator("eyes", cfg.Hardware.Eyes, cfg.Behavior.DeadBand, pins, m, logger)
	if err != nil {
		return err
	}
	mouth, err := newActuator("mouth", cfg.Hardware.Mouth, cfg.Behavior.DeadBand, pins, m, logger)
	if err != nil {
		return err
	}

	synth, err := newSynth(cfg, logger)
	if err != nil {
		return err
	}
	defer synth.Close()
	if err := synth.Health(ctx); err != nil {
		logger.Warn("speech engine unavailable, speak will fail", "engine", cfg.TTS.Engine, "error", err)
	}

	var (
		player audio.Player = audio.NewExecPlayer(cfg.Audio.Device)
		mixer  audio.Mixer  = audio.NewExecMixer(cfg.Audio.Card, cfg.Audio.Mixer)
	)
	if *sim {
		s := audio.NewSimulated()
		player, mixer = s, s
	}

	engine, err := audio.New(audio.Config{
		SoundsDir:          cfg.SoundsDir,
		TTSDir:             cfg.TTS.OutputDir,
		AmplitudeThreshold: cfg.Audio.AmplitudeThreshold,
		MaxAmplitude:       cfg.Behavior.MaxAmplitude,
		Volume:             cfg.Audio.StartVolume,
		Player:             player,
		Mixer:              mixer,
		Synth:              synth,
		Logger:             logger,
		OnAmplitude:        m.SetAmplitude,
	})
	if err != nil {
		return err
	}
	if err := engine.SetVolume(ctx, cfg.Audio.StartVolume); err != nil {
		logger.Warn("could not set start volume", "volume", cfg.Audio.StartVolume, "error", err)
	}

	svc, err := bear.New(bear.Config{
		Eyes:        eyes,
		Mouth:       mouth,
		Audio:       engine,
		Behavior:    behavior(cfg.Behavior),
		PhrasesFile: cfg.PhrasesFile,
		Logger:      logger,
		Observer:    m,
	})
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}

	server, err := web.New(web.Config{
		Addr:        cfg.Addr(),
		Version:     version,
		SoundsDir:   cfg.SoundsDir,
		Debug:       cfg.Debug,
		Bear:        svc,
		GPIO:        pins,
		Metrics:     m,
		SetLogLevel: log.SetLevel,
		Logger:      logger,
	})
	if err != nil {
		stopService(svc, logger)
		return err
	}
	log.Subscribe(server.PublishLog)
	defer log.Subscribe(nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error {
		err := svc.WatchPhrases(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("phrase hot reload disabled", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutting down")
	stopService(svc, logger)
	return err
}

func newActuator(name string, c config.Actuator, deadBand int, pins actuator.Pins, m *metrics.Metrics, logger *slog.Logger) (*actuator.Actuator, error) {
	return actuator.New(actuator.Config{
		Name:            name,
		Pins:            c.Pins,
		Speed:           c.Speed,
		DefaultDuration: c.Duration,
		DeadBand:        deadBand,
		Logger:          logger,
		Observer:        m,
	}, pins)
}

func newSynth(cfg *config.Config, logger *slog.Logger) (tts.Provider, error) {
	opts := []tts.Option{
		tts.WithSpeed(cfg.TTS.Speed),
		tts.WithPitch(cfg.TTS.Pitch),
		tts.WithSampleRate(cfg.Audio.SampleRate),
		tts.WithLogger(logger),
	}
	if cfg.TTS.Voice != "" {
		opts = append(opts, tts.WithVoice(cfg.TTS.Voice))
	}
	if cfg.TTS.APIKey != "" {
		opts = append(opts, tts.WithAPIKey(cfg.TTS.APIKey))
	}
	return tts.New(cfg.TTS.Engine, opts...)
}

func behavior(b config.Behavior) bear.Behavior {
	return bear.Behavior{
		TalkInterval:     b.TalkInterval,
		TalkMoveDuration: b.TalkMoveDuration,
		IdleInterval:     b.IdleInterval,
		BlinkMin:         b.BlinkMin,
		BlinkMax:         b.BlinkMax,
		BlinkMove:        b.BlinkMove,
		BlinkPause:       b.BlinkPause,
		BlinkRecheck:     b.BlinkRecheck,
		ManualEyes:       b.ManualEyes,
		ManualMouth:      b.ManualMouth,
		BlinkEnabled:     b.BlinkEnabled,
	}
}

func stopService(svc *bear.Service, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		logger.Error("bear stop failed", "error", err)
	}
}
