// ruxpin-actuate - bench tool that drives the eyes and mouth directly.
//
// Usage:
//
//	ruxpin-actuate -action open -target all
//	ruxpin-actuate -action cycle -target mouth -count 5
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-ruxpin/internal/config"
	"github.com/teslashibe/go-ruxpin/internal/log"
	"github.com/teslashibe/go-ruxpin/pkg/actuator"
	"github.com/teslashibe/go-ruxpin/pkg/gpio"
)

func main() {
	configPath := flag.String("config", "config/ruxpin.yaml", "Path to the YAML config file")
	action := flag.String("action", "close", "open, close or cycle")
	target := flag.String("target", "all", "eyes, mouth or all")
	count := flag.Int("count", 3, "Number of open/close cycles for -action cycle")
	pause := flag.Duration("pause", 500*time.Millisecond, "Pause between cycle steps")
	backend := flag.String("gpio", "", "GPIO backend override: auto, vattu or sim")
	flag.Parse()

	if err := run(*configPath, *action, *target, *backend, *count, *pause); err != nil {
		fmt.Fprintf(os.Stderr, "ruxpin-actuate: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, action, target, backend string, count int, pause time.Duration) error {
	switch action {
	case "open", "close", "cycle":
	default:
		return fmt.Errorf("unknown action %q", action)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if backend != "" {
		cfg.Hardware.GPIOBackend = backend
	}
	log.Init(cfg.LogLevel, cfg.LogFormat)
	logger := log.L()

	specs := map[string]config.Actuator{}
	switch target {
	case "eyes":
		specs["eyes"] = cfg.Hardware.Eyes
	case "mouth":
		specs["mouth"] = cfg.Hardware.Mouth
	case "all":
		specs["eyes"] = cfg.Hardware.Eyes
		specs["mouth"] = cfg.Hardware.Mouth
	default:
		return fmt.Errorf("unknown target %q", target)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	driver, err := gpio.NewDriver(cfg.Hardware.GPIOBackend, logger)
	if err != nil {
		return err
	}
	pins := gpio.NewManager(driver, logger)
	defer func() {
		pins.CleanupAll()
		driver.Cleanup()
	}()

	var acts []*actuator.Actuator
	for _, name := range []string{"eyes", "mouth"} {
		spec, ok := specs[name]
		if !ok {
			continue
		}
		act, err := actuator.New(actuator.Config{
			Name:            name,
			Pins:            spec.Pins,
			Speed:           spec.Speed,
			DefaultDuration: spec.Duration,
			DeadBand:        cfg.Behavior.DeadBand,
			Logger:          logger,
		}, pins)
		if err != nil {
			return err
		}
		if err := act.Initialize(); err != nil {
			return err
		}
		defer act.Cleanup()
		acts = append(acts, act)
	}

	each := func(fn func(*actuator.Actuator) error) error {
		for _, a := range acts {
			if err := fn(a); err != nil {
				return err
			}
			fmt.Printf("%-5s %s\n", a.Name(), a.State())
		}
		return nil
	}
	open := func(a *actuator.Actuator) error { return a.Open(ctx) }
	shut := func(a *actuator.Actuator) error { return a.Close(ctx) }

	switch action {
	case "open":
		return each(open)
	case "close":
		return each(shut)
	}

	for i := 0; i < count; i++ {
		if err := each(open); err != nil {
			return err
		}
		if err := sleep(ctx, pause); err != nil {
			return err
		}
		if err := each(shut); err != nil {
			return err
		}
		if err := sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
