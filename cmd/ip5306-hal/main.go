// cmd/ip5306-hal/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ip5306-hal/bus"
	"ip5306-hal/services/hal"
	"ip5306-hal/services/hal/config"
	"ip5306-hal/services/heartbeat"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

func main() {
	cfgPath := flag.String("config", "ip5306-hal.yaml", "path to the YAML config")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	beat := flag.Duration("heartbeat", 10*time.Second, "interval of the sys/heartbeat beat; 0 disables it")
	flag.Parse()

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, *cfgPath, *beat); err != nil {
		log.Error("exiting", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, cfgPath string, beat time.Duration) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// --------------------
	// Open host buses
	// --------------------

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	buses := make(map[string]drivers.I2C, len(cfg.Buses))
	for _, bc := range cfg.Buses {
		b, err := i2creg.Open(bc.Path)
		if err != nil {
			return fmt.Errorf("open bus %s (%s): %w", bc.ID, bc.Path, err)
		}
		defer b.Close()
		buses[bc.ID] = b
		log.Info("bus opened", slog.String("bus", bc.ID), slog.String("path", bc.Path))
	}

	// --------------------
	// Bus, HAL and monitor
	// --------------------

	b := bus.NewBus(64)
	halConn := b.NewConnection("hal")
	ui := b.NewConnection("ui")
	defer ui.Disconnect()

	mon := ui.Subscribe(bus.T("hal", bus.WildMulti))
	go monitor(log, mon)

	if beat > 0 {
		go heartbeat.New(log, beat).Run(ctx, b.NewConnection("heartbeat"))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		hal.Run(ctx, halConn, hal.Options{Buses: buses, Logger: log})
	}()

	ui.Publish(ui.NewMessage(bus.T("config", "hal"), cfg.HAL, true))
	log.Info("config published", slog.Int("devices", len(cfg.HAL.Devices)), slog.Int("pollers", len(cfg.HAL.Pollers)))

	<-done
	return nil
}

// monitor logs HAL state and capability traffic until the subscription closes.
func monitor(log *slog.Logger, sub *bus.Subscription) {
	for m := range sub.Channel() {
		log.Info("hal", slog.String("topic", topicString(m.Topic)), slog.Any("payload", m.Payload))
	}
}

func topicString(t bus.Topic) string {
	s := ""
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			s += "/"
		}
		s += fmt.Sprint(t.At(i))
	}
	return s
}
