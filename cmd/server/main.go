package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sencol/hub/internal/config"
	"github.com/sencol/hub/internal/control"
	"github.com/sencol/hub/internal/hub"
	"github.com/sencol/hub/internal/logger"
)

func main() {
	flags := pflag.NewFlagSet("sencol-hub", pflag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "path to config file")
	prefix := flags.StringP("output", "o", "", "prefix for the startup session directory (default from config, UNNAMED)")
	port := flags.Int("port", 0, "override server port")
	mockMode := flags.Bool("mock", false, "replace every device with a simulated sensor")
	logLevel := flags.String("log-level", "", "override log level (debug, info, warn, error)")
	noConsole := flags.Bool("no-console", false, "do not read ON/OFF commands from stdin")
	flags.Parse(os.Args[1:])

	cfg, err := loadConfig(*configPath, *mockMode && !flags.Changed("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sencol-hub: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *mockMode {
		cfg.UseMock()
	}
	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "sencol-hub: logging: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithComponent("main")

	h, err := hub.New(hub.Options{Config: cfg, Prefix: *prefix})
	if err != nil {
		log.Error().Err(err).Msg("building hub")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := h.Start()
	log.Info().Str("session", res.Info.ID).Bool("locked", res.Info.Locked).Int("devices", len(h.Devices())).Msg("hub started")

	if !*noConsole {
		console := control.NewConsole(os.Stdin, os.Stdout, h.Sessions(), logger.WithComponent("console"))
		go func() {
			if err := console.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("console closed")
			}
		}()
	}

	serveErr := h.Serve(ctx)
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		log.Error().Err(serveErr).Msg("server error")
	}
	if err := h.Stop(); err != nil {
		log.Error().Err(err).Msg("closing session")
	}
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		os.Exit(1)
	}
}

// loadConfig reads path. With allowDefault, a missing file falls back to
// the built-in simulated setup.
func loadConfig(path string, allowDefault bool) (*config.Config, error) {
	if allowDefault {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}
