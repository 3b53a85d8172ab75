package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pv/htmon/internal/config"
	"github.com/pv/htmon/internal/console"
	"github.com/pv/htmon/internal/logger"
	"github.com/pv/htmon/internal/monitor"
)

func main() {
	cfg, warnings, err := config.Parse(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "htmon: %v\n", err)
		os.Exit(2)
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.Init(cfg.LogFormat, level)
	for _, w := range warnings {
		logger.Warn(w)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid timezone", "error", err)
		os.Exit(2)
	}

	var cons *console.Console
	session := monitor.New(monitor.Options{
		Location:         loc,
		PollInterval:     cfg.PollInterval,
		SnapshotInterval: cfg.SnapshotInterval,
		MetricsFile:      cfg.MetricsFile,
		Logger:           logger.Log,
		Notify: func(title, text string) {
			cons.Notify(title, text)
		},
	})
	cons = console.New(session, os.Stdout, cfg.Baud)

	logger.Info("Starting htmon",
		"device", cfg.Device,
		"baud", cfg.Baud,
		"interval", cfg.PollInterval,
		"output", cfg.OutputDir,
	)

	// A failed connect is reported and can be retried from the console
	_ = session.Connect(cfg.Device, cfg.Baud)
	if cfg.OutputDir != "" {
		_ = session.SelectOutput(cfg.OutputDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- session.Run(ctx)
	}()

	go func() {
		err := cons.Run(ctx, os.Stdin)
		switch {
		case errors.Is(err, console.ErrQuit):
			cancel()
		case err != nil:
			logger.Warn("Console stopped", "error", err)
		default:
			logger.Info("Console input closed, running until interrupted")
		}
	}()

	if err := <-runDone; err != nil {
		logger.Error("Session failed", "error", err)
	}

	logger.Info("Shutting down...")
	if err := session.Close(); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Stopped")
}
