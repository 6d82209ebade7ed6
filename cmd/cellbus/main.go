// Package main is the cellbus server: the cell registry, the dispatch bus and
// the composition orchestrator behind one HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/handylife-debug/webwaka-main-sub008/config"
)

// Build information, set with -ldflags.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "cellbus"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s (%s)\n", appName, Version, BuildTime)
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPaths)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		fmt.Println(cfg.String())
		return nil
	}
	if cliCfg.ShutdownTimeout > 0 {
		cfg.Server.ShutdownTimeout = config.Duration(cliCfg.ShutdownTimeout)
	}

	slog.Info("Starting cellbus",
		"version", Version,
		"build_time", BuildTime,
		"storage", cfg.Registry.Storage,
		"config_paths", cliCfg.ConfigPaths)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(logger)

	addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	if err := a.server.ListenAndServe(ctx, addr, cfg.Server.ShutdownTimeout.D()); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	slog.Info("cellbus shutdown complete")
	return nil
}

func loadConfig(paths []string) (*config.Config, error) {
	loader := config.NewLoader()
	for _, p := range paths {
		loader.AddLayer(p)
	}
	loader.EnableValidation(true)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
