package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths     []string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	Validate        bool
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	var configPaths string
	fs.StringVar(&configPaths, "config",
		getEnv("CELLBUS_CONFIG", ""),
		"Comma-separated JSON config files, later files override earlier ones (env: CELLBUS_CONFIG)")
	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("CELLBUS_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: CELLBUS_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("CELLBUS_LOG_FORMAT", "json"),
		"Log format: json, text (env: CELLBUS_LOG_FORMAT)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("CELLBUS_SHUTDOWN_TIMEOUT", 0),
		"Graceful shutdown timeout, overrides server.shutdown_timeout (env: CELLBUS_SHUTDOWN_TIMEOUT)")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		_, _ = fmt.Fprintf(fs.Output(), `%s - cell registry, dispatch bus and composition orchestrator

Usage: %s [options]

Options:
`, appName, appName)
		fs.PrintDefaults()
		_, _ = fmt.Fprintf(fs.Output(), `
Examples:
  # In-memory registry on :8080
  %s --log-format=text

  # Layered configuration
  %s --config=/etc/cellbus/base.json,/etc/cellbus/prod.json

  # Validate configuration only
  %s --config=cellbus.json --validate
`, appName, appName, appName)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if configPaths != "" {
		for _, p := range strings.Split(configPaths, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.ConfigPaths = append(cfg.ConfigPaths, p)
			}
		}
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}
	for _, p := range cfg.ConfigPaths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("config file not found: %s", p)
		}
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
