package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// CLIConfig holds the parsed command line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	Validate        bool
	ShowVersion     bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("CASTMARK_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: CASTMARK_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("CASTMARK_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error; overrides config (env: CASTMARK_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("CASTMARK_LOG_FORMAT", ""),
		"Log format: json, text; overrides config (env: CASTMARK_LOG_FORMAT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("CASTMARK_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: CASTMARK_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.Validate, "validate", false,
		"Validate configuration and exit")

	flag.BoolVar(&cfg.ShowVersion, "version", false,
		"Print version and exit")

	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown-timeout must be positive, got %s", cfg.ShutdownTimeout)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
