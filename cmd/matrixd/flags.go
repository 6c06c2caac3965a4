package main

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds matrixd's command-line configuration.
type CLIConfig struct {
	ConfigPath      string
	Mode            string
	LogLevel        string
	LogFormat       string
	MetricsPort     int
	ShutdownTimeout time.Duration
	ShowVersion     bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("MATRIX_CONFIG", "matrix.yaml"),
		"Path to the Matrix configuration document, or - for stdin (env: MATRIX_CONFIG)")

	flag.StringVar(&cfg.Mode, "mode",
		getEnv("MATRIX_MODE", ""),
		"Connection mode under connections.<mode> to wire at bring-up (env: MATRIX_MODE)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("MATRIX_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: MATRIX_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("MATRIX_LOG_FORMAT", "text"),
		"Log format: text, json (env: MATRIX_LOG_FORMAT)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("MATRIX_METRICS_PORT", 9090),
		"Prometheus /metrics and /health port, 0 to disable (env: MATRIX_METRICS_PORT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("MATRIX_SHUTDOWN_TIMEOUT", 15*time.Second),
		"Graceful shutdown timeout (env: MATRIX_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")

	flag.Parse()
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
