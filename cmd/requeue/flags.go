package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
)

// cliFlags holds parsed command-line flags
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	validate    bool
	showVersion bool
}

// parseFlags parses the command line. The second return value is true
// when the program should exit immediately (version output).
func parseFlags() (*cliFlags, bool) {
	flags := &cliFlags{}

	flag.StringVar(&flags.configPath, "config", "config.yaml", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&flags.logFormat, "log-format", "json", "Log format (json, text)")
	flag.BoolVar(&flags.validate, "validate", false, "Validate configuration and exit")
	flag.BoolVar(&flags.showVersion, "version", false, "Show version information")

	if envPath := os.Getenv("REQUEUE_CONFIG"); envPath != "" {
		flags.configPath = envPath
	}

	flag.Parse()

	if flags.showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return flags, true
	}
	return flags, false
}

// setupLogger builds the slog logger from the CLI settings
func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
