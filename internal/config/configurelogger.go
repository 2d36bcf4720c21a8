package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

var errUnknownLogLevel = errors.New("unexpected log level")

var logLevels = map[string]slog.Level{
	"error": slog.LevelError,
	"warn":  slog.LevelWarn,
	"info":  slog.LevelInfo,
	"debug": slog.LevelDebug,
}

// Configure the default slog logger with a log level and an optional output file.
//
// Valid log levels are "none", "error", "warn", "info", "debug"; "none" discards everything.
// With an empty logFile the logger writes text to stdout, otherwise JSON to the file,
// which is truncated first. At "debug" every record carries its source location.
//
// Returns the file slog writes to, or nil for stdout, so the caller can close it on exit:
// ```
// logFilePointer, err := config.ConfigureDefaultLogger(level, file, slog.HandlerOptions{})
//
//	if logFilePointer != nil {
//		defer logFilePointer.Close()
//	}
//
// ```
func ConfigureDefaultLogger(logLevel string, logFile string, loggerOptions slog.HandlerOptions) (*os.File, error) {
	if logLevel == "none" {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return nil, nil
	}

	level, ok := logLevels[logLevel]
	if !ok {
		return nil, fmt.Errorf("%w %q", errUnknownLogLevel, logLevel)
	}
	loggerOptions.Level = level
	loggerOptions.AddSource = loggerOptions.AddSource || level == slog.LevelDebug

	// --------------------------------------------------------------------------------

	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &loggerOptions)))
		return nil, nil
	}

	logFilePointer, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(logFilePointer, &loggerOptions)))
	return logFilePointer, nil
}
