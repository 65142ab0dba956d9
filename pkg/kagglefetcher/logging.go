// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package kagglefetcher

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defaults.
const (
	DefaultLogDir  = "logs"
	DefaultLogFile = "kaggle_fetcher.log"
	DefaultLogName = "kagglefetcher"
)

// SetupLogger builds a logger named name that writes to dir/file and to
// stderr. The returned func flushes and closes the file.
func SetupLogger(dir, file, name string) (*zap.Logger, func() error, error) {
	return NewLogger(LogConfig{
		Enabled: true,
		Dir:     dir,
		File:    file,
		Name:    name,
		Console: true,
	})
}

// NewLogger builds a logger from cfg. A disabled config yields a no-op
// logger. The returned func flushes and closes the log file, if any.
func NewLogger(cfg LogConfig) (*zap.Logger, func() error, error) {
	noop := func() error { return nil }
	if !cfg.Enabled {
		return zap.NewNop(), noop, nil
	}

	level, err := parseLevel(defaultString(cfg.Level, "info"))
	if err != nil {
		return nil, noop, err
	}

	dir, err := EnsureDir(defaultString(cfg.Dir, DefaultLogDir))
	if err != nil {
		return nil, noop, fmt.Errorf("failed to create log dir: %w", err)
	}
	path := filepath.Join(dir, defaultString(cfg.File, DefaultLogFile))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to open log file: %w", err)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(f), level),
	}
	if cfg.Console {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stderr), level))
	}

	logger := zap.New(zapcore.NewTee(cores...)).Named(defaultString(cfg.Name, DefaultLogName))
	closer := func() error {
		_ = logger.Sync()
		return f.Close()
	}
	return logger, closer, nil
}

// NewConsoleLogger builds a stderr-only logger at the given level.
func NewConsoleLogger(level string) (*zap.Logger, error) {
	lvl, err := parseLevel(defaultString(level, "info"))
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stderr), lvl)
	return zap.New(core).Named(DefaultLogName), nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.LevelKey = "level"
	cfg.NameKey = "logger"
	cfg.MessageKey = "msg"
	cfg.CallerKey = ""
	return cfg
}

// parseLevel converts string log level to zapcore.Level
func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}
