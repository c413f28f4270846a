// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "trade-journal", "logs", "journal.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		writers = append(writers, consoleWriter)
	}

	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			fileWriter := &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			}
			writers = append(writers, fileWriter)
		}
	}

	var writer io.Writer
	if len(writers) == 0 {
		writer = os.Stdout
	} else if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// ContextKey is the type for context keys.
type ContextKey string

// LoggerKey is the context key for the logger.
const LoggerKey ContextKey = "logger"

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithUser adds a user ID to the logger context.
func WithUser(logger zerolog.Logger, userID string) zerolog.Logger {
	return logger.With().Str("user_id", userID).Logger()
}

// WithBroker adds a broker name to the logger context.
func WithBroker(logger zerolog.Logger, broker string) zerolog.Logger {
	return logger.With().Str("broker", broker).Logger()
}

// LogTradeIngested logs a newly ingested trade.
func LogTradeIngested(logger zerolog.Logger, broker, orderID, symbol, side string, qty int) {
	logger.Info().
		Str("event", "trade_ingested").
		Str("broker", broker).
		Str("broker_order_id", orderID).
		Str("symbol", symbol).
		Str("side", side).
		Int("quantity", qty).
		Msg("Trade ingested")
}

// LogReconcile logs a reconciliation outcome.
func LogReconcile(logger zerolog.Logger, tradeID, symbol string, pnl *float64, qty int, avg float64) {
	event := logger.Info().
		Str("event", "reconcile").
		Str("trade_id", tradeID).
		Str("symbol", symbol).
		Int("position_qty", qty).
		Float64("avg_buy_price", avg)

	if pnl != nil {
		event.Float64("pnl", *pnl).Msg("Trade reconciled")
	} else {
		event.Msg("Trade recorded without realized PnL")
	}
}

// LogClassification logs a pattern classification.
func LogClassification(logger zerolog.Logger, tradeID, symbol, patternID string, distance float64, fallback bool) {
	logger.Debug().
		Str("event", "classification").
		Str("trade_id", tradeID).
		Str("symbol", symbol).
		Str("pattern_id", patternID).
		Float64("distance", distance).
		Bool("fallback", fallback).
		Msg("Trade classified")
}

// LogSyncSummary logs the outcome of a broker sync run.
func LogSyncSummary(logger zerolog.Logger, broker string, fetched, created, reconciled, failed int, duration time.Duration) {
	logger.Info().
		Str("event", "sync").
		Str("broker", broker).
		Int("fetched", fetched).
		Int("created", created).
		Int("reconciled", reconciled).
		Int("failed", failed).
		Dur("duration", duration).
		Msg("Broker sync completed")
}
