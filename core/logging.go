package core

import (
	"log/slog"
	"os"
)

// ProductionLogger is a slog-backed Logger suitable for services. It emits
// structured records (JSON by default) and supports component attribution
// via WithComponent.
type ProductionLogger struct {
	logger *slog.Logger
}

// NewProductionLogger builds a logger from the logging configuration.
// Unknown levels fall back to info, unknown formats to JSON.
func NewProductionLogger(cfg LoggingConfig, serviceName string) *ProductionLogger {
	level := parseLogLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	if serviceName != "" {
		logger = logger.With("service", serviceName)
	}
	return &ProductionLogger{logger: logger}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.logger.Info(msg, fieldsToArgs(fields)...)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.logger.Error(msg, fieldsToArgs(fields)...)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.logger.Warn(msg, fieldsToArgs(fields)...)
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.logger.Debug(msg, fieldsToArgs(fields)...)
}

// WithComponent returns a logger that tags every record with the component
// name (e.g. "gorag/resilience").
func (l *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{logger: l.logger.With("component", component)}
}

func fieldsToArgs(fields map[string]interface{}) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
