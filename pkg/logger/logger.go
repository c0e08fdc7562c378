package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sakura-go/sakura/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	jsonTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	textTimeFormat = "2006-01-02 15:04:05"
)

// NewLogger builds the process logger from the logging section. Command
// results are printed on stdout, so log lines go to stderr unless told
// otherwise.
func NewLogger(cfg *config.LoggingConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	out, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}

	return &logrus.Logger{
		Out:       out,
		Formatter: formatterFor(cfg.Format),
		Hooks:     make(logrus.LevelHooks),
		Level:     level,
		ExitFunc:  os.Exit,
	}, nil
}

func formatterFor(format string) logrus.Formatter {
	if format != "json" {
		return &logrus.TextFormatter{TimestampFormat: textTimeFormat, FullTimestamp: true}
	}
	return &logrus.JSONFormatter{
		TimestampFormat: jsonTimeFormat,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	}
}

// openOutput returns the writer named by cfg.Output. Files rotate by size.
func openOutput(cfg *config.LoggingConfig) (io.Writer, error) {
	switch cfg.Output {
	case "stdout":
		return os.Stdout, nil
	case "file":
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		return &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   true,
		}, nil
	default:
		return os.Stderr, nil
	}
}

// WithOperation adds the gateway request fields to logger
func WithOperation(logger *logrus.Logger, operation, requestID string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"operation":  operation,
		"request_id": requestID,
	})
}
