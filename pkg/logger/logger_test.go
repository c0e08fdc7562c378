package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sakura-go/sakura/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(&config.LoggingConfig{Level: "chatty"}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestNewLoggerOutputs(t *testing.T) {
	log, err := NewLogger(&config.LoggingConfig{Level: "warn", Output: "stderr"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if log.Out != os.Stderr || log.GetLevel() != logrus.WarnLevel {
		t.Fatalf("unexpected logger setup: out=%v level=%v", log.Out, log.GetLevel())
	}

	path := filepath.Join(t.TempDir(), "nested", "sakura.log")
	log, err = NewLogger(&config.LoggingConfig{
		Level:  "info",
		Output: "file",
		File:   config.FileConfig{Path: path, MaxSize: 1},
	})
	if err != nil {
		t.Fatalf("new file logger: %v", err)
	}
	rotating, ok := log.Out.(*lumberjack.Logger)
	if !ok || rotating.Filename != path {
		t.Fatalf("expected a rotating file writer, got %T", log.Out)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("expected log directory to exist: %v", err)
	}
}

func TestWithOperationJSON(t *testing.T) {
	log, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	var buf bytes.Buffer
	log.SetOutput(&buf)

	WithOperation(log, "search", "req-1").Info("done")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["operation"] != "search" || entry["request_id"] != "req-1" || entry["message"] != "done" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewLoggerTextFormat(t *testing.T) {
	log, err := NewLogger(&config.LoggingConfig{Level: "debug"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	text, ok := log.Formatter.(*logrus.TextFormatter)
	if !ok || !text.FullTimestamp {
		t.Fatalf("expected a full-timestamp text formatter, got %T", log.Formatter)
	}

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithField("chat_id", "xK9mQ2p").Debug("sent")
	if !bytes.Contains(buf.Bytes(), []byte("chat_id=xK9mQ2p")) {
		t.Fatalf("expected debug line with fields, got %q", buf.String())
	}
}
