package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewTeeCollapses(t *testing.T) {
	if _, ok := newTee(nil, nil).(discardHandler); !ok {
		t.Fatal("expected discardHandler when no sinks remain")
	}
	var buf bytes.Buffer
	only := slog.NewJSONHandler(&buf, nil)
	if h := newTee(nil, only); h != only {
		t.Fatal("expected a single sink to be returned unwrapped")
	}
}

func TestTeeRespectsSinkLevels(t *testing.T) {
	var terminal, file bytes.Buffer
	h := newTee(
		slog.NewJSONHandler(&terminal, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled on every sink")
	}

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String(FieldComponent, "consumer")}))
	logger.Info("file uploaded", slog.String(FieldMessageID, "m1"))

	if terminal.Len() != 0 {
		t.Fatalf("warn sink should drop info record, got %s", terminal.String())
	}
	if !strings.Contains(file.String(), `"component":"consumer"`) || !strings.Contains(file.String(), `"message_id":"m1"`) {
		t.Fatalf("file sink missing fields: %s", file.String())
	}
}

type failingHandler struct{ discardHandler }

func (failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestTeeKeepsWritingWhenOneSinkFails(t *testing.T) {
	var buf bytes.Buffer
	h := newTee(failingHandler{}, slog.NewJSONHandler(&buf, nil))

	err := h.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelInfo, "scan finished", 0))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected sink error, got %v", err)
	}
	if !strings.Contains(buf.String(), "scan finished") {
		t.Fatal("healthy sink should still receive the record")
	}
}
