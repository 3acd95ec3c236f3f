package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"aura-identity-service/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): want %v, got %v", in, want, got)
		}
	}
}

func TestNewLogger_AddsTraceFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "INFO", OtelEnabled: true, GoogleCloudProject: "aura-dev", OtelServiceName: "aura"}
	logger := NewLogger(&buf, cfg)

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.InfoContext(ctx, "hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}
	traceID := span.SpanContext().TraceID().String()
	if entry["trace"] != traceID {
		t.Errorf("want trace %s, got %v", traceID, entry["trace"])
	}
	if entry["logging.googleapis.com/trace"] != "projects/aura-dev/traces/"+traceID {
		t.Errorf("unexpected cloud trace field %v", entry["logging.googleapis.com/trace"])
	}
	if entry["service"] != "aura" {
		t.Errorf("want service aura, got %v", entry["service"])
	}
}

func TestNewLogger_TracingDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, &config.Config{LogLevel: "WARN"})

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.InfoContext(ctx, "dropped")
	if buf.Len() != 0 {
		t.Fatalf("want INFO suppressed at WARN, got %s", buf.String())
	}

	logger.WarnContext(ctx, "kept")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}
	if _, ok := entry["trace"]; ok {
		t.Error("want no trace field when tracing is disabled")
	}
}
