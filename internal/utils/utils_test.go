package utils

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "debug", true)
	logger.Debug("hello", slog.String("k", "v"))

	if !strings.Contains(buf.String(), `"msg":"hello"`) || !strings.Contains(buf.String(), `"k":"v"`) {
		t.Fatalf("unexpected log output: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAppErrorPublicMessage(t *testing.T) {
	root := errors.New("dial tcp: refused")
	err := fmt.Errorf("orchestrate: %w", NewAppError("iam.token", "identity service unavailable", root))

	if !errors.Is(err, root) {
		t.Fatalf("expected AppError to unwrap to root cause")
	}
	if got := PublicMessage(err, "fallback"); got != "identity service unavailable" {
		t.Fatalf("unexpected public message: %s", got)
	}
	if got := PublicMessage(root, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %s", got)
	}
}
