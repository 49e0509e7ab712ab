package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Level: slog.LevelInfo, Component: ComponentLedger})
	l.InfoContext(context.Background(), "Transaction recorded", FieldUserID, "u1")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "user_id=u1") {
		t.Fatalf("unexpected log line: %s", out)
	}
}

func TestContextCarriesLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf, Level: slog.LevelInfo, Component: ComponentHTTP})
	ctx := NewContext(context.Background(), base.With(FieldRequestID, "req_1"))

	FromContext(ctx).InfoContext(ctx, "handled")

	if !strings.Contains(buf.String(), "request_id=req_1") {
		t.Fatalf("request id missing: %s", buf.String())
	}
}

func TestFromContextDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected default logger")
	}
}
