package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextFieldsSurviveThroughChain(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Output: &buf, Level: zerolog.InfoLevel})

	ctx := logg.WithRequestID(context.Background(), "req-1")
	ctx = logg.WithMediaID(ctx, "media-9")
	logg.Info(ctx, "hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["request_id"] != "req-1" {
		t.Fatalf("missing request_id in %v", entry)
	}
	if entry["media_id"] != "media-9" {
		t.Fatalf("missing media_id in %v", entry)
	}
	if entry["service"] != "test" {
		t.Fatalf("missing service field in %v", entry)
	}
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Output: &buf, Level: zerolog.InfoLevel})

	logg.Debug(context.Background(), "quiet")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"":        zerolog.InfoLevel,
		"nonsene": zerolog.InfoLevel,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v want %v", input, got, want)
		}
	}
}

func TestErrorIncludesStack(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Output: &buf})

	logg.Error(context.Background(), "boom", nil)
	if !strings.Contains(buf.String(), "stack") {
		t.Fatal("expected stack field on error log")
	}
}
