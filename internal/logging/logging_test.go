package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"whalewatcher/internal/core"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"loud":  zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewBuildsBothFormats(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := New("debug", format, "whalewatcher")
		if err != nil {
			t.Fatalf("new %s: %v", format, err)
		}
		if !logger.Core().Enabled(zapcore.DebugLevel) {
			t.Fatalf("%s logger should enable debug", format)
		}
	}
}

func TestAdapterForwardsStructuredFields(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	adapter := NewAdapter(zap.New(obsCore))

	adapter.Debug("debug", "op", "advance_stage")
	adapter.Info("info")
	adapter.Warn("warn", "rule", "gap_integrity")
	adapter.Error("error", "error", "boom")

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[0].ContextMap()["op"] != "advance_stage" {
		t.Fatalf("missing structured field: %+v", entries[0].ContextMap())
	}
	if entries[3].Level != zapcore.ErrorLevel {
		t.Fatalf("unexpected level %v", entries[3].Level)
	}
}

func TestAdapterDrivesServiceLogging(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(),
		core.WithLogger(NewAdapter(zap.New(obsCore))),
		core.WithStrictLookups(true),
	)
	if _, _, err := svc.AdvanceStage(context.Background(), "CASE-X"); err == nil {
		t.Fatalf("expected not found")
	}
	if logs.FilterMessage("action rejected").Len() != 1 {
		t.Fatalf("expected rejection to be logged, got %+v", logs.All())
	}
	NewAdapter(nil).Info("discarded")
}
