package logger_test

import (
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hazz-dev/uptimebot/internal/logger"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := logger.ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := logger.ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNew(t *testing.T) {
	for _, pretty := range []bool{false, true} {
		l, sync, err := logger.New("debug", pretty)
		if err != nil {
			t.Fatalf("New(pretty=%v): %v", pretty, err)
		}
		if l == nil || sync == nil {
			t.Fatal("expected logger and sync func")
		}
	}
	if _, _, err := logger.New("loud", false); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestFromCore_ForwardsAttributes(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := logger.FromCore(core)

	l.Debug("hidden")
	l.Info("service added", "name", "api", "owner", int64(7))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Message != "service added" {
		t.Errorf("message = %q", e.Message)
	}
	fields := e.ContextMap()
	if fields["name"] != "api" || fields["owner"] != int64(7) {
		t.Errorf("unexpected fields %v", fields)
	}
}
