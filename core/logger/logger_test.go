package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestComponentNameField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Logger
	SetLogger(zap.New(core))
	defer SetLogger(prev)

	ctx := WithComponentName(context.Background(), "registry")
	Info(ctx, "hello", zap.Int("n", 1))
	Warn(context.Background(), "no component")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["component"]; got != "registry" {
		t.Errorf("expected component 'registry', got %v", got)
	}
	if got := entries[1].ContextMap()["component"]; got != "unknown" {
		t.Errorf("expected component 'unknown', got %v", got)
	}
}

func TestSetLevel(t *testing.T) {
	prev := Level()
	defer level.SetLevel(prev)

	if err := SetLevel("warn"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if Level() != zapcore.WarnLevel {
		t.Errorf("expected warn level, got %v", Level())
	}
	if err := SetLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
