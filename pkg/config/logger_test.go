package config

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Levels(t *testing.T) {
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug to be enabled")
	}

	_, err = NewLogger("chatty")
	if err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewLogger_FallsBackToEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")

	logger, err := NewCLILogger("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("expected info to be disabled at warn")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Error("expected warn to be enabled")
	}
}
