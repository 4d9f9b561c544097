package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}

	// Re-initialization must be safe
	if err := Init(); err != nil {
		t.Fatalf("failed to re-initialize logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after re-initialization")
	}
}

func TestLoggerBasic(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	logger := Get()
	logger.Debug(ctx, "debug message", String("k", "v"))
	logger.Info(ctx, "info message", Int("count", 3), Float64("score", 0.5))
	logger.Warn(ctx, "warn message", Bool("flag", true))
	logger.Error(ctx, "error message", Any("payload", []int{1, 2}))
}

func TestLoggerNamed(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	named := Named("pagerank")
	if named == nil {
		t.Fatal("named logger is nil")
	}
	named.Info(context.Background(), "named message")

	deeper := named.Named("inner")
	if deeper == nil {
		t.Fatal("nested named logger is nil")
	}
	deeper.Info(context.Background(), "nested message")
}

func TestLoggerLevels(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	SetLevel(slog.LevelWarn)
	defer SetLevel(slog.LevelInfo)

	// Suppressed levels must not panic
	Get().Debug(context.Background(), "suppressed")
	Get().Info(context.Background(), "suppressed")

	if err := SetLevelString("debug"); err != nil {
		t.Fatalf("failed to set level by string: %v", err)
	}
	if err := SetLevelString("bogus"); err == nil {
		t.Fatal("expected an error for an unknown level string")
	}
}

func TestNopLogger(t *testing.T) {
	nop := Nop()
	if nop == nil {
		t.Fatal("nop logger is nil")
	}

	ctx := context.Background()
	nop.Debug(ctx, "ignored")
	nop.Info(ctx, "ignored", String("k", "v"))
	nop.Warn(ctx, "ignored")
	nop.Error(ctx, "ignored")

	if nop.Named("x") == nil {
		t.Fatal("nop Named returned nil")
	}
}
