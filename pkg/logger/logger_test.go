package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func resetSingleton() {
	log = nil
	once = sync.Once{}
}

func TestInitAndContextLogging(t *testing.T) {
	Init("development")
	if GetLogger() == nil {
		t.Fatal("expected logger initialized")
	}

	ctx := context.WithValue(context.Background(), "request_id", "req-1")
	if WithContext(ctx) == nil {
		t.Fatal("expected contextual logger")
	}

	Info(ctx, "info")
	Debug(ctx, "debug")
	Warn(ctx, "warn")
	Error(ctx, "error")
	LogRequest(ctx, "POST", "/webhooks/ccbill", 200, 10*time.Millisecond, "127.0.0.1")
}

func TestWithContextNil(t *testing.T) {
	Init("development")
	if WithContext(nil) == nil {
		t.Fatal("expected base logger for nil context")
	}
}

func TestWithContextTypedKeys(t *testing.T) {
	Init("development")
	ctx := context.WithValue(context.Background(), RequestIDKey, "typed-req-id")
	ctx = context.WithValue(ctx, CorrelationIDKey, "corr-42")
	if WithContext(ctx) == nil {
		t.Fatal("expected logger with typed context keys")
	}
}

func TestInit_ProductionAndWithContextWithoutFields(t *testing.T) {
	// reset package singleton to cover production init branch deterministically
	resetSingleton()

	Init("production")
	if GetLogger() == nil {
		t.Fatal("expected production logger initialized")
	}

	if WithContext(context.Background()) == nil {
		t.Fatal("expected logger without contextual fields")
	}
}

func TestSetLevelRoundTrip(t *testing.T) {
	resetSingleton()
	Init("production")

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	if got := Level(); got != zapcore.DebugLevel {
		t.Fatalf("expected debug level, got %v", got)
	}

	if err := SetLevel("not-a-level"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if got := Level(); got != zapcore.DebugLevel {
		t.Fatalf("unknown level must keep the current one, got %v", got)
	}
}

func TestInit_PanicWhenLoggerBuildFails(t *testing.T) {
	resetSingleton()
	origBuild := buildLogger
	t.Cleanup(func() {
		buildLogger = origBuild
		resetSingleton()
	})

	buildLogger = func(zap.Config) (*zap.Logger, error) {
		return nil, errors.New("build failed")
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic when logger builder fails")
		}
	}()
	Init("production")
}
