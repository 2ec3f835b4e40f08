package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"CONVOY_HTTP_ADDR", "CONVOY_STORE", "CONVOY_TOUR_CANCEL_POLICY",
		"CONVOY_NOTIFY_TIMEOUT", "CONVOY_FCM_ENABLED", "CONVOY_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Store != "postgres" || cfg.Tours.CancelPolicy != "keep" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Notify.Timeout != 5*time.Second || cfg.Firebase.FCMEnabled || cfg.Log.Level != slog.LevelInfo {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CONVOY_STORE", "Memory")
	t.Setenv("CONVOY_TOUR_CANCEL_POLICY", "cancel")
	t.Setenv("CONVOY_NOTIFY_TIMEOUT", "3")
	t.Setenv("CONVOY_FCM_ENABLED", "true")
	t.Setenv("CONVOY_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != "memory" || cfg.Tours.CancelPolicy != "cancel" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Notify.Timeout != 3*time.Second {
		t.Fatalf("timeout = %v", cfg.Notify.Timeout)
	}
	if !cfg.Firebase.FCMEnabled || cfg.Log.Level != slog.LevelDebug {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	t.Setenv("CONVOY_NOTIFY_TIMEOUT", "750ms")
	cfg, _ = Load()
	if cfg.Notify.Timeout != 750*time.Millisecond {
		t.Fatalf("timeout = %v", cfg.Notify.Timeout)
	}
}
