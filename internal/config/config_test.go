package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.AMQPExchange != "revly.trips" {
		t.Fatalf("expected default exchange, got %q", cfg.AMQPExchange)
	}
}

func TestLoadTrackingDefaults(t *testing.T) {
	tr := Load().Tracking
	if tr.MaxAccuracyM != 50 || tr.MaxSpeedKmh != 250 {
		t.Fatalf("unexpected filter thresholds %+v", tr)
	}
	if tr.GapTime != 30*time.Second || tr.GapDistanceM != 300 {
		t.Fatalf("unexpected gap thresholds %+v", tr)
	}
	if tr.StopSpeedKmh != 3 || tr.StopMinDuration != time.Minute || tr.SpeedCeilingKmh != 130 {
		t.Fatalf("unexpected metric thresholds %+v", tr)
	}
	if tr.SimplifyMinPoints != 500 || tr.SimplifyToleranceM != 5 || tr.SpeedHistorySize != 8 {
		t.Fatalf("unexpected codec settings %+v", tr)
	}
	if tr.SnapshotInterval != time.Second || tr.InactivityTimeout != 10*time.Minute {
		t.Fatalf("unexpected intervals %+v", tr)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GAP_TIME", "45s")
	t.Setenv("MAX_ACCURACY_M", "25")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.Tracking.GapTime != 45*time.Second {
		t.Fatalf("expected override gap time, got %v", cfg.Tracking.GapTime)
	}
	if cfg.Tracking.MaxAccuracyM != 25 {
		t.Fatalf("expected override accuracy, got %v", cfg.Tracking.MaxAccuracyM)
	}
}
