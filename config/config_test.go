package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PASSWORD", "s3cret")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("RUN_LOG_RETENTION_DAYS", "7")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RedisURL != "redis://:s3cret@cache:6379/2" {
		t.Errorf("unexpected redis url %q", cfg.RedisURL)
	}
	if cfg.RunLogRetention != 7*24*time.Hour {
		t.Errorf("unexpected retention %v", cfg.RunLogRetention)
	}
	if cfg.RunLockTTL != 10*time.Minute {
		t.Errorf("unexpected lock ttl %v", cfg.RunLockTTL)
	}
}

func TestLoadConfig_RedisURLOverride(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://other:6380/0")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RedisURL != "redis://other:6380/0" {
		t.Errorf("expected override, got %q", cfg.RedisURL)
	}
}

func TestLoadConfig_NoRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_PASSWORD", "s3cret")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RedisURL != "" {
		t.Errorf("expected no redis url without a host, got %q", cfg.RedisURL)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	for key, value := range map[string]string{
		"REDIS_DB":     "x",
		"RUN_LOCK_TTL": "forever",
		"TIMEZONE":     "Mars/Base",
		"LOG_JSON":     "maybe",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := LoadConfig(); err == nil {
				t.Errorf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestInitDB_SQLite(t *testing.T) {
	cfg := &Config{
		DBDriver:    "sqlite",
		SQLitePath:  filepath.Join(t.TempDir(), "test.db"),
		Environment: "production",
		Timezone:    "UTC",
	}
	db, err := InitDB(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.Close()
}

func TestInitDB_UnknownDriver(t *testing.T) {
	if _, err := InitDB(&Config{DBDriver: "oracle"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestMaskHost(t *testing.T) {
	tests := map[string]string{
		"db":                             "***",
		"localhost":                      "loc***",
		"aws-0-ap-southeast-1.pooler.io": "aws-0-ap***.pooler.io",
	}
	for in, want := range tests {
		if got := maskHost(in); got != want {
			t.Errorf("maskHost(%q) = %q, want %q", in, got, want)
		}
	}
}
