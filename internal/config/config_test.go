package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
store:
  driver: redis
redis:
  addr: localhost:6379
stats:
  shards: 20
  cache_ttl: 30s
profiles:
  admin_emails: [root@example.com]
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Driver != DriverRedis || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Stats.Shards != 20 {
		t.Fatalf("expected 20 shards, got %d", cfg.Stats.Shards)
	}
	if cfg.Stats.BatchSize != 500 || cfg.Stats.DispatchWorkers != 4 {
		t.Fatalf("expected defaults kept, got %+v", cfg.Stats)
	}
	if cfg.Profiles.TrialDays != 30 || len(cfg.Profiles.AdminEmails) != 1 {
		t.Fatalf("unexpected profiles %+v", cfg.Profiles)
	}
	if got := TTLDuration(cfg.Stats.CacheTTL, 0); got != 30*time.Second {
		t.Fatalf("expected 30s cache ttl, got %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for empty, got %v", got)
	}
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for invalid, got %v", got)
	}
}

func TestWithContextCarriesFields(t *testing.T) {
	ctx := ContextWithFields(context.Background(), logrus.Fields{"request_id": "r1"})
	ctx = ContextWithFields(ctx, logrus.Fields{"caller_id": "u1"})

	entry := WithContext(ctx)
	if entry.Data["request_id"] != "r1" || entry.Data["caller_id"] != "u1" {
		t.Fatalf("expected merged fields, got %v", entry.Data)
	}
}
