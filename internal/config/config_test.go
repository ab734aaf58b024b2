package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSubstitutesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
		"server": {"port": ${HINDSIGHT_PORT:8080}, "log_level": "${HINDSIGHT_LOG_LEVEL:info}"},
		"database": {
			"postgres": {"dsn": "${HINDSIGHT_PG_DSN:}"},
			"redis": {"url": "${HINDSIGHT_REDIS_URL:redis://localhost:6379}"},
			"qdrant": {"host": "localhost", "port": 6334}
		},
		"embedding": {"dimension": 384, "target_dimension": 1536}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("HINDSIGHT_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("log level = %q, want env override debug", cfg.Server.LogLevel)
	}
	if cfg.Database.Postgres.DSN != "" {
		t.Errorf("dsn = %q, want empty default", cfg.Database.Postgres.DSN)
	}
	if cfg.Database.Redis.URL != "redis://localhost:6379" {
		t.Errorf("redis url = %q", cfg.Database.Redis.URL)
	}
	if cfg.Embedding.Dimension != 384 || cfg.Embedding.TargetDimension != 1536 {
		t.Errorf("embedding config = %+v", cfg.Embedding)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("does-not-exist.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
