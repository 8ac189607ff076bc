package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Guilhem-Bonnet/anisync/internal/validation"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("ANISYNC_DATA_DIR", dataDir)

	cfg, err := Load(LoadOptions{SearchPaths: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheTTL() != 24*time.Hour {
		t.Fatalf("ttl: %v", cfg.CacheTTL())
	}
	if cfg.DBPath() != filepath.Join(dataDir, "anisync.db") {
		t.Fatalf("db path: %q", cfg.DBPath())
	}
	if cfg.LogFile != filepath.Join(dataDir, "logs", "anisync.log") {
		t.Fatalf("log file: %q", cfg.LogFile)
	}
	if cfg.TokenStore != "file" || cfg.PushConcurrency != 1 || cfg.RetryInterval != 5*time.Second {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("client_id: from-file\noffline_mode: true\ncache_ttl_hours: 6\nsync_interval: 2m\ntoken_store: SQLITE\ndata_dir: " + dir + "\n")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("ANISYNC_CLIENT_ID", "from-env")

	cfg, err := Load(LoadOptions{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClientID != "from-env" {
		t.Fatalf("client_id: env should win, got %q", cfg.ClientID)
	}
	if !cfg.OfflineMode || cfg.CacheTTLHours != 6 || cfg.SyncInterval != 2*time.Minute || cfg.TokenStore != "sqlite" {
		t.Fatalf("file values: %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("cache_ttl_hours: 0\ntoken_store: keyring\ndata_dir: "+dir+"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(LoadOptions{ConfigFile: path})
	if !errors.Is(err, validation.ErrInvalid) {
		t.Fatalf("want validation error, got %v", err)
	}
	var verr *validation.Error
	if !errors.As(err, &verr) {
		t.Fatalf("want *validation.Error, got %T", err)
	}
	for _, field := range []string{"cache_ttl_hours", "token_store"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("missing field %q in %v", field, verr.Fields)
		}
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")}); err == nil {
		t.Fatalf("missing explicit file should fail")
	}
}
