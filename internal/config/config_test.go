package config

import (
	"os"
	"path/filepath"
	"testing"

	"whalewatcher/internal/blob"
	"whalewatcher/internal/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Storage.Driver != core.StorageMemory || cfg.Blob.Driver != blob.DriverMemory {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.Store.Seed || cfg.Store.StrictLookups {
		t.Fatalf("unexpected store defaults %+v", cfg.Store)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whalewatcher.yaml")
	doc := []byte(`http:
  addr: ":9000"
storage:
  driver: sqlite
  sqlite_path: /var/lib/ww.db
blob:
  driver: s3
  s3:
    bucket: case-artifacts
    path_style: true
log:
  level: debug
store:
  symmetric_audit: true
`)
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("WHALEWATCHER_HTTP_ADDR", ":9100")
	t.Setenv("WHALEWATCHER_STRICT_LOOKUPS", "true")
	t.Setenv("WHALEWATCHER_LOG_FORMAT", "CONSOLE")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Fatalf("env must override file, got %s", cfg.HTTP.Addr)
	}
	if cfg.Storage.Driver != core.StorageSQLite || cfg.Storage.SQLitePath != "/var/lib/ww.db" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Blob.Driver != blob.DriverS3 || cfg.Blob.S3.Bucket != "case-artifacts" || !cfg.Blob.S3.PathStyle {
		t.Fatalf("unexpected blob config %+v", cfg.Blob)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
	if !cfg.Store.StrictLookups || !cfg.Store.SymmetricAudit {
		t.Fatalf("unexpected store flags %+v", cfg.Store)
	}
	if got := len(cfg.ServiceOptions()); got != 2 {
		t.Fatalf("expected 2 service options, got %d", got)
	}
}

func TestLoadRejectsInvalidInput(t *testing.T) {
	cases := map[string]map[string]string{
		"storage driver": {"WHALEWATCHER_STORAGE_DRIVER": "etcd"},
		"blob driver":    {"WHALEWATCHER_BLOB_DRIVER": "ftp"},
		"s3 bucket":      {"WHALEWATCHER_BLOB_DRIVER": "s3"},
		"bool":           {"WHALEWATCHER_STRICT_LOOKUPS": "maybe"},
		"int":            {"WHALEWATCHER_REDIS_DB": "one"},
		"log format":     {"WHALEWATCHER_LOG_FORMAT": "xml"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
