package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"mode", cfg.Mode, ModeAll},
		{"port", cfg.Port, 8080},
		{"log level", cfg.LogLevel, slog.LevelInfo},
		{"sources file", cfg.SourcesFile, "sources.yaml"},
		{"store backend", cfg.StoreBackend, StorePostgres},
		{"index backend", cfg.IndexBackend, IndexElasticsearch},
		{"es addresses", cfg.ESAddresses, []string{"http://localhost:9200"}},
		{"sync interval", cfg.SyncInterval, time.Hour},
		{"retry attempts", cfg.Retry.MaxAttempts, 3},
		{"retry base delay", cfg.Retry.BaseDelay, time.Second},
		{"retry max delay", cfg.Retry.MaxDelay, 32 * time.Second},
		{"circuit threshold", cfg.Circuit.FailureThreshold, 3},
		{"circuit reset", cfg.Circuit.ResetTimeout, 60 * time.Second},
		{"upload concurrency", cfg.Upload.Concurrency, 3},
		{"upload batch", cfg.Upload.BatchSize, 10},
		{"upload delay", cfg.Upload.DispatchDelay, 100 * time.Millisecond},
		{"minio enabled", cfg.Minio.Enabled(), false},
		{"worker enabled", cfg.Worker.Enabled, true},
		{"worker concurrency", cfg.Worker.Concurrency, 1},
		{"worker dequeue timeout", cfg.Worker.DequeueTimeout, 5 * time.Second},
		{"worker attempts", cfg.Worker.MaxAttempts, 3},
		{"auth enabled", cfg.Auth.Enabled(), false},
		{"token ttl", cfg.Auth.TokenTTL, 24 * time.Hour},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("MODE", "SYNC")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("INDEX_BACKEND", "vespa")
	t.Setenv("ES_ADDRESSES", "http://a:9200, http://b:9200,")
	t.Setenv("SYNC_INTERVAL", "90")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("UPLOAD_RATE", "4")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("ARCHIVE_PAYLOADS", "yes")
	t.Setenv("WORKER_CONCURRENCY", "4")
	t.Setenv("TASK_MAX_ATTEMPTS", "5")
	t.Setenv("API_KEY_HASH", "$2a$10$abcdefghijklmnopqrstuv")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"mode", cfg.Mode, ModeSync},
		{"port", cfg.Port, 9090},
		{"log level", cfg.LogLevel, slog.LevelDebug},
		{"store backend", cfg.StoreBackend, StoreRedis},
		{"index backend", cfg.IndexBackend, IndexVespa},
		{"es addresses", cfg.ESAddresses, []string{"http://a:9200", "http://b:9200"}},
		{"sync interval", cfg.SyncInterval, 90 * time.Second},
		{"retry base delay", cfg.Retry.BaseDelay, 250 * time.Millisecond},
		{"upload delay", cfg.Upload.DispatchDelay, 250 * time.Millisecond},
		{"minio enabled", cfg.Minio.Enabled(), true},
		{"archive payloads", cfg.ArchivePayloads, true},
		{"worker concurrency", cfg.Worker.Concurrency, 4},
		{"worker attempts", cfg.Worker.MaxAttempts, 5},
		{"auth enabled", cfg.Auth.Enabled(), true},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"mode", map[string]string{"MODE": "batch"}},
		{"store", map[string]string{"STORE_BACKEND": "mongo"}},
		{"redis without url", map[string]string{"STORE_BACKEND": "redis"}},
		{"index", map[string]string{"INDEX_BACKEND": "solr"}},
		{"archive without minio", map[string]string{"ARCHIVE_PAYLOADS": "true"}},
		{"retry attempts", map[string]string{"RETRY_MAX_ATTEMPTS": "0"}},
		{"upload concurrency", map[string]string{"UPLOAD_CONCURRENCY": "0"}},
		{"worker concurrency", map[string]string{"WORKER_CONCURRENCY": "0"}},
		{"short jwt secret", map[string]string{"API_JWT_SECRET": "too-short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "not-a-number")
	if got := getEnvInt("X_INT", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}

	t.Setenv("X_BOOL", "1")
	if !getEnvBool("X_BOOL", false) {
		t.Error("expected 1 to be true")
	}
	t.Setenv("X_BOOL", "off")
	if getEnvBool("X_BOOL", true) {
		t.Error("expected off to be false")
	}

	t.Setenv("X_DUR", "bogus")
	if got := getEnvDuration("X_DUR", time.Minute); got != time.Minute {
		t.Errorf("expected fallback 1m, got %v", got)
	}
	t.Setenv("X_DUR", "1.5")
	if got := getEnvDuration("X_DUR", time.Minute); got != 1500*time.Millisecond {
		t.Errorf("expected plain numbers as seconds, got %v", got)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("SERCHA_TEST_FROM_FILE=loaded\nSERCHA_TEST_PRESET=file\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	t.Setenv("ENV_FILE", path)
	t.Setenv("SERCHA_TEST_PRESET", "env")
	t.Cleanup(func() { os.Unsetenv("SERCHA_TEST_FROM_FILE") })

	if err := LoadEnvFiles(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("SERCHA_TEST_FROM_FILE"); got != "loaded" {
		t.Errorf("expected loaded, got %q", got)
	}
	if got := os.Getenv("SERCHA_TEST_PRESET"); got != "env" {
		t.Errorf("expected existing variables to win, got %q", got)
	}

	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	if err := LoadEnvFiles(); err != nil {
		t.Errorf("expected a missing env file to be ignored, got %v", err)
	}
}
