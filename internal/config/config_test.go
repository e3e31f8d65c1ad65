package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 3 {
		t.Fatalf("batch size = %d, want 3", cfg.BatchSize)
	}
	if cfg.CacheMaxEntries != 100 || cfg.CacheMaxMemoryMB != 256 {
		t.Fatalf("cache bounds = %d/%dMB", cfg.CacheMaxEntries, cfg.CacheMaxMemoryMB)
	}
	if cfg.BreakerTimeout.Std() != 300*time.Second {
		t.Fatalf("breaker timeout = %v", cfg.BreakerTimeout)
	}
	if cfg.RequestsPerMinute != 50 || cfg.MinRequestInterval.Std() != 100*time.Millisecond {
		t.Fatalf("pacing = %d/min, %v", cfg.RequestsPerMinute, cfg.MinRequestInterval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BATCH_SIZE", "5")
	t.Setenv("MAX_RETRIES", "7")
	t.Setenv("BASE_DELAY", "2s")
	t.Setenv("PRECHECK_ENABLED", "true")
	t.Setenv("ERROR_RATE_THRESHOLD", "1.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 5 || cfg.MaxRetries != 7 {
		t.Fatalf("overrides lost: %d/%d", cfg.BatchSize, cfg.MaxRetries)
	}
	if cfg.BaseDelay.Std() != 2*time.Second {
		t.Fatalf("base delay = %v", cfg.BaseDelay)
	}
	if !cfg.PrecheckEnabled {
		t.Fatal("precheck flag lost")
	}
	if cfg.ErrorRateThreshold != 1.5 {
		t.Fatalf("threshold = %v", cfg.ErrorRateThreshold)
	}
}

func TestLoadMalformedEnvFallsBack(t *testing.T) {
	t.Setenv("BATCH_SIZE", "lots")
	t.Setenv("BASE_DELAY", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 3 || cfg.BaseDelay.Std() != time.Second {
		t.Fatalf("malformed values should fall back: %d/%v", cfg.BatchSize, cfg.BaseDelay)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formvault.yaml")
	overlay := `
batch_size: 10
workers: 8
breaker_timeout: 45s
anthropic_model: test-model
`
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("BATCH_SIZE", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 10 {
		t.Fatalf("file should override env: batch size = %d", cfg.BatchSize)
	}
	if cfg.Workers != 8 || cfg.BreakerTimeout.Std() != 45*time.Second {
		t.Fatalf("overlay lost: %d workers, %v timeout", cfg.Workers, cfg.BreakerTimeout)
	}
	if cfg.AnthropicModel != "test-model" {
		t.Fatalf("model = %q", cfg.AnthropicModel)
	}
	// Keys absent from the file keep their env/default values.
	if cfg.MaxRetries != 3 {
		t.Fatalf("untouched key changed: %d", cfg.MaxRetries)
	}
}

func TestLoadMissingConfigFileFails(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("a named but missing config file must be an error")
	}
}

func TestMemoryThresholdDerivedFromCacheCap(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MemoryThresholdPercent != 80 {
		t.Fatalf("threshold percent = %d, want 80", cfg.MemoryThresholdPercent)
	}
	want := (int64(256) << 20) * 80 / 100
	if got := cfg.MemoryThresholdBytes(); got != want {
		t.Fatalf("threshold bytes = %d, want %d", got, want)
	}

	t.Setenv("CACHE_MAX_MEMORY_MB", "100")
	t.Setenv("MEMORY_THRESHOLD_PERCENT", "50")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.MemoryThresholdBytes(); got != int64(50)<<20 {
		t.Fatalf("threshold bytes = %d, want %d", got, int64(50)<<20)
	}
}
