package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Search.MaxContentLength != 5000 {
		t.Errorf("expected MaxContentLength=5000, got %d", cfg.Search.MaxContentLength)
	}
	if cfg.Search.FuzzyMaxDistance != 2 {
		t.Errorf("expected FuzzyMaxDistance=2, got %d", cfg.Search.FuzzyMaxDistance)
	}
	if cfg.Router.Mode != "hash" {
		t.Errorf("expected Mode=hash, got %s", cfg.Router.Mode)
	}
	if cfg.Storage.RetryAttempts != 3 {
		t.Errorf("expected RetryAttempts=3, got %d", cfg.Storage.RetryAttempts)
	}
	if cfg.Storage.FallbackPrefix != "cb." {
		t.Errorf("expected FallbackPrefix=cb., got %s", cfg.Storage.FallbackPrefix)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "cyberbook.yaml")

	content := `
search:
  cache_size: 25
  stemming: false
router:
  mode: history
  middleware_timeout: 250ms
storage:
  engine: fallback
  fallback: sqlite
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Search.CacheSize != 25 {
		t.Errorf("expected CacheSize=25, got %d", cfg.Search.CacheSize)
	}
	if cfg.Search.Stemming {
		t.Errorf("expected Stemming=false, got %v", cfg.Search.Stemming)
	}
	if cfg.Router.Mode != "history" {
		t.Errorf("expected Mode=history, got %s", cfg.Router.Mode)
	}
	if cfg.Router.MiddlewareTimeout != 250*time.Millisecond {
		t.Errorf("expected MiddlewareTimeout=250ms, got %s", cfg.Router.MiddlewareTimeout)
	}
	if cfg.Storage.Engine != "fallback" || cfg.Storage.Fallback != "sqlite" {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	// untouched sections keep defaults
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("expected DefaultLimit=10, got %d", cfg.Search.DefaultLimit)
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, ".cyberbook"), 0755); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(tmpDir, ".cyberbook", "config.yaml")

	content := `
server:
  addr: ":9090"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected Addr=:9090, got %s", cfg.Server.Addr)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "cyberbook.yaml")

	cfg := DefaultConfig()
	cfg.Content.Concurrency = 3
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Content.Concurrency != 3 {
		t.Errorf("expected Concurrency=3, got %d", loaded.Content.Concurrency)
	}
	if loaded.Content.FetchTimeout != 10*time.Second {
		t.Errorf("expected FetchTimeout=10s, got %s", loaded.Content.FetchTimeout)
	}
}

func TestPaths(t *testing.T) {
	cfg := DefaultConfig()

	if got, want := cfg.StorePath("/home/user/book"), filepath.Join("/home/user/book", ".cyberbook", "store.db"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if got, want := cfg.ContentSource("/home/user/book"), filepath.Join("/home/user/book", "content"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	cfg.Content.Source = "https://example.org/book"
	if got := cfg.ContentSource("/home/user/book"); got != "https://example.org/book" {
		t.Errorf("expected URL source unchanged, got %s", got)
	}
}
