package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the cyberbook portal.
type Config struct {
	Content ContentConfig `yaml:"content"`
	Search  SearchConfig  `yaml:"search"`
	Router  RouterConfig  `yaml:"router"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// ContentConfig holds where chapters and the manifest are loaded from.
type ContentConfig struct {
	Source       string        `yaml:"source"`   // directory or http(s) base URL
	Manifest     string        `yaml:"manifest"` // path relative to Source
	Includes     []string      `yaml:"includes"`
	Excludes     []string      `yaml:"excludes"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Concurrency  int           `yaml:"concurrency"`
}

// SearchConfig holds indexing and ranking configuration.
type SearchConfig struct {
	Stemming            bool `yaml:"stemming"`
	MaxContentLength    int  `yaml:"max_content_length"`
	CacheSize           int  `yaml:"cache_size"`
	FuzzyMaxDistance    int  `yaml:"fuzzy_max_distance"`
	MinFuzzyTokenLength int  `yaml:"min_fuzzy_token_length"`
	DefaultLimit        int  `yaml:"default_limit"`
	SuggestionLimit     int  `yaml:"suggestion_limit"`
	SnippetBefore       int  `yaml:"snippet_before"`
	SnippetAfter        int  `yaml:"snippet_after"`
	AnalyticsCapacity   int  `yaml:"analytics_capacity"`
}

// RouterConfig holds navigation configuration.
type RouterConfig struct {
	Mode              string        `yaml:"mode"` // "hash" or "history"
	MiddlewareTimeout time.Duration `yaml:"middleware_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"` // 0 = no hard timeout
	HistoryLimit      int           `yaml:"history_limit"`
}

// StorageConfig holds document store configuration.
type StorageConfig struct {
	Engine         string        `yaml:"engine"`   // "bolt" or "fallback"
	Path           string        `yaml:"path"`     // bbolt file, relative to the data dir
	Fallback       string        `yaml:"fallback"` // "memory" or "sqlite"
	FallbackPath   string        `yaml:"fallback_path"`
	FallbackPrefix string        `yaml:"fallback_prefix"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	OpenTimeout    time.Duration `yaml:"open_timeout"`
	CacheSize      int           `yaml:"cache_size"`
}

// ServerConfig holds configuration for the serve command.
type ServerConfig struct {
	Addr  string `yaml:"addr"`
	Watch bool   `yaml:"watch"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Content: ContentConfig{
			Source:       "content",
			Manifest:     "manifest.json",
			Includes:     []string{"**/*.md"},
			Excludes:     []string{"**/node_modules/**", "**/.git/**", "**/drafts/**"},
			FetchTimeout: 10 * time.Second,
			Concurrency:  8,
		},
		Search: SearchConfig{
			Stemming:            true,
			MaxContentLength:    5000,
			CacheSize:           100,
			FuzzyMaxDistance:    2,
			MinFuzzyTokenLength: 3,
			DefaultLimit:        10,
			SuggestionLimit:     5,
			SnippetBefore:       60,
			SnippetAfter:        100,
			AnalyticsCapacity:   100,
		},
		Router: RouterConfig{
			Mode:              "hash",
			MiddlewareTimeout: 5 * time.Second,
			HistoryLimit:      200,
		},
		Storage: StorageConfig{
			Engine:         "bolt",
			Path:           "store.db",
			Fallback:       "memory",
			FallbackPath:   "fallback.db",
			FallbackPrefix: "cb.",
			RetryAttempts:  3,
			RetryDelay:     50 * time.Millisecond,
			OpenTimeout:    time.Second,
			CacheSize:      100,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for cyberbook.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "cyberbook.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".cyberbook", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DataDir returns the directory holding local state for root.
func DataDir(root string) string {
	return filepath.Join(root, ".cyberbook")
}

// EnsureDataDir ensures the .cyberbook directory exists.
func EnsureDataDir(root string) error {
	return os.MkdirAll(DataDir(root), 0755)
}

// StorePath resolves the primary store file for root.
func (c *Config) StorePath(root string) string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(DataDir(root), c.Storage.Path)
}

// FallbackPath resolves the SQLite fallback file for root.
func (c *Config) FallbackPath(root string) string {
	if filepath.IsAbs(c.Storage.FallbackPath) {
		return c.Storage.FallbackPath
	}
	return filepath.Join(DataDir(root), c.Storage.FallbackPath)
}

// ContentSource resolves the content source for root. URLs are returned unchanged.
func (c *Config) ContentSource(root string) string {
	src := c.Content.Source
	if isURL(src) || filepath.IsAbs(src) {
		return src
	}
	return filepath.Join(root, src)
}

func isURL(s string) bool {
	return len(s) > 7 && (s[:7] == "http://" || (len(s) > 8 && s[:8] == "https://"))
}
