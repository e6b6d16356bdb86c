// Package config handles loading and managing mailtide configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// BackendConfig holds the connection to the mail backend process.
type BackendConfig struct {
	URL           string `toml:"url"`            // Backend base URL
	APIKey        string `toml:"api_key"`        // Backend authentication key
	TimeoutSecs   int    `toml:"timeout_secs"`   // Request timeout (default: 30)
	AllowInsecure bool   `toml:"allow_insecure"` // Permit plain HTTP
}

// SyncConfig holds sync and cache-window tuning.
type SyncConfig struct {
	IncrementalChunk int `toml:"incremental_chunk"` // Messages per incremental round trip (default: 25)
	FullChunk        int `toml:"full_chunk"`        // Batch size for full syncs (default: 50)
	PollIntervalSecs int `toml:"poll_interval_secs"`
	CacheFloor       int `toml:"cache_floor"`   // Minimum cached-message fetch size (default: 1000)
	CacheCeiling     int `toml:"cache_ceiling"` // Maximum cached-message fetch size (default: 50000)
}

// MetricsConfig holds delete-metrics tuning.
type MetricsConfig struct {
	FetchTTLSecs  int `toml:"fetch_ttl_secs"` // Snapshot freshness window (default: 30)
	WindowMinutes int `toml:"window_minutes"` // Trailing chart window (default: 30)
}

// ServerConfig holds the local status API server configuration.
type ServerConfig struct {
	APIPort  int    `toml:"api_port"`  // HTTP server port (default: 8930)
	BindAddr string `toml:"bind_addr"` // Bind address (default: 127.0.0.1)
	APIKey   string `toml:"api_key"`   // API authentication key
}

// ValidateSecure refuses a non-loopback bind without an API key.
func (s ServerConfig) ValidateSecure() error {
	addr := s.BindAddr
	if addr == "" || addr == "127.0.0.1" || addr == "::1" || addr == "localhost" {
		return nil
	}
	if s.APIKey == "" {
		return fmt.Errorf("refusing to bind API server to %s without an api_key; set [server] api_key in config.toml", addr)
	}
	return nil
}

// AccountConfig defines one configured mailbox connection.
type AccountConfig struct {
	Email    string `toml:"email"`
	Provider string `toml:"provider"` // "gmail", "outlook", "imap", ...
	Host     string `toml:"host"`     // custom IMAP host (provider "imap")
	Port     int    `toml:"port"`
	Enabled  bool   `toml:"enabled"`
}

// Config represents the mailtide configuration.
type Config struct {
	Data     DataConfig      `toml:"data"`
	Backend  BackendConfig   `toml:"backend"`
	Sync     SyncConfig      `toml:"sync"`
	Metrics  MetricsConfig   `toml:"metrics"`
	Server   ServerConfig    `toml:"server"`
	Accounts []AccountConfig `toml:"accounts"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// DefaultHome returns the default mailtide home directory.
// Respects the MAILTIDE_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MAILTIDE_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailtide"
	}
	return filepath.Join(home, ".mailtide")
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (~/.mailtide/config.toml).
// The file is optional; defaults apply when it is missing.
func Load(path string) (*Config, error) {
	homeDir := DefaultHome()

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		Backend: BackendConfig{
			URL:         "http://127.0.0.1:8765",
			TimeoutSecs: 30,
			// Loopback backends run plain HTTP.
			AllowInsecure: true,
		},
		Sync: SyncConfig{
			IncrementalChunk: 25,
			FullChunk:        50,
			PollIntervalSecs: 30,
			CacheFloor:       1000,
			CacheCeiling:     50000,
		},
		Metrics: MetricsConfig{
			FetchTTLSecs:  30,
			WindowMinutes: 30,
		},
		Server: ServerConfig{
			APIPort:  8930,
			BindAddr: "127.0.0.1",
		},
		Accounts: []AccountConfig{},
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)

	return cfg, nil
}

// DatabasePath returns the path to the local cache database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "mailtide.db")
}

// EnsureHomeDir creates the data directory if it does not exist.
func (c *Config) EnsureHomeDir() error {
	return os.MkdirAll(c.Data.DataDir, 0755)
}

// PollInterval returns the periodic refresh interval.
func (c *Config) PollInterval() time.Duration {
	secs := c.Sync.PollIntervalSecs
	if secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// BackendTimeout returns the backend request timeout.
func (c *Config) BackendTimeout() time.Duration {
	secs := c.Backend.TimeoutSecs
	if secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// MetricsFetchTTL returns the metrics snapshot freshness window.
func (c *Config) MetricsFetchTTL() time.Duration {
	secs := c.Metrics.FetchTTLSecs
	if secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// EnabledAccounts returns accounts with a non-empty email that are enabled.
func (c *Config) EnabledAccounts() []AccountConfig {
	var enabled []AccountConfig
	for _, acc := range c.Accounts {
		if acc.Enabled && acc.Email != "" {
			enabled = append(enabled, acc)
		}
	}
	return enabled
}

// FindAccount returns the configuration for a specific account email,
// compared case-insensitively. Returns nil if not configured.
func (c *Config) FindAccount(email string) *AccountConfig {
	want := strings.ToLower(strings.TrimSpace(email))
	for i := range c.Accounts {
		if strings.ToLower(strings.TrimSpace(c.Accounts[i].Email)) == want {
			return &c.Accounts[i]
		}
	}
	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
