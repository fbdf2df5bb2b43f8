// Package config provides configuration management for Spider.
//
// The config file describes the fleet and the scan policy; everything the
// system learns (graphs, deltas, solution outcomes) lives in the database.
// Wiping the database loses history but not identity of the deployment.
//
// Config file locations (priority order):
//  1. $SPIDER_CONFIG
//  2. ./spider.yaml
//  3. ~/.config/spider/config.yaml
//  4. /etc/spider/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	Patterns PatternsConfig `yaml:"patterns"`
	Server   ServerConfig   `yaml:"server"`
	Scan     ScanConfig     `yaml:"scan"`
	Hosts    []HostConfig   `yaml:"hosts"`
	Scanners ScannersConfig `yaml:"scanners"`
}

// DatabaseConfig describes the SQLite database location
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PatternsConfig describes the diagnostic pattern library
type PatternsConfig struct {
	Path string `yaml:"path"`
	// Watch reloads the library when the file changes on disk
	Watch bool `yaml:"watch"`
}

// ServerConfig describes the HTTP listener
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ScanConfig describes the scan loop policy
type ScanConfig struct {
	// Interval between full scan cycles
	Interval Duration `yaml:"interval"`
	// HostTimeout bounds all scanners for a single host; a host that
	// exceeds it is marked stale and its previous generation is kept
	HostTimeout Duration `yaml:"host_timeout"`
	// KeepGenerations is how many graph generations to retain per host
	// (0 = keep everything)
	KeepGenerations int `yaml:"keep_generations"`
}

// HostConfig describes one observed host. A host with no address is
// scanned locally; a host with an address is reached over SSH.
type HostConfig struct {
	ID      string `yaml:"id"`
	Addr    string `yaml:"addr,omitempty"`
	User    string `yaml:"user,omitempty"`
	KeyPath string `yaml:"key_path,omitempty"`
}

// Local reports whether the host is scanned without SSH
func (h *HostConfig) Local() bool {
	return h.Addr == ""
}

// ScannersConfig toggles the evidence sources per cycle
type ScannersConfig struct {
	Docker  bool          `yaml:"docker"`
	Host    bool          `yaml:"host"`
	Process ProcessConfig `yaml:"process"`
	Files   []string      `yaml:"files,omitempty"`
	Network NetworkConfig `yaml:"network"`
}

// ProcessConfig controls the process table scanner
type ProcessConfig struct {
	Enabled bool `yaml:"enabled"`
	// Filter keeps only processes whose command matches one of these
	// substrings; empty means keep everything
	Filter []string `yaml:"filter,omitempty"`
}

// NetworkConfig controls the nmap sweep. It runs from the server host,
// not per observed host.
type NetworkConfig struct {
	Enabled bool     `yaml:"enabled"`
	Targets []string `yaml:"targets,omitempty"`
	Ports   string   `yaml:"ports,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML parses duration strings like "5m" or "30s"
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML serializes duration as a string
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation.
// The default fleet is the local machine only.
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		Database: DatabaseConfig{Path: "./spider.db"},
		Patterns: PatternsConfig{Path: "./patterns.yaml", Watch: true},
		Server:   ServerConfig{Addr: ":8080"},
		Scan: ScanConfig{
			Interval:        Duration(5 * time.Minute),
			HostTimeout:     Duration(2 * time.Minute),
			KeepGenerations: 50,
		},
		Hosts: []HostConfig{{ID: "local"}},
		Scanners: ScannersConfig{
			Docker:  true,
			Host:    true,
			Process: ProcessConfig{Enabled: true},
		},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Database.Path == "" {
		c.Database.Path = "./spider.db"
	}
	if c.Patterns.Path == "" {
		c.Patterns.Path = "./patterns.yaml"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Scan.Interval == 0 {
		c.Scan.Interval = Duration(5 * time.Minute)
	}
	if c.Scan.HostTimeout == 0 {
		c.Scan.HostTimeout = Duration(2 * time.Minute)
	}
	if len(c.Hosts) == 0 {
		c.Hosts = []HostConfig{{ID: "local"}}
	}
}

// Validate rejects configurations the scan loop cannot act on
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i := range c.Hosts {
		h := &c.Hosts[i]
		if h.ID == "" {
			return fmt.Errorf("host %d: missing id", i)
		}
		if seen[h.ID] {
			return fmt.Errorf("host %q: duplicate id", h.ID)
		}
		seen[h.ID] = true
		if !h.Local() && h.User == "" {
			return fmt.Errorf("host %q: remote host needs a user", h.ID)
		}
		if !h.Local() && h.KeyPath == "" {
			return fmt.Errorf("host %q: remote host needs a key_path", h.ID)
		}
	}
	if c.Scanners.Network.Enabled && len(c.Scanners.Network.Targets) == 0 {
		return fmt.Errorf("network scanner enabled but no targets configured")
	}
	if c.Scan.KeepGenerations < 0 {
		return fmt.Errorf("keep_generations must not be negative")
	}
	return nil
}
