package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Database.Path == "" {
		t.Error("default config has no database path")
	}
	if len(cfg.Hosts) != 1 || cfg.Hosts[0].ID != "local" {
		t.Errorf("default hosts = %+v, want single local host", cfg.Hosts)
	}
	if !cfg.Hosts[0].Local() {
		t.Error("default host should be local")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	content := `
version: 1
database:
  path: /var/lib/spider/spider.db
patterns:
  path: /etc/spider/patterns.yaml
server:
  addr: ":9000"
scan:
  interval: 10m
  host_timeout: 90s
  keep_generations: 20
hosts:
  - id: fathom
  - id: sanctum
    addr: 10.0.0.9
    user: spider
    key_path: /etc/spider/id_ed25519
scanners:
  docker: true
  host: true
  process:
    enabled: true
    filter: [nginx, postgres]
  files:
    - /etc/nginx/nginx.conf
    - /var/log/app/*.log
  network:
    enabled: true
    targets: [10.0.0.0/24]
    ports: "22,80,443"
`
	path := filepath.Join(t.TempDir(), "spider.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, loadedPath, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if loadedPath != path {
		t.Errorf("loaded path = %s, want %s", loadedPath, path)
	}

	if cfg.Scan.Interval.Duration() != 10*time.Minute {
		t.Errorf("interval = %v, want 10m", cfg.Scan.Interval.Duration())
	}
	if cfg.Scan.HostTimeout.Duration() != 90*time.Second {
		t.Errorf("host timeout = %v, want 90s", cfg.Scan.HostTimeout.Duration())
	}
	if len(cfg.Hosts) != 2 {
		t.Fatalf("hosts = %d, want 2", len(cfg.Hosts))
	}
	if !cfg.Hosts[0].Local() {
		t.Error("fathom should be local")
	}
	if cfg.Hosts[1].Local() {
		t.Error("sanctum should be remote")
	}
	if got := cfg.Scanners.Process.Filter; len(got) != 2 || got[0] != "nginx" {
		t.Errorf("process filter = %v", got)
	}
	if cfg.Scanners.Network.Ports != "22,80,443" {
		t.Errorf("network ports = %q", cfg.Scanners.Network.Ports)
	}
}

func TestLoadFromPathAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spider.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Scan.Interval.Duration() != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", cfg.Scan.Interval.Duration())
	}
	if len(cfg.Hosts) != 1 || cfg.Hosts[0].ID != "local" {
		t.Errorf("hosts = %+v, want local fallback", cfg.Hosts)
	}
}

func TestLoadFromPathBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spider.yaml")
	if err := os.WriteFile(path, []byte("hosts: {not a list"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := LoadFromPath(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name: "missing host id",
			mutate: func(c *Config) {
				c.Hosts = append(c.Hosts, HostConfig{})
			},
			wantErr: true,
		},
		{
			name: "duplicate host id",
			mutate: func(c *Config) {
				c.Hosts = append(c.Hosts, HostConfig{ID: "local"})
			},
			wantErr: true,
		},
		{
			name: "remote host without user",
			mutate: func(c *Config) {
				c.Hosts = append(c.Hosts, HostConfig{ID: "r", Addr: "10.0.0.9", KeyPath: "/k"})
			},
			wantErr: true,
		},
		{
			name: "remote host without key",
			mutate: func(c *Config) {
				c.Hosts = append(c.Hosts, HostConfig{ID: "r", Addr: "10.0.0.9", User: "u"})
			},
			wantErr: true,
		},
		{
			name: "network enabled without targets",
			mutate: func(c *Config) {
				c.Scanners.Network.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "negative retention",
			mutate: func(c *Config) {
				c.Scan.KeepGenerations = -1
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Scan.Interval = Duration(7 * time.Minute)
	cfg.Hosts = append(cfg.Hosts, HostConfig{
		ID: "sanctum", Addr: "10.0.0.9", User: "spider", KeyPath: "/etc/spider/key",
	})

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, _, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if loaded.Scan.Interval != cfg.Scan.Interval {
		t.Errorf("interval = %v, want %v", loaded.Scan.Interval, cfg.Scan.Interval)
	}
	if len(loaded.Hosts) != 2 || loaded.Hosts[1].Addr != "10.0.0.9" {
		t.Errorf("hosts = %+v", loaded.Hosts)
	}
}

func TestFindConfigPathEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvConfigPath, path)
	if got := FindConfigPath(); got != path {
		t.Errorf("FindConfigPath() = %q, want %q", got, path)
	}
}
