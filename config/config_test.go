package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skybridge.yaml")
	data := `bridge:
  directory_url: "http://hub.local:5000"
  handshake_timeout_seconds: 10
hub:
  listen: ":8080"
  acl_file: "/tmp/acl"
  use_sudo: true
metrics:
  prometheus_enabled: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("K_HUB__PASSWORD_FILE", "/tmp/passwd")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"directory_url", cfg.Bridge.DirectoryURL, "http://hub.local:5000"},
		{"handshake_timeout", cfg.Bridge.HandshakeTimeoutSeconds, 10},
		{"fetch_timeout default", cfg.Bridge.FetchTimeoutSeconds, 5},
		{"device_file default", cfg.Bridge.DeviceFile, "/etc/skybridge/device.yaml"},
		{"listen", cfg.Hub.Listen, ":8080"},
		{"acl_file", cfg.Hub.ACLFile, "/tmp/acl"},
		{"password_file env", cfg.Hub.PasswordFile, "/tmp/passwd"},
		{"use_sudo", cfg.Hub.UseSudo, true},
		{"broker_service", cfg.Hub.BrokerService, "mosquitto"},
		{"managed_services", len(cfg.Hub.ManagedServices), 4},
		{"prometheus_enabled", cfg.Metrics.PrometheusEnabled, true},
		{"prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Hub.Listen != ":5000" {
		t.Fatalf("expected default listen, got %s", cfg.Hub.Listen)
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	if err := os.WriteFile(path, []byte("x=1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for .toml")
	}
}

func TestHubValidateBrokerService(t *testing.T) {
	cfg := HubConfig{BrokerService: "emqx", ManagedServices: []string{"mosquitto"}}
	cfg.SetDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected broker service outside allow-list to fail")
	}
}
