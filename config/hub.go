package config

import (
	"fmt"
	"time"
)

// DefaultManagedServices may be restarted through the hub API.
var DefaultManagedServices = []string{"mosquitto", "headscale", "nginx", "dhcpcd"}

// HubConfig holds the hub process settings.
type HubConfig struct {
	Listen       string `json:"listen"`
	ConfigFile   string `json:"config_file"`
	PasswordFile string `json:"password_file"`
	ACLFile      string `json:"acl_file"`
	// BrokerService is restarted after every enrollment.
	BrokerService   string   `json:"broker_service"`
	ManagedServices []string `json:"managed_services"`
	// UseSudo prefixes systemctl with sudo.
	UseSudo               bool `json:"use_sudo"`
	RestartTimeoutSeconds int  `json:"restart_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *HubConfig) SetDefaults() {
	if c.Listen == "" {
		c.Listen = ":5000"
	}
	if c.ConfigFile == "" {
		c.ConfigFile = "/etc/mosquitto/hub_config.json"
	}
	if c.PasswordFile == "" {
		c.PasswordFile = "/etc/mosquitto/passwd"
	}
	if c.ACLFile == "" {
		c.ACLFile = "/etc/mosquitto/acl"
	}
	if c.BrokerService == "" {
		c.BrokerService = "mosquitto"
	}
	if len(c.ManagedServices) == 0 {
		c.ManagedServices = append([]string(nil), DefaultManagedServices...)
	}
	if c.RestartTimeoutSeconds <= 0 {
		c.RestartTimeoutSeconds = 30
	}
}

// Validate checks mandatory fields.
func (c HubConfig) Validate() error {
	for _, s := range c.ManagedServices {
		if s == c.BrokerService {
			return nil
		}
	}
	return fmt.Errorf("broker service %q is not in managed_services", c.BrokerService)
}

// RestartTimeout returns the bound on one service restart.
func (c HubConfig) RestartTimeout() time.Duration {
	return time.Duration(c.RestartTimeoutSeconds) * time.Second
}
