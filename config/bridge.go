package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/skybridge/auth"
)

// BridgeConfig holds the bridge process settings.
type BridgeConfig struct {
	// DeviceFile is the locally persisted device configuration.
	DeviceFile string `json:"device_file"`
	// DirectoryURL is the base URL of the hub's device-config directory.
	DirectoryURL string `json:"directory_url"`
	// FetchTimeoutSeconds bounds the remote device-config fetch.
	FetchTimeoutSeconds int `json:"fetch_timeout_seconds"`
	// HandshakeTimeoutSeconds bounds the wait for the first vehicle heartbeat.
	HandshakeTimeoutSeconds int `json:"handshake_timeout_seconds"`
	// CommandQueueSize bounds the pending command queue.
	CommandQueueSize int `json:"command_queue_size"`
	// DirectoryAuth enables OAuth2 client credentials on the directory fetch.
	DirectoryAuth auth.Conf `json:"directory_auth"`
	// Influx optionally mirrors samples into InfluxDB.
	Influx InfluxConfig `json:"influx"`
}

// InfluxConfig points at an InfluxDB v2 bucket. Empty URL disables it.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// Enabled reports whether an InfluxDB endpoint is configured.
func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// SetDefaults applies sane defaults.
func (c *BridgeConfig) SetDefaults() {
	if c.DeviceFile == "" {
		c.DeviceFile = "/etc/skybridge/device.yaml"
	}
	if c.DirectoryURL == "" {
		c.DirectoryURL = "http://192.168.4.1:5000"
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = 5
	}
	if c.HandshakeTimeoutSeconds <= 0 {
		c.HandshakeTimeoutSeconds = 30
	}
	if c.CommandQueueSize <= 0 {
		c.CommandQueueSize = 16
	}
}

// Validate checks mandatory fields.
func (c BridgeConfig) Validate() error {
	if c.Influx.Enabled() && c.Influx.Bucket == "" {
		return fmt.Errorf("influx bucket is required when url is set")
	}
	return nil
}

// FetchTimeout returns the remote fetch bound.
func (c BridgeConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// HandshakeTimeout returns the heartbeat wait bound.
func (c BridgeConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}
