package model

import (
	"fmt"
	"strings"
)

// Mode selects which broker endpoint a device talks to.
type Mode string

const (
	ModeLAN Mode = "LAN"
	ModeVPN Mode = "VPN"
)

// ParseMode normalizes s into a Mode. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeLAN:
		return ModeLAN, nil
	case ModeVPN:
		return ModeVPN, nil
	default:
		return "", fmt.Errorf("unknown network mode %q", s)
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool { return m == ModeLAN || m == ModeVPN }

// DeviceConfig is the effective configuration of a bridge session. It is
// resolved once at startup and then only passed around by value.
type DeviceConfig struct {
	DeviceID        string `json:"device_id" koanf:"device_id"`
	BusHost         string `json:"bus_host" koanf:"bus_host"`
	BusPort         int    `json:"bus_port" koanf:"bus_port"`
	BusUser         string `json:"bus_user" koanf:"bus_user"`
	BusPass         string `json:"bus_pass,omitempty" koanf:"bus_pass"`
	LinkAddress     string `json:"link_address" koanf:"link_address"`
	LinkBaud        int    `json:"link_baud" koanf:"link_baud"`
	FirmwareVersion string `json:"firmware_version,omitempty" koanf:"firmware_version"`
	CurrentMode     Mode   `json:"current_mode" koanf:"current_mode"`
}

// BrokerURL returns the paho broker address for the configured host and port.
func (c DeviceConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.BusHost, c.BusPort)
}

// Topics returns the topic set derived from the device id.
func (c DeviceConfig) Topics() DeviceTopics { return TopicsFor(c.DeviceID) }

// HubConfig is the persisted configuration of the hub.
type HubConfig struct {
	Mode                  string `json:"mode"`
	LANBrokerIP           string `json:"lan_broker_ip"`
	LANBrokerPort         int    `json:"lan_broker_port"`
	VPNBrokerIP           string `json:"vpn_broker_ip"`
	VPNBrokerPort         int    `json:"vpn_broker_port"`
	RemoteDirectoryServer string `json:"remote_directory_server"`
	RemoteDirectoryPort   int    `json:"remote_directory_port"`
	CurrentMode           Mode   `json:"current_mode"`
}

// DefaultHubConfig is used when no hub configuration has been persisted yet.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Mode:                  string(ModeLAN),
		LANBrokerIP:           "192.168.4.1",
		LANBrokerPort:         1883,
		VPNBrokerIP:           "100.64.0.1",
		VPNBrokerPort:         1883,
		RemoteDirectoryServer: "headscale.local",
		RemoteDirectoryPort:   443,
		CurrentMode:           ModeLAN,
	}
}
