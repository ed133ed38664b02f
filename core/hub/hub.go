// Package hub assembles the device configuration served by the hub's
// device-config directory.
package hub

import (
	"github.com/kilianp07/skybridge/core/model"
)

// Link defaults handed to every device.
const (
	DefaultLinkAddress = "/dev/ttyUSB0"
	DefaultLinkBaud    = 57600
)

// DeviceConfigFor derives the configuration of deviceID from the hub's
// current network mode. The password is never part of the result.
func DeviceConfigFor(hc model.HubConfig, deviceID string) model.DeviceConfig {
	mode := hc.CurrentMode
	if !mode.Valid() {
		if m, err := model.ParseMode(hc.Mode); err == nil {
			mode = m
		} else {
			mode = model.ModeLAN
		}
	}
	dc := model.DeviceConfig{
		DeviceID:    deviceID,
		BusUser:     model.UsernameFor(deviceID),
		LinkAddress: DefaultLinkAddress,
		LinkBaud:    DefaultLinkBaud,
		CurrentMode: mode,
	}
	switch mode {
	case model.ModeVPN:
		dc.BusHost, dc.BusPort = hc.VPNBrokerIP, hc.VPNBrokerPort
	default:
		dc.BusHost, dc.BusPort = hc.LANBrokerIP, hc.LANBrokerPort
	}
	return dc
}
