package model

import "time"

// Scale factors of the GLOBAL_POSITION_INT fields.
const (
	LatLonScale   = 1e-7
	AltitudeScale = 1e-3
	VelocityScale = 1e-2
)

// StatusSample is published on the status topic for every heartbeat.
type StatusSample struct {
	Timestamp    float64 `json:"timestamp"`
	Mode         uint32  `json:"mode"`
	SystemStatus uint8   `json:"system_status"`
	DeviceID     string  `json:"drone_id"`
}

// TelemetrySample is published on the telemetry topic for every global
// position report. Units are degrees, meters and m/s.
type TelemetrySample struct {
	Timestamp float64 `json:"timestamp"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Alt       float64 `json:"alt"`
	Vx        float64 `json:"vx"`
	Vy        float64 `json:"vy"`
	DeviceID  string  `json:"drone_id"`
}

// NewTelemetrySample converts raw integer position fields into a sample.
func NewTelemetrySample(deviceID string, at time.Time, lat, lon, alt int32, vx, vy int16) TelemetrySample {
	return TelemetrySample{
		Timestamp: UnixSeconds(at),
		Lat:       float64(lat) * LatLonScale,
		Lon:       float64(lon) * LatLonScale,
		Alt:       float64(alt) * AltitudeScale,
		Vx:        float64(vx) * VelocityScale,
		Vy:        float64(vy) * VelocityScale,
		DeviceID:  deviceID,
	}
}

// UnixSeconds returns t as fractional seconds since the epoch.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
