// Package link defines the contract between the bridges and the vehicle
// telemetry/command link. Implementations live in infra/mavlink.
package link
