package events

import "github.com/kilianp07/skybridge/core/model"

// Event is any of the event types in this package.
type Event any

// SamplePublished is emitted after a status or telemetry sample was handed
// to the bus. Err is set when the publish failed.
type SamplePublished struct {
	Topic     string
	Status    *model.StatusSample
	Telemetry *model.TelemetrySample
	Err       error
}

// Kind returns "status" or "telemetry".
func (e SamplePublished) Kind() string {
	if e.Telemetry != nil {
		return "telemetry"
	}
	return "status"
}

// CommandOutcome describes what happened to a bus command.
type CommandOutcome string

const (
	CommandSent      CommandOutcome = "sent"
	CommandFailed    CommandOutcome = "failed"
	CommandMalformed CommandOutcome = "malformed"
	CommandIgnored   CommandOutcome = "ignored"
	CommandDropped   CommandOutcome = "dropped"
)

// CommandHandled is emitted once per inbound command payload.
type CommandHandled struct {
	CommandID string
	Name      string
	Outcome   CommandOutcome
	Err       error
}

// LoopError is emitted when a telemetry poll iteration fails.
type LoopError struct {
	Stage string
	Err   error
}

// DeviceEnrolled is emitted by the hub after an enrollment attempt.
type DeviceEnrolled struct {
	DeviceID        string
	Username        string
	RestartRequired bool
	Err             error
}
