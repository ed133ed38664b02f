package metrics

import "github.com/kilianp07/skybridge/core/events"

// Sink records published samples.
type Sink interface {
	RecordSample(ev events.SamplePublished) error
}

// CommandRecorder records handled bus commands.
type CommandRecorder interface {
	RecordCommand(ev events.CommandHandled) error
}

// LoopErrorRecorder records telemetry loop failures.
type LoopErrorRecorder interface {
	RecordLoopError(ev events.LoopError) error
}

// EnrollmentRecorder records hub enrollments.
type EnrollmentRecorder interface {
	RecordEnrollment(ev events.DeviceEnrolled) error
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordSample(events.SamplePublished) error { return nil }
