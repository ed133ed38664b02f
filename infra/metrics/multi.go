package metrics

import (
	"errors"

	"github.com/kilianp07/skybridge/core/events"
	coremetrics "github.com/kilianp07/skybridge/core/metrics"
)

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSample forwards to every sink and joins the errors.
func (m *MultiSink) RecordSample(ev events.SamplePublished) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordSample(ev))
	}
	return errors.Join(errs...)
}

// RecordCommand forwards to sinks implementing CommandRecorder.
func (m *MultiSink) RecordCommand(ev events.CommandHandled) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.CommandRecorder); ok {
			errs = append(errs, r.RecordCommand(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordLoopError forwards to sinks implementing LoopErrorRecorder.
func (m *MultiSink) RecordLoopError(ev events.LoopError) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.LoopErrorRecorder); ok {
			errs = append(errs, r.RecordLoopError(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordEnrollment forwards to sinks implementing EnrollmentRecorder.
func (m *MultiSink) RecordEnrollment(ev events.DeviceEnrolled) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.EnrollmentRecorder); ok {
			errs = append(errs, r.RecordEnrollment(ev))
		}
	}
	return errors.Join(errs...)
}
