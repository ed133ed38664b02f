package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/skybridge/core/events"
)

// PromSink records bridge and hub events in Prometheus counters.
type PromSink struct {
	samples     *prometheus.CounterVec
	commands    *prometheus.CounterVec
	loopErrors  *prometheus.CounterVec
	enrollments *prometheus.CounterVec
}

// NewPromSink registers the counters on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers the counters on reg. A nil registerer
// defaults to the global one. Counters already registered are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skybridge_samples_published_total",
			Help: "Samples handed to the bus, by kind and result",
		}, []string{"kind", "result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skybridge_commands_total",
			Help: "Bus commands handled, by command and outcome",
		}, []string{"command", "outcome"}),
		loopErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skybridge_loop_errors_total",
			Help: "Telemetry loop iterations that failed, by stage",
		}, []string{"stage"}),
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skybridge_enrollments_total",
			Help: "Device enrollments, by result and restart requirement",
		}, []string{"result", "restart_required"}),
	}
	for _, c := range []**prometheus.CounterVec{&s.samples, &s.commands, &s.loopErrors, &s.enrollments} {
		if err := reg.Register(*c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
			*c = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return s, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordSample counts a published sample.
func (s *PromSink) RecordSample(ev events.SamplePublished) error {
	s.samples.WithLabelValues(ev.Kind(), result(ev.Err)).Inc()
	return nil
}

// RecordCommand counts a handled command.
func (s *PromSink) RecordCommand(ev events.CommandHandled) error {
	name := ev.Name
	if name == "" {
		name = "unknown"
	}
	s.commands.WithLabelValues(name, string(ev.Outcome)).Inc()
	return nil
}

// RecordLoopError counts a failed loop iteration.
func (s *PromSink) RecordLoopError(ev events.LoopError) error {
	s.loopErrors.WithLabelValues(ev.Stage).Inc()
	return nil
}

// RecordEnrollment counts an enrollment attempt.
func (s *PromSink) RecordEnrollment(ev events.DeviceEnrolled) error {
	s.enrollments.WithLabelValues(result(ev.Err), strconv.FormatBool(ev.RestartRequired)).Inc()
	return nil
}
