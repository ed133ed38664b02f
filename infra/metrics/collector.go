package metrics

import (
	"context"

	"github.com/kilianp07/skybridge/core/events"
	coremetrics "github.com/kilianp07/skybridge/core/metrics"
	"github.com/kilianp07/skybridge/infra/logger"
	"github.com/kilianp07/skybridge/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records every event
// the sink supports. The returned channel is closed once the collector has
// stopped, which happens when ctx is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.Event], sink coremetrics.Sink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("metrics sink: %v", err)
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.Sink, ev events.Event) error {
	switch e := ev.(type) {
	case events.SamplePublished:
		return sink.RecordSample(e)
	case events.CommandHandled:
		if r, ok := sink.(coremetrics.CommandRecorder); ok {
			return r.RecordCommand(e)
		}
	case events.LoopError:
		if r, ok := sink.(coremetrics.LoopErrorRecorder); ok {
			return r.RecordLoopError(e)
		}
	case events.DeviceEnrolled:
		if r, ok := sink.(coremetrics.EnrollmentRecorder); ok {
			return r.RecordEnrollment(e)
		}
	}
	return nil
}
