package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/skybridge/core/bus"
	"github.com/kilianp07/skybridge/core/events"
	"github.com/kilianp07/skybridge/core/link"
	"github.com/kilianp07/skybridge/core/model"
)

// TelemetryBridge forwards vehicle heartbeats and position reports to the
// bus.
type TelemetryBridge struct {
	deviceID string
	topics   model.DeviceTopics
	src      Receiver
	pub      bus.Publisher
	opts     Options
}

// NewTelemetryBridge creates a bridge publishing on dc's topics.
func NewTelemetryBridge(dc model.DeviceConfig, src Receiver, pub bus.Publisher, opts Options) *TelemetryBridge {
	opts.setDefaults()
	return &TelemetryBridge{
		deviceID: dc.DeviceID,
		topics:   dc.Topics(),
		src:      src,
		pub:      pub,
		opts:     opts,
	}
}

// Run polls the link until ctx is cancelled. Iteration errors are logged
// and followed by a backoff; they never end the loop.
func (b *TelemetryBridge) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		pause := time.Duration(0)
		got, err := b.step()
		switch {
		case err != nil:
			b.opts.Logger.Errorf("telemetry error: %v", err)
			pause = b.opts.ErrorBackoff
		case !got:
			pause = b.opts.IdleInterval
		}
		if pause > 0 && !sleep(ctx, pause) {
			return nil
		}
	}
}

// step performs one receive. It reports whether a message was available.
func (b *TelemetryBridge) step() (bool, error) {
	msg, err := b.src.Recv()
	if err != nil {
		b.opts.Events.Publish(events.LoopError{Stage: "receive", Err: err})
		return false, fmt.Errorf("receive: %w", err)
	}
	if msg == nil {
		return false, nil
	}
	now := b.opts.Now()
	switch m := msg.(type) {
	case link.Heartbeat:
		s := model.StatusSample{
			Timestamp:    model.UnixSeconds(now),
			Mode:         m.CustomMode,
			SystemStatus: m.SystemStatus,
			DeviceID:     b.deviceID,
		}
		err = b.publish(b.topics.Status, s, events.SamplePublished{Topic: b.topics.Status, Status: &s})
	case link.GlobalPosition:
		s := model.NewTelemetrySample(b.deviceID, now, m.Lat, m.Lon, m.Alt, m.Vx, m.Vy)
		err = b.publish(b.topics.Telemetry, s, events.SamplePublished{Topic: b.topics.Telemetry, Telemetry: &s})
		if err == nil {
			b.opts.Logger.Debugw("telemetry published", map[string]any{
				"lat": s.Lat, "lon": s.Lon, "alt": s.Alt, "vx": s.Vx, "vy": s.Vy,
			})
		}
	}
	return true, err
}

func (b *TelemetryBridge) publish(topic string, sample any, ev events.SamplePublished) error {
	payload, err := json.Marshal(sample)
	if err == nil {
		err = b.pub.Publish(topic, payload)
	}
	if err != nil {
		err = fmt.Errorf("publish %s: %w", topic, err)
		ev.Err = err
		b.opts.Events.Publish(events.LoopError{Stage: "publish", Err: err})
	}
	b.opts.Events.Publish(ev)
	return err
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
