// Package app assembles the bridge and hub processes from configuration.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/skybridge/config"
	"github.com/kilianp07/skybridge/core/bridge"
	"github.com/kilianp07/skybridge/core/bus"
	"github.com/kilianp07/skybridge/core/events"
	coremetrics "github.com/kilianp07/skybridge/core/metrics"
	"github.com/kilianp07/skybridge/core/model"
	"github.com/kilianp07/skybridge/infra/logger"
	"github.com/kilianp07/skybridge/infra/mavlink"
	inframetrics "github.com/kilianp07/skybridge/infra/metrics"
	"github.com/kilianp07/skybridge/infra/mqtt"
	"github.com/kilianp07/skybridge/internal/eventbus"
	"github.com/kilianp07/skybridge/metrics"
)

// VehicleLink is the vehicle side of a bridge session.
type VehicleLink interface {
	bridge.Receiver
	bridge.Sender
	Close() error
}

// BusConn is the broker side of a bridge session.
type BusConn interface {
	bus.Publisher
	Connect(ctx context.Context) error
	Close()
}

// DeviceResolver produces the effective device configuration.
type DeviceResolver interface {
	Resolve(ctx context.Context) model.DeviceConfig
}

// Bridge runs one vehicle session: telemetry out, commands in.
type Bridge struct {
	cfg      *config.Config
	log      logger.Logger
	resolver DeviceResolver

	openLink func(ctx context.Context, cfg mavlink.Config, log logger.Logger) (VehicleLink, error)
	newBus   func(cfg mqtt.Config, subTopic string, h bus.Handler, log logger.Logger) BusConn
	sink     coremetrics.Sink
}

// NewBridge creates a Bridge from the process configuration.
func NewBridge(cfg *config.Config) (*Bridge, error) {
	log := logger.New("bridge")
	b := &Bridge{
		cfg:      cfg,
		log:      log,
		resolver: config.NewResolver(cfg.Bridge, log.With("stage", "config")),
		openLink: func(ctx context.Context, c mavlink.Config, l logger.Logger) (VehicleLink, error) {
			return mavlink.Open(ctx, c, l)
		},
		newBus: func(c mqtt.Config, topic string, h bus.Handler, l logger.Logger) BusConn {
			return mqtt.NewConnection(c, topic, h, l)
		},
	}
	sink, err := bridgeSink(cfg)
	if err != nil {
		return nil, err
	}
	b.sink = sink
	return b, nil
}

func bridgeSink(cfg *config.Config) (coremetrics.Sink, error) {
	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		s, err := inframetrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	if in := cfg.Bridge.Influx; in.Enabled() {
		sinks = append(sinks, inframetrics.NewInfluxSinkWithFallback(in.URL, in.Token, in.Org, in.Bucket))
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return inframetrics.NewMultiSink(sinks...), nil
	}
}

// Run resolves the device configuration, opens the vehicle link, connects
// to the broker and bridges until ctx is cancelled. A failed handshake or
// broker connection ends the session with an error.
func (b *Bridge) Run(ctx context.Context) error {
	dc := b.resolver.Resolve(ctx)
	log := b.log.With("drone_id", dc.DeviceID)
	log.Infof("starting bridge for %s (broker %s, link %s @ %d, mode %s)",
		dc.DeviceID, dc.BrokerURL(), dc.LinkAddress, dc.LinkBaud, dc.CurrentMode)

	evBus := eventbus.New[events.Event](64)
	collectorCtx, stopCollector := context.WithCancel(context.Background())
	collected := inframetrics.StartEventCollector(collectorCtx, evBus, b.sink, log)
	defer func() {
		evBus.Close()
		<-collected
		stopCollector()
		if c, ok := b.sink.(interface{ Close() }); ok {
			c.Close()
		}
	}()

	if b.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, b.cfg.Metrics.PrometheusAddr, log); err != nil {
				log.Errorf("prom server: %v", err)
			}
		}()
	}

	vl, err := b.openLink(ctx, mavlink.Config{
		Address:          dc.LinkAddress,
		Baud:             dc.LinkBaud,
		HandshakeTimeout: b.cfg.Bridge.HandshakeTimeout(),
	}, log.With("component", "mavlink"))
	if err != nil {
		return fmt.Errorf("open vehicle link: %w", err)
	}
	defer func() { _ = vl.Close() }()

	opts := bridge.Options{
		Logger:    log,
		Events:    evBus,
		QueueSize: b.cfg.Bridge.CommandQueueSize,
	}
	commands := bridge.NewCommandBridge(dc, vl, opts)
	conn := b.newBus(mqtt.ConfigFor(dc), dc.Topics().Command, commands.Handle, log.With("component", "mqtt"))
	if err := conn.Connect(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("connect broker: %w", err)
	}
	defer conn.Close()
	telemetry := bridge.NewTelemetryBridge(dc, vl, conn, opts)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = telemetry.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = commands.Run(ctx)
	}()
	wg.Wait()
	log.Infof("bridge stopped")
	return nil
}
