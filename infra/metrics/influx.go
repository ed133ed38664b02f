package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/skybridge/core/events"
	coremetrics "github.com/kilianp07/skybridge/core/metrics"
	"github.com/kilianp07/skybridge/infra/logger"
)

// InfluxSink mirrors published samples and command outcomes into InfluxDB.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink writing to bucket.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings InfluxDB and returns a NopSink if the
// health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordSample writes a status or telemetry point. Failed publishes are
// not mirrored.
func (s *InfluxSink) RecordSample(ev events.SamplePublished) error {
	if ev.Err != nil {
		return nil
	}
	var p *write.Point
	switch {
	case ev.Telemetry != nil:
		t := ev.Telemetry
		p = write.NewPointWithMeasurement("telemetry").
			AddTag("drone_id", t.DeviceID).
			AddField("lat", t.Lat).
			AddField("lon", t.Lon).
			AddField("alt", round3(t.Alt)).
			AddField("vx", round3(t.Vx)).
			AddField("vy", round3(t.Vy)).
			SetTime(fromUnixSeconds(t.Timestamp))
	case ev.Status != nil:
		st := ev.Status
		p = write.NewPointWithMeasurement("status").
			AddTag("drone_id", st.DeviceID).
			AddField("mode", int64(st.Mode)).
			AddField("system_status", int64(st.SystemStatus)).
			SetTime(fromUnixSeconds(st.Timestamp))
	default:
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCommand writes a command outcome point.
func (s *InfluxSink) RecordCommand(ev events.CommandHandled) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("command").
		AddTag("command", ev.Name).
		AddTag("outcome", string(ev.Outcome)).
		AddField("command_id", ev.CommandID).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// Close flushes and releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func fromUnixSeconds(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
