// Package metrics implements Prometheus and InfluxDB sinks and the event
// collector feeding them from the event bus. Sinks can be combined with
// NewMultiSink.
package metrics
