// Package bridge moves data between the vehicle link and the bus.
//
// TelemetryBridge polls the link without blocking and publishes status and
// telemetry samples. CommandBridge decodes bus commands on the bus callback,
// queues them, and a dedicated goroutine turns them into link directives.
// The link implementation serializes the two sides.
package bridge
