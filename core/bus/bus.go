// Package bus defines the publish/subscribe contract used by the bridges.
package bus

import "errors"

// ErrNotConnected is returned when publishing before Connect or after Close.
var ErrNotConnected = errors.New("bus not connected")

// Publisher publishes payloads at least once. Publish must not wait for the
// broker acknowledgment.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Handler receives inbound messages. It runs on the bus client's own
// callback goroutine and must return quickly.
type Handler func(topic string, payload []byte)
