package bridge

import (
	"time"

	"github.com/kilianp07/skybridge/core/events"
	"github.com/kilianp07/skybridge/core/link"
	"github.com/kilianp07/skybridge/infra/logger"
	"github.com/kilianp07/skybridge/internal/eventbus"
)

const (
	DefaultIdleInterval = 100 * time.Millisecond
	DefaultErrorBackoff = time.Second
	DefaultQueueSize    = 16
)

// Receiver is the read side of the vehicle link.
type Receiver interface {
	Recv() (link.Message, error)
}

// Sender is the write side of the vehicle link.
type Sender interface {
	Send(link.Directive) error
}

// Options tunes both bridges. Zero values select the defaults.
type Options struct {
	Logger logger.Logger
	// Events receives bridge events; nil disables them.
	Events *eventbus.Bus[events.Event]
	// IdleInterval is the pause after an empty receive.
	IdleInterval time.Duration
	// ErrorBackoff is the pause after a failed iteration.
	ErrorBackoff time.Duration
	// QueueSize bounds the pending command queue.
	QueueSize int
	// Now is the sample clock.
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = logger.NopLogger{}
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = DefaultIdleInterval
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = DefaultErrorBackoff
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
