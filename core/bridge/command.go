package bridge

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kilianp07/skybridge/core/events"
	"github.com/kilianp07/skybridge/core/link"
	"github.com/kilianp07/skybridge/core/model"
)

type queuedCommand struct {
	id  string
	cmd model.Command
}

// CommandBridge turns bus command payloads into vehicle directives. Handle
// runs on the bus callback and only decodes and enqueues; Run executes.
type CommandBridge struct {
	topic string
	dst   Sender
	queue chan queuedCommand
	opts  Options
}

// NewCommandBridge creates a bridge for dc's command topic.
func NewCommandBridge(dc model.DeviceConfig, dst Sender, opts Options) *CommandBridge {
	opts.setDefaults()
	return &CommandBridge{
		topic: dc.Topics().Command,
		dst:   dst,
		queue: make(chan queuedCommand, opts.QueueSize),
		opts:  opts,
	}
}

// Handle decodes one payload and enqueues it without blocking. Malformed
// payloads are logged and dropped; unknown commands are dropped quietly.
func (b *CommandBridge) Handle(topic string, payload []byte) {
	if topic != b.topic {
		b.opts.Logger.Debugf("ignoring message on %s", topic)
		return
	}
	id := uuid.NewString()
	cmd, err := model.DecodeCommand(payload)
	switch {
	case errors.Is(err, model.ErrUnknownCommand):
		b.opts.Logger.Debugf("command %s ignored: %v", id, err)
		b.emit(id, "", events.CommandIgnored, err)
		return
	case err != nil:
		b.opts.Logger.Errorf("invalid JSON in command message: %v", err)
		b.emit(id, "", events.CommandMalformed, err)
		return
	}
	b.opts.Logger.Infof("command received: %s (%s)", cmd.Name(), id)
	select {
	case b.queue <- queuedCommand{id: id, cmd: cmd}:
	default:
		b.opts.Logger.Warnf("command queue full, dropping %s (%s)", cmd.Name(), id)
		b.emit(id, cmd.Name(), events.CommandDropped, nil)
	}
}

// Run executes queued commands until ctx is cancelled. Commands still
// queued at that point are discarded.
func (b *CommandBridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case q := <-b.queue:
			b.execute(q)
		}
	}
}

func (b *CommandBridge) execute(q queuedCommand) {
	d, ok := link.DirectiveFor(q.cmd)
	if !ok {
		b.emit(q.id, q.cmd.Name(), events.CommandIgnored, nil)
		return
	}
	if err := b.dst.Send(d); err != nil {
		b.opts.Logger.Errorf("%s command %s failed: %v", d.Name(), q.id, err)
		b.emit(q.id, d.Name(), events.CommandFailed, err)
		return
	}
	if t, ok := q.cmd.(model.Takeoff); ok {
		b.opts.Logger.Infof("TAKEOFF command sent (altitude: %gm)", t.Altitude)
	} else {
		b.opts.Logger.Infof("%s command sent", d.Name())
	}
	b.emit(q.id, d.Name(), events.CommandSent, nil)
}

func (b *CommandBridge) emit(id, name string, outcome events.CommandOutcome, err error) {
	b.opts.Events.Publish(events.CommandHandled{CommandID: id, Name: name, Outcome: outcome, Err: err})
}
