package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/skybridge/core/events"
	"github.com/kilianp07/skybridge/core/link"
	"github.com/kilianp07/skybridge/internal/eventbus"
)

const cmdTopic = "drone/DRONE_042/command"

func runCommands(t *testing.T, b *CommandBridge) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = b.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel
}

func TestCommandTakeoffAltitude(t *testing.T) {
	fl := &fakeLink{}
	b := NewCommandBridge(testDevice, fl, Options{})
	runCommands(t, b)

	b.Handle(cmdTopic, []byte(`{"command":"takeoff","altitude":25}`))
	require.Eventually(t, func() bool { return len(fl.directives()) == 1 }, time.Second, time.Millisecond)
	d := fl.directives()[0]
	assert.Equal(t, link.CmdNavTakeoff, d.Command)
	assert.Equal(t, float32(25), d.Params[6])

	b.Handle(cmdTopic, []byte(`{"command":"takeoff"}`))
	require.Eventually(t, func() bool { return len(fl.directives()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, float32(10), fl.directives()[1].Params[6])
}

func TestCommandMapping(t *testing.T) {
	fl := &fakeLink{}
	b := NewCommandBridge(testDevice, fl, Options{})
	runCommands(t, b)
	for _, p := range []string{`{"command":"arm"}`, `{"command":"disarm"}`, `{"command":"land"}`} {
		b.Handle(cmdTopic, []byte(p))
	}
	require.Eventually(t, func() bool { return len(fl.directives()) == 3 }, time.Second, time.Millisecond)
	ds := fl.directives()
	assert.Equal(t, link.Directive{Command: link.CmdComponentArmDisarm, Params: [7]float32{1}}, ds[0])
	assert.Equal(t, link.Directive{Command: link.CmdComponentArmDisarm}, ds[1])
	assert.Equal(t, link.Directive{Command: link.CmdNavLand}, ds[2])
}

func TestCommandMalformedAndUnknownAreDropped(t *testing.T) {
	fl := &fakeLink{}
	bus := eventbus.New[events.Event](8)
	sub := bus.Subscribe()
	b := NewCommandBridge(testDevice, fl, Options{Events: bus})

	assert.NotPanics(t, func() {
		b.Handle(cmdTopic, []byte(`{"command":`))
		b.Handle(cmdTopic, []byte(`{"command":"flip"}`))
		b.Handle(cmdTopic, []byte(`{}`))
		b.Handle("drone/OTHER/command", []byte(`{"command":"arm"}`))
	})
	assert.Len(t, b.queue, 0)

	outcomes := []events.CommandOutcome{}
	for len(sub) > 0 {
		if e, ok := (<-sub).(events.CommandHandled); ok {
			outcomes = append(outcomes, e.Outcome)
		}
	}
	assert.Equal(t, []events.CommandOutcome{events.CommandMalformed, events.CommandIgnored, events.CommandIgnored}, outcomes)

	runCommands(t, b)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, fl.directives())
}

func TestCommandQueueFullDrops(t *testing.T) {
	fl := &fakeLink{}
	bus := eventbus.New[events.Event](8)
	sub := bus.Subscribe()
	b := NewCommandBridge(testDevice, fl, Options{QueueSize: 1, Events: bus})

	done := make(chan struct{})
	go func() {
		b.Handle(cmdTopic, []byte(`{"command":"arm"}`))
		b.Handle(cmdTopic, []byte(`{"command":"land"}`))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Handle blocked on a full queue")
	}
	e := (<-sub).(events.CommandHandled)
	assert.Equal(t, events.CommandDropped, e.Outcome)
	assert.Equal(t, "land", e.Name)
}

func TestCommandSendFailureKeepsRunning(t *testing.T) {
	fl := &fakeLink{sendErr: errors.New("write: broken pipe")}
	bus := eventbus.New[events.Event](8)
	sub := bus.Subscribe()
	b := NewCommandBridge(testDevice, fl, Options{Events: bus})
	runCommands(t, b)

	b.Handle(cmdTopic, []byte(`{"command":"arm"}`))
	var ev events.CommandHandled
	require.Eventually(t, func() bool {
		select {
		case e := <-sub:
			ev, _ = e.(events.CommandHandled)
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	assert.Equal(t, events.CommandFailed, ev.Outcome)

	fl.mu.Lock()
	fl.sendErr = nil
	fl.mu.Unlock()
	b.Handle(cmdTopic, []byte(`{"command":"land"}`))
	require.Eventually(t, func() bool { return len(fl.directives()) == 1 }, time.Second, time.Millisecond)
}
