package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/skybridge/config"
	"github.com/kilianp07/skybridge/core/bus"
	"github.com/kilianp07/skybridge/core/link"
	"github.com/kilianp07/skybridge/core/model"
	"github.com/kilianp07/skybridge/infra/logger"
	"github.com/kilianp07/skybridge/infra/mavlink"
	"github.com/kilianp07/skybridge/infra/mqtt"
)

type staticResolver model.DeviceConfig

func (r staticResolver) Resolve(context.Context) model.DeviceConfig { return model.DeviceConfig(r) }

type closeLog struct {
	mu    sync.Mutex
	order []string
}

func (c *closeLog) add(s string) {
	c.mu.Lock()
	c.order = append(c.order, s)
	c.mu.Unlock()
}

func (c *closeLog) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

type stubLink struct {
	mu   sync.Mutex
	msgs []link.Message
	sent []link.Directive
	log  *closeLog
}

func (l *stubLink) Recv() (link.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.msgs) == 0 {
		return nil, nil
	}
	m := l.msgs[0]
	l.msgs = l.msgs[1:]
	return m, nil
}

func (l *stubLink) Send(d link.Directive) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, d)
	return nil
}

func (l *stubLink) directives() []link.Directive {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]link.Directive(nil), l.sent...)
}

func (l *stubLink) Close() error {
	l.log.add("link")
	return nil
}

type stubBus struct {
	*mqtt.MemoryPublisher
	handler    bus.Handler
	connectErr error
	log        *closeLog
}

func (b *stubBus) Connect(context.Context) error { return b.connectErr }
func (b *stubBus) Close()                        { b.log.add("bus") }

func newTestBridge(t *testing.T, l *stubLink, b *stubBus, linkErr error) *Bridge {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dc := config.DefaultDeviceConfig()
	dc.DeviceID = "A1"
	return &Bridge{
		cfg:      cfg,
		log:      logger.NopLogger{},
		resolver: staticResolver(dc),
		openLink: func(context.Context, mavlink.Config, logger.Logger) (VehicleLink, error) {
			if linkErr != nil {
				return nil, linkErr
			}
			return l, nil
		},
		newBus: func(_ mqtt.Config, topic string, h bus.Handler, _ logger.Logger) BusConn {
			assert.Equal(t, "drone/A1/command", topic)
			b.handler = h
			return b
		},
	}
}

func TestBridgeRunsAndShutsDownInOrder(t *testing.T) {
	order := &closeLog{}
	l := &stubLink{msgs: []link.Message{link.Heartbeat{CustomMode: 4, SystemStatus: 3}}, log: order}
	b := &stubBus{MemoryPublisher: &mqtt.MemoryPublisher{}, log: order}
	br := newTestBridge(t, l, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- br.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(b.Messages("drone/A1/status")) == 1
	}, time.Second, 10*time.Millisecond)

	b.handler("drone/A1/command", []byte(`{"command":"takeoff","altitude":25}`))
	require.Eventually(t, func() bool { return len(l.directives()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, link.CmdNavTakeoff, l.directives()[0].Command)
	assert.Equal(t, float32(25), l.directives()[0].Params[6])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
	assert.Equal(t, []string{"bus", "link"}, order.get())
}

func TestBridgeFailsOnHandshake(t *testing.T) {
	order := &closeLog{}
	b := &stubBus{MemoryPublisher: &mqtt.MemoryPublisher{}, log: order}
	br := newTestBridge(t, nil, b, link.ErrHandshakeTimeout)

	err := br.Run(context.Background())
	assert.ErrorIs(t, err, link.ErrHandshakeTimeout)
	assert.Empty(t, order.get())
}

func TestBridgeFailsOnBrokerConnect(t *testing.T) {
	order := &closeLog{}
	l := &stubLink{log: order}
	b := &stubBus{MemoryPublisher: &mqtt.MemoryPublisher{}, connectErr: errors.New("refused"), log: order}
	br := newTestBridge(t, l, b, nil)

	err := br.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"bus", "link"}, order.get())
}
