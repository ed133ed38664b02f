package mavlink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/kilianp07/skybridge/core/link"
	"github.com/kilianp07/skybridge/infra/logger"
)

const handshakePoll = 20 * time.Millisecond

// Config describes the vehicle endpoint.
type Config struct {
	Address          string
	Baud             int
	HandshakeTimeout time.Duration
	// SystemID is the MAVLink system id the bridge writes with.
	SystemID byte
	// TargetSystem and TargetComponent address outgoing COMMAND_LONGs.
	TargetSystem    uint8
	TargetComponent uint8
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 30 * time.Second
	}
	if c.SystemID == 0 {
		c.SystemID = 255
	}
	if c.TargetSystem == 0 {
		c.TargetSystem = 1
	}
}

// Link is a MAVLink connection to one vehicle. A single mutex guards the
// endpoint so the poll loop and the command executor never interleave.
type Link struct {
	cfg Config
	log logger.Logger

	mu    sync.Mutex
	ep    endpoint
	state link.State
}

var _ link.Link = (*Link)(nil)

// Open connects to the vehicle and blocks until its first heartbeat, the
// handshake timeout or ctx cancellation. There is no reconnect: a failed
// handshake leaves the link closed.
func Open(ctx context.Context, cfg Config, log logger.Logger) (*Link, error) {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	l := &Link{cfg: cfg, log: log, state: link.StateDisconnected}

	l.setState(link.StateConnecting)
	ep, err := newEndpoint(cfg)
	if err != nil {
		l.setState(link.StateClosed)
		return nil, err
	}
	l.mu.Lock()
	l.ep = ep
	l.state = link.StateAwaitingHandshake
	l.mu.Unlock()
	log.Infof("waiting for heartbeat on %s (timeout %s)", cfg.Address, cfg.HandshakeTimeout)

	if err := l.awaitHeartbeat(ctx); err != nil {
		_ = l.Close()
		return nil, err
	}
	l.setState(link.StateReady)
	log.Infof("MAVLink connection established on %s", cfg.Address)
	return l, nil
}

func (l *Link) awaitHeartbeat(ctx context.Context) error {
	deadline := time.NewTimer(l.cfg.HandshakeTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(handshakePoll)
	defer tick.Stop()
	for {
		l.mu.Lock()
		msg, err := l.ep.recv()
		l.mu.Unlock()
		if err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
		if _, ok := msg.(*common.MessageHeartbeat); ok {
			return nil
		}
		if msg != nil {
			// other traffic pending: keep draining but honor the deadline
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-deadline.C:
				return l.handshakeTimeout()
			default:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return l.handshakeTimeout()
		case <-tick.C:
		}
	}
}

func (l *Link) handshakeTimeout() error {
	return fmt.Errorf("%w after %s", link.ErrHandshakeTimeout, l.cfg.HandshakeTimeout)
}

func (l *Link) setState(s link.State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// State reports the lifecycle state.
func (l *Link) State() link.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Recv performs one non-blocking receive and translates the two message
// kinds the bridge understands. Other messages are returned untranslated.
func (l *Link) Recv() (link.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != link.StateReady {
		return nil, link.ErrClosed
	}
	msg, err := l.ep.recv()
	if err != nil || msg == nil {
		return nil, err
	}
	return translate(msg), nil
}

func translate(msg message.Message) link.Message {
	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		return link.Heartbeat{CustomMode: m.CustomMode, SystemStatus: uint8(m.SystemStatus)}
	case *common.MessageGlobalPositionInt:
		return link.GlobalPosition{Lat: m.Lat, Lon: m.Lon, Alt: m.Alt, Vx: m.Vx, Vy: m.Vy}
	default:
		return msg
	}
}

// Send writes d as a COMMAND_LONG. It does not wait for COMMAND_ACK.
func (l *Link) Send(d link.Directive) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != link.StateReady {
		return link.ErrClosed
	}
	return l.ep.write(&common.MessageCommandLong{
		TargetSystem:    l.cfg.TargetSystem,
		TargetComponent: l.cfg.TargetComponent,
		Command:         common.MAV_CMD(d.Command),
		Param1:          d.Params[0],
		Param2:          d.Params[1],
		Param3:          d.Params[2],
		Param4:          d.Params[3],
		Param5:          d.Params[4],
		Param6:          d.Params[5],
		Param7:          d.Params[6],
	})
}

// Close releases the endpoint. Calling it on a closed link is a no-op.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == link.StateClosed {
		return nil
	}
	l.state = link.StateClosed
	if l.ep != nil {
		l.ep.close()
	}
	return nil
}
