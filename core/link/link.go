package link

import (
	"errors"

	"github.com/kilianp07/skybridge/core/model"
)

var (
	// ErrHandshakeTimeout is returned when no heartbeat arrives before the
	// configured deadline while opening the link.
	ErrHandshakeTimeout = errors.New("timeout waiting for vehicle heartbeat")
	// ErrClosed is returned by operations on a closed link.
	ErrClosed = errors.New("link closed")
)

// State is the lifecycle state of a link.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHandshake
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Message is an inbound vehicle message. Only Heartbeat and GlobalPosition
// are surfaced; implementations may return any other value for the rest.
type Message any

// Heartbeat is the periodic liveness message of the vehicle.
type Heartbeat struct {
	CustomMode   uint32
	SystemStatus uint8
}

// GlobalPosition carries the raw integer position fields: lat/lon in 1e-7
// degrees, alt in millimeters, velocities in cm/s.
type GlobalPosition struct {
	Lat int32
	Lon int32
	Alt int32
	Vx  int16
	Vy  int16
}

// Link is a vehicle connection shared by the telemetry poll loop and the
// command executor. Implementations serialize Recv and Send.
type Link interface {
	// Recv performs one non-blocking receive. It returns a nil message
	// when nothing is pending.
	Recv() (Message, error)
	// Send writes a directive without waiting for acknowledgment.
	Send(Directive) error
	Close() error
}

// Directive is a vehicle-bound COMMAND_LONG.
type Directive struct {
	Command uint16
	Params  [7]float32
}

// MAVLink command ids used by the bridge.
const (
	CmdNavLand            uint16 = 21
	CmdNavTakeoff         uint16 = 22
	CmdComponentArmDisarm uint16 = 400
)

// Name returns a short label for logs and metrics.
func (d Directive) Name() string {
	switch d.Command {
	case CmdComponentArmDisarm:
		if d.Params[0] == 1 {
			return "arm"
		}
		return "disarm"
	case CmdNavTakeoff:
		return "takeoff"
	case CmdNavLand:
		return "land"
	default:
		return "unknown"
	}
}

// DirectiveFor maps a decoded bus command to its directive.
func DirectiveFor(cmd model.Command) (Directive, bool) {
	switch c := cmd.(type) {
	case model.Arm:
		return Directive{Command: CmdComponentArmDisarm, Params: [7]float32{1}}, true
	case model.Disarm:
		return Directive{Command: CmdComponentArmDisarm}, true
	case model.Takeoff:
		var p [7]float32
		p[6] = float32(c.Altitude)
		return Directive{Command: CmdNavTakeoff, Params: p}, true
	case model.Land:
		return Directive{Command: CmdNavLand}, true
	default:
		return Directive{}, false
	}
}
