package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultTakeoffAltitude is used when a takeoff command carries no altitude.
const DefaultTakeoffAltitude = 10.0

var (
	// ErrMalformedCommand is returned for payloads that are not valid JSON
	// objects.
	ErrMalformedCommand = errors.New("malformed command payload")
	// ErrUnknownCommand is returned when the command tag is missing or not
	// recognized.
	ErrUnknownCommand = errors.New("unknown command")
)

// Command is one of Arm, Disarm, Takeoff or Land.
type Command interface {
	Name() string
}

type Arm struct{}

type Disarm struct{}

// Takeoff climbs to Altitude meters.
type Takeoff struct {
	Altitude float64
}

type Land struct{}

func (Arm) Name() string     { return "arm" }
func (Disarm) Name() string  { return "disarm" }
func (Takeoff) Name() string { return "takeoff" }
func (Land) Name() string    { return "land" }

type commandPayload struct {
	Command  string   `json:"command"`
	Altitude *float64 `json:"altitude"`
}

// DecodeCommand parses a bus command payload.
func DecodeCommand(payload []byte) (Command, error) {
	var p commandPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	switch p.Command {
	case "arm":
		return Arm{}, nil
	case "disarm":
		return Disarm{}, nil
	case "takeoff":
		alt := DefaultTakeoffAltitude
		if p.Altitude != nil {
			alt = *p.Altitude
		}
		return Takeoff{Altitude: alt}, nil
	case "land":
		return Land{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, p.Command)
	}
}
