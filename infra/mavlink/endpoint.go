package mavlink

import (
	"fmt"
	"strings"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/kilianp07/skybridge/core/link"
)

// endpoint is the minimal surface of a MAVLink node used by Link.
type endpoint interface {
	// recv returns the next pending message without blocking, or nil.
	recv() (message.Message, error)
	write(message.Message) error
	close()
}

var newEndpoint = func(cfg Config) (endpoint, error) {
	conf, err := ParseEndpoint(cfg.Address, cfg.Baud)
	if err != nil {
		return nil, err
	}
	n, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:        []gomavlib.EndpointConf{conf},
		Dialect:          common.Dialect,
		OutVersion:       gomavlib.V2,
		OutSystemID:      cfg.SystemID,
		HeartbeatDisable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Address, err)
	}
	return &nodeEndpoint{node: n}, nil
}

// ParseEndpoint maps a link address to a gomavlib endpoint. Accepted forms
// are a serial device path, tcp:host:port, udpin:host:port (udp: is an
// alias) and udpout:host:port.
func ParseEndpoint(address string, baud int) (gomavlib.EndpointConf, error) {
	scheme, rest, found := strings.Cut(address, ":")
	if !found || strings.HasPrefix(address, "/") {
		if address == "" {
			return nil, fmt.Errorf("empty link address")
		}
		if baud <= 0 {
			return nil, fmt.Errorf("invalid baud rate %d", baud)
		}
		return gomavlib.EndpointSerial{Device: address, Baud: baud}, nil
	}
	if rest == "" {
		return nil, fmt.Errorf("missing host:port in %q", address)
	}
	switch strings.ToLower(scheme) {
	case "tcp":
		return gomavlib.EndpointTCPClient{Address: rest}, nil
	case "udp", "udpin":
		return gomavlib.EndpointUDPServer{Address: rest}, nil
	case "udpout":
		return gomavlib.EndpointUDPClient{Address: rest}, nil
	default:
		return nil, fmt.Errorf("unsupported link scheme %q", scheme)
	}
}

type nodeEndpoint struct {
	node *gomavlib.Node
}

func (e *nodeEndpoint) recv() (message.Message, error) {
	for {
		select {
		case evt, ok := <-e.node.Events():
			if !ok {
				return nil, link.ErrClosed
			}
			if frm, ok := evt.(*gomavlib.EventFrame); ok {
				return frm.Message(), nil
			}
		default:
			return nil, nil
		}
	}
}

func (e *nodeEndpoint) write(m message.Message) error {
	return e.node.WriteMessageAll(m)
}

func (e *nodeEndpoint) close() { e.node.Close() }
