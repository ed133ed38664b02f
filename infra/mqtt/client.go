package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/skybridge/core/bus"
	"github.com/kilianp07/skybridge/core/model"
	"github.com/kilianp07/skybridge/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker           string      `json:"broker"`
	ClientID         string      `json:"client_id"`
	Username         string      `json:"username"`
	Password         string      `json:"password"`
	KeepAliveSeconds int         `json:"keepalive_seconds"`
	ConnectTimeoutMS int         `json:"connect_timeout_ms"`
	QoS              byte        `json:"qos"`
	UseTLS           bool        `json:"use_tls"`
	ClientCert       string      `json:"client_cert"`
	ClientKey        string      `json:"client_key"`
	CABundle         string      `json:"ca_bundle"`
	LWTTopic         string      `json:"lwt_topic"`
	LWTPayload       string      `json:"lwt_payload"`
	LWTQoS           byte        `json:"lwt_qos"`
	LWTRetain        bool        `json:"lwt_retain"`
	TLSConfig        *tls.Config `json:"-"`
}

// ConfigFor builds the bus configuration of a bridge session. The device id
// doubles as client id.
func ConfigFor(dc model.DeviceConfig) Config {
	return Config{
		Broker:           dc.BrokerURL(),
		ClientID:         dc.DeviceID,
		Username:         dc.BusUser,
		Password:         dc.BusPass,
		KeepAliveSeconds: 60,
		QoS:              1,
	}
}

// State is the lifecycle state of a Connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Connection is the bridge's session with the broker. Paho runs the network
// loop (keepalive, inbound delivery, reconnects) on its own goroutines.
type Connection struct {
	cfg      Config
	subTopic string
	handler  bus.Handler
	log      logger.Logger

	mu    sync.Mutex
	cli   pahoClient
	state State
}

// NewConnection prepares a connection that subscribes to subTopic on every
// (re)connect and forwards inbound messages to h.
func NewConnection(cfg Config, subTopic string, h bus.Handler, log logger.Logger) *Connection {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Connection{cfg: cfg, subTopic: subTopic, handler: h, log: log}
}

// Connect establishes the session. It returns once the broker accepted the
// connection or ctx is done.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("connect in state %s", st)
	}
	opts, err := NewClientOptions(c.cfg)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	opts.OnConnect = c.onConnect
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		c.log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		c.log.Warnf("reconnecting to MQTT broker")
	}
	cli := newMQTTClient(opts)
	c.cli = cli
	c.state = StateConnecting
	c.mu.Unlock()

	token := cli.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("connect %s: %w", c.cfg.Broker, err)
	}
	c.mu.Lock()
	if c.state == StateConnecting {
		c.state = StateConnected
	}
	c.mu.Unlock()
	c.log.Infof("connected to MQTT broker at %s", c.cfg.Broker)
	return nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	keepAlive := cfg.KeepAliveSeconds
	if keepAlive <= 0 {
		keepAlive = 60
	}
	opts.SetKeepAlive(time.Duration(keepAlive) * time.Second)
	if cfg.ConnectTimeoutMS > 0 {
		opts.SetConnectTimeout(time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// onConnect runs after every successful (re)connect; clean sessions lose
// their subscriptions so the command topic is subscribed again each time.
func (c *Connection) onConnect(cli paho.Client) {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateDisconnected {
		c.state = StateConnected
	}
	c.mu.Unlock()
	if c.subTopic == "" {
		return
	}
	token := cli.Subscribe(c.subTopic, c.cfg.QoS, c.onMessage)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.log.Errorf("subscribe %s: %v", c.subTopic, err)
			return
		}
		c.log.Infof("subscribed to %s", c.subTopic)
	}()
}

func (c *Connection) onMessage(_ paho.Client, msg paho.Message) {
	if c.handler != nil {
		c.handler(msg.Topic(), msg.Payload())
	}
}

// Publish hands payload to paho at the configured QoS and returns without
// waiting for the broker acknowledgment. Delivery failures are logged when
// the token completes.
func (c *Connection) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	cli, state := c.cli, c.state
	c.mu.Unlock()
	if cli == nil || state == StateClosed {
		return bus.ErrNotConnected
	}
	token := cli.Publish(topic, c.cfg.QoS, false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.log.Errorf("publish %s: %v", topic, err)
		}
	}()
	return nil
}

// State reports the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close disconnects from the broker. It is safe to call more than once.
func (c *Connection) Close() {
	c.mu.Lock()
	cli := c.cli
	already := c.state == StateClosed
	c.state = StateClosed
	c.mu.Unlock()
	if already || cli == nil {
		return
	}
	if cli.IsConnected() {
		cli.Disconnect(250)
	}
	c.log.Infof("MQTT connection closed")
}
