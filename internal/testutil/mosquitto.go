// Package testutil provides helpers shared across integration tests.
//
// StartMosquitto launches a disposable Mosquitto broker in a Docker container.
// When password and ACL files are given the broker enforces them, so tests
// exercise the files exactly as the hub writes them.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	MosquittoReadyTimeout = 10 * time.Second

	pollInterval = 50 * time.Millisecond
)

// Broker describes a running test broker.
type Broker struct {
	URL  string
	Host string
	Port int
}

// MosquittoOptions selects the authentication files mounted into the broker.
// Both empty means anonymous access.
type MosquittoOptions struct {
	PasswordFile string
	ACLFile      string
	// ProbeUser and ProbePassword authenticate the readiness probe.
	ProbeUser     string
	ProbePassword string
}

// StartMosquitto launches a temporary Mosquitto broker inside a Docker
// container and returns it along with a cleanup function.
func StartMosquitto(ctx context.Context, opts MosquittoOptions) (Broker, func(), error) {
	conf := "listener 1883\npersistence false\nlog_dest stdout\nconnection_messages true\n"
	files := []tc.ContainerFile{}
	if opts.PasswordFile != "" {
		conf += "allow_anonymous false\npassword_file /mosquitto/config/passwd\n"
		files = append(files, tc.ContainerFile{
			HostFilePath: opts.PasswordFile, ContainerFilePath: "/mosquitto/config/passwd", FileMode: 0o644,
		})
	} else {
		conf += "allow_anonymous true\n"
	}
	if opts.ACLFile != "" {
		conf += "acl_file /mosquitto/config/acl\n"
		files = append(files, tc.ContainerFile{
			HostFilePath: opts.ACLFile, ContainerFilePath: "/mosquitto/config/acl", FileMode: 0o644,
		})
	}

	dir, err := os.MkdirTemp("", "mosq")
	if err != nil {
		return Broker{}, nil, err
	}
	path := filepath.Join(dir, "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return Broker{}, nil, err
	}
	files = append(files, tc.ContainerFile{
		HostFilePath: path, ContainerFilePath: "/mosquitto/config/mosquitto.conf", FileMode: 0o644,
	})

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files:        files,
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		_ = os.RemoveAll(dir)
		return Broker{}, nil, err
	}

	cleanup := func() {
		_ = cont.Terminate(context.Background())
		_ = os.RemoveAll(dir)
	}

	host, err := cont.Host(ctx)
	if err != nil {
		cleanup()
		return Broker{}, nil, err
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		cleanup()
		return Broker{}, nil, err
	}
	b := Broker{URL: fmt.Sprintf("tcp://%s:%s", host, port.Port()), Host: host, Port: port.Int()}

	waitCtx, cancel := context.WithTimeout(ctx, MosquittoReadyTimeout)
	defer cancel()
	if err := waitForMQTTReady(waitCtx, b.URL, opts.ProbeUser, opts.ProbePassword); err != nil {
		cleanup()
		return Broker{}, nil, err
	}
	return b, cleanup, nil
}

func waitForMQTTReady(ctx context.Context, broker, user, pass string) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("probe").
		SetUsername(user).SetPassword(pass)
	for {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
