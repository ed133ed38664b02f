// Package service restarts system services through systemctl.
package service

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kilianp07/skybridge/infra/logger"
)

// ErrServiceNotAllowed is returned for services outside the allow-list.
var ErrServiceNotAllowed = errors.New("service not allowed")

// RunFunc executes a command and returns its combined output.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Manager restarts allow-listed services.
type Manager struct {
	allowed map[string]struct{}
	sudo    bool
	timeout time.Duration
	run     RunFunc
	log     logger.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithSudo prefixes systemctl with sudo.
func WithSudo(enabled bool) Option { return func(m *Manager) { m.sudo = enabled } }

// WithTimeout bounds each restart.
func WithTimeout(d time.Duration) Option { return func(m *Manager) { m.timeout = d } }

// WithRunner replaces the command runner.
func WithRunner(run RunFunc) Option { return func(m *Manager) { m.run = run } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(m *Manager) { m.log = l } }

// NewManager returns a Manager for the given allow-list.
func NewManager(allowed []string, opts ...Option) *Manager {
	m := &Manager{
		allowed: make(map[string]struct{}, len(allowed)),
		timeout: 30 * time.Second,
		run:     execRun,
		log:     logger.NopLogger{},
	}
	for _, s := range allowed {
		m.allowed[s] = struct{}{}
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Allowed reports whether name may be restarted.
func (m *Manager) Allowed(name string) bool {
	_, ok := m.allowed[name]
	return ok
}

// Restart runs "systemctl restart <name>".
func (m *Manager) Restart(ctx context.Context, name string) error {
	if !m.Allowed(name) {
		return fmt.Errorf("%w: %q", ErrServiceNotAllowed, name)
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	cmd, args := "systemctl", []string{"restart", name}
	if m.sudo {
		cmd, args = "sudo", append([]string{"systemctl"}, args...)
	}
	m.log.Infof("restarting service %s", name)
	out, err := m.run(ctx, cmd, args...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("restart %s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("restart %s: %w", name, err)
	}
	return nil
}
