// Package provision enrolls devices on the hub broker: it stores the device
// credential, rewrites its ACL block and restarts the broker.
package provision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kilianp07/skybridge/core/events"
	"github.com/kilianp07/skybridge/core/model"
	"github.com/kilianp07/skybridge/infra/logger"
	"github.com/kilianp07/skybridge/internal/eventbus"
)

var (
	// ErrInvalidEnrollment is returned when the request cannot be enrolled.
	ErrInvalidEnrollment = errors.New("invalid enrollment")
	// ErrUsernameTaken is returned when the username belongs to another device.
	ErrUsernameTaken = errors.New("username already enrolled for another device")
)

// CredentialWriteError wraps a failure to persist the broker credential.
type CredentialWriteError struct {
	Username string
	Err      error
}

func (e *CredentialWriteError) Error() string {
	return fmt.Sprintf("write credential for %s: %v", e.Username, e.Err)
}

func (e *CredentialWriteError) Unwrap() error { return e.Err }

// AclWriteError wraps a failure to persist the ACL rules.
type AclWriteError struct {
	Username string
	Err      error
}

func (e *AclWriteError) Error() string {
	return fmt.Sprintf("write acl for %s: %v", e.Username, e.Err)
}

func (e *AclWriteError) Unwrap() error { return e.Err }

// CredentialWriter stores broker passwords.
type CredentialWriter interface {
	Upsert(username, password string) error
	Remove(username string) error
}

// ACLWriter replaces the rule block of a broker user. Owners maps each
// enrolled username to the device whose topics it holds.
type ACLWriter interface {
	ReplaceUser(username string, rules []model.AccessRule) error
	RemoveUser(username string) error
	Owners() (map[string]string, error)
}

// Restarter restarts a system service.
type Restarter interface {
	Restart(ctx context.Context, name string) error
}

// Result describes a completed enrollment.
type Result struct {
	DeviceID        string `json:"device_id"`
	Username        string `json:"username"`
	RestartRequired bool   `json:"restart_required"`
}

// Store enrolls devices. Enrollments are serialized.
type Store struct {
	mu            sync.Mutex
	creds         CredentialWriter
	acl           ACLWriter
	restarter     Restarter
	brokerService string
	log           logger.Logger
	events        *eventbus.Bus[events.Event]
}

// Options tunes a Store. Zero values select the defaults.
type Options struct {
	BrokerService string
	Logger        logger.Logger
	Events        *eventbus.Bus[events.Event]
}

// NewStore builds a Store. restarter may be nil, in which case every
// enrollment reports RestartRequired.
func NewStore(creds CredentialWriter, acl ACLWriter, restarter Restarter, opts Options) *Store {
	if opts.BrokerService == "" {
		opts.BrokerService = "mosquitto"
	}
	if opts.Logger == nil {
		opts.Logger = logger.NopLogger{}
	}
	return &Store{
		creds:         creds,
		acl:           acl,
		restarter:     restarter,
		brokerService: opts.BrokerService,
		log:           opts.Logger,
		events:        opts.Events,
	}
}

// Enroll provisions deviceID. An empty username selects the conventional
// drone_<id> name. A failed broker restart is not an error; the result
// reports RestartRequired instead.
func (s *Store) Enroll(ctx context.Context, deviceID, username, password string) (Result, error) {
	deviceID = strings.TrimSpace(deviceID)
	username = strings.TrimSpace(username)
	if username == "" && deviceID != "" {
		username = model.UsernameFor(deviceID)
	}
	if err := validate(deviceID, username, password); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{DeviceID: deviceID, Username: username}
	owners, err := s.acl.Owners()
	if err != nil {
		err = fmt.Errorf("read acl: %w", err)
		s.publish(res, err)
		return Result{}, err
	}
	if owner, ok := owners[username]; ok && owner != deviceID {
		err = fmt.Errorf("%w: %s is held by %s", ErrUsernameTaken, username, owner)
		s.publish(res, err)
		return Result{}, err
	}
	if err := s.creds.Upsert(username, password); err != nil {
		err = &CredentialWriteError{Username: username, Err: err}
		s.publish(res, err)
		return Result{}, err
	}
	if err := s.acl.ReplaceUser(username, model.RulesFor(deviceID, username)); err != nil {
		err = &AclWriteError{Username: username, Err: err}
		s.publish(res, err)
		return Result{}, err
	}
	for _, prev := range previousUsers(owners, deviceID, username) {
		if err := s.acl.RemoveUser(prev); err != nil {
			err = &AclWriteError{Username: prev, Err: err}
			s.publish(res, err)
			return Result{}, err
		}
		if err := s.creds.Remove(prev); err != nil {
			err = &CredentialWriteError{Username: prev, Err: err}
			s.publish(res, err)
			return Result{}, err
		}
		s.log.Infof("revoked previous username %s of device %s", prev, deviceID)
	}
	s.log.Infof("enrolled device %s as %s", deviceID, username)

	if s.restarter == nil {
		res.RestartRequired = true
	} else if err := s.restarter.Restart(ctx, s.brokerService); err != nil {
		s.log.Warnf("broker restart after enrolling %s failed: %v", deviceID, err)
		res.RestartRequired = true
	}
	s.publish(res, nil)
	return res, nil
}

// EnrolledUsername returns the username deviceID was enrolled under.
func (s *Store) EnrolledUsername(deviceID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owners, err := s.acl.Owners()
	if err != nil {
		return "", false, fmt.Errorf("read acl: %w", err)
	}
	users := previousUsers(owners, deviceID, "")
	if len(users) == 0 {
		return "", false, nil
	}
	return users[0], true, nil
}

// previousUsers lists the usernames other than keep that hold deviceID's
// topics, sorted.
func previousUsers(owners map[string]string, deviceID, keep string) []string {
	var out []string
	for user, id := range owners {
		if id == deviceID && user != keep {
			out = append(out, user)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Store) publish(res Result, err error) {
	s.events.Publish(events.DeviceEnrolled{
		DeviceID:        res.DeviceID,
		Username:        res.Username,
		RestartRequired: res.RestartRequired,
		Err:             err,
	})
}

func validate(deviceID, username, password string) error {
	switch {
	case deviceID == "":
		return fmt.Errorf("%w: device_id is required", ErrInvalidEnrollment)
	case strings.ContainsAny(deviceID, "/+#") || strings.IndexFunc(deviceID, isSpace) >= 0:
		return fmt.Errorf("%w: device_id %q is not a valid topic segment", ErrInvalidEnrollment, deviceID)
	case strings.ContainsRune(username, ':') || strings.IndexFunc(username, isSpace) >= 0:
		return fmt.Errorf("%w: username %q", ErrInvalidEnrollment, username)
	case password == "":
		return fmt.Errorf("%w: password is required", ErrInvalidEnrollment)
	}
	return nil
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }
