package provision

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/skybridge/core/events"
	"github.com/kilianp07/skybridge/core/model"
	"github.com/kilianp07/skybridge/infra/mosquitto"
	"github.com/kilianp07/skybridge/internal/eventbus"
)

type failingCreds struct{ err error }

func (f failingCreds) Upsert(string, string) error { return f.err }

func (f failingCreds) Remove(string) error { return f.err }

type failingACL struct{ err error }

func (f failingACL) ReplaceUser(string, []model.AccessRule) error { return f.err }

func (f failingACL) RemoveUser(string) error { return f.err }

func (f failingACL) Owners() (map[string]string, error) { return nil, nil }

type restarter struct {
	names []string
	err   error
}

func (r *restarter) Restart(_ context.Context, name string) error {
	r.names = append(r.names, name)
	return r.err
}

func newFileStore(t *testing.T, r Restarter) (*Store, *mosquitto.PasswordFile, *mosquitto.ACLFile) {
	t.Helper()
	dir := t.TempDir()
	pf := &mosquitto.PasswordFile{Path: filepath.Join(dir, "passwd")}
	acl := &mosquitto.ACLFile{Path: filepath.Join(dir, "acl")}
	return NewStore(pf, acl, r, Options{}), pf, acl
}

func TestEnrollWritesCredentialAndRules(t *testing.T) {
	r := &restarter{}
	s, pf, acl := newFileStore(t, r)

	res, err := s.Enroll(context.Background(), "A1", "drone_a1", "pw")
	require.NoError(t, err)
	assert.Equal(t, Result{DeviceID: "A1", Username: "drone_a1"}, res)
	assert.Equal(t, []string{"mosquitto"}, r.names)

	hash, ok, err := pf.Lookup("drone_a1")
	require.NoError(t, err)
	require.True(t, ok)
	match, err := mosquitto.VerifyPassword("pw", hash)
	require.NoError(t, err)
	assert.True(t, match)

	rules, err := acl.Rules("drone_a1")
	require.NoError(t, err)
	assert.Equal(t, model.RulesFor("A1", "drone_a1"), rules)
}

func TestReEnrollIsIdempotent(t *testing.T) {
	s, pf, acl := newFileStore(t, &restarter{})
	for i := 0; i < 3; i++ {
		_, err := s.Enroll(context.Background(), "A1", "drone_a1", "pw")
		require.NoError(t, err)
	}
	users, err := pf.Users()
	require.NoError(t, err)
	assert.Equal(t, []string{"drone_a1"}, users)

	rules, err := acl.Rules("drone_a1")
	require.NoError(t, err)
	assert.Len(t, rules, 3)
}

func TestEnrollDefaultsUsername(t *testing.T) {
	s, _, acl := newFileStore(t, &restarter{})
	res, err := s.Enroll(context.Background(), "B2", "", "pw")
	require.NoError(t, err)
	assert.Equal(t, "drone_b2", res.Username)

	rules, err := acl.Rules("drone_b2")
	require.NoError(t, err)
	assert.Len(t, rules, 3)
}

func TestEnrollRestartFailureIsWarning(t *testing.T) {
	s, _, _ := newFileStore(t, &restarter{err: errors.New("systemctl missing")})
	res, err := s.Enroll(context.Background(), "A1", "drone_a1", "pw")
	require.NoError(t, err)
	assert.True(t, res.RestartRequired)
}

func TestEnrollWithoutRestarter(t *testing.T) {
	s, _, _ := newFileStore(t, nil)
	res, err := s.Enroll(context.Background(), "A1", "", "pw")
	require.NoError(t, err)
	assert.True(t, res.RestartRequired)
}

func TestEnrollValidation(t *testing.T) {
	s, _, _ := newFileStore(t, &restarter{})
	cases := map[string][3]string{
		"empty id":       {"", "u", "pw"},
		"wildcard id":    {"a/#", "u", "pw"},
		"spaced id":      {"a 1", "u", "pw"},
		"colon username": {"A1", "u:x", "pw"},
		"empty password": {"A1", "u", ""},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Enroll(context.Background(), in[0], in[1], in[2])
			assert.ErrorIs(t, err, ErrInvalidEnrollment)
		})
	}
}

func TestEnrollWriteErrors(t *testing.T) {
	cause := errors.New("disk full")

	s := NewStore(failingCreds{err: cause}, failingACL{}, nil, Options{})
	_, err := s.Enroll(context.Background(), "A1", "", "pw")
	var credErr *CredentialWriteError
	require.ErrorAs(t, err, &credErr)
	assert.ErrorIs(t, err, cause)

	s = NewStore(failingCreds{}, failingACL{err: cause}, nil, Options{})
	_, err = s.Enroll(context.Background(), "A1", "", "pw")
	var aclErr *AclWriteError
	require.ErrorAs(t, err, &aclErr)
	assert.ErrorIs(t, err, cause)
}

func TestEnrollPublishesEvent(t *testing.T) {
	bus := eventbus.New[events.Event](4)
	defer bus.Close()
	ch := bus.Subscribe()

	dir := t.TempDir()
	s := NewStore(&mosquitto.PasswordFile{Path: filepath.Join(dir, "p")},
		&mosquitto.ACLFile{Path: filepath.Join(dir, "a")}, &restarter{}, Options{Events: bus})
	_, err := s.Enroll(context.Background(), "A1", "", "pw")
	require.NoError(t, err)

	ev := (<-ch).(events.DeviceEnrolled)
	assert.Equal(t, "A1", ev.DeviceID)
	assert.NoError(t, ev.Err)
}

func TestReEnrollUnderNewUsernameRevokesPrevious(t *testing.T) {
	s, pf, acl := newFileStore(t, &restarter{})
	_, err := s.Enroll(context.Background(), "A1", "alice", "pw")
	require.NoError(t, err)
	_, err = s.Enroll(context.Background(), "A1", "bob", "pw2")
	require.NoError(t, err)

	users, err := pf.Users()
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)

	old, err := acl.Rules("alice")
	require.NoError(t, err)
	assert.Empty(t, old)
	rules, err := acl.Rules("bob")
	require.NoError(t, err)
	assert.Equal(t, model.RulesFor("A1", "bob"), rules)

	user, ok, err := s.EnrolledUsername("A1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bob", user)
}

func TestEnrollRejectsUsernameOfAnotherDevice(t *testing.T) {
	s, pf, acl := newFileStore(t, &restarter{})
	_, err := s.Enroll(context.Background(), "Alpha", "", "first")
	require.NoError(t, err)

	_, err = s.Enroll(context.Background(), "ALPHA", "", "second")
	require.ErrorIs(t, err, ErrUsernameTaken)

	hash, ok, err := pf.Lookup("drone_alpha")
	require.NoError(t, err)
	require.True(t, ok)
	match, err := mosquitto.VerifyPassword("first", hash)
	require.NoError(t, err)
	assert.True(t, match)

	rules, err := acl.Rules("drone_alpha")
	require.NoError(t, err)
	assert.Equal(t, model.RulesFor("Alpha", "drone_alpha"), rules)
}

func TestEnrolledUsernameUnknownDevice(t *testing.T) {
	s, _, _ := newFileStore(t, &restarter{})
	_, ok, err := s.EnrolledUsername("Z9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentEnrollments(t *testing.T) {
	s, pf, acl := newFileStore(t, &restarter{})
	const devices = 8
	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if _, err := s.Enroll(context.Background(), id, "", "pw"); err != nil {
					t.Errorf("enroll %s: %v", id, err)
				}
			}(fmt.Sprintf("D%d", i))
		}
	}
	wg.Wait()

	users, err := pf.Users()
	require.NoError(t, err)
	assert.Len(t, users, devices)

	owners, err := acl.Owners()
	require.NoError(t, err)
	require.Len(t, owners, devices)
	for i := 0; i < devices; i++ {
		id := fmt.Sprintf("D%d", i)
		user := model.UsernameFor(id)
		assert.Equal(t, id, owners[user])
		rules, err := acl.Rules(user)
		require.NoError(t, err)
		assert.Equal(t, model.RulesFor(id, user), rules)
	}
}
