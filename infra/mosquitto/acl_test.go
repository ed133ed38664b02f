package mosquitto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/skybridge/core/model"
)

func TestACLReplaceUserIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acl")
	require.NoError(t, os.WriteFile(path, []byte("# global\ntopic read $SYS/#\n\nuser admin\ntopic readwrite #\n"), 0o644))
	acl := &ACLFile{Path: path}

	rules := model.RulesFor("A1", "drone_a1")
	require.NoError(t, acl.ReplaceUser("drone_a1", rules))
	require.NoError(t, acl.ReplaceUser("drone_a1", rules))

	got, err := acl.Rules("drone_a1")
	require.NoError(t, err)
	assert.Equal(t, rules, got)

	admin, err := acl.Rules("admin")
	require.NoError(t, err)
	require.Len(t, admin, 1)
	assert.Equal(t, "#", admin[0].Topic)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "# global\ntopic read $SYS/#\n"))
	assert.Equal(t, 1, strings.Count(text, "user drone_a1"))
	assert.Contains(t, text, "topic write drone/A1/telemetry")
	assert.Contains(t, text, "topic read drone/A1/command")
}

func TestACLReplaceUserDropsStaleRules(t *testing.T) {
	acl := &ACLFile{Path: filepath.Join(t.TempDir(), "acl")}
	require.NoError(t, acl.ReplaceUser("drone_a1", model.RulesFor("OLD", "drone_a1")))
	require.NoError(t, acl.ReplaceUser("drone_a1", model.RulesFor("A1", "drone_a1")))

	got, err := acl.Rules("drone_a1")
	require.NoError(t, err)
	for _, r := range got {
		assert.NotContains(t, r.Topic, "OLD")
	}
	assert.Len(t, got, 3)
}

func TestACLRejectsForeignRule(t *testing.T) {
	acl := &ACLFile{Path: filepath.Join(t.TempDir(), "acl")}
	err := acl.ReplaceUser("drone_a1", model.RulesFor("A1", "drone_b2"))
	assert.Error(t, err)
}

func TestACLOwnersAndRemoveUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acl")
	require.NoError(t, os.WriteFile(path, []byte("user operator\ntopic readwrite drone/#\n"), 0o644))
	acl := &ACLFile{Path: path}
	require.NoError(t, acl.ReplaceUser("drone_a1", model.RulesFor("A1", "drone_a1")))
	require.NoError(t, acl.ReplaceUser("pilot", model.RulesFor("B2", "pilot")))

	owners, err := acl.Owners()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"drone_a1": "A1", "pilot": "B2"}, owners)

	require.NoError(t, acl.RemoveUser("pilot"))
	require.NoError(t, acl.RemoveUser("nobody"))
	rules, err := acl.Rules("pilot")
	require.NoError(t, err)
	assert.Empty(t, rules)

	op, err := acl.Rules("operator")
	require.NoError(t, err)
	assert.Len(t, op, 1)
}
