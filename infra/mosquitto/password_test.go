package mosquitto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := HashPassword("s3cret", 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$7$101$"))

	ok, err := VerifyPassword("s3cret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyPassword("x", "$6$abc$def")
	assert.Error(t, err)
}

func TestHashUsesFreshSalt(t *testing.T) {
	a, err := HashPassword("same", 0)
	require.NoError(t, err)
	b, err := HashPassword("same", 0)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPasswordFileUpsertReplacesInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwd")
	require.NoError(t, os.WriteFile(path, []byte("# managed\nadmin:$7$101$x$y\n"), 0o600))
	pf := &PasswordFile{Path: path}

	require.NoError(t, pf.Upsert("drone_a1", "first"))
	require.NoError(t, pf.Upsert("drone_a1", "second"))

	users, err := pf.Users()
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "drone_a1"}, users)

	hash, ok, err := pf.Lookup("drone_a1")
	require.NoError(t, err)
	require.True(t, ok)
	match, err := VerifyPassword("second", hash)
	require.NoError(t, err)
	assert.True(t, match)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# managed\nadmin:"))
	assert.Equal(t, 1, strings.Count(string(data), "drone_a1:"))
}

func TestPasswordFileRejectsColon(t *testing.T) {
	pf := &PasswordFile{Path: filepath.Join(t.TempDir(), "passwd")}
	assert.ErrorIs(t, pf.Upsert("bad:name", "pw"), ErrInvalidUsername)
}

func TestPasswordFileMissingIsEmpty(t *testing.T) {
	pf := &PasswordFile{Path: filepath.Join(t.TempDir(), "passwd")}
	_, ok, err := pf.Lookup("anyone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordFileRemove(t *testing.T) {
	pf := &PasswordFile{Path: filepath.Join(t.TempDir(), "passwd"), Iterations: 1}
	require.NoError(t, pf.Upsert("alice", "a"))
	require.NoError(t, pf.Upsert("bob", "b"))

	require.NoError(t, pf.Remove("alice"))
	require.NoError(t, pf.Remove("carol"))

	users, err := pf.Users()
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)
}
