package syncusers

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory(t *testing.T, restart RestartFunc) (*Directory, string) {
	t.Helper()

	envFile := filepath.Join(t.TempDir(), "sync_users.env")
	return NewDirectory(envFile, restart), envFile
}

func TestCreateUser_WritesNumberedEntry(t *testing.T) {
	directory, envFile := newTestDirectory(t, nil)

	require.NoError(t, directory.CreateUser("alice@example.com", "secret1"))
	require.NoError(t, directory.CreateUser("bob@example.com", "secret2"))

	data, err := os.ReadFile(envFile)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "SYNC_USER1=alice@example.com:secret1")
	assert.Contains(t, content, "SYNC_USER2=bob@example.com:secret2")
	assert.True(t, strings.HasPrefix(content, "# Anki Sync Server Users"))
}

func TestCreateUser_IsIdempotent(t *testing.T) {
	directory, _ := newTestDirectory(t, nil)

	require.NoError(t, directory.CreateUser("alice@example.com", "secret1"))
	require.NoError(t, directory.CreateUser("alice@example.com", "other"))

	emails, err := directory.ListUsers()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com"}, emails)
}

func TestCreateUser_ReusesFreedSlot(t *testing.T) {
	directory, envFile := newTestDirectory(t, nil)

	require.NoError(t, directory.CreateUser("alice@example.com", "s1"))
	require.NoError(t, directory.CreateUser("bob@example.com", "s2"))
	require.NoError(t, directory.DeleteUser("alice@example.com"))
	require.NoError(t, directory.CreateUser("carol@example.com", "s3"))

	data, err := os.ReadFile(envFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SYNC_USER1=carol@example.com:s3")
	assert.Contains(t, string(data), "SYNC_USER2=bob@example.com:s2")
}

func TestChangePassword_UpdatesExistingUser(t *testing.T) {
	directory, envFile := newTestDirectory(t, nil)

	require.NoError(t, directory.CreateUser("alice@example.com", "old"))
	require.NoError(t, directory.ChangePassword("alice@example.com", "new"))

	data, err := os.ReadFile(envFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "alice@example.com:new")
	assert.NotContains(t, string(data), "alice@example.com:old")
}

func TestChangePassword_CreatesMissingUser(t *testing.T) {
	directory, _ := newTestDirectory(t, nil)

	require.NoError(t, directory.ChangePassword("alice@example.com", "secret"))

	emails, err := directory.ListUsers()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com"}, emails)
}

func TestDeleteUser_UnknownUserFails(t *testing.T) {
	directory, _ := newTestDirectory(t, nil)

	err := directory.DeleteUser("ghost@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestListUsers_EmptyWhenFileMissing(t *testing.T) {
	directory, _ := newTestDirectory(t, nil)

	emails, err := directory.ListUsers()
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestRestartHook_CalledAfterMutations(t *testing.T) {
	restarts := 0
	directory, _ := newTestDirectory(t, func() error {
		restarts++
		return nil
	})

	require.NoError(t, directory.CreateUser("alice@example.com", "s1"))
	require.NoError(t, directory.ChangePassword("alice@example.com", "s2"))
	require.NoError(t, directory.DeleteUser("alice@example.com"))

	assert.Equal(t, 3, restarts)
}

func TestRestartHook_FailureDoesNotFailMutation(t *testing.T) {
	directory, _ := newTestDirectory(t, func() error {
		return errors.New("docker is down")
	})

	require.NoError(t, directory.CreateUser("alice@example.com", "s1"))

	emails, err := directory.ListUsers()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com"}, emails)
}
