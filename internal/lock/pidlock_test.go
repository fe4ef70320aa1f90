package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquirePIDLockWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "run", "github-hook.pid")
	l, err := AcquirePIDLock(lockPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Release() })

	assert.Equal(t, lockPath, l.Path())
	pid, err := ReadPID(lockPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquirePIDLockRejectsSecondInstance(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "github-hook.pid")
	first, err := AcquirePIDLock(lockPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Release() })

	_, err = AcquirePIDLock(lockPath)
	require.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), lockPath)
}

func TestReleaseRemovesFileAndAllowsReacquire(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "github-hook.pid")
	l, err := AcquirePIDLock(lockPath)
	require.NoError(t, err)

	require.NoError(t, l.Release())
	assert.NoFileExists(t, lockPath)
	assert.NoError(t, l.Release(), "second release is a no-op")

	again, err := AcquirePIDLock(lockPath)
	require.NoError(t, err)
	assert.NoError(t, again.Release())
}

func TestAcquirePIDLockEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := AcquirePIDLock("")
	assert.Error(t, err)
}

func TestReadPIDGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid\n"), 0o644))

	_, err := ReadPID(path)
	assert.Error(t, err)
}
