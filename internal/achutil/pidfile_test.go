package achutil

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenPIDFileWritesAndLocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")

	pf, err := OpenPIDFile(path)
	require.NoError(t, err)
	defer pf.Unlock()

	require.NoError(t, pf.Write(1234))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, 1234, n)
}

func TestOpenPIDFileSecondLockFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")

	pf, err := OpenPIDFile(path)
	require.NoError(t, err)
	defer pf.Unlock()

	_, err = OpenPIDFile(path)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestPIDFileWriteOverwritesPreviousValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	pf, err := OpenPIDFile(path)
	require.NoError(t, err)
	defer pf.Unlock()

	require.NoError(t, pf.Write(111))
	require.NoError(t, pf.Write(2))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2\n", string(data))
}
