package client

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncarnationCounter(t *testing.T) {
	dir := t.TempDir()
	inc := NewIncarnation(dir, "m1")

	n, err := inc.Current()
	require.NoError(t, err)
	assert.Equal(t, int32(0), n)

	data, err := os.ReadFile(filepath.Join(dir, "incarnation_m1"))
	require.NoError(t, err)
	assert.Equal(t, "0\n", string(data))

	n, err = inc.Bump()
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)

	// another client of the same machine sees the bump
	n, err = NewIncarnation(dir, "m1").Current()
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)

	n, err = NewIncarnation(dir, "m2").Current()
	require.NoError(t, err)
	assert.Equal(t, int32(0), n)

	assert.FileExists(t, filepath.Join(dir, "incarnation_LOCK_m1"))
}

func TestIncarnationConcurrentBumps(t *testing.T) {
	dir := t.TempDir()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := NewIncarnation(dir, "m1").Bump()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := NewIncarnation(dir, "m1").Current()
	require.NoError(t, err)
	assert.Equal(t, int32(20), n)
}

func TestIncarnationCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "incarnation_m1"), []byte("garbage"), 0o644))

	_, err := NewIncarnation(dir, "m1").Current()
	assert.Error(t, err)
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.cmd")
	require.NoError(t, os.WriteFile(path, []byte("open f write\nwrite f \"hi\"\n\nfail\nclose f\n"), 0o644))

	commands, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"open f write", `write f "hi"`, "", "fail", "close f"}, commands)

	_, err = LoadScript(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
