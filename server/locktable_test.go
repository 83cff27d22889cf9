package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTableCreateAndFind(t *testing.T) {
	lt := NewLockTable(0)
	assert.Nil(t, lt.Find("m1", "f"))

	l, err := lt.Create("m1", "f", 1, ReadLock)
	require.NoError(t, err)
	assert.Equal(t, "m1:f", l.Path())
	assert.Same(t, l, lt.Find("m1", "f"))
	assert.Nil(t, lt.Find("m2", "f"), "locks are per machine")

	existing, err := lt.Create("m1", "f", 2, WriteLock)
	assert.ErrorIs(t, err, ErrLockExists)
	assert.Same(t, l, existing)
	assert.Equal(t, int32(1), existing.ClientNumber)
}

func TestLockTableReleaseOne(t *testing.T) {
	lt := NewLockTable(0)
	_, err := lt.Create("m1", "f", 1, WriteLock)
	require.NoError(t, err)

	assert.ErrorIs(t, lt.ReleaseOne("m1", "f", 2), ErrNotOwner)
	assert.NotNil(t, lt.Find("m1", "f"), "a mismatched release must not remove the lock")

	assert.NoError(t, lt.ReleaseOne("m1", "f", 1))
	assert.Nil(t, lt.Find("m1", "f"))
	assert.ErrorIs(t, lt.ReleaseOne("m1", "f", 1), ErrLockNotFound)
}

func TestLockTableReleaseAllForClient(t *testing.T) {
	lt := NewLockTable(0)
	for _, f := range []string{"a", "b", "c"} {
		_, err := lt.Create("m1", f, 1, ReadLock)
		require.NoError(t, err)
	}
	_, err := lt.Create("m1", "d", 2, ReadLock)
	require.NoError(t, err)
	_, err = lt.Create("m2", "a", 1, ReadLock)
	require.NoError(t, err)

	assert.Equal(t, 3, lt.ReleaseAllForClient("m1", 1))
	assert.Equal(t, 2, lt.Len())
	assert.NotNil(t, lt.Find("m1", "d"))
	assert.NotNil(t, lt.Find("m2", "a"))
	assert.Equal(t, 0, lt.ReleaseAllForClient("m1", 1))
}

func TestLockTableLimit(t *testing.T) {
	lt := NewLockTable(1)
	_, err := lt.Create("m1", "a", 1, ReadLock)
	require.NoError(t, err)

	_, err = lt.Create("m1", "b", 1, ReadLock)
	assert.ErrorIs(t, err, ErrTableFull)

	require.NoError(t, lt.ReleaseOne("m1", "a", 1))
	_, err = lt.Create("m1", "b", 1, ReadLock)
	assert.NoError(t, err)
}

func TestLockTableConcurrentCreate(t *testing.T) {
	lt := NewLockTable(0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(client int32) {
			defer wg.Done()
			if _, err := lt.Create("m1", "f", client, WriteLock); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(int32(i))
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, lt.Len())
}

func TestFileLockCursor(t *testing.T) {
	lt := NewLockTable(0)
	l, err := lt.Create("m1", "f", 1, WriteLock)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Offset())
	assert.Equal(t, "m1:f", l.Path())

	l.seek(7)
	assert.Equal(t, 7, l.Offset())

	// reopening after a close starts from a fresh lock
	require.NoError(t, lt.ReleaseOne("m1", "f", 1))
	l, err = lt.Create("m1", "f", 1, WriteLock)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Offset())
}

func TestLockModePermits(t *testing.T) {
	tests := []struct {
		held     LockMode
		required LockMode
		expected bool
	}{
		{ReadLock, ReadLock, true},
		{ReadLock, WriteLock, false},
		{WriteLock, WriteLock, true},
		{WriteLock, ReadLock, true},
		{ReadWriteLock, ReadLock, true},
		{ReadWriteLock, WriteLock, true},
		{ReadLock, ReadWriteLock, false},
		{NoLock, ReadLock, false},
	}

	for _, tt := range tests {
		t.Run(tt.held.String()+"/"+tt.required.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.held.Permits(tt.required))
		})
	}
}
