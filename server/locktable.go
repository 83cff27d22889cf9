package server

import (
	"fmt"
	"sync"

	"github.com/alanwang67/file_lock_service/storage"
)

type lockKey struct {
	machineName string
	fileName    string
}

// FileLock grants one client access to one file of one machine. A lock exists
// exactly while its file is open. Owner and mode never change; the cursor is
// only touched by the owner.
type FileLock struct {
	MachineName  string
	FileName     string
	ClientNumber int32
	Mode         LockMode

	mu     sync.Mutex
	offset int
}

func (l *FileLock) Path() string {
	return storage.Path(l.MachineName, l.FileName)
}

func (l *FileLock) Offset() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offset
}

func (l *FileLock) seek(offset int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offset = offset
}

// LockTable holds at most one FileLock per (machine, file).
type LockTable struct {
	mu    sync.Mutex
	locks map[lockKey]*FileLock
	limit int
}

func NewLockTable(limit int) *LockTable {
	return &LockTable{
		locks: make(map[lockKey]*FileLock),
		limit: limit,
	}
}

func (t *LockTable) Find(machineName, fileName string) *FileLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locks[lockKey{machineName, fileName}]
}

// Create installs a new lock. If one already exists it is returned together
// with ErrLockExists so the caller can name the owner.
func (t *LockTable) Create(machineName, fileName string, clientNumber int32, mode LockMode) (*FileLock, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := lockKey{machineName, fileName}
	if l, ok := t.locks[key]; ok {
		return l, ErrLockExists
	}
	if t.limit > 0 && len(t.locks) >= t.limit {
		return nil, fmt.Errorf("%d locks held: %w", len(t.locks), ErrTableFull)
	}

	l := &FileLock{
		MachineName:  machineName,
		FileName:     fileName,
		ClientNumber: clientNumber,
		Mode:         mode,
	}
	t.locks[key] = l
	return l, nil
}

// ReleaseOne removes the lock only if clientNumber owns it.
func (t *LockTable) ReleaseOne(machineName, fileName string, clientNumber int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := lockKey{machineName, fileName}
	l, ok := t.locks[key]
	if !ok {
		return fmt.Errorf("%s: %w", storage.Path(machineName, fileName), ErrLockNotFound)
	}
	if l.ClientNumber != clientNumber {
		return fmt.Errorf("client %d releasing %s held by client %d: %w",
			clientNumber, l.Path(), l.ClientNumber, ErrNotOwner)
	}
	delete(t.locks, key)
	return nil
}

// ReleaseAllForClient drops every lock the client holds on its machine and
// reports how many there were.
func (t *LockTable) ReleaseAllForClient(machineName string, clientNumber int32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for key, l := range t.locks {
		if key.machineName == machineName && l.ClientNumber == clientNumber {
			delete(t.locks, key)
			n++
		}
	}
	return n
}

func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
