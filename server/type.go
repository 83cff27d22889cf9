package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanwang67/file_lock_service/protocol"
	"github.com/alanwang67/file_lock_service/storage"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrLockExists      = errors.New("lock already exists")
	ErrLockNotFound    = errors.New("lock not found")
	ErrNotOwner        = errors.New("lock owned by another client")
	ErrTableFull       = errors.New("table full")
)

type LockMode uint8

const (
	NoLock        LockMode = 0
	ReadLock      LockMode = 1
	WriteLock     LockMode = 2
	ReadWriteLock          = ReadLock | WriteLock
)

// Permits reports whether holding m allows an operation that needs
// required. A write lock is opened read/write, so it also permits reads.
// This is looser than requiring the held mode to equal the required one.
func (m LockMode) Permits(required LockMode) bool {
	granted := m
	if m&WriteLock != 0 {
		granted = ReadWriteLock
	}
	return granted&required == required
}

func (m LockMode) String() string {
	switch m {
	case NoLock:
		return "none"
	case ReadLock:
		return "read"
	case WriteLock:
		return "write"
	case ReadWriteLock:
		return "readwrite"
	default:
		return "invalid"
	}
}

// Action is what the dispatcher decided to do with one datagram.
type Action uint8

const (
	DropSilently Action = iota
	ProcessNoResponse
	ProcessAndRespond
	ReplayCachedResponse
)

func (a Action) String() string {
	switch a {
	case DropSilently:
		return "drop request, send nothing"
	case ProcessNoResponse:
		return "process request, send nothing"
	case ProcessAndRespond:
		return "process request, send response"
	case ReplayCachedResponse:
		return "send stored response"
	default:
		return "unknown action"
	}
}

type Config struct {
	Workers        int           // Datagrams handled in parallel
	StorageTimeout time.Duration // Bound on every storage call
	MaxSessions    int           // 0 means unlimited
	MaxLocks       int           // 0 means unlimited
	MaxFileSize    int           // Writes may not grow a file past this many bytes
}

func DefaultConfig() Config {
	return Config{
		Workers:        16,
		StorageTimeout: 2 * time.Second,
		MaxSessions:    4096,
		MaxLocks:       4096,
		MaxFileSize:    16 << 20,
	}
}

// Stats is a point-in-time copy of the server counters.
type Stats struct {
	Sessions       int
	Locks          int
	Processed      uint64
	Replays        uint64
	Dropped        uint64
	FaultsInjected uint64
	CrashCascades  uint64
}

type Server struct {
	Self    *protocol.Connection
	Storage storage.Backend
	Faults  FaultInjector
	Config  Config

	sessions *SessionTable
	locks    *LockTable

	// everything a request touches for its own client happens while holding
	// the stripe of its (machine, client) key
	clientMu [clientStripes]sync.Mutex

	processed      atomic.Uint64
	replays        atomic.Uint64
	dropped        atomic.Uint64
	faultsInjected atomic.Uint64
	crashCascades  atomic.Uint64
}
