package server

import (
	"fmt"
	"sync"

	"github.com/alanwang67/file_lock_service/protocol"
)

type sessionKey struct {
	machineName  string
	clientNumber int32
}

// Session remembers the last request of one client incarnation and the
// exact response it got.
type Session struct {
	MachineName   string
	ClientNumber  int32
	Incarnation   int32
	RequestNumber int32
	Response      protocol.Response
}

type SessionTable struct {
	mu       sync.Mutex
	sessions map[sessionKey]*Session
	limit    int
}

func NewSessionTable(limit int) *SessionTable {
	return &SessionTable{
		sessions: make(map[sessionKey]*Session),
		limit:    limit,
	}
}

func (t *SessionTable) Find(machineName string, clientNumber int32) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[sessionKey{machineName, clientNumber}]
}

// Create fails with ErrSessionExists if the key is taken; callers Find first.
func (t *SessionTable) Create(machineName string, clientNumber, incarnation, requestNumber int32) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey{machineName, clientNumber}
	if _, ok := t.sessions[key]; ok {
		return nil, fmt.Errorf("%s:%d: %w", machineName, clientNumber, ErrSessionExists)
	}
	if t.limit > 0 && len(t.sessions) >= t.limit {
		return nil, fmt.Errorf("%d sessions open: %w", len(t.sessions), ErrTableFull)
	}

	s := &Session{
		MachineName:   machineName,
		ClientNumber:  clientNumber,
		Incarnation:   incarnation,
		RequestNumber: requestNumber,
	}
	t.sessions[key] = s
	return s, nil
}

func (t *SessionTable) Delete(machineName string, clientNumber int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey{machineName, clientNumber}
	if _, ok := t.sessions[key]; !ok {
		return fmt.Errorf("%s:%d: %w", machineName, clientNumber, ErrSessionNotFound)
	}
	delete(t.sessions, key)
	return nil
}

func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
