package server

import (
	"context"
	"sync"
	"testing"

	"github.com/alanwang67/file_lock_service/protocol"
	"github.com/alanwang67/file_lock_service/storage"
	"github.com/stretchr/testify/require"
)

// scriptedFaults returns the queued actions in order, then answers normally.
type scriptedFaults struct {
	mu      sync.Mutex
	actions []Action
}

func (f *scriptedFaults) Decide() Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.actions) == 0 {
		return ProcessAndRespond
	}
	a := f.actions[0]
	f.actions = f.actions[1:]
	return a
}

func (f *scriptedFaults) push(actions ...Action) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, actions...)
}

// testClient numbers its requests the way the real client does.
type testClient struct {
	s           *Server
	machine     string
	number      int32
	incarnation int32
	next        int32
}

func (c *testClient) request(op string) protocol.Request {
	return protocol.Request{
		MachineName:       c.machine,
		ClientNumber:      c.number,
		RequestNumber:     c.next,
		ClientIncarnation: c.incarnation,
		Operation:         op,
	}
}

// do sends op as the next request.
func (c *testClient) do(op string) (protocol.Response, bool) {
	req := c.request(op)
	c.next++
	return c.s.Handle(context.Background(), req)
}

// mustDo sends op and requires a response.
func (c *testClient) mustDo(t *testing.T, op string) protocol.Response {
	t.Helper()
	resp, sent := c.do(op)
	require.True(t, sent, "expected a response to %q", op)
	return resp
}

func (c *testClient) crash() {
	c.incarnation++
	c.next = 0
}

func setupTestServer(cfg Config) (*Server, *storage.Memory, *scriptedFaults) {
	backend := storage.NewMemory()
	faults := &scriptedFaults{}
	s := New(&protocol.Connection{Network: "udp", Address: "127.0.0.1:0"}, backend, faults, cfg)
	return s, backend, faults
}

func newTestClient(s *Server, machine string, number int32) *testClient {
	return &testClient{s: s, machine: machine, number: number}
}

func content(t *testing.T, b storage.Backend, path string) string {
	t.Helper()
	data, err := b.ReadAll(context.Background(), path)
	require.NoError(t, err)
	return string(data)
}
