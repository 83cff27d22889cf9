package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/alanwang67/file_lock_service/protocol"
	"github.com/alanwang67/file_lock_service/storage"
	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
)

// Handle runs one request through the at-most-once protocol. The bool
// reports whether the returned response should be sent to the client.
func (s *Server) Handle(ctx context.Context, req protocol.Request) (protocol.Response, bool) {
	unlock := s.lockClient(req.MachineName, req.ClientNumber)
	defer unlock()

	action, session, fresh, err := s.validateClient(req)
	if err != nil {
		log.Errorf("%s - can't track client, dropping request: %v", req.Key(), err)
		s.dropped.Add(1)
		return protocol.Response{}, false
	}

	switch action {
	case DropSilently:
		s.dropped.Add(1)
		return protocol.Response{}, false
	case ReplayCachedResponse:
		s.replays.Add(1)
		return session.Response, true
	}

	resp, err := s.process(ctx, req)
	if err != nil {
		log.Errorf("%s - dropping request: %v", req.Key(), err)
		if fresh {
			// nothing was answered yet, so a retry must be treated as new
			if err := s.sessions.Delete(req.MachineName, req.ClientNumber); err != nil {
				log.Errorf("%s - can't remove client entry: %v", req.Key(), err)
			}
		}
		s.dropped.Add(1)
		return protocol.Response{}, false
	}

	session.RequestNumber = req.RequestNumber
	session.Response = resp.Truncate()
	s.processed.Add(1)

	return session.Response, action == ProcessAndRespond
}

const clientStripes = 256

// clientStripe maps a client key onto one of the fixed client mutexes.
// Clients sharing a stripe are serialized, nothing more.
func clientStripe(machineName string, clientNumber int32) int {
	var num [4]byte
	binary.LittleEndian.PutUint32(num[:], uint32(clientNumber))

	d := xxhash.New()
	d.WriteString(machineName)
	d.Write(num[:])
	return int(d.Sum64() % clientStripes)
}

func (s *Server) lockClient(machineName string, clientNumber int32) func() {
	mu := &s.clientMu[clientStripe(machineName, clientNumber)]
	mu.Lock()
	return mu.Unlock
}

// validateClient classifies the request against the client's session,
// creating or replacing the session when needed. fresh is true when the
// session was created for this request.
func (s *Server) validateClient(req protocol.Request) (action Action, session *Session, fresh bool, err error) {
	session = s.sessions.Find(req.MachineName, req.ClientNumber)

	if session == nil {
		log.Debugf("%s - new client: %s", req.Key(), ProcessAndRespond)
		session, err = s.sessions.Create(req.MachineName, req.ClientNumber, req.ClientIncarnation, req.RequestNumber)
		return ProcessAndRespond, session, true, err
	}

	if req.ClientIncarnation != session.Incarnation {
		n := s.locks.ReleaseAllForClient(req.MachineName, req.ClientNumber)
		log.Debugf("%s - client crashed (was incarnation %d): released %d locks", req.Key(), session.Incarnation, n)
		s.crashCascades.Add(1)

		if err := s.sessions.Delete(req.MachineName, req.ClientNumber); err != nil {
			log.Errorf("%s - can't remove client entry: %v", req.Key(), err)
		}
		session, err = s.sessions.Create(req.MachineName, req.ClientNumber, req.ClientIncarnation, req.RequestNumber)
		return ProcessAndRespond, session, true, err
	}

	switch {
	case req.RequestNumber < session.RequestNumber:
		log.Debugf("%s - stale request: %s", req.Key(), DropSilently)
		return DropSilently, session, false, nil
	case req.RequestNumber == session.RequestNumber:
		log.Debugf("%s - duplicate request: %s", req.Key(), ReplayCachedResponse)
		return ReplayCachedResponse, session, false, nil
	default:
		action = s.Faults.Decide()
		s.faultsInjected.Add(1)
		log.Debugf("%s - comm failure: %s", req.Key(), action)
		return action, session, false, nil
	}
}

func failure(req protocol.Request, format string, a ...any) protocol.Response {
	msg := fmt.Sprintf(format, a...)
	log.Errorf("%s - %s", req.Key(), msg)
	return protocol.Response{ReturnValue: protocol.StatusError, ReturnString: msg}
}

func success(format string, a ...any) protocol.Response {
	return protocol.Response{ReturnValue: protocol.StatusOK, ReturnString: fmt.Sprintf(format, a...)}
}

// process executes the operation. Only resource exhaustion is returned as
// an error; everything else becomes an error response.
func (s *Server) process(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	cmd, err := ParseCommand(req.Operation)
	if err != nil {
		return failure(req, "Invalid command arguments: %s: %v", req.Operation, err), nil
	}
	path := storage.Path(req.MachineName, cmd.FileName)

	lock := s.locks.Find(req.MachineName, cmd.FileName)
	switch {
	case lock != nil && lock.ClientNumber != req.ClientNumber:
		return failure(req, "Can't get lock for %s for client %d as %d has it already",
			path, req.ClientNumber, lock.ClientNumber), nil
	case lock != nil && cmd.Name == CmdOpen:
		return failure(req, "%s is already open by client %d", path, req.ClientNumber), nil
	case lock != nil && !cmd.BypassesModeCheck() && !lock.Mode.Permits(cmd.RequiredLock()):
		return failure(req, "Invalid lock type for %s operation: %s holds a %s lock",
			cmd.Name, path, lock.Mode), nil
	case lock == nil && cmd.Name != CmdOpen:
		return failure(req, "No lock found for %s", path), nil
	case lock == nil:
		lock, err = s.locks.Create(req.MachineName, cmd.FileName, req.ClientNumber, cmd.Mode)
		if errors.Is(err, ErrLockExists) {
			return failure(req, "Can't get lock for %s for client %d as %d has it already",
				path, req.ClientNumber, lock.ClientNumber), nil
		}
		if err != nil {
			return protocol.Response{}, err
		}
	}

	switch cmd.Name {
	case CmdOpen:
		return success("Opened %s", path), nil
	case CmdClose:
		if err := s.locks.ReleaseOne(req.MachineName, cmd.FileName, req.ClientNumber); err != nil {
			return failure(req, "Can't release lock for %s for client %d: %v", path, req.ClientNumber, err), nil
		}
		return success("Closed %s", path), nil
	}

	switch cmd.Name {
	case CmdRead:
		return s.read(ctx, req, lock, cmd.NumBytes), nil
	case CmdWrite:
		return s.write(ctx, req, lock, cmd.Message), nil
	default:
		lock.seek(cmd.NumBytes)
		return success("Moved %s file pointer to %d bytes from start", path, cmd.NumBytes), nil
	}
}

func (s *Server) read(ctx context.Context, req protocol.Request, lock *FileLock, numBytes int) protocol.Response {
	ctx, cancel := context.WithTimeout(ctx, s.Config.StorageTimeout)
	defer cancel()

	content, err := s.Storage.ReadAll(ctx, lock.Path())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return failure(req, "Can't read %s: %v", lock.Path(), err)
	}

	offset := lock.Offset()
	var data []byte
	if offset < len(content) {
		data = content[offset : offset+min(numBytes, len(content)-offset)]
	}
	n := len(data)
	lock.seek(offset + n)

	if n != numBytes {
		return failure(req, "Encountered EOF during read: only read %d bytes", n)
	}
	return success("Read '%s' from %s", data, lock.Path())
}

// write splices msg into the stored content at the cursor. Content that
// can't be fetched is treated as empty.
func (s *Server) write(ctx context.Context, req protocol.Request, lock *FileLock, msg string) protocol.Response {
	offset := lock.Offset()
	end := offset + len(msg)
	if end > s.Config.MaxFileSize {
		return failure(req, "Can't write %s: %d bytes would exceed the file size limit of %d", lock.Path(), end, s.Config.MaxFileSize)
	}

	ctx, cancel := context.WithTimeout(ctx, s.Config.StorageTimeout)
	defer cancel()

	content, err := s.Storage.ReadAll(ctx, lock.Path())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warnf("%s - can't fetch %s, writing over empty content: %v", req.Key(), lock.Path(), err)
		}
		content = nil
	}

	if len(content) < end {
		content = append(content, make([]byte, end-len(content))...)
	}
	copy(content[offset:], msg)

	if err := s.Storage.WriteAll(ctx, lock.Path(), content); err != nil {
		return failure(req, "Can't write %s: %v", lock.Path(), err)
	}
	lock.seek(end)
	return success("Wrote '%s' to %s", msg, lock.Path())
}
