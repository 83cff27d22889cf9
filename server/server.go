package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"

	"github.com/alanwang67/file_lock_service/protocol"
	"github.com/alanwang67/file_lock_service/storage"
	"github.com/charmbracelet/log"
)

// New creates a server that keeps file contents in backend. A nil faults
// answers every request.
func New(self *protocol.Connection, backend storage.Backend, faults FaultInjector, cfg Config) *Server {
	if faults == nil {
		faults = NoFaults{}
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = def.StorageTimeout
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = def.MaxFileSize
	}
	return &Server{
		Self:     self,
		Storage:  backend,
		Faults:   faults,
		Config:   cfg,
		sessions: NewSessionTable(cfg.MaxSessions),
		locks:    NewLockTable(cfg.MaxLocks),
	}
}

func (s *Server) Stats() Stats {
	return Stats{
		Sessions:       s.sessions.Len(),
		Locks:          s.locks.Len(),
		Processed:      s.processed.Load(),
		Replays:        s.replays.Load(),
		Dropped:        s.dropped.Load(),
		FaultsInjected: s.faultsInjected.Load(),
		CrashCascades:  s.crashCascades.Load(),
	}
}

// Start listens on s.Self and serves forever.
func (s *Server) Start() error {
	log.Debugf("starting server on %s", s.Self.Address)

	s.dumpStorage()

	pc, err := net.ListenPacket(s.Self.Network, s.Self.Address)
	if err != nil {
		return err
	}
	defer pc.Close()
	log.Debugf("server listening on %s", pc.LocalAddr())

	return s.Serve(pc)
}

// Serve reads request datagrams from pc until it is closed. Each datagram
// is handled on its own goroutine, at most Config.Workers at a time.
func (s *Server) Serve(pc net.PacketConn) error {
	sem := make(chan struct{}, s.Config.Workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		// one spare byte so oversized datagrams are noticed
		buf := make([]byte, protocol.RequestSize+1)
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Errorf("receive error: %v", err)
			continue
		}
		if n != protocol.RequestSize {
			log.Errorf("read %d bytes instead of %d from %s", n, protocol.RequestSize, addr)
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			s.serveDatagram(pc, addr, buf[:n])
		}()
	}
}

func (s *Server) serveDatagram(pc net.PacketConn, addr net.Addr, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("dropping request from %s after panic: %v", addr, r)
			s.dropped.Add(1)
		}
	}()

	var req protocol.Request
	if err := req.UnmarshalBinary(data); err != nil {
		log.Errorf("bad request from %s: %v", addr, err)
		return
	}
	log.Debugf("%s - %s", req.Key(), req.Operation)

	resp, send := s.Handle(context.Background(), req)
	if !send {
		return
	}

	out, err := resp.MarshalBinary()
	if err != nil {
		log.Errorf("%s - can't encode response: %v", req.Key(), err)
		return
	}
	n, err := pc.WriteTo(out, addr)
	if err != nil {
		log.Errorf("%s - send to %s failed: %v", req.Key(), addr, err)
		return
	}
	if n != len(out) {
		log.Errorf("%s - sent %d bytes instead of %d", req.Key(), n, len(out))
	}
}

func (s *Server) dumpStorage() {
	ctx, cancel := context.WithTimeout(context.Background(), s.Config.StorageTimeout)
	defer cancel()

	var buf bytes.Buffer
	if err := storage.Dump(ctx, s.Storage, &buf); err != nil {
		log.Warnf("can't list storage: %v", err)
		return
	}
	log.Infof("storage contents\n%s", buf.String())
}
