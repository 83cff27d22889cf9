package protocol

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

var ErrTimeout = errors.New("timed out waiting for response")

type Connection struct {
	Network string
	Address string
}

// Dial opens a datagram socket connected to the server.
func Dial(conn Connection) (net.Conn, error) {
	c, err := net.Dial(conn.Network, conn.Address)
	if err != nil {
		return nil, fmt.Errorf("trouble dialing %s: %w", conn.Address, err)
	}
	return c, nil
}

// Invoke sends one request datagram and waits up to timeout for a response
// datagram. It does not retry; a lost datagram surfaces as ErrTimeout.
func Invoke(c net.Conn, req Request, reply *Response, timeout time.Duration) error {
	out, err := req.MarshalBinary()
	if err != nil {
		return err
	}
	n, err := c.Write(out)
	if err != nil {
		return fmt.Errorf("trouble sending %s: %w", req.Key(), err)
	}
	if n != len(out) {
		return fmt.Errorf("sent %d bytes instead of %d: %w", n, len(out), ErrShortRecord)
	}

	if err := c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	in := make([]byte, ResponseSize+1)
	n, err = c.Read(in)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return ErrTimeout
		}
		return fmt.Errorf("trouble receiving reply to %s: %w", req.Key(), err)
	}
	return reply.UnmarshalBinary(in[:n])
}
