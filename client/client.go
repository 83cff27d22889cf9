package client

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alanwang67/file_lock_service/protocol"
	"github.com/charmbracelet/log"
)

// FailCommand is handled by the client itself: it simulates a crash.
const FailCommand = "fail"

var ErrNoResponse = errors.New("no response from server")

// New connects a client to its server. The incarnation counter is shared by
// every client of the same machine name.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	conn, err := protocol.Dial(cfg.Server)
	if err != nil {
		return nil, err
	}
	log.Debugf("client %s:%d created", cfg.MachineName, cfg.ClientNumber)
	return &Client{
		Config:      cfg,
		Output:      os.Stdout,
		conn:        conn,
		incarnation: NewIncarnation(cfg.IncarnationDir, cfg.MachineName),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Metrics() []Metric {
	return c.metrics
}

func (c *Client) RequestNumber() int32 {
	return c.requestNumber
}

// Start executes the script line by line. Response errors are printed and
// counted; only transport failures stop the run.
func (c *Client) Start(commands []string) error {
	log.Debugf("starting client %s:%d with %d commands", c.MachineName, c.ClientNumber, len(commands))

	begin := time.Now()
	failed := 0
	for _, line := range commands {
		op := strings.TrimSpace(line)
		if op == "" {
			continue
		}

		if strings.Fields(op)[0] == FailCommand {
			inc, err := c.Fail()
			if err != nil {
				return err
			}
			log.Infof("client %s:%d crashed, now incarnation %d", c.MachineName, c.ClientNumber, inc)
			continue
		}

		resp, err := c.Do(op)
		if err != nil {
			return err
		}
		c.metrics[len(c.metrics)-1].Timestamp = time.Since(begin)
		if !resp.OK() {
			failed++
		}
	}

	log.Infof("client %s:%d completed script: %d requests, %d failed", c.MachineName, c.ClientNumber, len(c.metrics), failed)
	return nil
}

// Fail bumps the machine's incarnation and restarts request numbering.
func (c *Client) Fail() (int32, error) {
	inc, err := c.incarnation.Bump()
	if err != nil {
		return 0, err
	}
	c.requestNumber = 0
	return inc, nil
}

// Do sends op as the next request and resends it until a response arrives.
func (c *Client) Do(op string) (protocol.Response, error) {
	inc, err := c.incarnation.Current()
	if err != nil {
		return protocol.Response{}, err
	}
	req := protocol.Request{
		MachineName:       c.MachineName,
		ClientNumber:      c.ClientNumber,
		RequestNumber:     c.requestNumber,
		ClientIncarnation: inc,
		Operation:         op,
	}

	if c.mustDrain {
		c.drain()
	}

	start := time.Now()
	var reply protocol.Response
	retries := 0
	for {
		err := protocol.Invoke(c.conn, req, &reply, c.Timeout)
		if err == nil {
			break
		}
		if errors.Is(err, protocol.ErrFieldTooLong) {
			return reply, err
		}
		if errors.Is(err, protocol.ErrTimeout) {
			log.Debugf("%s - request timed out", req.Key())
		} else {
			log.Warnf("%s - %v", req.Key(), err)
			time.Sleep(c.Timeout)
		}

		retries++
		if c.MaxRetries > 0 && retries >= c.MaxRetries {
			return reply, fmt.Errorf("%s after %d attempts: %w", req.Key(), retries, ErrNoResponse)
		}
	}
	// answers to the earlier copies may still be in flight
	c.mustDrain = retries > 0

	fmt.Fprintf(c.Output, "%s - Return value: %d\n", req.Key(), reply.ReturnValue)
	fmt.Fprintf(c.Output, "%s - Return msg: %s\n", req.Key(), reply.ReturnString)

	c.metrics = append(c.metrics, Metric{
		RequestNumber: req.RequestNumber,
		Incarnation:   inc,
		Operation:     op,
		ReturnValue:   reply.ReturnValue,
		Retries:       retries,
		Latency:       time.Since(start),
	})
	c.requestNumber++
	return reply, nil
}

// drain discards responses that arrive shortly after a retried request.
func (c *Client) drain() {
	buf := make([]byte, protocol.ResponseSize)
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.Timeout / 10)); err != nil {
			return
		}
		if _, err := c.conn.Read(buf); err != nil {
			return
		}
		log.Debugf("client %s:%d discarded a late response", c.MachineName, c.ClientNumber)
	}
}
