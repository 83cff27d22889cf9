package client

import (
	"io"
	"net"
	"time"

	"github.com/alanwang67/file_lock_service/protocol"
)

type Config struct {
	Server         protocol.Connection
	MachineName    string
	ClientNumber   int32
	IncarnationDir string        // Where the per-machine incarnation counter lives
	Timeout        time.Duration // Wait for a response before resending
	MaxRetries     int           // Resends per request, 0 means keep trying
}

func DefaultConfig() Config {
	return Config{
		Server:         protocol.Connection{Network: "udp", Address: "127.0.0.1:9001"},
		IncarnationDir: ".",
		Timeout:        time.Second,
	}
}

// Client replays a script of file operations against the lock server.
type Client struct {
	Config
	Output io.Writer // Return values and messages are printed here

	conn          net.Conn
	incarnation   *Incarnation
	requestNumber int32
	mustDrain     bool
	metrics       []Metric
}

// Metric records one answered request.
type Metric struct {
	RequestNumber int32         `json:"request_number"`
	Incarnation   int32         `json:"incarnation"`
	Operation     string        `json:"operation"`
	ReturnValue   int32         `json:"return_value"`
	Retries       int           `json:"retries"`
	Latency       time.Duration `json:"latency"`
	Timestamp     time.Duration `json:"timestamp"` // Since the client started
}
