package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alanwang67/file_lock_service/client"
	"github.com/alanwang67/file_lock_service/protocol"
	"github.com/alanwang67/file_lock_service/server"
	"github.com/alanwang67/file_lock_service/storage"
	"github.com/alanwang67/file_lock_service/workload"
	"github.com/charmbracelet/log"
)

// Config structure for loading config.json
type Config struct {
	LogLevel string         `json:"log_level"`
	Server   serverConfig   `json:"server"`
	Storage  storageConfig  `json:"storage"`
	Client   clientConfig   `json:"client"`
	Workload workloadConfig `json:"workload"`
}

type serverConfig struct {
	Network          string      `json:"network"`
	Address          string      `json:"address"`
	Workers          int         `json:"workers"`
	StorageTimeoutMs int         `json:"storage_timeout_ms"`
	MaxSessions      int         `json:"max_sessions"`
	MaxLocks         int         `json:"max_locks"`
	MaxFileSize      int         `json:"max_file_size"`
	Faults           faultConfig `json:"faults"`
}

type faultConfig struct {
	Enabled bool   `json:"enabled"`
	Seed    uint64 `json:"seed"`
}

// storageConfig selects the file store: "dir", "memory" or "redis".
type storageConfig struct {
	Type    string `json:"type"`
	Root    string `json:"root"`
	Cluster string `json:"cluster"` // Comma separated host:port list
	Prefix  string `json:"prefix"`
}

type clientConfig struct {
	Server         string `json:"server"`
	Machine        string `json:"machine"`
	Number         int32  `json:"number"`
	Script         string `json:"script"`
	IncarnationDir string `json:"incarnation_dir"`
	TimeoutMs      int    `json:"timeout_ms"`
	MaxRetries     int    `json:"max_retries"`
	MetricsDir     string `json:"metrics_dir"`
}

type workloadConfig struct {
	Files          int     `json:"files"`
	Operations     int     `json:"operations"`
	ReadPercentage float64 `json:"read_percentage"`
	FailPercentage float64 `json:"fail_percentage"`
	ZipfS          float64 `json:"zipf_s"`
	Seed           uint64  `json:"seed"`
	Output         string  `json:"output"`
}

func DefaultConfig() Config {
	srv := server.DefaultConfig()
	cl := client.DefaultConfig()
	wl := workload.New()

	return Config{
		LogLevel: "info",
		Server: serverConfig{
			Network:          "udp",
			Address:          ":9001",
			Workers:          srv.Workers,
			StorageTimeoutMs: int(srv.StorageTimeout / time.Millisecond),
			MaxSessions:      srv.MaxSessions,
			MaxLocks:         srv.MaxLocks,
			MaxFileSize:      srv.MaxFileSize,
			Faults:           faultConfig{Enabled: true},
		},
		Storage: storageConfig{
			Type:   "dir",
			Root:   "./data",
			Prefix: storage.DefaultPrefix,
		},
		Client: clientConfig{
			Server:         cl.Server.Address,
			Machine:        "localhost",
			Number:         1,
			Script:         "script.cmd",
			IncarnationDir: cl.IncarnationDir,
			TimeoutMs:      int(cl.Timeout / time.Millisecond),
			MetricsDir:     "results",
		},
		Workload: workloadConfig{
			Files:          wl.Files,
			Operations:     wl.Operations,
			ReadPercentage: wl.ReadPercentage,
			FailPercentage: wl.FailPercentage,
			ZipfS:          wl.ZipfS,
			Output:         "script.cmd",
		},
	}
}

// LoadConfig reads path on top of the defaults, so missing fields keep
// their default values.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("can't read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("can't unmarshal %s: %w", path, err)
	}
	return config, nil
}

func (c Config) Level() (log.Level, error) {
	return log.ParseLevel(c.LogLevel)
}

func (c Config) ServerConfig() server.Config {
	return server.Config{
		Workers:        c.Server.Workers,
		StorageTimeout: time.Duration(c.Server.StorageTimeoutMs) * time.Millisecond,
		MaxSessions:    c.Server.MaxSessions,
		MaxLocks:       c.Server.MaxLocks,
		MaxFileSize:    c.Server.MaxFileSize,
	}
}

func (c Config) Faults() server.FaultInjector {
	if !c.Server.Faults.Enabled {
		return server.NoFaults{}
	}
	return server.NewRandomFaults(c.Server.Faults.Seed)
}

func (c Config) ClientConfig() client.Config {
	return client.Config{
		Server:         protocol.Connection{Network: c.Server.Network, Address: c.Client.Server},
		MachineName:    c.Client.Machine,
		ClientNumber:   c.Client.Number,
		IncarnationDir: c.Client.IncarnationDir,
		Timeout:        time.Duration(c.Client.TimeoutMs) * time.Millisecond,
		MaxRetries:     c.Client.MaxRetries,
	}
}

func (c Config) Generator() *workload.Generator {
	g := workload.New()
	g.Files = c.Workload.Files
	g.Operations = c.Workload.Operations
	g.ReadPercentage = c.Workload.ReadPercentage
	g.FailPercentage = c.Workload.FailPercentage
	g.ZipfS = c.Workload.ZipfS
	g.Seed = c.Workload.Seed
	return g
}

// OpenStorage builds the configured backend. The returned func releases it.
func (c Config) OpenStorage(ctx context.Context) (storage.Backend, func(), error) {
	switch strings.ToLower(c.Storage.Type) {
	case "memory":
		return storage.NewMemory(), func() {}, nil
	case "dir", "":
		d, err := storage.NewDir(c.Storage.Root)
		if err != nil {
			return nil, nil, err
		}
		return d, func() {}, nil
	case "redis":
		if c.Storage.Cluster == "" {
			return nil, nil, fmt.Errorf("redis storage needs a cluster address list")
		}
		r := storage.NewRedis(c.Storage.Cluster, c.Storage.Prefix)
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, nil, fmt.Errorf("can't reach redis at %s: %w", c.Storage.Cluster, err)
		}
		return r, func() { r.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
}
