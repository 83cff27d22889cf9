package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/alanwang67/file_lock_service/client"
	"github.com/alanwang67/file_lock_service/protocol"
	"github.com/alanwang67/file_lock_service/server"
	"github.com/alanwang67/file_lock_service/storage"
	"github.com/alanwang67/file_lock_service/workload"
	"github.com/charmbracelet/log"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s [server|client|workload|dump] [config.json]", os.Args[0])
	}

	configFile := "config.json"
	if len(os.Args) > 2 {
		configFile = os.Args[2]
	}
	config, err := LoadConfig(configFile)
	if err != nil {
		log.Fatalf("%s", err)
	}

	level, err := config.Level()
	if err != nil {
		log.Fatalf("Invalid log level %q: %s", config.LogLevel, err)
	}
	log.SetLevel(level)

	switch os.Args[1] {
	case "server":
		runServer(config)
	case "client":
		runClient(config)
	case "workload":
		runWorkload(config)
	case "dump":
		runDump(config)
	default:
		log.Fatalf("Unknown command: %s", os.Args[1])
	}
}

func runServer(config Config) {
	backend, closeStorage, err := config.OpenStorage(context.Background())
	if err != nil {
		log.Fatalf("Can't open storage: %s", err)
	}
	defer closeStorage()

	conn := &protocol.Connection{
		Network: config.Server.Network,
		Address: config.Server.Address,
	}
	if err := server.New(conn, backend, config.Faults(), config.ServerConfig()).Start(); err != nil {
		log.Fatalf("Server encountered an error: %v", err)
	}
}

func runClient(config Config) {
	commands, err := client.LoadScript(config.Client.Script)
	if err != nil {
		log.Fatalf("Can't read script: %s", err)
	}

	c, err := client.New(config.ClientConfig())
	if err != nil {
		log.Fatalf("Can't start client: %s", err)
	}
	defer c.Close()

	runErr := c.Start(commands)
	if runErr != nil {
		log.Errorf("Client stopped: %s", runErr)
	}

	if err := saveMetrics(c.Metrics(), config.Client.MetricsDir); err != nil {
		log.Errorf("Can't save metrics: %s", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func saveMetrics(metrics []client.Metric, dir string) error {
	if len(metrics) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := client.SaveMetricsJSON(metrics, filepath.Join(dir, "metrics.json")); err != nil {
		return err
	}
	if err := client.SaveMetricsCSV(metrics, filepath.Join(dir, "latency.csv")); err != nil {
		return err
	}
	if err := client.SaveLatencyPlot(metrics, filepath.Join(dir, "latency.png")); err != nil {
		return err
	}
	log.Infof("Metrics written to %s", dir)
	return nil
}

func runWorkload(config Config) {
	lines := config.Generator().Generate()
	if err := workload.WriteScript(lines, config.Workload.Output); err != nil {
		log.Fatalf("Can't write workload: %s", err)
	}
	log.Infof("Workload of %d commands written to %s", len(lines), config.Workload.Output)
}

func runDump(config Config) {
	ctx := context.Background()
	backend, closeStorage, err := config.OpenStorage(ctx)
	if err != nil {
		log.Fatalf("Can't open storage: %s", err)
	}
	defer closeStorage()

	if err := storage.Dump(ctx, backend, os.Stdout); err != nil {
		log.Fatalf("Can't dump storage: %s", err)
	}
}
