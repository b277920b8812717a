package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guidewire-oss/nosql2sql/internal/config"
	"github.com/guidewire-oss/nosql2sql/internal/logging"
	"github.com/guidewire-oss/nosql2sql/internal/services"
)

const usage = `Usage: nosql2sql [flags] [command]

Commands:
  serve   replicate changes and serve the HTTP API (default)
  import  load the latest table export from S3 and exit

Flags:
`

func main() {
	configDir := flag.String("config", config.DefaultDir, "Directory holding config.yml and config.local.yml")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "serve"
	}
	if command != "serve" && command != "import" {
		flag.Usage()
		os.Exit(2)
	}

	// 1. Load Configuration
	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Shutdown()

	// 2. Initialize Service Manager
	mgr := services.NewManager(cfg, services.Options{ImportOnly: command == "import"})

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = mgr.Init(initCtx)
	initCancel()
	if err != nil {
		slog.Error("Failed to initialize services", "error", err)
		mgr.Shutdown(context.Background())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if command == "import" {
		code := runImport(ctx, mgr, cfg.Server.ShutdownTimeout)
		stop()
		_ = logging.Shutdown()
		os.Exit(code)
	}

	// 3. Start Services
	slog.Info("Starting nosql2sql",
		"table", cfg.Mapping.DynamoDB.TableName,
		"mongo_source", cfg.Sources.Mongo.Enabled,
		"nats_source", cfg.Sources.NATS.Enabled,
	)
	mgr.Start(ctx)

	// 4. Wait for Shutdown
	<-ctx.Done()
	slog.Info("Shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)

	slog.Info("All services stopped")
}

func runImport(ctx context.Context, mgr *services.Manager, shutdownTimeout time.Duration) int {
	res, err := mgr.Import(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	mgr.Shutdown(shutdownCtx)

	if err != nil {
		slog.Error("Import failed", "error", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		slog.Error("Failed to print import result", "error", err)
		return 1
	}
	return 0
}
