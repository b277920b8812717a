// Package services assembles the replication pipeline from configuration and
// owns its lifecycle.
package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/guidewire-oss/nosql2sql/internal/api"
	"github.com/guidewire-oss/nosql2sql/internal/config"
	"github.com/guidewire-oss/nosql2sql/internal/export"
	"github.com/guidewire-oss/nosql2sql/internal/replication"
	"github.com/guidewire-oss/nosql2sql/internal/server"
	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// ImportOnly builds the sink and the snapshot importer but neither the
	// HTTP server nor the change sources.
	ImportOnly bool
}

// source is a long-running change intake.
type source interface {
	Run(ctx context.Context) error
}

type Manager struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	db         *sql.DB
	applier    *replication.Applier
	queue      *replication.Queue
	importer   api.SnapshotImporter
	controller *export.Controller
	server     server.Service

	mongoClient *mongo.Client
	natsConn    *nats.Conn
	sources     map[string]source

	// background holds the server and the sources until bgCtx ends.
	background errgroup.Group
}

func NewManager(cfg *config.Config, opts Options) *Manager {
	return &Manager{
		cfg:     cfg,
		opts:    opts,
		logger:  slog.Default().With("component", "manager"),
		sources: make(map[string]source),
	}
}

// Import loads the configured snapshot prefix into the sink.
func (m *Manager) Import(ctx context.Context) (replication.ImportResult, error) {
	if m.importer == nil {
		return replication.ImportResult{}, errors.New("manager not initialized")
	}
	return m.importer.Import(ctx)
}
