package services

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/guidewire-oss/nosql2sql/internal/config"
	"github.com/guidewire-oss/nosql2sql/internal/replication"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = 0
	cfg.Mapping.TableName = "items"
	cfg.Mapping.DynamoDB.PartitionKeyName = "id"
	cfg.Mapping.DynamoDB.TableName = "orders"
	cfg.Mapping.S3.BucketName = "bucket"
	return cfg
}

// stubConnections replaces the connection factories for the duration of t.
func stubConnections(t *testing.T) sqlmock.Sqlmock {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	origDB, origAWS, origMongo, origNATS := openDatabase, loadAWSConfig, connectMongo, connectNATS
	t.Cleanup(func() {
		openDatabase, loadAWSConfig, connectMongo, connectNATS = origDB, origAWS, origMongo, origNATS
	})

	openDatabase = func(context.Context, config.PostgresConfig) (*sql.DB, error) { return db, nil }
	loadAWSConfig = func(_ context.Context, cfg config.AWSConfig) (aws.Config, error) {
		return aws.Config{Region: cfg.Region}, nil
	}
	connectMongo = func(context.Context, string) (*mongo.Client, error) {
		return nil, errors.New("mongo unavailable")
	}
	connectNATS = func(string) (*nats.Conn, error) {
		return nil, errors.New("nats unavailable")
	}
	return mock
}

func TestManager_Init_Start_Shutdown(t *testing.T) {
	mock := stubConnections(t)
	mock.ExpectClose()

	mgr := NewManager(testConfig(), Options{})
	require.NoError(t, mgr.Init(context.Background()))
	require.NotNil(t, mgr.server)
	assert.Empty(t, mgr.sources)

	rec := httptest.NewRecorder()
	mgr.server.HTTPMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	mgr.Start(bgCtx)
	bgCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mgr.Shutdown(shutdownCtx)

	assert.NoError(t, mock.ExpectationsWereMet())

	// The queue refuses work once drained.
	err := mgr.queue.Submit(context.Background(), []replication.Mutation{{Kind: replication.Insert}})
	assert.ErrorIs(t, err, replication.ErrQueueClosed)
}

func TestManager_Init_DatabaseError(t *testing.T) {
	stubConnections(t)
	openDatabase = func(context.Context, config.PostgresConfig) (*sql.DB, error) {
		return nil, errors.New("connection refused")
	}

	mgr := NewManager(testConfig(), Options{})
	err := mgr.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	// Shutdown tolerates the half-built manager.
	mgr.Shutdown(context.Background())
}

func TestManager_Init_InvalidFilter(t *testing.T) {
	stubConnections(t)

	cfg := testConfig()
	cfg.Mapping.Filter = "doc.recordType =="

	err := NewManager(cfg, Options{}).Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mapping.filter")
}

func TestManager_Init_AWSError(t *testing.T) {
	stubConnections(t)
	loadAWSConfig = func(context.Context, config.AWSConfig) (aws.Config, error) {
		return aws.Config{}, errors.New("no region")
	}

	err := NewManager(testConfig(), Options{}).Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load aws config")
}

func TestManager_Init_SourceErrors(t *testing.T) {
	stubConnections(t)

	cfg := testConfig()
	cfg.Sources.Mongo.Enabled = true
	cfg.Sources.Mongo.Database = "app"
	cfg.Sources.Mongo.Collection = "orders"
	err := NewManager(cfg, Options{}).Init(context.Background())
	assert.EqualError(t, err, "mongo unavailable")

	cfg = testConfig()
	cfg.Sources.NATS.Enabled = true
	err = NewManager(cfg, Options{}).Init(context.Background())
	assert.EqualError(t, err, "nats unavailable")
}

func TestManager_ImportOnly(t *testing.T) {
	stubConnections(t)

	cfg := testConfig()
	cfg.Sources.Mongo.Enabled = true
	cfg.Sources.Mongo.Database = "app"
	cfg.Sources.Mongo.Collection = "orders"

	mgr := NewManager(cfg, Options{ImportOnly: true})
	require.NoError(t, mgr.Init(context.Background()))
	assert.Nil(t, mgr.server)
	assert.Empty(t, mgr.sources)
	assert.NotNil(t, mgr.importer)
}

type fakeImporter struct {
	res replication.ImportResult
}

func (f *fakeImporter) Import(context.Context) (replication.ImportResult, error) {
	return f.res, nil
}

func TestManager_Import(t *testing.T) {
	mgr := NewManager(testConfig(), Options{ImportOnly: true})

	_, err := mgr.Import(context.Background())
	assert.Error(t, err)

	mgr.importer = &fakeImporter{res: replication.ImportResult{Prefix: "orders/", Applied: 2}}
	res, err := mgr.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
}
