package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/guidewire-oss/nosql2sql/internal/api"
	"github.com/guidewire-oss/nosql2sql/internal/config"
	"github.com/guidewire-oss/nosql2sql/internal/export"
	"github.com/guidewire-oss/nosql2sql/internal/mapping"
	"github.com/guidewire-oss/nosql2sql/internal/postgres"
	"github.com/guidewire-oss/nosql2sql/internal/replication"
	"github.com/guidewire-oss/nosql2sql/internal/server"
	"github.com/guidewire-oss/nosql2sql/internal/snapshot"
	mongosource "github.com/guidewire-oss/nosql2sql/internal/source/mongo"
	natssource "github.com/guidewire-oss/nosql2sql/internal/source/nats"
	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/mongo"
)

// Connection factories, replaced in tests.
var (
	openDatabase = func(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
		return postgres.Open(ctx, cfg)
	}
	loadAWSConfig = func(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	connectMongo = func(ctx context.Context, uri string) (*mongo.Client, error) {
		return mongosource.Connect(ctx, uri)
	}
	connectNATS = func(url string) (*nats.Conn, error) {
		return natssource.Connect(url)
	}
)

func (m *Manager) Init(ctx context.Context) error {
	if err := m.initSink(ctx); err != nil {
		return err
	}
	if err := m.initAWS(ctx); err != nil {
		return err
	}
	if m.opts.ImportOnly {
		return nil
	}

	m.initAPIServer()
	return m.initSources(ctx)
}

func (m *Manager) initSink(ctx context.Context) error {
	db, err := openDatabase(ctx, m.cfg.Postgres)
	if err != nil {
		return err
	}
	m.db = db

	mc := m.cfg.Mapping
	opts := replication.Options{
		TableName:              mc.TableName,
		DiscriminatorAttribute: mc.DynamoDB.DiscriminatorAttributeName,
		PartitionKey:           mc.DynamoDB.PartitionKeyName,
		SortKey:                mc.DynamoDB.SortKeyName,
		RecreateTables:         mc.RecreateTables,
	}
	if mc.Filter != "" {
		filter, err := replication.NewFilter(mc.Filter)
		if err != nil {
			return fmt.Errorf("invalid mapping.filter: %w", err)
		}
		opts.Filter = filter
	}

	m.applier = replication.NewApplier(db, mapping.NewRegistry(), opts, nil)
	m.queue = replication.NewQueue(m.applier, m.cfg.Queue.BufferSize, nil)
	return nil
}

func (m *Manager) initAWS(ctx context.Context) error {
	awsCfg, err := loadAWSConfig(ctx, m.cfg.AWS)
	if err != nil {
		return fmt.Errorf("failed to load aws config: %w", err)
	}

	// A custom endpoint means a local stack, which serves buckets by path.
	endpoint := m.cfg.AWS.Endpoint
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	dynamoClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	mc := m.cfg.Mapping
	assembler := snapshot.NewAssembler(s3Client, mc.S3.BucketName, nil)
	m.importer = replication.NewImporter(assembler, m.applier, mc.S3.Prefix, mc.DynamoDB.TableName, nil)
	m.controller = export.NewController(dynamoClient, export.Options{
		Bucket:       mc.S3.BucketName,
		Prefix:       mc.S3.Prefix,
		PollInterval: m.cfg.Export.PollInterval,
		MaxPolls:     m.cfg.Export.MaxPolls,
	}, nil)
	return nil
}

func (m *Manager) initAPIServer() {
	m.server = server.New(m.cfg.Server, nil)
	m.server.RegisterHTTPHandler("/", api.NewServer(api.Deps{
		Queue:       m.queue,
		Exporter:    m.controller,
		Importer:    m.importer,
		Tables:      m.applier,
		SourceTable: m.cfg.Mapping.DynamoDB.TableName,
	}, nil))
}

func (m *Manager) initSources(ctx context.Context) error {
	sc := m.cfg.Sources

	if sc.Mongo.Enabled {
		client, err := connectMongo(ctx, sc.Mongo.URI)
		if err != nil {
			return err
		}
		m.mongoClient = client
		m.sources["mongo"] = mongosource.New(client, sc.Mongo, m.queue, nil)
	}

	if sc.NATS.Enabled {
		nc, err := connectNATS(sc.NATS.URL)
		if err != nil {
			return err
		}
		m.natsConn = nc
		src, err := natssource.New(nc, sc.NATS, m.queue, nil)
		if err != nil {
			return err
		}
		m.sources["nats"] = src
	}

	return nil
}
