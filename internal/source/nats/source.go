// Package nats consumes batches of DynamoDB stream records from a JetStream
// subject and submits them to the change queue.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guidewire-oss/nosql2sql/internal/config"
	"github.com/guidewire-oss/nosql2sql/internal/replication"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStream is the subset of jetstream.JetStream the source uses.
type JetStream interface {
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error)
}

// JetStreamNew is a variable to allow mocking in tests.
var JetStreamNew = func(nc *nats.Conn) (JetStream, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}
	return js, nil
}

// Submitter accepts batches of mutations. *replication.Queue satisfies it.
type Submitter interface {
	Submit(ctx context.Context, batch []replication.Mutation) error
}

// Source delivers each message, a JSON batch of stream records, to the queue
// as one batch. Messages that cannot be decoded are terminated; messages the
// queue refuses are redelivered.
type Source struct {
	js     JetStream
	cfg    config.NATSSourceConfig
	queue  Submitter
	logger *slog.Logger
}

// Connect dials url.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("nosql2sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}

func New(nc *nats.Conn, cfg config.NATSSourceConfig, queue Submitter, logger *slog.Logger) (*Source, error) {
	if nc == nil {
		return nil, errors.New("nats connection cannot be nil")
	}
	js, err := JetStreamNew(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}
	return newSource(js, cfg, queue, logger)
}

func newSource(js JetStream, cfg config.NATSSourceConfig, queue Submitter, logger *slog.Logger) (*Source, error) {
	if cfg.Stream == "" {
		return nil, errors.New("stream name is required")
	}
	if cfg.Subject == "" {
		return nil, errors.New("subject is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		js:     js,
		cfg:    cfg,
		queue:  queue,
		logger: logger.With("component", "nats-source", "stream", cfg.Stream),
	}, nil
}

// Run ensures the stream and durable consumer exist, then consumes until ctx
// is cancelled.
func (s *Source) Run(ctx context.Context) error {
	_, err := s.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     s.cfg.Stream,
		Subjects: []string{s.cfg.Subject},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, s.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       s.cfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: s.cfg.Subject,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		s.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	s.logger.Info("consumer subscribed", "subject", s.cfg.Subject)
	<-ctx.Done()
	cc.Stop()
	s.logger.Info("consumer stopped")
	return nil
}

func (s *Source) handle(ctx context.Context, msg jetstream.Msg) {
	batch, err := replication.DecodeStreamRecords(msg.Data())
	if err != nil {
		s.logger.Error("dropping undecodable message", "subject", msg.Subject(), "error", err)
		if err := msg.TermWithReason(err.Error()); err != nil {
			s.logger.Warn("failed to terminate message", "error", err)
		}
		return
	}

	if err := s.queue.Submit(ctx, batch); err != nil {
		s.logger.Warn("failed to submit batch, requesting redelivery", "error", err)
		if err := msg.Nak(); err != nil {
			s.logger.Warn("failed to nak message", "error", err)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		s.logger.Warn("failed to ack message", "error", err)
	}
}
