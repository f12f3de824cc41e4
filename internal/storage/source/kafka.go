package source

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/pkg/config"
	"github.com/mimir-go/pkg/logger"
	"github.com/segmentio/kafka-go"
)

const DefaultIdleTimeout = 10 * time.Second

// MessageReader is the subset of *kafka.Reader used by Topic.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewTopicReader opens a consumer group reader on the configured topic.
func NewTopicReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
		MaxWait:     1 * time.Second,
	})
}

// Topic drains a Kafka topic as a finite document stream: the stream ends
// once no message arrived for IdleTimeout. Offsets are only committed by
// Commit, so that a failed import is replayed by the next run.
type Topic struct {
	reader      MessageReader
	decoder     Decoder
	logger      logger.Logger
	IdleTimeout time.Duration

	pending []kafka.Message
	read    int
	skipped int
	err     error
}

func NewTopic(reader MessageReader, decoder Decoder, log logger.Logger) *Topic {
	return &Topic{
		reader:      reader,
		decoder:     decoder,
		logger:      log.Named("source"),
		IdleTimeout: DefaultIdleTimeout,
	}
}

// Documents yields the decoded messages. Message keys serve as identity for
// records without an id field.
func (t *Topic) Documents(ctx context.Context) iter.Seq[index.Document] {
	return func(yield func(index.Document) bool) {
		for {
			fetchCtx, cancel := context.WithTimeout(ctx, t.IdleTimeout)
			msg, err := t.reader.FetchMessage(fetchCtx)
			cancel()
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
					t.logger.Info("Topic drained", "read", t.read, "skipped", t.skipped)
					return
				}
				t.err = err
				return
			}

			t.read++
			t.pending = append(t.pending, msg)

			doc, err := t.decoder.Decode(msg.Value, string(msg.Key))
			if err != nil {
				t.skipped++
				t.logger.Warn("Skipping message",
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err)
				continue
			}
			if !yield(doc) {
				return
			}
		}
	}
}

// Commit acknowledges every message fetched so far.
func (t *Topic) Commit(ctx context.Context) error {
	if len(t.pending) == 0 {
		return nil
	}
	if err := t.reader.CommitMessages(ctx, t.pending...); err != nil {
		return err
	}
	t.logger.Info("Offsets committed", "messages", len(t.pending))
	t.pending = nil
	return nil
}

func (t *Topic) Read() int    { return t.read }
func (t *Topic) Skipped() int { return t.skipped }
func (t *Topic) Err() error   { return t.err }

func (t *Topic) Close() error {
	return t.reader.Close()
}
