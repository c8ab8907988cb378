package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/ledgerx/pkg/indexer/types"
	"github.com/canopy-network/ledgerx/pkg/retry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamReader is the part of Client a StreamConsumer needs.
type StreamReader interface {
	XRead(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]redis.XStream, error)
}

var _ StreamReader = (*Client)(nil)

// StreamConsumerConfig configures a StreamConsumer.
type StreamConsumerConfig struct {
	// Stream is the Redis stream name to consume from (required).
	Stream string

	// LastID is the starting position:
	//   - "0" = read from beginning
	//   - "$" = read only new messages
	//   - "<id>" = read after specific ID (e.g., "1234567890123-0")
	// Default: "$"
	LastID string

	// Count is the max number of entries to read per batch. Default: 100.
	Count int64

	// Block is how long to wait for new entries. Default: 5 seconds.
	Block time.Duration

	// Retry is the backoff applied between failed reads. Default: 1s doubling up to 30s.
	Retry retry.Config

	// Logger for logging. If nil, uses a no-op logger.
	Logger *zap.Logger
}

// MessageHandler processes a stream message. Errors are logged and the message is skipped.
type MessageHandler func(ctx context.Context, msg Message) error

// Message represents a single stream entry.
type Message struct {
	// ID is the Redis stream entry ID (e.g., "1234567890123-0").
	ID string

	// Stream is the stream name this message came from.
	Stream string

	// Values contains the entry fields as key-value pairs.
	Values map[string]any
}

// Data returns the "data" field of the message, or nil.
func (m *Message) Data() []byte {
	switch data := m.Values["data"].(type) {
	case string:
		return []byte(data)
	case []byte:
		return data
	}
	return nil
}

// RangeCommitted decodes the message as a range.committed event.
func (m *Message) RangeCommitted() (types.RangeCommittedEvent, error) {
	var ev types.RangeCommittedEvent
	data := m.Data()
	if data == nil {
		return ev, fmt.Errorf("message %s has no data field", m.ID)
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return ev, nil
}

// StreamConsumer tails a Redis stream, retrying failed reads with backoff.
type StreamConsumer struct {
	reader StreamReader
	config StreamConsumerConfig
	logger *zap.Logger
}

// NewStreamConsumer creates a new stream consumer.
func NewStreamConsumer(reader StreamReader, config StreamConsumerConfig) (*StreamConsumer, error) {
	if reader == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Stream == "" {
		return nil, errors.New("stream name is required")
	}

	// Apply defaults
	if config.LastID == "" {
		config.LastID = "$"
	}
	if config.Count == 0 {
		config.Count = 100
	}
	if config.Block == 0 {
		config.Block = 5 * time.Second
	}
	if config.Retry.InitialDelay == 0 {
		config.Retry = retry.Forever(time.Second, 30*time.Second)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StreamConsumer{
		reader: reader,
		config: config,
		logger: logger,
	}, nil
}

// Run calls handler for every message until ctx is done, and returns ctx.Err().
func (sc *StreamConsumer) Run(ctx context.Context, handler MessageHandler) error {
	lastID := sc.config.LastID
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			sc.logger.Info("Stream consumer shutting down", zap.String("stream", sc.config.Stream))
			return ctx.Err()
		default:
		}

		messages, err := sc.read(ctx, lastID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, redis.Nil) {
				// block timeout with no entries
				attempt = 0
				continue
			}

			attempt++
			delay := retry.Delay(sc.config.Retry, attempt)
			sc.logger.Warn("Error reading from stream, will retry",
				zap.String("stream", sc.config.Stream),
				zap.Error(err),
				zap.Duration("retryIn", delay))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		attempt = 0

		for _, msg := range messages {
			if err := handler(ctx, msg); err != nil {
				sc.logger.Error("Error processing message",
					zap.String("stream", sc.config.Stream),
					zap.String("id", msg.ID),
					zap.Error(err))
			}
			lastID = msg.ID
		}
	}
}

func (sc *StreamConsumer) read(ctx context.Context, lastID string) ([]Message, error) {
	streams, err := sc.reader.XRead(ctx, sc.config.Stream, lastID, sc.config.Count, sc.config.Block)
	if err != nil {
		return nil, err
	}

	var messages []Message
	for _, stream := range streams {
		for _, xmsg := range stream.Messages {
			messages = append(messages, Message{
				ID:     xmsg.ID,
				Stream: stream.Stream,
				Values: xmsg.Values,
			})
		}
	}
	return messages, nil
}
