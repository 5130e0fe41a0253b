package storage

import (
	"context"
	"fmt"

	"market-feed/src/logger"
	"market-feed/src/models"

	"github.com/redis/go-redis/v9"
)

// -----------------------------------------------------------------------------

// RedisMirror keeps the latest snapshot under a key and publishes every
// snapshot on a channel, so other processes can follow the feed without a
// WebSocket.
type RedisMirror struct {
	Addr    string
	Key     string
	Channel string
	client  *redis.Client
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewRedisMirror(addr, key, channel string, log *logger.Logger) *RedisMirror {
	return &RedisMirror{
		Addr:    addr,
		Key:     key,
		Channel: channel,
		Logger:  log,
	}
}

// -----------------------------------------------------------------------------

func (m *RedisMirror) Name() string {
	return "redis"
}

// -----------------------------------------------------------------------------

func (m *RedisMirror) Initialize(ctx context.Context) error {
	m.client = redis.NewClient(&redis.Options{Addr: m.Addr})

	if err := m.client.Ping(ctx).Err(); err != nil {
		m.client.Close()
		return fmt.Errorf("failed to connect to redis at %s: %w", m.Addr, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (m *RedisMirror) Record(ctx context.Context, record models.MTickRecord) error {
	if len(record.Payload) == 0 {
		return nil
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, m.Key, record.Payload, 0)
	pipe.Publish(ctx, m.Channel, record.Payload)
	_, err := pipe.Exec(ctx)
	return err
}

// -----------------------------------------------------------------------------

func (m *RedisMirror) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
