// Package viewbus broadcasts published membership views over Redis.
//
// Every publication stores the full view under a key, so late joiners can read it,
// and announces it on a pub/sub channel with the pools that changed.
package viewbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/screwyprof/poolmembers/members"
)

// Sentinel errors for failure cases
var (
	ErrNoView          = errors.New("no view published")
	ErrEncodeFailed    = errors.New("view encoding failed")
	ErrPublishFailed   = errors.New("view publish failed")
	ErrSubscribeFailed = errors.New("subscribe failed")
	ErrLatestFailed    = errors.New("latest view retrieval failed")
)

// Defaults
const (
	DefaultChannel    = "poolmembers:view.published"
	DefaultLatestKey  = "poolmembers:view:latest"
	TypeViewPublished = "view.published"

	confirmTimeout = 5 * time.Second
	messageBuffer  = 64
)

// Message announces a published view. Pools holds the rebuilt pools of a merge and is
// empty for snapshots and resyncs; read Latest for the full view.
type Message struct {
	Type        string       `json:"type"`
	Version     uint64       `json:"version"`
	Height      uint64       `json:"height"`
	Reason      string       `json:"reason"`
	Resync      bool         `json:"resync,omitempty"`
	PublishedAt time.Time    `json:"publishedAt"`
	Pools       members.View `json:"pools,omitempty"`
}

// Latest is the full view as last published
type Latest struct {
	Version     uint64       `json:"version"`
	Height      uint64       `json:"height"`
	PublishedAt time.Time    `json:"publishedAt"`
	View        members.View `json:"view"`
}

// Option configures the Bus
type Option func(*Bus)

// WithChannel overrides the pub/sub channel name
func WithChannel(name string) Option {
	return func(b *Bus) { b.channel = name }
}

// WithLatestKey overrides the key holding the latest view
func WithLatestKey(key string) Option {
	return func(b *Bus) { b.latestKey = key }
}

// Bus publishes and subscribes to view notifications
type Bus struct {
	client    redis.UniversalClient
	channel   string
	latestKey string
}

// New creates a Bus on an existing Redis client. The caller owns the client.
func New(client redis.UniversalClient, opts ...Option) *Bus {
	b := &Bus{
		client:    client,
		channel:   DefaultChannel,
		latestKey: DefaultLatestKey,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish stores latest and broadcasts msg in one MULTI/EXEC
func (b *Bus) Publish(ctx context.Context, msg Message, latest Latest) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	stored, err := json.Marshal(latest)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.latestKey, stored, 0)
	pipe.Publish(ctx, b.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Latest returns the last published view, ErrNoView if there is none yet
func (b *Bus) Latest(ctx context.Context) (Latest, error) {
	raw, err := b.client.Get(ctx, b.latestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Latest{}, ErrNoView
	}
	if err != nil {
		return Latest{}, fmt.Errorf("%w: %w", ErrLatestFailed, err)
	}

	var latest Latest
	if err := json.Unmarshal(raw, &latest); err != nil {
		return Latest{}, fmt.Errorf("%w: %w", ErrLatestFailed, err)
	}
	return latest, nil
}

// Subscribe listens on the channel until ctx ends. The returned channel is closed when the
// subscription ends; payloads that do not decode are skipped.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Message, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)

	receiveCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	if _, err := pubsub.Receive(receiveCtx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, b.channel, err)
	}

	out := make(chan Message, messageBuffer)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Select returns the pools of view named by ids. Unknown ids map to empty pools,
// which is how a merge reports a pool it emptied.
func Select(view members.View, ids []members.PoolID) members.View {
	if len(ids) == 0 {
		return nil
	}
	out := make(members.View, len(ids))
	for _, id := range ids {
		seq := view[id]
		if seq == nil {
			seq = []members.Member{}
		}
		out[id] = seq
	}
	return out
}
