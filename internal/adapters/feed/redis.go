// Package feed carries database change notifications over Redis pub/sub.
// Writers publish each change to "changes:<table>"; the engine subscribes to
// the whole pattern and hands decoded changes to the ingest queue.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/pkg/logger"
	"github.com/okian/hackcast/pkg/metrics"
)

const (
	// ChannelPrefix prefixes every change channel.
	ChannelPrefix = "changes:"
	// DefaultPattern matches every change channel.
	DefaultPattern = ChannelPrefix + "*"

	reconnectDelay = 2 * time.Second
)

// Sink accepts decoded changes without blocking. It returns false when the
// change could not be accepted.
type Sink interface {
	Enqueue(ctx context.Context, c model.RawChange) bool
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, o Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Channel returns the channel a change on table is published to.
func Channel(table string) string {
	return ChannelPrefix + table
}

// Decode parses a change payload. When the payload omits its table the
// table is taken from the channel name.
func Decode(channel string, payload []byte) (model.RawChange, error) {
	var c model.RawChange
	if err := json.Unmarshal(payload, &c); err != nil {
		return model.RawChange{}, fmt.Errorf("decode change: %w", err)
	}
	if c.Table == "" {
		c.Table = strings.TrimPrefix(channel, ChannelPrefix)
		if c.Table == channel {
			c.Table = ""
		}
	}
	if c.Table == "" {
		return model.RawChange{}, ErrMissingTable
	}
	if c.Type == "" {
		return model.RawChange{}, ErrMissingType
	}
	return c, nil
}

// Subscriber forwards every change published on the pattern to a Sink.
type Subscriber struct {
	client  *redis.Client
	pattern string
	sink    Sink
	log     logger.Logger
	doneCh  chan struct{}
}

// NewSubscriber creates a subscriber. An empty pattern means DefaultPattern.
func NewSubscriber(client *redis.Client, pattern string, sink Sink) *Subscriber {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Subscriber{
		client:  client,
		pattern: pattern,
		sink:    sink,
		log:     logger.Get().Named("feed"),
		doneCh:  make(chan struct{}),
	}
}

// Done returns a channel that is closed when Run exits.
func (s *Subscriber) Done() <-chan struct{} { return s.doneCh }

// Run subscribes until ctx is done, reconnecting on receive errors.
func (s *Subscriber) Run(ctx context.Context) {
	defer close(s.doneCh)

	for {
		err := s.runSubscription(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Warn(ctx, "change feed subscription error, reconnecting",
				logger.String("pattern", s.pattern),
				logger.Duration("delay", reconnectDelay),
				logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Subscriber) runSubscription(ctx context.Context) error {
	pubsub := s.client.PSubscribe(ctx, s.pattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	s.log.Info(ctx, "subscribed to change feed", logger.String("pattern", s.pattern))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			s.handle(ctx, msg.Channel, msg.Payload)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, channel, payload string) {
	c, err := Decode(channel, []byte(payload))
	if err != nil {
		metrics.RecordFeedDecodeError()
		s.log.Warn(ctx, "invalid change payload",
			logger.String("channel", channel),
			logger.Error(err))
		return
	}
	metrics.RecordFeedMessage(c.Table)
	if !s.sink.Enqueue(ctx, c) {
		metrics.RecordEventDropped("queue_full")
		s.log.Warn(ctx, "ingest queue full, change dropped",
			logger.String("table", c.Table),
			logger.String("row_id", c.RowID()))
	}
}

// Publisher writes changes to the feed.
type Publisher struct {
	client *redis.Client
}

// NewPublisher creates a publisher on client.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends c to the channel of its table.
func (p *Publisher) Publish(ctx context.Context, c model.RawChange) error {
	if c.Table == "" {
		return ErrMissingTable
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	if err := p.client.Publish(ctx, Channel(c.Table), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", Channel(c.Table), err)
	}
	return nil
}
