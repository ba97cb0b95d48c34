// Package notify delivers events out of band over Redis pub/sub. A
// downstream bot subscribed to the channel does the user-facing delivery.
package notify

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/goldpair/events"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultChannel = "goldpair:events"
	DefaultBuffer  = 256
)

// Publisher is the slice of *redis.Client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Message is the published envelope.
type Message struct {
	Chat  string       `json:"chat,omitempty"`
	Text  string       `json:"text"`
	Event events.Event `json:"event"`
}

type Config struct {
	URL     string
	Channel string
	// Token is used as the Redis password when the URL has none.
	Token string
	// Chat is forwarded in every message for the downstream bot.
	Chat    string
	Timeout time.Duration
	// Buffer is how many events may wait for Run before new ones are dropped.
	Buffer int
}

type outgoing struct {
	kind    events.Kind
	pairID  string
	payload []byte
}

// RedisSink queues events and publishes them from Run, so a slow or absent
// Redis never delays the caller of Emit.
type RedisSink struct {
	pub     Publisher
	channel string
	chat    string
	timeout time.Duration
	queue   chan outgoing
	dropped atomic.Int64
	log     zerolog.Logger
}

// NewClient parses cfg.URL into a go-redis client.
func NewClient(cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("notify: redis url: %w", err)
	}
	if opts.Password == "" && cfg.Token != "" {
		opts.Password = cfg.Token
	}
	return redis.NewClient(opts), nil
}

func NewRedisSink(pub Publisher, cfg Config, log zerolog.Logger) *RedisSink {
	s := &RedisSink{
		pub:     pub,
		channel: cfg.Channel,
		chat:    cfg.Chat,
		timeout: cfg.Timeout,
		log:     log.With().Str("component", "notify").Logger(),
	}
	if s.channel == "" {
		s.channel = DefaultChannel
	}
	if s.timeout <= 0 {
		s.timeout = 2 * time.Second
	}
	n := cfg.Buffer
	if n <= 0 {
		n = DefaultBuffer
	}
	s.queue = make(chan outgoing, n)
	return s
}

// Emit queues e for publishing. When the queue is full the event is
// dropped and logged.
func (s *RedisSink) Emit(_ context.Context, e events.Event) {
	payload, err := json.Marshal(Message{Chat: s.chat, Text: Format(e), Event: e})
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(e.Kind)).Msg("encode event")
		return
	}

	select {
	case s.queue <- outgoing{kind: e.Kind, pairID: e.PairID, payload: payload}:
	default:
		s.dropped.Add(1)
		s.log.Warn().
			Str("kind", string(e.Kind)).
			Str("pair_id", e.PairID).
			Msg("notify queue full, event dropped")
	}
}

// Dropped is the number of events discarded because the queue was full.
func (s *RedisSink) Dropped() int64 { return s.dropped.Load() }

// Run publishes queued events until ctx is done, then publishes whatever is
// still queued and returns.
func (s *RedisSink) Run(ctx context.Context) error {
	for {
		select {
		case m := <-s.queue:
			s.publish(ctx, m)
		case <-ctx.Done():
			for {
				select {
				case m := <-s.queue:
					s.publish(ctx, m)
				default:
					return nil
				}
			}
		}
	}
}

func (s *RedisSink) publish(ctx context.Context, m outgoing) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.pub.Publish(ctx, s.channel, m.payload).Err(); err != nil {
		s.log.Warn().Err(err).
			Str("kind", string(m.kind)).
			Str("pair_id", m.pairID).
			Msg("publish event")
	}
}
