package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/instancecache/observe"
)

// InvalidateAllMessage invalidates every cached instance when published.
const InvalidateAllMessage = "*"

// Invalidator is the part of a cache a Listener notifies.
type Invalidator interface {
	Invalidate(key string) bool
	InvalidateAll() int
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// Channel is the pub/sub channel carrying invalidated keys.
	// Default: "instancecache:invalidate"
	Channel string

	Logger observe.Logger
}

// Listener marks cached instances stale when their keys are published on a
// Redis channel. Each message payload is one key, or InvalidateAllMessage.
type Listener struct {
	client  redis.UniversalClient
	target  Invalidator
	channel string
	log     observe.Logger

	received atomic.Int64

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a Listener that invalidates entries of target.
func NewListener(client redis.UniversalClient, target Invalidator, config ListenerConfig) (*Listener, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if config.Channel == "" {
		config.Channel = "instancecache:invalidate"
	}
	return &Listener{
		client:  client,
		target:  target,
		channel: config.Channel,
		log:     observe.LoggerOrNop(config.Logger),
	}, nil
}

// Channel returns the subscribed channel name.
func (l *Listener) Channel() string { return l.channel }

// Received returns how many messages have been applied.
func (l *Listener) Received() int64 { return l.received.Load() }

// Start subscribes and returns once the subscription is confirmed.
// Messages are applied on a background goroutine until Close.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pubsub != nil {
		return nil
	}

	pubsub := l.client.Subscribe(ctx, l.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	l.pubsub, l.cancel, l.done = pubsub, cancel, done

	go func(messages <-chan *redis.Message) {
		defer close(done)
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if msg != nil {
					l.apply(runCtx, msg.Payload)
				}
			}
		}
	}(pubsub.Channel())

	l.log.Info(ctx, "invalidation listener started", observe.F("channel", l.channel))
	return nil
}

func (l *Listener) apply(ctx context.Context, payload string) {
	l.received.Add(1)
	if payload == InvalidateAllMessage {
		n := l.target.InvalidateAll()
		l.log.Debug(ctx, "invalidated all", observe.F("count", n))
		return
	}
	if l.target.Invalidate(payload) {
		l.log.Debug(ctx, "invalidated", observe.F("key", payload))
	}
}

// Close unsubscribes and waits for the message loop to exit.
func (l *Listener) Close() error {
	l.mu.Lock()
	pubsub, cancel, done := l.pubsub, l.cancel, l.done
	l.pubsub, l.cancel, l.done = nil, nil, nil
	l.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	cancel()
	err := pubsub.Close()
	<-done
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// Notify publishes an invalidation for key on channel.
func Notify(ctx context.Context, client redis.UniversalClient, channel, key string) error {
	return client.Publish(ctx, channel, key).Err()
}
