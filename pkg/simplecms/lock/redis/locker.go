// Package redis provides a Locker shared between processes through Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults applied by New.
const (
	DefaultKeyPrefix    = "simplecms:lock:"
	DefaultTTL          = 150 * time.Second
	DefaultPollInterval = 25 * time.Millisecond
)

// releaseScript deletes the lock only while it is still held by our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker acquires locks with SET NX PX. A lock expires after its TTL even if
// the holder never releases it.
type Locker struct {
	client       redis.UniversalClient
	prefix       string
	ttl          time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// Option configures a Locker
type Option func(*Locker)

// WithKeyPrefix sets the prefix of lock keys
func WithKeyPrefix(prefix string) Option {
	return func(l *Locker) { l.prefix = prefix }
}

// LeaseFor returns a lock TTL that outlives an insert running attempts units
// of work of txTimeout each. A zero txTimeout yields DefaultTTL.
func LeaseFor(attempts int, txTimeout time.Duration) time.Duration {
	if txTimeout <= 0 || attempts < 1 {
		return DefaultTTL
	}
	return time.Duration(attempts)*txTimeout + 30*time.Second
}

// WithTTL sets how long an unreleased lock lives
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) { l.ttl = ttl }
}

// WithPollInterval sets the delay between acquisition attempts
func WithPollInterval(d time.Duration) Option {
	return func(l *Locker) { l.pollInterval = d }
}

// WithLogger sets the logger used to report failed releases
func WithLogger(logger *zap.Logger) Option {
	return func(l *Locker) { l.logger = logger }
}

// New creates a Redis backed locker
func New(client redis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client:       client,
		prefix:       DefaultKeyPrefix,
		ttl:          DefaultTTL,
		pollInterval: DefaultPollInterval,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock polls until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return l.unlockFunc(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlockFunc(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(redisKey, token) })
	}
}

func (l *Locker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn("failed to release lock", zap.String("key", redisKey), zap.Error(err))
	}
}
