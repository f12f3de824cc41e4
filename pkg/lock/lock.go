// Package lock provides expiring leases on named resources, shared between
// processes through Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mimir-go/pkg/logger"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrHeld is returned when another owner holds the lock
	ErrHeld = errors.New("lock held by another owner")
	// ErrNotHeld is returned when a lease expired or was taken over
	ErrNotHeld = errors.New("lock not held")
)

// Options configures the Redis locker
type Options struct {
	// Prefix is prepended to every lock name
	Prefix string
	// TTL bounds how long a crashed owner blocks the others
	TTL time.Duration
}

// MinTTL is the shortest lease. Leases are refreshed every TTL/3.
const MinTTL = 3 * time.Millisecond

// DefaultOptions returns default locker options
func DefaultOptions() *Options {
	return &Options{
		Prefix: "mimir:lock:",
		TTL:    time.Minute,
	}
}

// Only the owner token may extend or delete a key.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLocker hands out leases backed by SET NX keys
type RedisLocker struct {
	client  *redis.Client
	options *Options
	logger  logger.Logger
}

// NewRedisLocker creates a new Redis locker
func NewRedisLocker(client *redis.Client, opts *Options, log logger.Logger) *RedisLocker {
	options := *DefaultOptions()
	if opts != nil {
		options = *opts
	}
	switch {
	case options.TTL <= 0:
		options.TTL = DefaultOptions().TTL
	case options.TTL < MinTTL:
		options.TTL = MinTTL
	}

	return &RedisLocker{
		client:  client,
		options: &options,
		logger:  log.Named("lock"),
	}
}

// Lease is one acquisition of a lock
type Lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// Acquire takes the lock without waiting. ErrHeld is returned when it is
// already taken.
func (l *RedisLocker) Acquire(ctx context.Context, name string) (*Lease, error) {
	key := l.buildKey(name)
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, l.options.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx error: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, name)
	}

	return &Lease{client: l.client, key: key, token: token, ttl: l.options.TTL}, nil
}

// Lock acquires name and keeps the lease alive until the returned unlock
// function is called.
func (l *RedisLocker) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	lease, err := l.Acquire(ctx, name)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(lease, stop)
	}()

	l.logger.Debug("Lock acquired", "lock", name)
	return func(ctx context.Context) error {
		close(stop)
		<-done
		if err := lease.Release(ctx); err != nil {
			return err
		}
		l.logger.Debug("Lock released", "lock", name)
		return nil
	}, nil
}

func (l *RedisLocker) keepAlive(lease *Lease, stop <-chan struct{}) {
	ticker := time.NewTicker(lease.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), lease.ttl/3)
			err := lease.Refresh(ctx)
			cancel()
			if err != nil {
				l.logger.Warn("Failed to refresh lock", "key", lease.key, "error", err)
			}
		case <-stop:
			return
		}
	}
}

// Release deletes the lock if this lease still owns it
func (l *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("redis release error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, l.key)
	}
	return nil
}

// Refresh resets the TTL if this lease still owns the lock
func (l *Lease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis refresh error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, l.key)
	}
	return nil
}

func (l *RedisLocker) buildKey(name string) string {
	return l.options.Prefix + name
}
