package crdtstorage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DistributedLock gives one process at a time exclusive access to a resource.
type DistributedLock interface {
	// Acquire tries once to take the lock with the given TTL. It reports whether the
	// lock was taken.
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)

	// Release releases the lock. It reports whether this owner still held it.
	Release(ctx context.Context) (bool, error)

	// Refresh extends the TTL of a held lock.
	Refresh(ctx context.Context, ttl time.Duration) (bool, error)
}

// DistributedLockManager hands out locks for resources.
type DistributedLockManager interface {
	// GetLock returns the lock of resourceID held on behalf of ownerID.
	GetLock(resourceID string, ownerID string) DistributedLock

	// Close releases the manager.
	Close() error
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

// RedisDistributedLock is a SET NX lock with an owner token, refreshed in the
// background while held.
type RedisDistributedLock struct {
	client     *redis.Client
	resourceID string
	ownerID    string
	lockKey    string

	mu       sync.Mutex
	acquired bool
	stop     context.CancelFunc
	stopped  chan struct{}
}

// NewRedisDistributedLock creates a lock for resourceID.
func NewRedisDistributedLock(client *redis.Client, keyPrefix, resourceID, ownerID string) *RedisDistributedLock {
	lockKey := fmt.Sprintf("lock:%s", resourceID)
	if keyPrefix != "" {
		lockKey = keyPrefix + ":" + lockKey
	}
	return &RedisDistributedLock{
		client:     client,
		resourceID: resourceID,
		ownerID:    ownerID,
		lockKey:    lockKey,
	}
}

// Acquire tries once to take the lock.
func (l *RedisDistributedLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.acquired {
		return true, nil
	}

	ok, err := l.client.SetNX(ctx, l.lockKey, l.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return false, nil
	}

	l.acquired = true
	l.startAutoRefresh(ttl)
	return true, nil
}

// Release releases the lock if this owner holds it.
func (l *RedisDistributedLock) Release(ctx context.Context) (bool, error) {
	l.mu.Lock()
	if !l.acquired {
		l.mu.Unlock()
		return true, nil
	}
	l.acquired = false
	stop, stopped := l.stop, l.stopped
	l.stop, l.stopped = nil, nil
	l.mu.Unlock()

	if stop != nil {
		stop()
		<-stopped
	}

	n, err := releaseScript.Run(ctx, l.client, []string{l.lockKey}, l.ownerID).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to release lock: %w", err)
	}
	return n > 0, nil
}

// Refresh extends the TTL of the lock if this owner holds it.
func (l *RedisDistributedLock) Refresh(ctx context.Context, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, l.client, []string{l.lockKey}, l.ownerID, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to refresh lock: %w", err)
	}
	return n > 0, nil
}

// startAutoRefresh refreshes the lock every third of its TTL until Release.
// Callers hold l.mu.
func (l *RedisDistributedLock) startAutoRefresh(ttl time.Duration) {
	interval := ttl / 3
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	l.stop, l.stopped = cancel, stopped

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				ok, err := l.Refresh(refreshCtx, ttl)
				cancel()
				if err != nil {
					logger.Warnf("failed to refresh lock for resource %s: %v", l.resourceID, err)
				} else if !ok {
					logger.Warnf("lost lock for resource %s", l.resourceID)
				}
			}
		}
	}()
}

// RedisDistributedLockManager creates Redis locks.
type RedisDistributedLockManager struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisDistributedLockManager creates a new RedisDistributedLockManager.
func NewRedisDistributedLockManager(client *redis.Client, keyPrefix string) *RedisDistributedLockManager {
	return &RedisDistributedLockManager{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// GetLock returns the lock of resourceID.
func (m *RedisDistributedLockManager) GetLock(resourceID string, ownerID string) DistributedLock {
	return NewRedisDistributedLock(m.client, m.keyPrefix, resourceID, ownerID)
}

// Close does nothing; the Redis client belongs to the caller.
func (m *RedisDistributedLockManager) Close() error {
	return nil
}

// acquireLock polls lock until it is taken or ctx is done.
func acquireLock(ctx context.Context, lock DistributedLock, ttl, retryDelay time.Duration) error {
	for {
		ok, err := lock.Acquire(ctx, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to acquire lock: %w", ctx.Err())
		case <-time.After(retryDelay):
		}
	}
}
