// Package locker provides short-lived exclusive locks keyed by string. Redis backs them in
// production so every API and CLI process sees the same lock; LocalLocker covers tests and
// single-process runs.
package locker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another holder owns the key.
var ErrLocked = errors.New("resource is locked by another operation")

// Locker acquires a lock on key for at most ttl. The returned release func is safe to
// call more than once.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

const keyPrefix = "lock:"

// releaseScript deletes the key only if it still holds our token, so an expired lock
// taken over by someone else is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	Rdb *redis.Client
}

// NewRedisLocker parses a redis:// URL the same way the health marker does.
func NewRedisLocker(url string) (*RedisLocker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisLocker{Rdb: redis.NewClient(opt)}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	ok, err := l.Rdb.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = releaseScript.Run(context.Background(), l.Rdb, []string{keyPrefix + key}, token).Err()
		})
	}, nil
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]string
	until map[string]time.Time
	now   func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held:  map[string]string{},
		until: map[string]time.Time{},
		now:   time.Now,
	}
}

func (l *LocalLocker) Lock(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok && l.now().Before(l.until[key]) {
		return nil, ErrLocked
	}
	token := uuid.New().String()
	l.held[key] = token
	l.until[key] = l.now().Add(ttl)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == token {
				delete(l.held, key)
				delete(l.until, key)
			}
		})
	}, nil
}
