package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

// releaseScript удаляет ключ, только если он всё ещё принадлежит владельцу токена.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker — распределённая блокировка для нескольких экземпляров сервиса.
type RedisLocker struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
	logger     *log.Entry
}

// RedisOption настраивает RedisLocker.
type RedisOption func(*RedisLocker)

// WithTTL задаёт время жизни блокировки на случай падения владельца.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryDelay задаёт паузу между попытками захвата.
func WithRetryDelay(delay time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if delay > 0 {
			l.retryDelay = delay
		}
	}
}

// WithPrefix задаёт префикс ключей.
func WithPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) RedisOption {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisLocker создаёт блокировки поверх Redis.
func NewRedisLocker(client redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client:     client,
		prefix:     "muzbazar:lock:",
		ttl:        10 * time.Second,
		retryDelay: 20 * time.Millisecond,
		logger:     log.New().WithField("component", "redis-lock"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock повторяет SET NX, пока ключ не освободится или не истечёт контекст.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrLockNotAcquired, key, ctx.Err())
		case <-timer.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		res, err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			l.logger.WithError(err).WithField("key", key).Warn("failed to release lock")
			return
		}
		if res == 0 {
			l.logger.WithField("key", key).Warn("lock expired before release")
		}
	}, nil
}

var _ domain.Locker = (*RedisLocker)(nil)
