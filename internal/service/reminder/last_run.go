package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLastRunKey — ключ Redis с временем последней рассылки.
const DefaultLastRunKey = "muzbazar:reminder:last_run"

// LastRunStore хранит время последней рассылки.
type LastRunStore interface {
	LastRun(ctx context.Context) (time.Time, bool, error)
	SetLastRun(ctx context.Context, at time.Time) error
}

// RedisLastRun хранит отметку в Redis, общую для всех экземпляров сервиса.
type RedisLastRun struct {
	client redis.UniversalClient
	key    string
}

// NewRedisLastRun создаёт хранилище отметки; пустой key заменяется DefaultLastRunKey.
func NewRedisLastRun(client redis.UniversalClient, key string) *RedisLastRun {
	if key == "" {
		key = DefaultLastRunKey
	}
	return &RedisLastRun{client: client, key: key}
}

// LastRun возвращает время последней рассылки; false, если рассылок не было.
func (s *RedisLastRun) LastRun(ctx context.Context) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read reminder last run: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse reminder last run %q: %w", raw, err)
	}
	return at, true, nil
}

// SetLastRun сохраняет время рассылки.
func (s *RedisLastRun) SetLastRun(ctx context.Context, at time.Time) error {
	if err := s.client.Set(ctx, s.key, at.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("store reminder last run: %w", err)
	}
	return nil
}

// MemoryLastRun хранит отметку в памяти процесса.
type MemoryLastRun struct {
	mu  sync.Mutex
	at  time.Time
	set bool
}

// LastRun возвращает сохранённую отметку.
func (s *MemoryLastRun) LastRun(context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at, s.set, nil
}

// SetLastRun сохраняет отметку.
func (s *MemoryLastRun) SetLastRun(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.at, s.set = at, true
	return nil
}
