// Package lock сериализует изменения отдельных заказов и клиентов.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedLocker — блокировки по ключу внутри одного процесса.
type KeyedLocker struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

// NewKeyedLocker создаёт пустой набор блокировок.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{entries: make(map[string]*keyedEntry)}
}

// Lock ждёт освобождения ключа или отмены контекста.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrLockNotAcquired, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.release(key, entry)
		})
	}, nil
}

func (l *KeyedLocker) release(key string, entry *keyedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

// Size возвращает количество ключей, которые сейчас удерживаются или ожидаются.
func (l *KeyedLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// OrderKey и ClientKey формируют ключи блокировок.
func OrderKey(orderID string) string   { return "order:" + orderID }
func ClientKey(clientID string) string { return "client:" + clientID }

var _ domain.Locker = (*KeyedLocker)(nil)
