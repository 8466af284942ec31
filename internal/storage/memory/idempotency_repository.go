package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

// idempotencyRepository хранит ключи повторяемых команд учёта.
type idempotencyRepository struct {
	mu      sync.RWMutex
	now     func() time.Time
	records map[string]domain.IdempotencyRecord
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return NewIdempotencyRepositoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewIdempotencyRepositoryWithClock нужен тестам с фиксированным временем.
func NewIdempotencyRepositoryWithClock(now func() time.Time) domain.IdempotencyRepository {
	return &idempotencyRepository{
		now:     now,
		records: make(map[string]domain.IdempotencyRecord),
	}
}

// CreateProcessing занимает ключ. Живой ключ возвращается вместе с ошибкой:
// ErrIdempotencyHashMismatch для чужого тела, ErrIdempotencyKeyAlreadyExists для своего.
func (r *idempotencyRepository) CreateProcessing(_ context.Context, key, requestHash string, expiresAt time.Time) (domain.IdempotencyRecord, error) {
	key, err := normalizeIdempotencyKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	requestHash = strings.TrimSpace(requestHash)
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultIdempotencyTTL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.records[key]; ok && !current.Expired(now) {
		if current.RequestHash != requestHash {
			return copyRecord(current), domain.ErrIdempotencyHashMismatch
		}
		return copyRecord(current), domain.ErrIdempotencyKeyAlreadyExists
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.records[key] = record
	return copyRecord(record), nil
}

func (r *idempotencyRepository) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key, err := normalizeIdempotencyKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(record), nil
}

func (r *idempotencyRepository) MarkDone(_ context.Context, key string, body []byte, code int) error {
	return r.complete(key, domain.IdempotencyStatusDone, body, code)
}

func (r *idempotencyRepository) MarkFailed(_ context.Context, key string, body []byte, code int) error {
	return r.complete(key, domain.IdempotencyStatusFailed, body, code)
}

// DeleteExpired удаляет не больше limit истёкших ключей, самые старые первыми.
func (r *idempotencyRepository) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []domain.IdempotencyRecord
	for _, record := range r.records {
		if record.Expired(before) {
			expired = append(expired, record)
		}
	}
	slices.SortFunc(expired, func(a, b domain.IdempotencyRecord) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, record := range expired {
		delete(r.records, record.Key)
	}
	return len(expired), nil
}

func (r *idempotencyRepository) complete(key string, status domain.IdempotencyStatus, body []byte, code int) error {
	key, err := normalizeIdempotencyKey(key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.ResponseBody = slices.Clone(body)
	record.ResponseCode = code
	record.UpdatedAt = r.now()
	r.records[key] = record
	return nil
}

func normalizeIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrIdempotencyKeyRequired
	}
	return key, nil
}

func copyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.ResponseBody = slices.Clone(src.ResponseBody)
	return dst
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
