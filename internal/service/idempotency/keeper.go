// Package idempotency хранит результаты команд по idempotency-key:
// повтор команды с тем же ключом возвращает сохранённый ответ, а не
// применяет платёж второй раз.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

// DefaultTTL — срок хранения ответа по ключу.
const DefaultTTL = 24 * time.Hour

// ErrInProgress — команда с тем же ключом ещё выполняется.
var ErrInProgress = errors.New("request with the same idempotency key is already processing")

// Replay — сохранённый результат предыдущего выполнения.
type Replay struct {
	Body   []byte
	Status int
	Failed bool
}

// Keeper занимает ключи и сохраняет результаты команд.
type Keeper struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// KeeperOption настраивает Keeper.
type KeeperOption func(*Keeper)

// WithTTL задаёт срок хранения ключа.
func WithTTL(ttl time.Duration) KeeperOption {
	return func(k *Keeper) {
		if ttl > 0 {
			k.ttl = ttl
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) KeeperOption {
	return func(k *Keeper) {
		if now != nil {
			k.now = now
		}
	}
}

// WithKeeperLogger задаёт логгер.
func WithKeeperLogger(logger *log.Entry) KeeperOption {
	return func(k *Keeper) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// NewKeeper создаёт Keeper. С nil-репозиторием возвращает nil:
// вызывающий код в этом случае выполняет команды без ключей.
func NewKeeper(repo domain.IdempotencyRepository, opts ...KeeperOption) *Keeper {
	if repo == nil {
		return nil
	}
	k := &Keeper{
		repo:   repo,
		ttl:    DefaultTTL,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.New().WithField("component", "idempotency"),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Begin занимает ключ. Если команда с этим ключом уже завершилась,
// возвращает её результат. Ключ с другим хэшем запроса даёт
// domain.ErrIdempotencyHashMismatch, незавершённая команда даёт ErrInProgress.
func (k *Keeper) Begin(ctx context.Context, key, requestHash string) (*Replay, error) {
	record, err := k.repo.CreateProcessing(ctx, key, requestHash, k.now().Add(k.ttl))
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
	default:
		return nil, fmt.Errorf("claim idempotency key: %w", err)
	}

	switch record.Status {
	case domain.IdempotencyStatusDone:
		return &Replay{Body: record.ResponseBody, Status: record.ResponseCode}, nil
	case domain.IdempotencyStatusFailed:
		return &Replay{Body: record.ResponseBody, Status: record.ResponseCode, Failed: true}, nil
	case domain.IdempotencyStatusProcessing:
		return nil, ErrInProgress
	default:
		return nil, fmt.Errorf("unknown idempotency record status %q", record.Status)
	}
}

// Complete сохраняет успешный ответ.
func (k *Keeper) Complete(ctx context.Context, key string, body []byte, status int) {
	if err := k.repo.MarkDone(context.WithoutCancel(ctx), key, body, status); err != nil {
		k.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent success response")
	}
}

// Fail сохраняет ответ об ошибке.
func (k *Keeper) Fail(ctx context.Context, key string, body []byte, status int) {
	if err := k.repo.MarkFailed(context.WithoutCancel(ctx), key, body, status); err != nil {
		k.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency failure response")
	}
}

// HashRequest возвращает sha256 от операции и JSON-представления запроса.
func HashRequest(operation string, req any) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	payload := make([]byte, 0, len(operation)+1+len(data))
	payload = append(payload, operation...)
	payload = append(payload, ':')
	payload = append(payload, data...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// NormalizeKey обрезает пробелы; пустой ключ — ошибка.
func NormalizeKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", domain.ErrIdempotencyKeyRequired
	}
	return key, nil
}
