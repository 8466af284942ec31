package domain

import (
	"slices"
	"time"
)

// IdempotencyStatus — стадия обработки команды с idempotency-key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	IdempotencyStatusFailed     IdempotencyStatus = "failed"
)

var idempotencyStatuses = []IdempotencyStatus{
	IdempotencyStatusProcessing,
	IdempotencyStatusDone,
	IdempotencyStatusFailed,
}

// Valid сообщает, что статус известен хранилищу.
func (s IdempotencyStatus) Valid() bool {
	return slices.Contains(idempotencyStatuses, s)
}

// Finished сообщает, что результат команды уже сохранён.
func (s IdempotencyStatus) Finished() bool {
	return s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// IdempotencyRecord — сохранённый результат платежа или другой записи
// в учёт. ResponseCode хранит HTTP-статус или gRPC-код, в зависимости
// от того, каким транспортом пришла команда.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	ResponseCode int
	Status       IdempotencyStatus
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired сообщает, что ключ можно занять заново.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
