package domain

import "errors"

var (
	// ErrInvalidAmount — сумма платежа или доначисления не положительна.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	// ErrAmountOverflow — сумма заказа вышла бы за пределы int64.
	ErrAmountOverflow = errors.New("amount too large")
	// ErrAmountExceedsDebt — адресный платёж больше текущего долга заказа.
	ErrAmountExceedsDebt = errors.New("amount exceeds order debt")
	// ErrNoDebtToPay — у клиента (или у выбранного заказа) нет долга.
	ErrNoDebtToPay = errors.New("no debt to pay")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderBelongsToOtherClient — заказ принадлежит другому клиенту.
	ErrOrderBelongsToOtherClient = errors.New("order belongs to another client")
	// ErrOrderCancelled — операция недопустима для отменённого заказа.
	ErrOrderCancelled = errors.New("order is cancelled")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderNumberTaken — номер заказа уже занят.
	ErrOrderNumberTaken = errors.New("order number already taken")
	// ErrInvalidStatus — неизвестный статус заказа.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrPaymentNotFound возвращается, если платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrInvalidPaymentMethod — способ оплаты вне допустимого списка.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrClientNotFound — клиент не найден.
	ErrClientNotFound = errors.New("client not found")
	// ErrClientRequired — не указан идентификатор клиента.
	ErrClientRequired = errors.New("client_id is required")
	// ErrProductNotFound — товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock — на складе не хватает товара.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrItemsRequired — в заказе нет ни одной позиции.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// ErrItemQtyInvalid — количество позиции меньше единицы.
	ErrItemQtyInvalid = errors.New("item quantity must be at least one")
	// ErrItemPriceInvalid — отрицательная цена позиции.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// ErrLedgerInvariant — нарушен денежный инвариант заказа.
	ErrLedgerInvariant = errors.New("order ledger invariant violated")
	// ErrLockNotAcquired — не удалось захватить блокировку сущности.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrOutboxMessageNotFound — события с таким id нет в outbox.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")

	// Ошибки idempotency-key.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound сообщает, что ошибка относится к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrProductNotFound)
}

// IsValidation сообщает, что запрос отклонён до каких-либо изменений.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrAmountOverflow,
		ErrInvalidStatus,
		ErrInvalidPaymentMethod,
		ErrClientRequired,
		ErrItemsRequired,
		ErrItemQtyInvalid,
		ErrItemPriceInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsPrecondition сообщает, что операция противоречит текущему состоянию учёта.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrAmountExceedsDebt) ||
		errors.Is(err, ErrNoDebtToPay) ||
		errors.Is(err, ErrOrderBelongsToOtherClient) ||
		errors.Is(err, ErrOrderCancelled) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsIdempotencyConflict сообщает, что ключ уже использован.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
