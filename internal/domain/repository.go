package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. ErrOrderNumberTaken, если номер уже занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByClient возвращает заказы клиента, новые первыми; limit <= 0 без ограничения.
	ListByClient(ctx context.Context, clientID string, limit int) ([]Order, error)
	// ListOutstanding возвращает неотменённые заказы клиента с долгом, старые первыми.
	ListOutstanding(ctx context.Context, clientID string) ([]Order, error)
	// SumDebt суммирует долг по неотменённым заказам клиента.
	SumDebt(ctx context.Context, clientID string) (int64, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// PaymentRepository хранит платежи. Изменения платежей всегда сохраняются
// в одной транзакции с изменением заказа.
type PaymentRepository interface {
	Get(ctx context.Context, id string) (Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
	// Record сохраняет заказы (с проверкой версии) и создаёт платежи: всё или ничего.
	Record(ctx context.Context, postings []PaymentPosting) error
	// Revoke сохраняет заказ (с проверкой версии) и удаляет платёж: всё или ничего.
	Revoke(ctx context.Context, order Order, paymentID string) error
}

// ClientRepository хранит клиентов и их агрегированный долг.
type ClientRepository interface {
	Create(ctx context.Context, client Client) error
	Get(ctx context.Context, id string) (Client, error)
	UpdateTotalDebt(ctx context.Context, id string, totalDebt int64) error
	ListIDs(ctx context.Context) ([]string, error)
	// ListDebtors возвращает клиентов с TotalDebt > 0.
	ListDebtors(ctx context.Context) ([]Client, error)
}

// ProductRepository хранит товары и их остатки.
type ProductRepository interface {
	Create(ctx context.Context, product Product) error
	Get(ctx context.Context, id string) (Product, error)
	// AdjustStock атомарно меняет остаток на delta. Если остаток стал бы
	// отрицательным, возвращает ErrInsufficientStock и ничего не меняет.
	AdjustStock(ctx context.Context, id string, delta int64) (int64, error)
}
