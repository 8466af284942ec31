package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

const orderColumns = `id, number, client_id, total_sum, paid_sum, debt, status, version, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			order.ID, order.Number, order.ClientID, order.TotalSum, order.PaidSum, order.Debt,
			string(order.Status), order.Version, order.CreatedAt, order.UpdatedAt,
		)
		switch {
		case err == nil:
		case uniqueConstraint(err) == "orders_number_key":
			return domain.ErrOrderNumberTaken
		case isUniqueViolation(err):
			return domain.ErrOrderVersionConflict
		case pgCode(err) == pgForeignKey:
			return domain.ErrClientNotFound
		default:
			return fmt.Errorf("insert order: %w", err)
		}

		for i, item := range order.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (
					order_id, position, product_id, product_name, quantity, price_per_unit, total_price, stock_released
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`,
				order.ID, i, item.ProductID, item.ProductName, item.Quantity, item.PricePerUnit, item.TotalPrice, item.StockReleased,
			); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	orders := []domain.Order{order}
	if err := r.attachItems(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (r *orderRepository) ListByClient(ctx context.Context, clientID string, limit int) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE client_id = $1
		ORDER BY created_at DESC, id DESC
	`
	if limit > 0 {
		return r.list(ctx, query+" LIMIT $2", clientID, limit)
	}
	return r.list(ctx, query, clientID)
}

func (r *orderRepository) ListOutstanding(ctx context.Context, clientID string) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE client_id = $1
		  AND status <> 'cancelled'
		  AND debt > 0
		ORDER BY created_at ASC, id ASC
	`, clientID)
}

func (r *orderRepository) SumDebt(ctx context.Context, clientID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var total int64
	if err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(debt), 0)
		FROM orders
		WHERE client_id = $1
		  AND status <> 'cancelled'
	`, clientID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum client debt: %w", err)
	}
	return total, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		return updateOrderTx(ctx, tx, order)
	})
}

func (r *orderRepository) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems загружает позиции всех заказов одним запросом.
func (r *orderRepository) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	index := make(map[string]int, len(orders))
	for i, order := range orders {
		ids = append(ids, order.ID)
		index[order.ID] = i
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, price_per_unit, total_price, stock_released
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.PricePerUnit, &item.TotalPrice, &item.StockReleased); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order items: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(
		&order.ID, &order.Number, &order.ClientID, &order.TotalSum, &order.PaidSum, &order.Debt,
		&status, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	return order, nil
}

// updateOrderTx сохраняет денежные поля и статус с проверкой версии.
func updateOrderTx(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET total_sum = $1,
		    paid_sum = $2,
		    debt = $3,
		    status = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $6
		  AND version = $7
	`,
		order.TotalSum, order.PaidSum, order.Debt, string(order.Status),
		order.UpdatedAt, order.ID, order.Version,
	)
	if err != nil {
		if pgCode(err) == pgCheckViolation {
			return fmt.Errorf("%w: %v", domain.ErrLedgerInvariant, err)
		}
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return updateReleasedTx(ctx, tx, order)
	}

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, order.ID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrOrderNotFound
	case err != nil:
		return fmt.Errorf("check order exists: %w", err)
	default:
		return domain.ErrOrderVersionConflict
	}
}

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

const paymentColumns = `id, order_id, client_id, amount, method, notes, seller_id, admin_name, created_at`

func (r *paymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	payment, err := scanPayment(r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	return payment, nil
}

func (r *paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

// Record обновляет заказы и вставляет платежи в одной транзакции.
func (r *paymentRepository) Record(ctx context.Context, postings []domain.PaymentPosting) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, posting := range postings {
			if err := updateOrderTx(ctx, tx, posting.Order); err != nil {
				return err
			}
			p := posting.Payment
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO payments (`+paymentColumns+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			`,
				p.ID, p.OrderID, p.ClientID, p.Amount, string(p.Method), p.Notes, p.SellerID, p.AdminName, p.CreatedAt,
			); err != nil {
				if isUniqueViolation(err) {
					return domain.ErrOrderVersionConflict
				}
				return fmt.Errorf("insert payment: %w", err)
			}
		}
		return nil
	})
}

// Revoke удаляет платёж и сохраняет заказ в одной транзакции.
func (r *paymentRepository) Revoke(ctx context.Context, order domain.Order, paymentID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE id = $1 AND order_id = $2`, paymentID, order.ID)
		if err != nil {
			return fmt.Errorf("delete payment: %w", err)
		}
		if err := checkAffected(res, domain.ErrPaymentNotFound); err != nil {
			return err
		}
		return updateOrderTx(ctx, tx, order)
	})
}

func scanPayment(row rowScanner) (domain.Payment, error) {
	var (
		payment domain.Payment
		method  string
	)
	if err := row.Scan(
		&payment.ID, &payment.OrderID, &payment.ClientID, &payment.Amount, &method,
		&payment.Notes, &payment.SellerID, &payment.AdminName, &payment.CreatedAt,
	); err != nil {
		return domain.Payment{}, err
	}
	payment.Method = domain.PaymentMethod(method)
	return payment, nil
}

var (
	_ domain.OrderRepository   = (*orderRepository)(nil)
	_ domain.PaymentRepository = (*paymentRepository)(nil)
)

// updateReleasedTx переписывает флаг stock_released позиций одним запросом.
func updateReleasedTx(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	if len(order.Items) == 0 {
		return nil
	}
	released := make([]int64, 0, len(order.Items))
	for i, item := range order.Items {
		if item.StockReleased {
			released = append(released, int64(i))
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE order_items
		SET stock_released = (position = ANY($2))
		WHERE order_id = $1
		  AND stock_released <> (position = ANY($2))
	`, order.ID, released); err != nil {
		return fmt.Errorf("update order items: %w", err)
	}
	return nil
}
