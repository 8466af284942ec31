package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

type clientRepository struct {
	db *sql.DB
}

// NewClientRepository создаёт PostgreSQL-реализацию ClientRepository.
func NewClientRepository(store *Store) domain.ClientRepository {
	return &clientRepository{db: store.DB()}
}

const clientColumns = `id, name, phone, telegram_id, role, total_debt, created_at, updated_at`

// Create добавляет клиента или обновляет профиль, не трогая total_debt.
func (r *clientRepository) Create(ctx context.Context, client domain.Client) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1,$2,$3,$4,$5,0,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    phone = EXCLUDED.phone,
		    telegram_id = EXCLUDED.telegram_id,
		    role = EXCLUDED.role,
		    updated_at = EXCLUDED.updated_at
	`,
		client.ID, client.Name, client.Phone, client.TelegramID, string(client.Role), client.CreatedAt, now,
	); err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}

func (r *clientRepository) Get(ctx context.Context, id string) (domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	client, err := scanClient(r.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Client{}, domain.ErrClientNotFound
		}
		return domain.Client{}, fmt.Errorf("select client: %w", err)
	}
	return client, nil
}

func (r *clientRepository) UpdateTotalDebt(ctx context.Context, id string, totalDebt int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE clients
		SET total_debt = $1,
		    updated_at = $2
		WHERE id = $3
	`, totalDebt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update client total debt: %w", err)
	}
	return checkAffected(res, domain.ErrClientNotFound)
}

func (r *clientRepository) ListIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM clients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list client ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan client id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client ids: %w", err)
	}
	return ids, nil
}

func (r *clientRepository) ListDebtors(ctx context.Context) ([]domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE total_debt > 0
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list debtors: %w", err)
	}
	defer rows.Close()

	clients := make([]domain.Client, 0)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debtor: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate debtors: %w", err)
	}
	return clients, nil
}

func scanClient(row rowScanner) (domain.Client, error) {
	var (
		client domain.Client
		role   string
	)
	if err := row.Scan(
		&client.ID, &client.Name, &client.Phone, &client.TelegramID, &role,
		&client.TotalDebt, &client.CreatedAt, &client.UpdatedAt,
	); err != nil {
		return domain.Client{}, err
	}
	client.Role = domain.ClientRole(role)
	return client, nil
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, stock, min_stock, sell_price, cost_price, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    stock = EXCLUDED.stock,
		    min_stock = EXCLUDED.min_stock,
		    sell_price = EXCLUDED.sell_price,
		    cost_price = EXCLUDED.cost_price,
		    updated_at = EXCLUDED.updated_at
	`,
		product.ID, product.Name, product.Stock, product.MinStock, product.SellPrice, product.CostPrice, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var product domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, stock, min_stock, sell_price, cost_price, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID, &product.Name, &product.Stock, &product.MinStock,
		&product.SellPrice, &product.CostPrice, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// AdjustStock меняет остаток одним условным UPDATE: отрицательным он не станет.
func (r *productRepository) AdjustStock(ctx context.Context, id string, delta int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var stock int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $1,
		    updated_at = $2
		WHERE id = $3
		  AND stock + $1 >= 0
		RETURNING stock
	`, delta, time.Now().UTC(), id).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("adjust stock: %w", err)
	}

	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return 0, getErr
	}
	return current.Stock, domain.ErrInsufficientStock
}

var (
	_ domain.ClientRepository  = (*clientRepository)(nil)
	_ domain.ProductRepository = (*productRepository)(nil)
)
