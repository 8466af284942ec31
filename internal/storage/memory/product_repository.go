package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

type productRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Product
}

// NewProductRepository создаёт in-memory реализацию ProductRepository.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{items: make(map[string]domain.Product)}
}

func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product.UpdatedAt = time.Now().UTC()
	r.items[product.ID] = product
	return nil
}

func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// AdjustStock меняет остаток, не допуская отрицательного значения.
func (r *productRepositoryInMemory) AdjustStock(_ context.Context, id string, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	if product.Stock+delta < 0 {
		return product.Stock, domain.ErrInsufficientStock
	}
	product.Stock += delta
	product.UpdatedAt = time.Now().UTC()
	r.items[id] = product
	return product.Stock, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
