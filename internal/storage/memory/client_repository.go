package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
)

type clientRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Client
}

// NewClientRepository создаёт in-memory реализацию ClientRepository.
func NewClientRepository() domain.ClientRepository {
	return &clientRepositoryInMemory{items: make(map[string]domain.Client)}
}

// Create добавляет клиента или перезаписывает его профиль (без TotalDebt).
func (r *clientRepositoryInMemory) Create(_ context.Context, client domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.items[client.ID]; ok {
		client.TotalDebt = existing.TotalDebt
		client.CreatedAt = existing.CreatedAt
	} else if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now
	r.items[client.ID] = client
	return nil
}

func (r *clientRepositoryInMemory) Get(_ context.Context, id string) (domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.items[id]
	if !ok {
		return domain.Client{}, domain.ErrClientNotFound
	}
	return client, nil
}

func (r *clientRepositoryInMemory) UpdateTotalDebt(_ context.Context, id string, totalDebt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.items[id]
	if !ok {
		return domain.ErrClientNotFound
	}
	client.TotalDebt = totalDebt
	client.UpdatedAt = time.Now().UTC()
	r.items[id] = client
	return nil
}

func (r *clientRepositoryInMemory) ListIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *clientRepositoryInMemory) ListDebtors(_ context.Context) ([]domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Client, 0)
	for _, client := range r.items {
		if client.TotalDebt > 0 {
			result = append(result, client)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ domain.ClientRepository = (*clientRepositoryInMemory)(nil)
