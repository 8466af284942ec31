package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/inventory"
	"github.com/vladislavdragonenkov/muzbazar/internal/storage/memory"
)

const unitProduct = "p-unit"

type fixture struct {
	svc      *Service
	store    *memory.LedgerStore
	clients  domain.ClientRepository
	products domain.ProductRepository
	outbox   *memory.OutboxRepository
	timeline domain.TimelineRepository
}

// steppingClock возвращает время, растущее на секунду при каждом вызове,
// чтобы порядок создания заказов был детерминированным.
func steppingClock() func() time.Time {
	var (
		mu  sync.Mutex
		cur = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		store:    memory.NewLedgerStore(),
		clients:  memory.NewClientRepository(),
		products: memory.NewProductRepository(),
		outbox:   memory.NewOutboxRepository(),
		timeline: memory.NewTimelineRepository(),
	}

	base := []Option{WithClock(steppingClock())}
	f.svc = NewService(Deps{
		Orders:   f.store.Orders(),
		Payments: f.store.Payments(),
		Clients:  f.clients,
		Products: f.products,
		Stock:    inventory.NewService(f.products, nil),
		Outbox:   f.outbox,
		Timeline: f.timeline,
	}, append(base, opts...)...)

	f.addProduct(t, unitProduct, 1, 1_000_000_000)
	return f
}

func (f *fixture) addClient(t *testing.T, id string) {
	t.Helper()
	if err := f.clients.Create(context.Background(), domain.Client{ID: id, Name: id, Role: domain.ClientRoleClient}); err != nil {
		t.Fatalf("create client: %v", err)
	}
}

func (f *fixture) addProduct(t *testing.T, id string, price, stock int64) {
	t.Helper()
	if err := f.products.Create(context.Background(), domain.Product{ID: id, Name: id, SellPrice: price, Stock: stock}); err != nil {
		t.Fatalf("create product: %v", err)
	}
}

// order создаёт заказ на сумму total из единичного товара.
func (f *fixture) order(t *testing.T, clientID string, total int64) domain.Order {
	t.Helper()
	order, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		ClientID: clientID,
		Items:    []ItemRequest{{ProductID: unitProduct, Quantity: total}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func (f *fixture) get(t *testing.T, orderID string) domain.Order {
	t.Helper()
	order, err := f.store.Orders().Get(context.Background(), orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	return order
}

func (f *fixture) totalDebt(t *testing.T, clientID string) int64 {
	t.Helper()
	client, err := f.clients.Get(context.Background(), clientID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	return client.TotalDebt
}

func (f *fixture) stock(t *testing.T, productID string) int64 {
	t.Helper()
	product, err := f.products.Get(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return product.Stock
}

// assertLedger проверяет инварианты всех заказов клиента и его агрегат.
func (f *fixture) assertLedger(t *testing.T, clientID string) {
	t.Helper()

	orders, err := f.store.Orders().ListByClient(context.Background(), clientID, 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	var sum int64
	for _, order := range orders {
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			t.Fatalf("order %s invariants: %v", order.ID, errs)
		}
		if !order.Status.IsCancelled() {
			sum += order.Debt
		}
	}
	if got := f.totalDebt(t, clientID); got != sum {
		t.Fatalf("client %s total debt %d, orders sum %d", clientID, got, sum)
	}
}

func (f *fixture) countEvents(eventType string) int {
	n := 0
	for _, et := range f.outbox.EventTypes() {
		if et == eventType {
			n++
		}
	}
	return n
}
