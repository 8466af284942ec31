package integration

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/muzbazar/internal/service/grpc"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/idempotency"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/inventory"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/ledger"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/outbox"
	"github.com/vladislavdragonenkov/muzbazar/internal/storage/memory"
	ledgerv1 "github.com/vladislavdragonenkov/muzbazar/proto/ledger/v1"
)

const (
	clientID  = "client-aziz"
	guitarID  = "guitar-yamaha-c40"
	stringsID = "strings-daddario"
)

// capturePublisher складывает опубликованные события в память.
type capturePublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *capturePublisher) Publish(event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		result = append(result, ev.EventType)
	}
	return result
}

// OrderLifecycleTestSuite прогоняет заказ от оформления до отмены через gRPC.
type OrderLifecycleTestSuite struct {
	suite.Suite

	client    ledgerv1.LedgerServiceClient
	products  domain.ProductRepository
	outbox    *memory.OutboxRepository
	published *capturePublisher
	worker    *outbox.Worker

	stop func()
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	// Часы идут вперёд на секунду при каждом вызове: порядок FIFO детерминирован.
	var tick atomic.Int64
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Second)
	}

	store := memory.NewLedgerStore()
	suite.products = memory.NewProductRepository()
	suite.outbox = memory.NewOutboxRepository()

	svc := ledger.NewService(ledger.Deps{
		Orders:   store.Orders(),
		Payments: store.Payments(),
		Clients:  memory.NewClientRepository(),
		Products: suite.products,
		Stock:    inventory.NewService(suite.products, logger),
		Outbox:   suite.outbox,
		Timeline: memory.NewTimelineRepository(),
	}, ledger.WithLogger(logger), ledger.WithClock(clock))

	ctx := context.Background()
	_, err := svc.RegisterClient(ctx, domain.Client{ID: clientID, Name: "Aziz", Role: domain.ClientRoleClient})
	suite.Require().NoError(err)
	_, err = svc.RegisterProduct(ctx, domain.Product{ID: guitarID, Name: "Yamaha C40", SellPrice: 1000, Stock: 10})
	suite.Require().NoError(err)
	_, err = svc.RegisterProduct(ctx, domain.Product{ID: stringsID, Name: "D'Addario EJ27N", SellPrice: 250, Stock: 40})
	suite.Require().NoError(err)

	suite.published = &capturePublisher{}
	suite.worker = outbox.NewWorker(suite.outbox, suite.published,
		outbox.WithLogger(logger),
		outbox.WithBatchSize(100),
		outbox.WithMaxAttempts(1),
	)

	keeper := idempotency.NewKeeper(memory.NewIdempotencyRepository())
	server := grpc.NewServer()
	ledgerv1.RegisterLedgerServiceServer(server, grpcsvc.NewLedgerService(svc, keeper, logger))

	listener := bufconn.Listen(1024 * 1024)
	go func() {
		_ = server.Serve(listener)
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	//nolint:staticcheck // grpc.Dial is required for bufconn testing
	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		ledgerv1.DialOption(),
	)
	suite.Require().NoError(err)

	suite.client = ledgerv1.NewLedgerServiceClient(conn)
	suite.stop = func() {
		_ = conn.Close()
		server.Stop()
	}
}

func (suite *OrderLifecycleTestSuite) TearDownTest() {
	if suite.stop != nil {
		suite.stop()
	}
}

func (suite *OrderLifecycleTestSuite) writeCtx() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "idempotency-key", uuid.NewString())
}

func (suite *OrderLifecycleTestSuite) createOrder(items ...*ledgerv1.CreateOrderItem) *ledgerv1.Order {
	resp, err := suite.client.CreateOrder(suite.writeCtx(), &ledgerv1.CreateOrderRequest{
		ClientID: clientID,
		Items:    items,
	})
	suite.Require().NoError(err)
	return resp.GetOrder()
}

func (suite *OrderLifecycleTestSuite) summary() *ledgerv1.GetClientSummaryResponse {
	resp, err := suite.client.GetClientSummary(context.Background(), &ledgerv1.GetClientSummaryRequest{ClientID: clientID})
	suite.Require().NoError(err)
	return resp
}

func (suite *OrderLifecycleTestSuite) stock(productID string) int64 {
	product, err := suite.products.Get(context.Background(), productID)
	suite.Require().NoError(err)
	return product.Stock
}

func (suite *OrderLifecycleTestSuite) TestAutomaticPaymentCoversOrdersOldestFirst() {
	ctx := context.Background()

	first := suite.createOrder(&ledgerv1.CreateOrderItem{ProductID: guitarID, Quantity: 2})
	second := suite.createOrder(&ledgerv1.CreateOrderItem{ProductID: stringsID, Quantity: 4})
	suite.Require().Equal(int64(2000), first.GetDebt())
	suite.Require().Equal(int64(1000), second.GetDebt())
	suite.Require().Equal(int64(8), suite.stock(guitarID))
	suite.Require().Equal(int64(36), suite.stock(stringsID))
	suite.Require().Equal(int64(3000), suite.summary().GetClient().TotalDebt)

	paid, err := suite.client.ApplyPayment(suite.writeCtx(), &ledgerv1.ApplyPaymentRequest{
		ClientID: clientID,
		Amount:   2500,
		Method:   "cash",
	})
	suite.Require().NoError(err)
	suite.Require().Equal(int64(2500), paid.Applied)
	suite.Require().Zero(paid.Unapplied)
	suite.Require().Equal(int64(500), paid.TotalDebt)
	suite.Require().True(paid.TotalDebtSynced)
	suite.Require().Len(paid.Orders, 2)
	suite.Require().Equal(first.GetID(), paid.Orders[0].GetID())
	suite.Require().Zero(paid.Orders[0].GetDebt())
	suite.Require().Equal(int64(500), paid.Orders[1].GetDebt())

	// Переплата гасит остаток, лишнее не зачисляется.
	rest, err := suite.client.ApplyPayment(suite.writeCtx(), &ledgerv1.ApplyPaymentRequest{
		ClientID: clientID,
		Amount:   800,
	})
	suite.Require().NoError(err)
	suite.Require().Equal(int64(500), rest.Applied)
	suite.Require().Equal(int64(300), rest.Unapplied)
	suite.Require().Zero(rest.TotalDebt)

	_, err = suite.client.ApplyPayment(suite.writeCtx(), &ledgerv1.ApplyPaymentRequest{ClientID: clientID, Amount: 100})
	suite.Require().Equal(codes.FailedPrecondition, status.Code(err))

	summary := suite.summary()
	suite.Require().Zero(summary.GetClient().TotalDebt)
	suite.Require().Zero(summary.OrdersDebt)
	suite.Require().Empty(summary.Outstanding)

	got, err := suite.client.GetOrder(ctx, &ledgerv1.GetOrderRequest{OrderID: second.GetID()})
	suite.Require().NoError(err)
	suite.Require().Len(got.Payments, 2)
	suite.Require().Equal(int64(1000), got.GetOrder().GetPaidSum())

	audit, err := suite.client.AuditOrder(ctx, &ledgerv1.AuditOrderRequest{OrderID: second.GetID()})
	suite.Require().NoError(err)
	suite.Require().Zero(audit.Drift)
	suite.Require().Equal(int32(2), audit.Payments)
}

func (suite *OrderLifecycleTestSuite) TestRetriedPaymentIsAppliedOnce() {
	order := suite.createOrder(&ledgerv1.CreateOrderItem{ProductID: guitarID, Quantity: 3})

	ctx := metadata.AppendToOutgoingContext(context.Background(), "idempotency-key", "pay-retry-1")
	req := &ledgerv1.ApplyPaymentRequest{ClientID: clientID, OrderID: order.GetID(), Amount: 1200}

	first, err := suite.client.ApplyPayment(ctx, req)
	suite.Require().NoError(err)
	second, err := suite.client.ApplyPayment(ctx, req)
	suite.Require().NoError(err)
	suite.Require().Equal(first.Payments[0].ID, second.Payments[0].ID)

	got, err := suite.client.GetOrder(context.Background(), &ledgerv1.GetOrderRequest{OrderID: order.GetID()})
	suite.Require().NoError(err)
	suite.Require().Len(got.Payments, 1)
	suite.Require().Equal(int64(1800), got.GetOrder().GetDebt())

	// Тот же ключ с другим телом отклоняется.
	_, err = suite.client.ApplyPayment(ctx, &ledgerv1.ApplyPaymentRequest{ClientID: clientID, OrderID: order.GetID(), Amount: 100})
	suite.Require().Equal(codes.AlreadyExists, status.Code(err))
}

func (suite *OrderLifecycleTestSuite) TestDeletePaymentRestoresDebt() {
	order := suite.createOrder(&ledgerv1.CreateOrderItem{ProductID: stringsID, Quantity: 8})

	paid, err := suite.client.ApplyPayment(suite.writeCtx(), &ledgerv1.ApplyPaymentRequest{
		ClientID: clientID,
		OrderID:  order.GetID(),
		Amount:   2000,
	})
	suite.Require().NoError(err)
	suite.Require().Zero(paid.TotalDebt)

	deleted, err := suite.client.DeletePayment(context.Background(), &ledgerv1.DeletePaymentRequest{PaymentID: paid.Payments[0].ID})
	suite.Require().NoError(err)
	suite.Require().Equal(int64(2000), deleted.GetOrder().GetDebt())
	suite.Require().Zero(deleted.GetOrder().GetPaidSum())
	suite.Require().Equal(int64(2000), suite.summary().GetClient().TotalDebt)

	_, err = suite.client.DeletePayment(context.Background(), &ledgerv1.DeletePaymentRequest{PaymentID: paid.Payments[0].ID})
	suite.Require().Equal(codes.NotFound, status.Code(err))
}

func (suite *OrderLifecycleTestSuite) TestCancellationReturnsStockAndWritesOffDebt() {
	ctx := context.Background()
	order := suite.createOrder(
		&ledgerv1.CreateOrderItem{ProductID: guitarID, Quantity: 1},
		&ledgerv1.CreateOrderItem{ProductID: stringsID, Quantity: 2},
	)
	suite.Require().Equal(int64(1500), order.GetDebt())

	_, err := suite.client.IncreaseDebt(suite.writeCtx(), &ledgerv1.IncreaseDebtRequest{
		OrderID: order.GetID(),
		Amount:  300,
		Reason:  "доставка",
	})
	suite.Require().NoError(err)
	suite.Require().Equal(int64(1800), suite.summary().GetClient().TotalDebt)

	cancelled, err := suite.client.SetOrderStatus(ctx, &ledgerv1.SetOrderStatusRequest{
		OrderID: order.GetID(),
		Status:  string(domain.OrderStatusCancelled),
	})
	suite.Require().NoError(err)
	suite.Require().Equal(string(domain.OrderStatusPending), cancelled.PreviousStatus)
	suite.Require().Zero(cancelled.GetOrder().GetDebt())
	suite.Require().Len(cancelled.Stock, 2)
	suite.Require().Equal(int64(10), suite.stock(guitarID))
	suite.Require().Equal(int64(40), suite.stock(stringsID))
	suite.Require().Zero(suite.summary().GetClient().TotalDebt)

	_, err = suite.client.IncreaseDebt(suite.writeCtx(), &ledgerv1.IncreaseDebtRequest{OrderID: order.GetID(), Amount: 100})
	suite.Require().Equal(codes.FailedPrecondition, status.Code(err))

	// Повторная отмена не двигает остатки.
	again, err := suite.client.SetOrderStatus(ctx, &ledgerv1.SetOrderStatusRequest{
		OrderID: order.GetID(),
		Status:  string(domain.OrderStatusCancelled),
	})
	suite.Require().NoError(err)
	suite.Require().Empty(again.Stock)
	suite.Require().Equal(int64(10), suite.stock(guitarID))

	restored, err := suite.client.SetOrderStatus(ctx, &ledgerv1.SetOrderStatusRequest{
		OrderID: order.GetID(),
		Status:  string(domain.OrderStatusConfirmed),
	})
	suite.Require().NoError(err)
	suite.Require().Equal(int64(1800), restored.GetOrder().GetDebt())
	suite.Require().Equal(int64(9), suite.stock(guitarID))
	suite.Require().Equal(int64(38), suite.stock(stringsID))
	suite.Require().Equal(int64(1800), suite.summary().GetClient().TotalDebt)
}

func (suite *OrderLifecycleTestSuite) TestInsufficientStockRejectsOrder() {
	_, err := suite.client.CreateOrder(suite.writeCtx(), &ledgerv1.CreateOrderRequest{
		ClientID: clientID,
		Items: []*ledgerv1.CreateOrderItem{
			{ProductID: stringsID, Quantity: 5},
			{ProductID: guitarID, Quantity: 11},
		},
	})
	suite.Require().Equal(codes.FailedPrecondition, status.Code(err))

	// Частично списанные позиции возвращаются.
	suite.Require().Equal(int64(40), suite.stock(stringsID))
	suite.Require().Equal(int64(10), suite.stock(guitarID))

	orders, err := suite.client.ListClientOrders(context.Background(), &ledgerv1.ListClientOrdersRequest{ClientID: clientID})
	suite.Require().NoError(err)
	suite.Require().Empty(orders.Orders)
}

func (suite *OrderLifecycleTestSuite) TestEventsReachPublisherThroughOutbox() {
	order := suite.createOrder(&ledgerv1.CreateOrderItem{ProductID: guitarID, Quantity: 1})
	_, err := suite.client.ApplyPayment(suite.writeCtx(), &ledgerv1.ApplyPaymentRequest{
		ClientID: clientID,
		OrderID:  order.GetID(),
		Amount:   1000,
	})
	suite.Require().NoError(err)

	result := suite.worker.ProcessOnce(context.Background())
	suite.Require().Zero(result.Failed)
	suite.Require().Positive(result.Sent)
	suite.Require().Empty(suite.outbox.AllPending())

	types := suite.published.types()
	suite.Require().Contains(types, domain.EventOrderCreated)
	suite.Require().Contains(types, domain.EventPaymentApplied)

	got, err := suite.client.GetOrder(context.Background(), &ledgerv1.GetOrderRequest{OrderID: order.GetID()})
	suite.Require().NoError(err)
	timeline := make([]string, 0, len(got.Timeline))
	for _, ev := range got.Timeline {
		timeline = append(timeline, ev.Type)
	}
	suite.Require().Contains(timeline, domain.EventOrderCreated)
	suite.Require().Contains(timeline, domain.EventPaymentApplied)
}

func TestOrderLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OrderLifecycleTestSuite))
}

func TestConcurrentPaymentsKeepTotalsConsistent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := new(OrderLifecycleTestSuite)
	s.SetT(t)
	s.SetupTest()
	t.Cleanup(s.TearDownTest)

	for range 4 {
		s.createOrder(&ledgerv1.CreateOrderItem{ProductID: guitarID, Quantity: 2})
	}

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.client.ApplyPayment(s.writeCtx(), &ledgerv1.ApplyPaymentRequest{ClientID: clientID, Amount: 250})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	summary := s.summary()
	require.Equal(t, int64(8000-workers*250), summary.GetClient().TotalDebt)
	require.Equal(t, summary.GetClient().TotalDebt, summary.OrdersDebt)
}
