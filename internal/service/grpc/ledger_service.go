package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/idempotency"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/ledger"
	ledgerv1 "github.com/vladislavdragonenkov/muzbazar/proto/ledger/v1"
)

// Ledger — операции учёта, которые сервис публикует через gRPC.
type Ledger interface {
	ApplyPayment(ctx context.Context, req ledger.PaymentRequest) (ledger.PaymentResult, error)
	DeletePayment(ctx context.Context, paymentID string) (domain.Order, error)
	IncreaseDebt(ctx context.Context, orderID string, amount int64, reason string) (domain.Order, error)
	TransitionStatus(ctx context.Context, orderID string, next domain.OrderStatus) (ledger.TransitionResult, error)
	CreateOrder(ctx context.Context, req ledger.CreateOrderRequest) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListClientOrders(ctx context.Context, clientID string, limit int) ([]domain.Order, error)
	ListOrderPayments(ctx context.Context, orderID string) ([]domain.Payment, error)
	OrderTimeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
	ClientSummary(ctx context.Context, clientID string) (ledger.ClientSummary, error)
	ResyncClientDebt(ctx context.Context, clientID string) (int64, error)
	AuditOrder(ctx context.Context, orderID string) (ledger.OrderAudit, error)
}

// LedgerService реализует gRPC API поверх сервиса учёта.
type LedgerService struct {
	ledgerv1.UnimplementedLedgerServiceServer

	ledger Ledger
	keeper *idempotency.Keeper
	logger *log.Entry
}

const (
	defaultListOrdersLimit = 100
	maxListOrdersLimit     = 1000
)

// NewLedgerService конструирует сервис. keeper может быть nil: тогда
// idempotency-key не требуется и не проверяется.
func NewLedgerService(l Ledger, keeper *idempotency.Keeper, logger *log.Entry) *LedgerService {
	if logger == nil {
		logger = log.New().WithField("component", "ledger-grpc")
	}
	return &LedgerService{
		ledger: l,
		keeper: keeper,
		logger: logger,
	}
}

// ApplyPayment зачисляет платёж на заказ или распределяет его по долгам клиента.
func (s *LedgerService) ApplyPayment(ctx context.Context, req *ledgerv1.ApplyPaymentRequest) (*ledgerv1.ApplyPaymentResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	return withIdempotency(s, ctx, ledgerv1.LedgerService_ApplyPayment_FullMethodName, req,
		func(ctx context.Context) (*ledgerv1.ApplyPaymentResponse, error) {
			result, err := s.ledger.ApplyPayment(ctx, ledger.PaymentRequest{
				ClientID:  req.GetClientID(),
				Amount:    req.GetAmount(),
				OrderID:   req.GetOrderID(),
				Method:    domain.PaymentMethod(req.Method),
				Notes:     req.Notes,
				SellerID:  req.SellerID,
				AdminName: req.AdminName,
			})
			if err != nil {
				return nil, s.toStatus(err, "ApplyPayment", log.Fields{"client_id": req.GetClientID(), "order_id": req.GetOrderID()})
			}
			return toProtoPaymentResult(result), nil
		},
	)
}

// DeletePayment удаляет платёж и возвращает долг на заказ.
func (s *LedgerService) DeletePayment(ctx context.Context, req *ledgerv1.DeletePaymentRequest) (*ledgerv1.DeletePaymentResponse, error) {
	if req.GetPaymentID() == "" {
		return nil, status.Error(codes.InvalidArgument, "payment_id is required")
	}

	order, err := s.ledger.DeletePayment(ctx, req.GetPaymentID())
	if err != nil {
		return nil, s.toStatus(err, "DeletePayment", log.Fields{"payment_id": req.GetPaymentID()})
	}
	return &ledgerv1.DeletePaymentResponse{Order: toProtoOrder(order)}, nil
}

// IncreaseDebt доначисляет сумму к заказу.
func (s *LedgerService) IncreaseDebt(ctx context.Context, req *ledgerv1.IncreaseDebtRequest) (*ledgerv1.IncreaseDebtResponse, error) {
	if req.GetOrderID() == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	return withIdempotency(s, ctx, ledgerv1.LedgerService_IncreaseDebt_FullMethodName, req,
		func(ctx context.Context) (*ledgerv1.IncreaseDebtResponse, error) {
			order, err := s.ledger.IncreaseDebt(ctx, req.GetOrderID(), req.GetAmount(), req.GetReason())
			if err != nil {
				return nil, s.toStatus(err, "IncreaseDebt", log.Fields{"order_id": req.GetOrderID()})
			}
			return &ledgerv1.IncreaseDebtResponse{Order: toProtoOrder(order)}, nil
		},
	)
}

// SetOrderStatus меняет статус заказа и сообщает, как изменились остатки.
func (s *LedgerService) SetOrderStatus(ctx context.Context, req *ledgerv1.SetOrderStatusRequest) (*ledgerv1.SetOrderStatusResponse, error) {
	if req.GetOrderID() == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	next, err := domain.ParseOrderStatus(req.GetStatus())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.ledger.TransitionStatus(ctx, req.GetOrderID(), next)
	if err != nil {
		return nil, s.toStatus(err, "SetOrderStatus", log.Fields{"order_id": req.GetOrderID(), "status": next})
	}

	return &ledgerv1.SetOrderStatusResponse{
		Order:          toProtoOrder(result.Order),
		PreviousStatus: string(result.Previous),
		Stock:          toProtoStock(result.Stock),
	}, nil
}

// CreateOrder оформляет заказ в долг.
func (s *LedgerService) CreateOrder(ctx context.Context, req *ledgerv1.CreateOrderRequest) (*ledgerv1.CreateOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	return withIdempotency(s, ctx, ledgerv1.LedgerService_CreateOrder_FullMethodName, req,
		func(ctx context.Context) (*ledgerv1.CreateOrderResponse, error) {
			items := make([]ledger.ItemRequest, 0, len(req.GetItems()))
			for idx, item := range req.GetItems() {
				if item == nil {
					return nil, status.Errorf(codes.InvalidArgument, "item[%d] is nil", idx)
				}
				items = append(items, ledger.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
			}

			order, err := s.ledger.CreateOrder(ctx, ledger.CreateOrderRequest{ClientID: req.GetClientID(), Items: items})
			if err != nil {
				return nil, s.toStatus(err, "CreateOrder", log.Fields{"client_id": req.GetClientID()})
			}
			return &ledgerv1.CreateOrderResponse{Order: toProtoOrder(order)}, nil
		},
	)
}

// GetOrder возвращает заказ, его платежи и историю.
func (s *LedgerService) GetOrder(ctx context.Context, req *ledgerv1.GetOrderRequest) (*ledgerv1.GetOrderResponse, error) {
	if req.GetOrderID() == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	order, err := s.ledger.GetOrder(ctx, req.GetOrderID())
	if err != nil {
		return nil, s.toStatus(err, "GetOrder", log.Fields{"order_id": req.GetOrderID()})
	}

	return &ledgerv1.GetOrderResponse{
		Order:    toProtoOrder(order),
		Payments: s.buildPayments(ctx, order.ID),
		Timeline: s.buildTimeline(ctx, order.ID),
	}, nil
}

// ListClientOrders возвращает заказы клиента, новые первыми.
func (s *LedgerService) ListClientOrders(ctx context.Context, req *ledgerv1.ListClientOrdersRequest) (*ledgerv1.ListClientOrdersResponse, error) {
	if req.GetClientID() == "" {
		return nil, status.Error(codes.InvalidArgument, "client_id is required")
	}

	limit := int(req.GetLimit())
	switch {
	case limit <= 0:
		limit = defaultListOrdersLimit
	case limit > maxListOrdersLimit:
		limit = maxListOrdersLimit
	}

	orders, err := s.ledger.ListClientOrders(ctx, req.GetClientID(), limit)
	if err != nil {
		return nil, s.toStatus(err, "ListClientOrders", log.Fields{"client_id": req.GetClientID()})
	}
	return &ledgerv1.ListClientOrdersResponse{Orders: toProtoOrders(orders)}, nil
}

// GetClientSummary возвращает клиента и его неоплаченные заказы.
func (s *LedgerService) GetClientSummary(ctx context.Context, req *ledgerv1.GetClientSummaryRequest) (*ledgerv1.GetClientSummaryResponse, error) {
	if req.GetClientID() == "" {
		return nil, status.Error(codes.InvalidArgument, "client_id is required")
	}

	summary, err := s.ledger.ClientSummary(ctx, req.GetClientID())
	if err != nil {
		return nil, s.toStatus(err, "GetClientSummary", log.Fields{"client_id": req.GetClientID()})
	}

	return &ledgerv1.GetClientSummaryResponse{
		Client:      toProtoClient(summary.Client),
		Outstanding: toProtoOrders(summary.Outstanding),
		OrdersDebt:  summary.OrdersDebt,
	}, nil
}

// ResyncClientDebt пересчитывает общий долг клиента.
func (s *LedgerService) ResyncClientDebt(ctx context.Context, req *ledgerv1.ResyncClientDebtRequest) (*ledgerv1.ResyncClientDebtResponse, error) {
	if req.GetClientID() == "" {
		return nil, status.Error(codes.InvalidArgument, "client_id is required")
	}

	total, err := s.ledger.ResyncClientDebt(ctx, req.GetClientID())
	if err != nil {
		return nil, s.toStatus(err, "ResyncClientDebt", log.Fields{"client_id": req.GetClientID()})
	}
	return &ledgerv1.ResyncClientDebtResponse{TotalDebt: total}, nil
}

// AuditOrder сверяет оплаченную сумму заказа с его платежами.
func (s *LedgerService) AuditOrder(ctx context.Context, req *ledgerv1.AuditOrderRequest) (*ledgerv1.AuditOrderResponse, error) {
	if req.GetOrderID() == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	audit, err := s.ledger.AuditOrder(ctx, req.GetOrderID())
	if err != nil {
		return nil, s.toStatus(err, "AuditOrder", log.Fields{"order_id": req.GetOrderID()})
	}

	return &ledgerv1.AuditOrderResponse{
		OrderID:     audit.OrderID,
		PaidSum:     audit.PaidSum,
		PaymentsSum: audit.PaymentsSum,
		Payments:    int32(audit.Payments), //nolint:gosec // число платежей заказа мало.
		Drift:       audit.Drift,
	}, nil
}

// toStatus переводит ошибку учёта в gRPC-статус. Неклассифицированные
// ошибки логируются и отдаются как Internal без деталей.
func (s *LedgerService) toStatus(err error, operation string, fields log.Fields) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codeOf(err)
	entry := s.logger.WithError(err).WithFields(fields).WithField("operation", operation)

	switch code {
	case codes.Internal:
		entry.Error("ledger operation failed")
		return status.Error(codes.Internal, "internal ledger error")
	case codes.Aborted, codes.Canceled, codes.DeadlineExceeded:
		entry.Warn("ledger operation interrupted")
	default:
		entry.Debug("ledger operation rejected")
	}
	return status.Error(code, err.Error())
}

func codeOf(err error) codes.Code {
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}

	switch {
	case domain.IsValidation(err), errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return codes.InvalidArgument
	case domain.IsNotFound(err):
		return codes.NotFound
	case domain.IsPrecondition(err):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return codes.AlreadyExists
	case domain.IsVersionConflict(err),
		errors.Is(err, domain.ErrLockNotAcquired),
		errors.Is(err, domain.ErrOrderNumberTaken),
		errors.Is(err, idempotency.ErrInProgress):
		return codes.Aborted
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

const idempotencyKeyHeader = "idempotency-key"

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// withIdempotency выполняет handler не более одного раза на ключ.
// Повтор с тем же ключом и телом получает сохранённый ответ или ошибку.
func withIdempotency[T any](
	s *LedgerService,
	ctx context.Context,
	method string,
	req any,
	handler func(context.Context) (*T, error),
) (*T, error) {
	if s.keeper == nil {
		return handler(ctx)
	}

	key, err := readIdempotencyKey(ctx)
	if err != nil {
		return nil, err
	}

	reqHash, err := idempotency.HashRequest(method, req)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to build idempotency request hash")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	replay, err := s.keeper.Begin(ctx, key, reqHash)
	if err != nil {
		switch code := codeOf(err); code {
		case codes.AlreadyExists:
			return nil, status.Error(code, "idempotency key is already used with different request payload")
		case codes.Aborted:
			return nil, status.Error(code, err.Error())
		default:
			s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to create idempotency record")
			return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
		}
	}
	if replay != nil {
		return replayIdempotency[T](s, key, replay)
	}

	resp, runErr := handler(ctx)
	if runErr != nil {
		s.cacheIdempotencyFailure(ctx, key, runErr)
		return nil, runErr
	}

	s.cacheIdempotencySuccess(ctx, key, resp)
	return resp, nil
}

func replayIdempotency[T any](s *LedgerService, key string, replay *idempotency.Replay) (*T, error) {
	if replay.Failed {
		return nil, decodeIdempotencyFailure(replay)
	}
	if len(replay.Body) == 0 {
		return nil, status.Error(codes.Internal, "idempotency cache is empty")
	}

	resp := new(T)
	if err := json.Unmarshal(replay.Body, resp); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to decode cached idempotency response")
		return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
	}
	s.logger.WithField("idempotency_key", key).Debug("idempotent response replayed")
	return resp, nil
}

func (s *LedgerService) cacheIdempotencySuccess(ctx context.Context, key string, resp any) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotent success response")
		return
	}
	s.keeper.Complete(ctx, key, data, int(codes.OK))
}

func (s *LedgerService) cacheIdempotencyFailure(ctx context.Context, key string, runErr error) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}

	payload, err := json.Marshal(idempotencyErrorPayload{
		Code:    int32(code), //nolint:gosec // codes.Code is a bounded enum value.
		Message: st.Message(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotency failure payload")
		payload = nil
	}

	s.keeper.Fail(ctx, key, payload, int(code))
}

func decodeIdempotencyFailure(replay *idempotency.Replay) error {
	if len(replay.Body) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(replay.Body, &payload); err == nil {
			if code, ok := grpcCodeFromInt(int(payload.Code)); ok {
				if code == codes.OK {
					code = codes.Internal
				}
				if payload.Message == "" {
					payload.Message = "previous request with the same idempotency key failed"
				}
				return status.Error(code, payload.Message)
			}
		}
	}

	if replay.Status > 0 {
		if code, ok := grpcCodeFromInt(replay.Status); ok && code != codes.OK {
			return status.Error(code, "previous request with the same idempotency key failed")
		}
	}

	return status.Error(codes.Internal, "previous request with the same idempotency key failed")
}

func grpcCodeFromInt(value int) (codes.Code, bool) {
	if value < int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true
}

func readIdempotencyKey(ctx context.Context) (string, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(idempotencyKeyHeader)
		if len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0]), nil
		}
	}

	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		values := md.Get(idempotencyKeyHeader)
		if len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0]), nil
		}
	}

	return "", status.Error(codes.InvalidArgument, "idempotency-key metadata is required")
}

func (s *LedgerService) buildPayments(ctx context.Context, orderID string) []*ledgerv1.Payment {
	payments, err := s.ledger.ListOrderPayments(ctx, orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to list order payments")
		return nil
	}
	result := make([]*ledgerv1.Payment, 0, len(payments))
	for _, payment := range payments {
		result = append(result, toProtoPayment(payment))
	}
	return result
}

func (s *LedgerService) buildTimeline(ctx context.Context, orderID string) []*ledgerv1.TimelineEvent {
	events, err := s.ledger.OrderTimeline(ctx, orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to list timeline events")
		return nil
	}
	result := make([]*ledgerv1.TimelineEvent, 0, len(events))
	for _, event := range events {
		result = append(result, &ledgerv1.TimelineEvent{
			Type:     event.Type,
			Reason:   event.Reason,
			Amount:   event.Amount,
			UnixTime: event.Occurred.Unix(),
		})
	}
	return result
}
