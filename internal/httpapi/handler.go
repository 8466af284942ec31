// Package httpapi — административный JSON API учёта: платежи, долги, статусы
// заказов, карточки клиентов и массовый пересчёт долгов.
package httpapi

import (
	"context"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/idempotency"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/ledger"
)

// Ledger — операции учёта, доступные через HTTP.
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
	RegisterClient(ctx context.Context, client domain.Client) (domain.Client, error)
	RegisterProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	ResyncClientDebt(ctx context.Context, clientID string) (int64, error)
	ResyncAll(ctx context.Context) (ledger.ResyncReport, error)
	AuditOrder(ctx context.Context, orderID string) (ledger.OrderAudit, error)
	AuditClient(ctx context.Context, clientID string) ([]ledger.OrderAudit, error)
}

// Handler обслуживает маршруты /api/v1.
type Handler struct {
	ledger   Ledger
	keeper   *idempotency.Keeper
	validate *validator.Validate
	logger   *log.Entry
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// NewHandler создаёт обработчик. keeper может быть nil.
func NewHandler(l Ledger, keeper *idempotency.Keeper, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(jsonFieldName)

	return &Handler{
		ledger:   l,
		keeper:   keeper,
		validate: validate,
		logger:   logger,
	}
}

// jsonFieldName возвращает имя поля из json-тега, чтобы ошибки валидации
// ссылались на поля тела запроса.
func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

// MountRoutes регистрирует маршруты API на роутере.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payments", h.applyPayment)
	r.Delete("/payments/{paymentID}", h.deletePayment)

	r.Post("/orders", h.createOrder)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}/debt", h.increaseDebt)
	r.Post("/orders/{orderID}/status", h.setStatus)
	r.Get("/orders/{orderID}/audit", h.auditOrder)

	r.Post("/clients", h.registerClient)
	r.Get("/clients/{clientID}", h.clientSummary)
	r.Get("/clients/{clientID}/orders", h.listClientOrders)
	r.Post("/clients/{clientID}/resync", h.resyncClient)
	r.Get("/clients/{clientID}/audit", h.auditClient)

	r.Post("/products", h.registerProduct)

	r.Post("/admin/resync", h.resyncAll)
}

type paymentRequest struct {
	ClientID  string `json:"client_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"gt=0"`
	OrderID   string `json:"order_id"`
	Method    string `json:"method" validate:"omitempty,oneof=cash card transfer other"`
	Notes     string `json:"notes" validate:"max=500"`
	SellerID  string `json:"seller_id"`
	AdminName string `json:"admin_name"`
}

type paymentResponse struct {
	Orders          []orderView   `json:"orders"`
	Payments        []paymentView `json:"payments"`
	Applied         int64         `json:"applied"`
	Unapplied       int64         `json:"unapplied"`
	TotalDebt       int64         `json:"total_debt"`
	TotalDebtSynced bool          `json:"total_debt_synced"`
}

func (h *Handler) applyPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !h.bind(w, r, &req) {
		return
	}

	h.idempotent(w, r, "apply_payment", req, func(ctx context.Context) (int, any, error) {
		result, err := h.ledger.ApplyPayment(ctx, ledger.PaymentRequest{
			ClientID:  req.ClientID,
			Amount:    req.Amount,
			OrderID:   req.OrderID,
			Method:    domain.PaymentMethod(req.Method),
			Notes:     req.Notes,
			SellerID:  req.SellerID,
			AdminName: req.AdminName,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, paymentResponse{
			Orders:          newOrderViews(result.Orders),
			Payments:        newPaymentViews(result.Payments),
			Applied:         result.Applied,
			Unapplied:       result.Unapplied,
			TotalDebt:       result.TotalDebt,
			TotalDebtSynced: result.TotalDebtSynced,
		}, nil
	})
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	order, err := h.ledger.DeletePayment(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

type createOrderRequest struct {
	ClientID string `json:"client_id" validate:"required"`
	Items    []struct {
		ProductID string `json:"product_id" validate:"required"`
		Quantity  int64  `json:"quantity" validate:"min=1"`
	} `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.bind(w, r, &req) {
		return
	}

	h.idempotent(w, r, "create_order", req, func(ctx context.Context) (int, any, error) {
		items := make([]ledger.ItemRequest, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, ledger.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		order, err := h.ledger.CreateOrder(ctx, ledger.CreateOrderRequest{ClientID: req.ClientID, Items: items})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, newOrderView(order), nil
	})
}

type orderDetails struct {
	Order    orderView      `json:"order"`
	Payments []paymentView  `json:"payments"`
	Timeline []timelineView `json:"timeline"`
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.ledger.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	details := orderDetails{Order: newOrderView(order), Payments: []paymentView{}, Timeline: []timelineView{}}
	if payments, err := h.ledger.ListOrderPayments(ctx, order.ID); err != nil {
		h.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to list order payments")
	} else {
		details.Payments = newPaymentViews(payments)
	}
	if events, err := h.ledger.OrderTimeline(ctx, order.ID); err != nil {
		h.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to list timeline events")
	} else {
		for _, ev := range events {
			details.Timeline = append(details.Timeline, timelineView{Type: ev.Type, Reason: ev.Reason, Amount: ev.Amount, Occurred: ev.Occurred})
		}
	}

	writeJSON(w, http.StatusOK, details)
}

type increaseDebtRequest struct {
	Amount int64  `json:"amount" validate:"gt=0"`
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) increaseDebt(w http.ResponseWriter, r *http.Request) {
	var req increaseDebtRequest
	if !h.bind(w, r, &req) {
		return
	}
	orderID := chi.URLParam(r, "orderID")

	h.idempotent(w, r, "increase_debt:"+orderID, req, func(ctx context.Context) (int, any, error) {
		order, err := h.ledger.IncreaseDebt(ctx, orderID, req.Amount, req.Reason)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, newOrderView(order), nil
	})
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed delivered cancelled"`
}

type statusResponse struct {
	Order    orderView   `json:"order"`
	Previous string      `json:"previous_status"`
	Stock    []stockView `json:"stock"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.bind(w, r, &req) {
		return
	}

	result, err := h.ledger.TransitionStatus(r.Context(), chi.URLParam(r, "orderID"), domain.OrderStatus(req.Status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Order:    newOrderView(result.Order),
		Previous: string(result.Previous),
		Stock:    newStockViews(result.Stock),
	})
}

func (h *Handler) auditOrder(w http.ResponseWriter, r *http.Request) {
	audit, err := h.ledger.AuditOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuditView(audit))
}

type clientRequest struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Phone      string `json:"phone"`
	TelegramID int64  `json:"telegram_id" validate:"gte=0"`
	Role       string `json:"role" validate:"omitempty,oneof=admin seller client"`
}

func (h *Handler) registerClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !h.bind(w, r, &req) {
		return
	}

	client, err := h.ledger.RegisterClient(r.Context(), domain.Client{
		ID:         req.ID,
		Name:       req.Name,
		Phone:      req.Phone,
		TelegramID: req.TelegramID,
		Role:       domain.ClientRole(req.Role),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newClientView(client))
}

type clientSummaryResponse struct {
	Client      clientView  `json:"client"`
	Outstanding []orderView `json:"outstanding"`
	OrdersDebt  int64       `json:"orders_debt"`
}

func (h *Handler) clientSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.ClientSummary(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clientSummaryResponse{
		Client:      newClientView(summary.Client),
		Outstanding: newOrderViews(summary.Outstanding),
		OrdersDebt:  summary.OrdersDebt,
	})
}

func (h *Handler) listClientOrders(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeProblem(w, Problem{Type: "bad-request", Status: http.StatusBadRequest, Detail: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	orders, err := h.ledger.ListClientOrders(r.Context(), chi.URLParam(r, "clientID"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": newOrderViews(orders)})
}

func (h *Handler) resyncClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	total, err := h.ledger.ResyncClientDebt(r.Context(), clientID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client_id": clientID, "total_debt": total})
}

func (h *Handler) auditClient(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.ledger.AuditClient(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]auditView, 0, len(drifts))
	for _, a := range drifts {
		views = append(views, newAuditView(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"drifts": views})
}

type productRequest struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Stock     int64  `json:"stock" validate:"gte=0"`
	MinStock  int64  `json:"min_stock" validate:"gte=0"`
	SellPrice int64  `json:"sell_price" validate:"gte=0"`
	CostPrice int64  `json:"cost_price" validate:"gte=0"`
}

func (h *Handler) registerProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.bind(w, r, &req) {
		return
	}

	product, err := h.ledger.RegisterProduct(r.Context(), domain.Product{
		ID:        req.ID,
		Name:      req.Name,
		Stock:     req.Stock,
		MinStock:  req.MinStock,
		SellPrice: req.SellPrice,
		CostPrice: req.CostPrice,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newProductView(product))
}

type resyncResponse struct {
	Checked    int   `json:"checked"`
	Fixed      int   `json:"fixed"`
	Unchanged  int   `json:"unchanged"`
	Errors     int   `json:"errors"`
	GrandTotal int64 `json:"grand_total"`
}

func (h *Handler) resyncAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.ResyncAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.WithFields(log.Fields{
		"checked": report.Checked,
		"fixed":   report.Fixed,
		"errors":  report.Errors,
	}).Info("bulk debt resync finished")

	writeJSON(w, http.StatusOK, resyncResponse{
		Checked:    report.Checked,
		Fixed:      report.Fixed,
		Unchanged:  report.Unchanged,
		Errors:     report.Errors,
		GrandTotal: report.GrandTotal,
	})
}

// bind декодирует и валидирует тело. При ошибке ответ уже записан.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeJSON(r, target); err != nil {
		writeProblem(w, problemFor(err))
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		writeProblem(w, problemFor(err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err)
	entry := h.logger.WithError(err).WithFields(log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": p.Status,
	})
	if p.Status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	writeProblem(w, p)
}
