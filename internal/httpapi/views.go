package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/ledger"
)

type orderItemView struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	Quantity     int64  `json:"quantity"`
	PricePerUnit int64  `json:"price_per_unit"`
	TotalPrice   int64  `json:"total_price"`
}

type orderView struct {
	ID        string          `json:"id"`
	Number    string          `json:"number"`
	ClientID  string          `json:"client_id"`
	Items     []orderItemView `json:"items"`
	TotalSum  int64           `json:"total_sum"`
	PaidSum   int64           `json:"paid_sum"`
	Debt      int64           `json:"debt"`
	Status    string          `json:"status"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type paymentView struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	ClientID  string    `json:"client_id"`
	Amount    int64     `json:"amount"`
	Method    string    `json:"method"`
	Notes     string    `json:"notes,omitempty"`
	SellerID  string    `json:"seller_id,omitempty"`
	AdminName string    `json:"admin_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type timelineView struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Amount   int64     `json:"amount,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type clientView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	TelegramID int64  `json:"telegram_id,omitempty"`
	Role       string `json:"role"`
	TotalDebt  int64  `json:"total_debt"`
}

type productView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Stock     int64  `json:"stock"`
	MinStock  int64  `json:"min_stock"`
	SellPrice int64  `json:"sell_price"`
	CostPrice int64  `json:"cost_price"`
	LowStock  bool   `json:"low_stock"`
}

type stockView struct {
	ProductID string `json:"product_id"`
	Delta     int64  `json:"delta"`
	Stock     int64  `json:"stock"`
	Error     string `json:"error,omitempty"`
}

type auditView struct {
	OrderID     string `json:"order_id"`
	PaidSum     int64  `json:"paid_sum"`
	PaymentsSum int64  `json:"payments_sum"`
	Payments    int    `json:"payments"`
	Drift       int64  `json:"drift"`
}

func newOrderView(order domain.Order) orderView {
	items := make([]orderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemView{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Quantity:     item.Quantity,
			PricePerUnit: item.PricePerUnit,
			TotalPrice:   item.TotalPrice,
		})
	}
	return orderView{
		ID:        order.ID,
		Number:    order.Number,
		ClientID:  order.ClientID,
		Items:     items,
		TotalSum:  order.TotalSum,
		PaidSum:   order.PaidSum,
		Debt:      order.Debt,
		Status:    string(order.Status),
		Version:   order.Version,
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
}

func newOrderViews(orders []domain.Order) []orderView {
	views := make([]orderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, newOrderView(order))
	}
	return views
}

func newPaymentView(p domain.Payment) paymentView {
	return paymentView{
		ID:        p.ID,
		OrderID:   p.OrderID,
		ClientID:  p.ClientID,
		Amount:    p.Amount,
		Method:    string(p.Method),
		Notes:     p.Notes,
		SellerID:  p.SellerID,
		AdminName: p.AdminName,
		CreatedAt: p.CreatedAt,
	}
}

func newPaymentViews(payments []domain.Payment) []paymentView {
	views := make([]paymentView, 0, len(payments))
	for _, p := range payments {
		views = append(views, newPaymentView(p))
	}
	return views
}

func newClientView(c domain.Client) clientView {
	return clientView{
		ID:         c.ID,
		Name:       c.Name,
		Phone:      c.Phone,
		TelegramID: c.TelegramID,
		Role:       string(c.Role),
		TotalDebt:  c.TotalDebt,
	}
}

func newProductView(p domain.Product) productView {
	return productView{
		ID:        p.ID,
		Name:      p.Name,
		Stock:     p.Stock,
		MinStock:  p.MinStock,
		SellPrice: p.SellPrice,
		CostPrice: p.CostPrice,
		LowStock:  p.IsLowStock(),
	}
}

func newStockViews(report domain.StockReport) []stockView {
	views := make([]stockView, 0, len(report.Adjustments))
	for _, adj := range report.Adjustments {
		v := stockView{ProductID: adj.ProductID, Delta: adj.Delta, Stock: adj.Stock}
		if adj.Err != nil {
			v.Error = adj.Err.Error()
		}
		views = append(views, v)
	}
	return views
}

func newAuditView(a ledger.OrderAudit) auditView {
	return auditView{
		OrderID:     a.OrderID,
		PaidSum:     a.PaidSum,
		PaymentsSum: a.PaymentsSum,
		Payments:    a.Payments,
		Drift:       a.Drift,
	}
}
