package ledgerv1

// OrderItem — позиция заказа с ценой на момент покупки.
type OrderItem struct {
	ProductID    string `json:"product_id,omitempty"`
	ProductName  string `json:"product_name,omitempty"`
	Quantity     int64  `json:"quantity,omitempty"`
	PricePerUnit int64  `json:"price_per_unit,omitempty"`
	TotalPrice   int64  `json:"total_price,omitempty"`
}

// Order — денежное состояние заказа.
type Order struct {
	ID            string       `json:"id,omitempty"`
	Number        string       `json:"number,omitempty"`
	ClientID      string       `json:"client_id,omitempty"`
	Items         []*OrderItem `json:"items,omitempty"`
	TotalSum      int64        `json:"total_sum,omitempty"`
	PaidSum       int64        `json:"paid_sum,omitempty"`
	Debt          int64        `json:"debt,omitempty"`
	Status        string       `json:"status,omitempty"`
	Version       int64        `json:"version,omitempty"`
	CreatedAtUnix int64        `json:"created_at_unix,omitempty"`
	UpdatedAtUnix int64        `json:"updated_at_unix,omitempty"`
}

func (x *Order) GetID() string {
	if x != nil {
		return x.ID
	}
	return ""
}

func (x *Order) GetStatus() string {
	if x != nil {
		return x.Status
	}
	return ""
}

func (x *Order) GetDebt() int64 {
	if x != nil {
		return x.Debt
	}
	return 0
}

func (x *Order) GetPaidSum() int64 {
	if x != nil {
		return x.PaidSum
	}
	return 0
}

// Payment — платёж по одному заказу.
type Payment struct {
	ID            string `json:"id,omitempty"`
	OrderID       string `json:"order_id,omitempty"`
	ClientID      string `json:"client_id,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	Method        string `json:"method,omitempty"`
	Notes         string `json:"notes,omitempty"`
	SellerID      string `json:"seller_id,omitempty"`
	AdminName     string `json:"admin_name,omitempty"`
	CreatedAtUnix int64  `json:"created_at_unix,omitempty"`
}

// TimelineEvent — запись истории заказа.
type TimelineEvent struct {
	Type     string `json:"type,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Amount   int64  `json:"amount,omitempty"`
	UnixTime int64  `json:"unix_time,omitempty"`
}

// StockAdjustment — результат изменения остатка одного товара.
type StockAdjustment struct {
	ProductID string `json:"product_id,omitempty"`
	Delta     int64  `json:"delta,omitempty"`
	Stock     int64  `json:"stock,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Client — клиент и его кэшированный общий долг.
type Client struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	TelegramID int64  `json:"telegram_id,omitempty"`
	Role       string `json:"role,omitempty"`
	TotalDebt  int64  `json:"total_debt,omitempty"`
}

type ApplyPaymentRequest struct {
	ClientID  string `json:"client_id,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Notes     string `json:"notes,omitempty"`
	SellerID  string `json:"seller_id,omitempty"`
	AdminName string `json:"admin_name,omitempty"`
}

func (x *ApplyPaymentRequest) GetClientID() string {
	if x != nil {
		return x.ClientID
	}
	return ""
}

func (x *ApplyPaymentRequest) GetAmount() int64 {
	if x != nil {
		return x.Amount
	}
	return 0
}

func (x *ApplyPaymentRequest) GetOrderID() string {
	if x != nil {
		return x.OrderID
	}
	return ""
}

type ApplyPaymentResponse struct {
	Orders          []*Order   `json:"orders,omitempty"`
	Payments        []*Payment `json:"payments,omitempty"`
	Applied         int64      `json:"applied,omitempty"`
	Unapplied       int64      `json:"unapplied,omitempty"`
	TotalDebt       int64      `json:"total_debt,omitempty"`
	TotalDebtSynced bool       `json:"total_debt_synced,omitempty"`
}

type DeletePaymentRequest struct {
	PaymentID string `json:"payment_id,omitempty"`
}

func (x *DeletePaymentRequest) GetPaymentID() string {
	if x != nil {
		return x.PaymentID
	}
	return ""
}

type DeletePaymentResponse struct {
	Order *Order `json:"order,omitempty"`
}

type IncreaseDebtRequest struct {
	OrderID string `json:"order_id,omitempty"`
	Amount  int64  `json:"amount,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (x *IncreaseDebtRequest) GetOrderID() string {
	if x != nil {
		return x.OrderID
	}
	return ""
}

func (x *IncreaseDebtRequest) GetAmount() int64 {
	if x != nil {
		return x.Amount
	}
	return 0
}

func (x *IncreaseDebtRequest) GetReason() string {
	if x != nil {
		return x.Reason
	}
	return ""
}

type IncreaseDebtResponse struct {
	Order *Order `json:"order,omitempty"`
}

type SetOrderStatusRequest struct {
	OrderID string `json:"order_id,omitempty"`
	Status  string `json:"status,omitempty"`
}

func (x *SetOrderStatusRequest) GetOrderID() string {
	if x != nil {
		return x.OrderID
	}
	return ""
}

func (x *SetOrderStatusRequest) GetStatus() string {
	if x != nil {
		return x.Status
	}
	return ""
}

type SetOrderStatusResponse struct {
	Order          *Order             `json:"order,omitempty"`
	PreviousStatus string             `json:"previous_status,omitempty"`
	Stock          []*StockAdjustment `json:"stock,omitempty"`
}

type CreateOrderItem struct {
	ProductID string `json:"product_id,omitempty"`
	Quantity  int64  `json:"quantity,omitempty"`
}

type CreateOrderRequest struct {
	ClientID string             `json:"client_id,omitempty"`
	Items    []*CreateOrderItem `json:"items,omitempty"`
}

func (x *CreateOrderRequest) GetClientID() string {
	if x != nil {
		return x.ClientID
	}
	return ""
}

func (x *CreateOrderRequest) GetItems() []*CreateOrderItem {
	if x != nil {
		return x.Items
	}
	return nil
}

type CreateOrderResponse struct {
	Order *Order `json:"order,omitempty"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id,omitempty"`
}

func (x *GetOrderRequest) GetOrderID() string {
	if x != nil {
		return x.OrderID
	}
	return ""
}

type GetOrderResponse struct {
	Order    *Order           `json:"order,omitempty"`
	Payments []*Payment       `json:"payments,omitempty"`
	Timeline []*TimelineEvent `json:"timeline,omitempty"`
}

type ListClientOrdersRequest struct {
	ClientID string `json:"client_id,omitempty"`
	Limit    int32  `json:"limit,omitempty"`
}

func (x *ListClientOrdersRequest) GetClientID() string {
	if x != nil {
		return x.ClientID
	}
	return ""
}

func (x *ListClientOrdersRequest) GetLimit() int32 {
	if x != nil {
		return x.Limit
	}
	return 0
}

type ListClientOrdersResponse struct {
	Orders []*Order `json:"orders,omitempty"`
}

type GetClientSummaryRequest struct {
	ClientID string `json:"client_id,omitempty"`
}

func (x *GetClientSummaryRequest) GetClientID() string {
	if x != nil {
		return x.ClientID
	}
	return ""
}

type GetClientSummaryResponse struct {
	Client      *Client  `json:"client,omitempty"`
	Outstanding []*Order `json:"outstanding,omitempty"`
	OrdersDebt  int64    `json:"orders_debt,omitempty"`
}

type ResyncClientDebtRequest struct {
	ClientID string `json:"client_id,omitempty"`
}

func (x *ResyncClientDebtRequest) GetClientID() string {
	if x != nil {
		return x.ClientID
	}
	return ""
}

type ResyncClientDebtResponse struct {
	TotalDebt int64 `json:"total_debt,omitempty"`
}

type AuditOrderRequest struct {
	OrderID string `json:"order_id,omitempty"`
}

func (x *AuditOrderRequest) GetOrderID() string {
	if x != nil {
		return x.OrderID
	}
	return ""
}

type AuditOrderResponse struct {
	OrderID     string `json:"order_id,omitempty"`
	PaidSum     int64  `json:"paid_sum,omitempty"`
	PaymentsSum int64  `json:"payments_sum,omitempty"`
	Payments    int32  `json:"payments,omitempty"`
	Drift       int64  `json:"drift,omitempty"`
}

func (x *CreateOrderResponse) GetOrder() *Order {
	if x != nil {
		return x.Order
	}
	return nil
}

func (x *DeletePaymentResponse) GetOrder() *Order {
	if x != nil {
		return x.Order
	}
	return nil
}

func (x *SetOrderStatusResponse) GetOrder() *Order {
	if x != nil {
		return x.Order
	}
	return nil
}

func (x *GetOrderResponse) GetOrder() *Order {
	if x != nil {
		return x.Order
	}
	return nil
}

func (x *GetClientSummaryResponse) GetClient() *Client {
	if x != nil {
		return x.Client
	}
	return nil
}
