package domain

import (
	"fmt"
	"math"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ оформлен, товар списан со склада.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — заказ подтверждён администратором.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusDelivered — заказ доставлен клиенту.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён: товар возвращён на склад, долг списан.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// IsCancelled сообщает, что заказ не удерживает ни товар, ни долг.
func (s OrderStatus) IsCancelled() bool {
	return s == OrderStatusCancelled
}

// ParseOrderStatus разбирает строковое значение статуса.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// StockDirection показывает, как смена статуса влияет на остатки.
type StockDirection int

const (
	// StockUnchanged — остатки не трогаем.
	StockUnchanged StockDirection = iota
	// StockRestore — позиции заказа возвращаются на склад (отмена).
	StockRestore
	// StockDeduct — позиции заказа повторно списываются (реактивация).
	StockDeduct
)

// Sign возвращает множитель для количества позиции.
func (d StockDirection) Sign() int64 {
	switch d {
	case StockRestore:
		return 1
	case StockDeduct:
		return -1
	default:
		return 0
	}
}

// OrderItem представляет одну позицию заказа с зафиксированной на момент покупки ценой.
type OrderItem struct {
	ProductID    string
	ProductName  string
	Quantity     int64
	PricePerUnit int64
	TotalPrice   int64
	// StockReleased — заказ не удерживает товар позиции: повторное списание
	// при возобновлении не удалось, и отмена не должна его возвращать.
	StockReleased bool
}

// Order агрегирует денежное состояние заказа.
//
// Суммы хранятся в целых сумах. Debt никогда не задаётся напрямую,
// только через Recalculate.
type Order struct {
	ID        string
	Number    string
	ClientID  string
	Items     []OrderItem
	TotalSum  int64
	PaidSum   int64
	Debt      int64
	Status    OrderStatus
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recalculate пересчитывает долг. У отменённого заказа долг всегда нулевой.
func (o *Order) Recalculate() {
	if o.Status.IsCancelled() {
		o.Debt = 0
		return
	}
	o.Debt = max(0, o.TotalSum-o.PaidSum)
}

// ApplyPayment зачисляет платёж на заказ. Переплата отклоняется целиком.
func (o *Order) ApplyPayment(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if o.Debt <= 0 {
		return ErrNoDebtToPay
	}
	if amount > o.Debt {
		return fmt.Errorf("%w: amount %d, debt %d", ErrAmountExceedsDebt, amount, o.Debt)
	}
	o.PaidSum += amount
	o.Recalculate()
	return nil
}

// RevertPayment откатывает ранее зачисленный платёж.
func (o *Order) RevertPayment(amount int64) {
	o.PaidSum = max(0, o.PaidSum-amount)
	o.Recalculate()
}

// IncreaseDebt увеличивает сумму заказа вне покупки товара.
func (o *Order) IncreaseDebt(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if o.Status.IsCancelled() {
		return ErrOrderCancelled
	}
	if amount > math.MaxInt64-o.TotalSum {
		return fmt.Errorf("%w: total %d + %d", ErrAmountOverflow, o.TotalSum, amount)
	}
	o.TotalSum += amount
	o.Recalculate()
	return nil
}

// TransitionTo меняет статус и возвращает требуемое движение остатков.
// Переходы между любыми статусами разрешены.
func (o *Order) TransitionTo(next OrderStatus) (StockDirection, error) {
	if !next.Valid() {
		return StockUnchanged, fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}

	direction := StockUnchanged
	switch {
	case !o.Status.IsCancelled() && next.IsCancelled():
		direction = StockRestore
	case o.Status.IsCancelled() && !next.IsCancelled():
		direction = StockDeduct
	}

	o.Status = next
	o.Recalculate()
	return direction, nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.ClientID == "" {
		errs = append(errs, ErrClientRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrInvalidStatus)
	}
	for _, item := range o.Items {
		if item.Quantity < 1 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PricePerUnit < 0 || item.TotalPrice < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}

	if o.PaidSum < 0 || o.PaidSum > o.TotalSum {
		errs = append(errs, fmt.Errorf("%w: paid %d, total %d", ErrLedgerInvariant, o.PaidSum, o.TotalSum))
	}
	want := o.TotalSum - o.PaidSum
	if o.Status.IsCancelled() {
		want = 0
	}
	if o.Debt != want {
		errs = append(errs, fmt.Errorf("%w: debt %d, expected %d", ErrLedgerInvariant, o.Debt, want))
	}

	return errs
}

// NewItem собирает позицию заказа по снимку цены. Стоимость позиции
// не должна переполнять int64, см. ItemTotal.
func NewItem(productID, name string, quantity, price int64) OrderItem {
	return OrderItem{
		ProductID:    productID,
		ProductName:  name,
		Quantity:     quantity,
		PricePerUnit: price,
		TotalPrice:   quantity * price,
	}
}

// ItemTotal считает quantity * price с проверкой переполнения.
func ItemTotal(quantity, price int64) (int64, error) {
	if quantity < 1 {
		return 0, ErrItemQtyInvalid
	}
	if price < 0 {
		return 0, ErrItemPriceInvalid
	}
	if price > 0 && quantity > math.MaxInt64/price {
		return 0, fmt.Errorf("%w: %d x %d", ErrAmountOverflow, quantity, price)
	}
	return quantity * price, nil
}

// SumItems возвращает сумму позиций.
func SumItems(items []OrderItem) (int64, error) {
	var total int64
	for _, item := range items {
		if item.TotalPrice < 0 {
			return 0, fmt.Errorf("%w: product %s", ErrItemPriceInvalid, item.ProductID)
		}
		if item.TotalPrice > math.MaxInt64-total {
			return 0, fmt.Errorf("%w: order total", ErrAmountOverflow)
		}
		total += item.TotalPrice
	}
	return total, nil
}

// HeldItems возвращает позиции, товар которых заказ сейчас удерживает.
func (o *Order) HeldItems() []OrderItem {
	held := make([]OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		if !item.StockReleased {
			held = append(held, item)
		}
	}
	return held
}
