package domain

import "time"

// PaymentMethod описывает способ оплаты.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodOther    PaymentMethod = "other"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer, PaymentMethodOther:
		return true
	default:
		return false
	}
}

// OrDefault возвращает cash для пустого значения.
func (m PaymentMethod) OrDefault() PaymentMethod {
	if m == "" {
		return PaymentMethodCash
	}
	return m
}

// AutoDistributionNote — пометка платежа, распределённого по заказам автоматически.
const AutoDistributionNote = "Avtomatik taqsimlash"

// Payment описывает один платёж по одному заказу.
type Payment struct {
	ID       string
	OrderID  string
	ClientID string
	Amount   int64
	Method   PaymentMethod
	Notes    string
	// SellerID или AdminName указывают, кто принял деньги.
	SellerID  string
	AdminName string
	CreatedAt time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.OrderID == "" {
		errs = append(errs, ErrOrderNotFound)
	}
	if p.ClientID == "" {
		errs = append(errs, ErrClientRequired)
	}
	if p.Amount <= 0 {
		errs = append(errs, ErrInvalidAmount)
	}
	if !p.Method.Valid() {
		errs = append(errs, ErrInvalidPaymentMethod)
	}

	return errs
}

// PaymentPosting связывает обновлённый заказ и созданный для него платёж.
// Оба изменения сохраняются атомарно.
type PaymentPosting struct {
	Order   Order
	Payment Payment
}
