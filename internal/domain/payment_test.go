package domain

import (
	"testing"
	"time"
)

func TestPayment_Validate(t *testing.T) {
	tests := []struct {
		name     string
		payment  *Payment
		errCount int
	}{
		{
			name: "valid payment",
			payment: &Payment{
				OrderID:   "order-123",
				ClientID:  "client-1",
				Amount:    1000,
				Method:    PaymentMethodCash,
				CreatedAt: time.Now(),
			},
			errCount: 0,
		},
		{
			name:     "missing order and client",
			payment:  &Payment{Amount: 1000, Method: PaymentMethodCard},
			errCount: 2,
		},
		{
			name:     "zero amount",
			payment:  &Payment{OrderID: "order-1", ClientID: "client-1", Method: PaymentMethodTransfer},
			errCount: 1,
		},
		{
			name:     "unknown method",
			payment:  &Payment{OrderID: "order-1", ClientID: "client-1", Amount: 5, Method: "crypto"},
			errCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.payment.Validate()
			if len(errs) != tt.errCount {
				t.Errorf("Validate() returned %d errors, want %d: %v", len(errs), tt.errCount, errs)
			}
		})
	}
}

func TestPaymentMethod_OrDefault(t *testing.T) {
	if got := PaymentMethod("").OrDefault(); got != PaymentMethodCash {
		t.Fatalf("expected cash default, got %q", got)
	}
	if got := PaymentMethodCard.OrDefault(); got != PaymentMethodCard {
		t.Fatalf("expected card to stay, got %q", got)
	}
}

func TestStockReport_Failed(t *testing.T) {
	report := StockReport{
		Direction: StockRestore,
		Adjustments: []StockAdjustment{
			{ProductID: "p1", Delta: 2, Stock: 10},
			{ProductID: "p2", Delta: 1, Err: ErrProductNotFound},
		},
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].ProductID != "p2" {
		t.Fatalf("unexpected failed adjustments: %+v", failed)
	}
	if report.Complete() {
		t.Fatal("report with failure must not be complete")
	}
}

func TestProduct_IsLowStock(t *testing.T) {
	if !(Product{Stock: 3, MinStock: 5}).IsLowStock() {
		t.Fatal("expected low stock")
	}
	if (Product{Stock: 30, MinStock: 5}).IsLowStock() {
		t.Fatal("expected normal stock")
	}
}
