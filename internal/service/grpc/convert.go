package grpcsvc

import (
	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/ledger"
	ledgerv1 "github.com/vladislavdragonenkov/muzbazar/proto/ledger/v1"
)

func toProtoOrder(order domain.Order) *ledgerv1.Order {
	items := make([]*ledgerv1.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, &ledgerv1.OrderItem{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Quantity:     item.Quantity,
			PricePerUnit: item.PricePerUnit,
			TotalPrice:   item.TotalPrice,
		})
	}

	out := &ledgerv1.Order{
		ID:       order.ID,
		Number:   order.Number,
		ClientID: order.ClientID,
		Items:    items,
		TotalSum: order.TotalSum,
		PaidSum:  order.PaidSum,
		Debt:     order.Debt,
		Status:   string(order.Status),
		Version:  order.Version,
	}
	if !order.CreatedAt.IsZero() {
		out.CreatedAtUnix = order.CreatedAt.Unix()
	}
	if !order.UpdatedAt.IsZero() {
		out.UpdatedAtUnix = order.UpdatedAt.Unix()
	}
	return out
}

func toProtoOrders(orders []domain.Order) []*ledgerv1.Order {
	result := make([]*ledgerv1.Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, toProtoOrder(order))
	}
	return result
}

func toProtoPayment(payment domain.Payment) *ledgerv1.Payment {
	out := &ledgerv1.Payment{
		ID:        payment.ID,
		OrderID:   payment.OrderID,
		ClientID:  payment.ClientID,
		Amount:    payment.Amount,
		Method:    string(payment.Method),
		Notes:     payment.Notes,
		SellerID:  payment.SellerID,
		AdminName: payment.AdminName,
	}
	if !payment.CreatedAt.IsZero() {
		out.CreatedAtUnix = payment.CreatedAt.Unix()
	}
	return out
}

func toProtoPaymentResult(result ledger.PaymentResult) *ledgerv1.ApplyPaymentResponse {
	payments := make([]*ledgerv1.Payment, 0, len(result.Payments))
	for _, payment := range result.Payments {
		payments = append(payments, toProtoPayment(payment))
	}
	return &ledgerv1.ApplyPaymentResponse{
		Orders:          toProtoOrders(result.Orders),
		Payments:        payments,
		Applied:         result.Applied,
		Unapplied:       result.Unapplied,
		TotalDebt:       result.TotalDebt,
		TotalDebtSynced: result.TotalDebtSynced,
	}
}

func toProtoStock(report domain.StockReport) []*ledgerv1.StockAdjustment {
	if len(report.Adjustments) == 0 {
		return nil
	}
	result := make([]*ledgerv1.StockAdjustment, 0, len(report.Adjustments))
	for _, adj := range report.Adjustments {
		out := &ledgerv1.StockAdjustment{ProductID: adj.ProductID, Delta: adj.Delta, Stock: adj.Stock}
		if adj.Err != nil {
			out.Error = adj.Err.Error()
		}
		result = append(result, out)
	}
	return result
}

func toProtoClient(client domain.Client) *ledgerv1.Client {
	return &ledgerv1.Client{
		ID:         client.ID,
		Name:       client.Name,
		Phone:      client.Phone,
		TelegramID: client.TelegramID,
		Role:       string(client.Role),
		TotalDebt:  client.TotalDebt,
	}
}
