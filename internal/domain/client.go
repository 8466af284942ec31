package domain

import "time"

// ClientRole повторяет роли пользователей магазина.
type ClientRole string

const (
	ClientRoleAdmin  ClientRole = "admin"
	ClientRoleSeller ClientRole = "seller"
	ClientRoleClient ClientRole = "client"
)

// Client — покупатель с денормализованной суммой долга.
type Client struct {
	ID         string
	Name       string
	Phone      string
	TelegramID int64
	Role       ClientRole
	// TotalDebt равен сумме долгов по неотменённым заказам клиента.
	TotalDebt int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product — товар со складским остатком.
type Product struct {
	ID        string
	Name      string
	Stock     int64
	MinStock  int64
	SellPrice int64
	CostPrice int64
	UpdatedAt time.Time
}

// IsLowStock сообщает, что остаток опустился до минимального.
func (p Product) IsLowStock() bool {
	return p.Stock <= p.MinStock
}
