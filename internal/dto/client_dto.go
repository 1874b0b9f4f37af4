package dto

import "github.com/shopspring/decimal"

type CreateClientRequest struct {
	Name    string  `json:"name"    validate:"required,min=2"`
	Phone   string  `json:"phone"   validate:"required,min=6"`
	Email   *string `json:"email"   validate:"omitempty,email"`
	Address *string `json:"address"`
}

type ClientResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Phone         string          `json:"phone"`
	Email         *string         `json:"email,omitempty"`
	Address       *string         `json:"address,omitempty"`
	Status        string          `json:"status"`
	TotalOrders   int             `json:"total_orders"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	LastOrderDate *string         `json:"last_order_date,omitempty"`
	RegisteredAt  string          `json:"registered_at"`
}

type ClientListResponse struct {
	Data  []ClientResponse `json:"data"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}
