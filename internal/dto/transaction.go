package dto

import "github.com/shopspring/decimal"

type TransactionResponse struct {
	ID               string          `json:"id"`
	AccountID        string          `json:"account_id"`
	Name             string          `json:"name"`
	MerchantName     string          `json:"merchant_name,omitempty"`
	Amount           decimal.Decimal `json:"amount" swaggertype:"string" example:"12.50"`
	IsoCurrencyCode  string          `json:"iso_currency_code"`
	Date             string          `json:"date" example:"2026-03-14"`
	Pending          bool            `json:"pending"`
	Category         string          `json:"category" example:"FOOD_AND_DRINK"`
	CategoryDetailed string          `json:"category_detailed,omitempty"`
	// Overridden is true when Category was set by the user.
	Overridden     bool   `json:"overridden"`
	PaymentChannel string `json:"payment_channel,omitempty"`
}

type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Total        int                   `json:"total"`
	Limit        uint64                `json:"limit"`
	Offset       uint64                `json:"offset"`
}

type UpdateCategoryRequest struct {
	// Category is a category name; empty clears the override.
	Category string `json:"category" example:"TRAVEL"`
}
