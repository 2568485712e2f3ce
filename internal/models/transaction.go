package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction amounts follow Plaid's sign: positive is money out.
type Transaction struct {
	ID                 uuid.UUID       `db:"id"`
	UserID             uuid.UUID       `db:"user_id"`
	AccountID          uuid.UUID       `db:"account_id"`
	PlaidTransactionID string          `db:"plaid_transaction_id"`
	Name               string          `db:"name"`
	MerchantName       string          `db:"merchant_name"`
	Amount             decimal.Decimal `db:"amount"`
	IsoCurrencyCode    string          `db:"iso_currency_code"`
	Date               time.Time       `db:"date"`
	Pending            bool            `db:"pending"`
	Category           string          `db:"category"`
	CategoryDetailed   string          `db:"category_detailed"`
	CategoryOverride   string          `db:"category_override"`
	PaymentChannel     string          `db:"payment_channel"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

// EffectiveCategory prefers the user's override.
func (t *Transaction) EffectiveCategory() string {
	if t.CategoryOverride != "" {
		return t.CategoryOverride
	}
	return t.Category
}

// DisplayName is the merchant when Plaid resolved one, else the raw name.
func (t *Transaction) DisplayName() string {
	if t.MerchantName != "" {
		return t.MerchantName
	}
	return t.Name
}

type TransactionFilter struct {
	AccountID *uuid.UUID
	Category  string
	StartDate *time.Time
	EndDate   *time.Time
	Search    string
	Pending   *bool
	Limit     uint64
	Offset    uint64
}
