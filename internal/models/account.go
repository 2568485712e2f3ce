package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plaid account types.
const (
	AccountTypeDepository = "depository"
	AccountTypeCredit     = "credit"
	AccountTypeLoan       = "loan"
	AccountTypeInvestment = "investment"
)

type Account struct {
	ID               uuid.UUID           `db:"id"`
	UserID           uuid.UUID           `db:"user_id"`
	ItemID           uuid.UUID           `db:"item_id"`
	PlaidAccountID   string              `db:"plaid_account_id"`
	Name             string              `db:"name"`
	OfficialName     string              `db:"official_name"`
	Mask             string              `db:"mask"`
	Type             string              `db:"type"`
	Subtype          string              `db:"subtype"`
	CurrentBalance   decimal.Decimal     `db:"current_balance"`
	AvailableBalance decimal.NullDecimal `db:"available_balance"`
	CreditLimit      decimal.NullDecimal `db:"credit_limit"`
	IsoCurrencyCode  string              `db:"iso_currency_code"`
	CreatedAt        time.Time           `db:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at"`

	// InstitutionName is joined from plaid_items on reads.
	InstitutionName string `db:"-"`
}

func (a *Account) IsAsset() bool {
	return a.Type == AccountTypeDepository || a.Type == AccountTypeInvestment
}

func (a *Account) IsLiability() bool {
	return a.Type == AccountTypeCredit || a.Type == AccountTypeLoan
}
