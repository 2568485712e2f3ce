package dto

import "github.com/shopspring/decimal"

type AccountResponse struct {
	ID               string           `json:"id"`
	ItemID           string           `json:"item_id"`
	InstitutionName  string           `json:"institution_name"`
	Name             string           `json:"name"`
	OfficialName     string           `json:"official_name,omitempty"`
	Mask             string           `json:"mask"`
	Type             string           `json:"type" example:"depository"`
	Subtype          string           `json:"subtype"`
	CurrentBalance   decimal.Decimal  `json:"current_balance" swaggertype:"string" example:"1234.56"`
	AvailableBalance *decimal.Decimal `json:"available_balance" swaggertype:"string"`
	CreditLimit      *decimal.Decimal `json:"credit_limit" swaggertype:"string"`
	IsoCurrencyCode  string           `json:"iso_currency_code" example:"USD"`
}

type AccountsResponse struct {
	Accounts    []AccountResponse `json:"accounts"`
	Assets      decimal.Decimal   `json:"assets" swaggertype:"string"`
	Liabilities decimal.Decimal   `json:"liabilities" swaggertype:"string"`
	NetWorth    decimal.Decimal   `json:"net_worth" swaggertype:"string"`
}
