package dto

import "github.com/shopspring/decimal"

type CategoryTotal struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount" swaggertype:"string"`
	Percent  decimal.Decimal `json:"percent" swaggertype:"string" example:"23.45"`
	Count    int             `json:"count"`
}

type MonthTotal struct {
	Month  string          `json:"month" example:"2026-03"`
	Spent  decimal.Decimal `json:"spent" swaggertype:"string"`
	Income decimal.Decimal `json:"income" swaggertype:"string"`
}

type MerchantTotal struct {
	Merchant string          `json:"merchant"`
	Amount   decimal.Decimal `json:"amount" swaggertype:"string"`
	Count    int             `json:"count"`
}

type SpendingSummaryResponse struct {
	Start        string          `json:"start" example:"2026-03-01"`
	End          string          `json:"end" example:"2026-03-31"`
	TotalSpent   decimal.Decimal `json:"total_spent" swaggertype:"string"`
	TotalIncome  decimal.Decimal `json:"total_income" swaggertype:"string"`
	Net          decimal.Decimal `json:"net" swaggertype:"string"`
	ByCategory   []CategoryTotal `json:"by_category"`
	ByMonth      []MonthTotal    `json:"by_month"`
	TopMerchants []MerchantTotal `json:"top_merchants"`
}

type RecurringStreamResponse struct {
	Merchant      string          `json:"merchant"`
	Category      string          `json:"category"`
	Frequency     string          `json:"frequency" example:"monthly"`
	AverageAmount decimal.Decimal `json:"average_amount" swaggertype:"string"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount" swaggertype:"string"`
	LastDate      string          `json:"last_date"`
	NextDate      string          `json:"next_date"`
	Occurrences   int             `json:"occurrences"`
	Source        string          `json:"source" example:"heuristic"`
}

type RecurringResponse struct {
	Streams      []RecurringStreamResponse `json:"streams"`
	MonthlyTotal decimal.Decimal           `json:"monthly_total" swaggertype:"string"`
}
