package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Frequency string

const (
	FrequencyWeekly      Frequency = "weekly"
	FrequencyBiweekly    Frequency = "biweekly"
	FrequencySemiMonthly Frequency = "semimonthly"
	FrequencyMonthly     Frequency = "monthly"
	FrequencyQuarterly   Frequency = "quarterly"
	FrequencyAnnually    Frequency = "annually"
)

const (
	RecurringSourcePlaid     = "plaid"
	RecurringSourceHeuristic = "heuristic"
)

type RecurringStream struct {
	ID            uuid.UUID       `db:"id"`
	UserID        uuid.UUID       `db:"user_id"`
	Merchant      string          `db:"merchant"`
	Category      string          `db:"category"`
	Frequency     Frequency       `db:"frequency"`
	AverageAmount decimal.Decimal `db:"average_amount"`
	MonthlyAmount decimal.Decimal `db:"monthly_amount"`
	LastDate      time.Time       `db:"last_date"`
	NextDate      time.Time       `db:"next_date"`
	Occurrences   int             `db:"occurrences"`
	Source        string          `db:"source"`
	CreatedAt     time.Time       `db:"created_at"`
}
