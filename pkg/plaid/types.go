package plaid

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Error is Plaid's error envelope. Returned for every non-2xx response.
type Error struct {
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`
	StatusCode     int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("plaid %s/%s (status %d, request %s): %s", e.ErrorType, e.ErrorCode, e.StatusCode, e.RequestID, e.ErrorMessage)
}

// Error codes the services branch on.
const (
	CodeItemLoginRequired        = "ITEM_LOGIN_REQUIRED"
	CodeItemNotFound             = "ITEM_NOT_FOUND"
	CodeInvalidAccessToken       = "INVALID_ACCESS_TOKEN"
	CodeMutationDuringPagination = "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION"
	CodeProductNotReady          = "PRODUCT_NOT_READY"
)

// Webhook types and codes.
const (
	WebhookTypeTransactions      = "TRANSACTIONS"
	WebhookTypeItem              = "ITEM"
	WebhookSyncUpdatesAvailable  = "SYNC_UPDATES_AVAILABLE"
	WebhookItemError             = "ERROR"
	WebhookItemPendingExpiration = "PENDING_EXPIRATION"
	WebhookItemLoginRepaired     = "LOGIN_REPAIRED"
	WebhookItemPermissionRevoked = "USER_PERMISSION_REVOKED"
)

type LinkTokenUser struct {
	ClientUserID string `json:"client_user_id"`
}

type LinkTokenRequest struct {
	ClientName   string        `json:"client_name"`
	Language     string        `json:"language"`
	CountryCodes []string      `json:"country_codes"`
	User         LinkTokenUser `json:"user"`
	Products     []string      `json:"products,omitempty"`
	Webhook      string        `json:"webhook,omitempty"`
	RedirectURI  string        `json:"redirect_uri,omitempty"`
	// AccessToken switches Link into update mode for an existing item.
	AccessToken string `json:"access_token,omitempty"`
}

type LinkTokenResponse struct {
	LinkToken  string `json:"link_token"`
	Expiration string `json:"expiration"`
	RequestID  string `json:"request_id"`
}

type ExchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

type Item struct {
	ItemID        string `json:"item_id"`
	InstitutionID string `json:"institution_id"`
	Webhook       string `json:"webhook"`
	Error         *Error `json:"error"`
}

type Balances struct {
	Available       *decimal.Decimal `json:"available"`
	Current         *decimal.Decimal `json:"current"`
	Limit           *decimal.Decimal `json:"limit"`
	IsoCurrencyCode string           `json:"iso_currency_code"`
}

type Account struct {
	AccountID    string   `json:"account_id"`
	Name         string   `json:"name"`
	OfficialName string   `json:"official_name"`
	Mask         string   `json:"mask"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype"`
	Balances     Balances `json:"balances"`
}

type AccountsResponse struct {
	Accounts  []Account `json:"accounts"`
	Item      Item      `json:"item"`
	RequestID string    `json:"request_id"`
}

type PersonalFinanceCategory struct {
	Primary         string `json:"primary"`
	Detailed        string `json:"detailed"`
	ConfidenceLevel string `json:"confidence_level"`
}

type Transaction struct {
	TransactionID           string                   `json:"transaction_id"`
	AccountID               string                   `json:"account_id"`
	Amount                  decimal.Decimal          `json:"amount"`
	IsoCurrencyCode         string                   `json:"iso_currency_code"`
	Date                    string                   `json:"date"`
	Name                    string                   `json:"name"`
	MerchantName            string                   `json:"merchant_name"`
	Pending                 bool                     `json:"pending"`
	PaymentChannel          string                   `json:"payment_channel"`
	PersonalFinanceCategory *PersonalFinanceCategory `json:"personal_finance_category"`
}

type RemovedTransaction struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
}

type SyncResponse struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
	RequestID  string               `json:"request_id"`
}

type StreamAmount struct {
	Amount          decimal.Decimal `json:"amount"`
	IsoCurrencyCode string          `json:"iso_currency_code"`
}

type RecurringStream struct {
	StreamID                string                   `json:"stream_id"`
	AccountID               string                   `json:"account_id"`
	Description             string                   `json:"description"`
	MerchantName            string                   `json:"merchant_name"`
	FirstDate               string                   `json:"first_date"`
	LastDate                string                   `json:"last_date"`
	Frequency               string                   `json:"frequency"`
	TransactionIDs          []string                 `json:"transaction_ids"`
	AverageAmount           StreamAmount             `json:"average_amount"`
	LastAmount              StreamAmount             `json:"last_amount"`
	IsActive                bool                     `json:"is_active"`
	Status                  string                   `json:"status"`
	PersonalFinanceCategory *PersonalFinanceCategory `json:"personal_finance_category"`
}

type RecurringResponse struct {
	InflowStreams   []RecurringStream `json:"inflow_streams"`
	OutflowStreams  []RecurringStream `json:"outflow_streams"`
	UpdatedDatetime string            `json:"updated_datetime"`
	RequestID       string            `json:"request_id"`
}

// JWK is a webhook verification key.
type JWK struct {
	Alg       string `json:"alg"`
	Crv       string `json:"crv"`
	Kid       string `json:"kid"`
	Kty       string `json:"kty"`
	Use       string `json:"use"`
	X         string `json:"x"`
	Y         string `json:"y"`
	CreatedAt int64  `json:"created_at"`
	ExpiredAt *int64 `json:"expired_at"`
}

// Webhook is the subset of webhook payload fields the service reacts to.
type Webhook struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
	Error       *Error `json:"error"`
	Environment string `json:"environment"`
}
