// Package plaid is a small JSON client for the Plaid endpoints the dashboard
// uses: Link, item management, accounts, transactions sync and recurring
// streams, plus webhook verification.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"finboard/pkg/config"
	"finboard/pkg/metrics"

	"go.uber.org/zap"
)

var baseURLs = map[string]string{
	"sandbox":     "https://sandbox.plaid.com",
	"development": "https://development.plaid.com",
	"production":  "https://production.plaid.com",
}

type Client struct {
	baseURL    string
	clientID   string
	secret     string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics

	keysMu sync.Mutex
	keys   map[string]*JWK
	now    func() time.Time
}

type Option func(*Client)

// WithBaseURL points the client at a different host, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(cfg *config.PlaidConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	base, ok := baseURLs[cfg.Env]
	if !ok {
		return nil, fmt.Errorf("unknown plaid environment %q", cfg.Env)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    base,
		clientID:   cfg.ClientID,
		secret:     cfg.Secret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		keys:       make(map[string]*JWK),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// call POSTs body (with credentials merged in) to path and decodes into out.
func (c *Client) call(ctx context.Context, operation, path string, body map[string]any, out any) (err error) {
	defer func() { c.metrics.UpstreamCall("plaid", operation, err) }()

	if body == nil {
		body = map[string]any{}
	}
	body["client_id"] = c.clientID
	body["secret"] = c.secret

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Plaid-Version", "2020-09-14")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("plaid %s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		plaidErr := &Error{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(bodyBytes, plaidErr); jsonErr != nil || plaidErr.ErrorCode == "" {
			plaidErr.ErrorType = "API_ERROR"
			plaidErr.ErrorCode = "UNKNOWN"
			plaidErr.ErrorMessage = strings.TrimSpace(string(bodyBytes))
		}
		c.logger.Warn("Plaid request failed",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.String("error_code", plaidErr.ErrorCode),
			zap.String("request_id", plaidErr.RequestID),
		)
		return plaidErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) CreateLinkToken(ctx context.Context, req LinkTokenRequest) (*LinkTokenResponse, error) {
	language := req.Language
	if language == "" {
		language = "en"
	}
	body := map[string]any{
		"client_name":   req.ClientName,
		"language":      language,
		"country_codes": req.CountryCodes,
		"user":          req.User,
	}
	if req.AccessToken != "" {
		body["access_token"] = req.AccessToken
	} else if len(req.Products) > 0 {
		body["products"] = req.Products
	}
	if req.Webhook != "" {
		body["webhook"] = req.Webhook
	}
	if req.RedirectURI != "" {
		body["redirect_uri"] = req.RedirectURI
	}

	var out LinkTokenResponse
	if err := c.call(ctx, "link_token_create", "/link/token/create", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResponse, error) {
	var out ExchangeResponse
	err := c.call(ctx, "public_token_exchange", "/item/public_token/exchange",
		map[string]any{"public_token": publicToken}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetItem(ctx context.Context, accessToken string) (*Item, error) {
	var out struct {
		Item Item `json:"item"`
	}
	if err := c.call(ctx, "item_get", "/item/get", map[string]any{"access_token": accessToken}, &out); err != nil {
		return nil, err
	}
	return &out.Item, nil
}

// GetInstitutionName resolves an institution id to its display name.
func (c *Client) GetInstitutionName(ctx context.Context, institutionID string, countryCodes []string) (string, error) {
	var out struct {
		Institution struct {
			Name string `json:"name"`
		} `json:"institution"`
	}
	err := c.call(ctx, "institution_get", "/institutions/get_by_id", map[string]any{
		"institution_id": institutionID,
		"country_codes":  countryCodes,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Institution.Name, nil
}

// GetAccounts returns cached balances.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) (*AccountsResponse, error) {
	var out AccountsResponse
	if err := c.call(ctx, "accounts_get", "/accounts/get", map[string]any{"access_token": accessToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalances forces a real-time balance fetch from the institution.
func (c *Client) GetBalances(ctx context.Context, accessToken string) (*AccountsResponse, error) {
	var out AccountsResponse
	if err := c.call(ctx, "accounts_balance_get", "/accounts/balance/get", map[string]any{"access_token": accessToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncTransactions fetches one page of /transactions/sync. An empty cursor
// starts from the beginning of the item's history.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string, count int) (*SyncResponse, error) {
	body := map[string]any{"access_token": accessToken}
	if cursor != "" {
		body["cursor"] = cursor
	}
	if count > 0 {
		body["count"] = count
	}
	var out SyncResponse
	if err := c.call(ctx, "transactions_sync", "/transactions/sync", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetRecurring(ctx context.Context, accessToken string) (*RecurringResponse, error) {
	var out RecurringResponse
	if err := c.call(ctx, "transactions_recurring_get", "/transactions/recurring/get", map[string]any{"access_token": accessToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveItem(ctx context.Context, accessToken string) error {
	return c.call(ctx, "item_remove", "/item/remove", map[string]any{"access_token": accessToken}, nil)
}

func (c *Client) getVerificationKey(ctx context.Context, kid string) (*JWK, error) {
	var out struct {
		Key JWK `json:"key"`
	}
	if err := c.call(ctx, "webhook_verification_key_get", "/webhook_verification_key/get", map[string]any{"key_id": kid}, &out); err != nil {
		return nil, err
	}
	return &out.Key, nil
}

// ErrorCode extracts the Plaid error code from err, or "".
func ErrorCode(err error) string {
	var plaidErr *Error
	if errors.As(err, &plaidErr) {
		return plaidErr.ErrorCode
	}
	return ""
}
