package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finboard/internal/dto"
	"finboard/internal/models"
	"finboard/pkg/config"
	"finboard/pkg/logger"
	"finboard/pkg/plaid"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ItemSyncer starts a background sync for a freshly linked or updated item.
type ItemSyncer interface {
	Trigger(item *models.Item)
}

type PlaidService struct {
	plaid    PlaidClient
	items    ItemStore
	accounts AccountStore
	sealer   TokenSealer
	syncer   ItemSyncer
	cfg      *config.PlaidConfig
	logger   *zap.Logger
}

// NewPlaidService accepts a nil client when Plaid credentials are absent; every
// operation then fails with ErrNotConfigured.
func NewPlaidService(
	client PlaidClient,
	items ItemStore,
	accounts AccountStore,
	sealer TokenSealer,
	syncer ItemSyncer,
	cfg *config.PlaidConfig,
	logger *zap.Logger,
) *PlaidService {
	return &PlaidService{
		plaid:    client,
		items:    items,
		accounts: accounts,
		sealer:   sealer,
		syncer:   syncer,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *PlaidService) CreateLinkToken(ctx context.Context, userID uuid.UUID) (*dto.LinkTokenResponse, error) {
	if s.plaid == nil {
		return nil, ErrNotConfigured
	}

	resp, err := s.plaid.CreateLinkToken(ctx, s.linkRequest(userID, ""))
	if err != nil {
		return nil, upstream("create link token", err)
	}
	return &dto.LinkTokenResponse{LinkToken: resp.LinkToken, Expiration: resp.Expiration}, nil
}

// CreateUpdateLinkToken returns a Link token in update mode so the user can
// re-authenticate an item that needs login.
func (s *PlaidService) CreateUpdateLinkToken(ctx context.Context, userID, itemID uuid.UUID) (*dto.LinkTokenResponse, error) {
	if s.plaid == nil {
		return nil, ErrNotConfigured
	}

	item, err := s.items.GetByID(ctx, userID, itemID)
	if err != nil {
		return nil, notFound("item", err)
	}
	token, err := openAccessToken(s.sealer, item)
	if err != nil {
		return nil, err
	}

	resp, err := s.plaid.CreateLinkToken(ctx, s.linkRequest(userID, token))
	if err != nil {
		return nil, upstream("create update link token", err)
	}
	return &dto.LinkTokenResponse{LinkToken: resp.LinkToken, Expiration: resp.Expiration}, nil
}

func (s *PlaidService) linkRequest(userID uuid.UUID, accessToken string) plaid.LinkTokenRequest {
	return plaid.LinkTokenRequest{
		ClientName:   s.cfg.ClientName,
		Language:     "en",
		CountryCodes: s.cfg.CountryCodes,
		User:         plaid.LinkTokenUser{ClientUserID: userID.String()},
		Products:     s.cfg.Products,
		Webhook:      s.cfg.WebhookURL,
		RedirectURI:  s.cfg.RedirectURI,
		AccessToken:  accessToken,
	}
}

// ExchangePublicToken stores the item behind a Link public token, loads its
// accounts and starts the first transaction sync in the background.
func (s *PlaidService) ExchangePublicToken(ctx context.Context, userID uuid.UUID, req *dto.ExchangeRequest) (*dto.ItemResponse, error) {
	if s.plaid == nil {
		return nil, ErrNotConfigured
	}
	if req.PublicToken == "" {
		return nil, fmt.Errorf("%w: public_token is required", ErrInvalidInput)
	}

	exchange, err := s.plaid.ExchangePublicToken(ctx, req.PublicToken)
	if err != nil {
		return nil, upstream("exchange public token", err)
	}

	sealed, err := s.sealer.Seal(exchange.AccessToken, userID.String())
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}

	institutionID := req.InstitutionID
	if institutionID == "" {
		if plaidItem, err := s.plaid.GetItem(ctx, exchange.AccessToken); err != nil {
			s.logger.Warn("Failed to load item metadata", zap.String("plaid_item_id", exchange.ItemID), zap.Error(err))
		} else {
			institutionID = plaidItem.InstitutionID
		}
	}

	item := &models.Item{
		ID:                   uuid.New(),
		UserID:               userID,
		PlaidItemID:          exchange.ItemID,
		AccessTokenEncrypted: sealed,
		InstitutionID:        institutionID,
		InstitutionName:      req.InstitutionName,
	}
	if item.InstitutionName == "" && item.InstitutionID != "" {
		name, err := s.plaid.GetInstitutionName(ctx, item.InstitutionID, s.cfg.CountryCodes)
		if err != nil {
			s.logger.Warn("Failed to resolve institution name",
				zap.String("institution_id", item.InstitutionID),
				zap.Error(err),
			)
		} else {
			item.InstitutionName = name
		}
	}

	if err := s.items.Upsert(ctx, item); err != nil {
		return nil, fmt.Errorf("save item: %w", err)
	}

	accounts, err := s.plaid.GetAccounts(ctx, exchange.AccessToken)
	if err != nil {
		return nil, upstream("get accounts", err)
	}
	if err := s.accounts.UpsertBatch(ctx, toAccountModels(userID, item.ID, accounts.Accounts)); err != nil {
		return nil, fmt.Errorf("save accounts: %w", err)
	}

	s.logger.Info("Plaid item linked",
		zap.String("user_id", userID.String()),
		zap.String("item_id", item.ID.String()),
		zap.String("institution", item.InstitutionName),
		zap.Int("accounts", len(accounts.Accounts)),
		logger.RedactToken(exchange.AccessToken),
	)

	if s.syncer != nil {
		s.syncer.Trigger(item)
	}

	item.CreatedAt = time.Now()
	resp := toItemResponse(item)
	return &resp, nil
}

func (s *PlaidService) ListItems(ctx context.Context, userID uuid.UUID) ([]dto.ItemResponse, error) {
	items, err := s.items.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	out := make([]dto.ItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItemResponse(it))
	}
	return out, nil
}

// RemoveItem revokes the item at Plaid and deletes it with its accounts and
// transactions. An item Plaid no longer knows about is still deleted locally.
func (s *PlaidService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	if s.plaid == nil {
		return ErrNotConfigured
	}

	item, err := s.items.GetByID(ctx, userID, itemID)
	if err != nil {
		return notFound("item", err)
	}
	token, err := openAccessToken(s.sealer, item)
	if err != nil {
		return err
	}

	if err := s.plaid.RemoveItem(ctx, token); err != nil {
		if plaid.ErrorCode(err) != plaid.CodeItemNotFound {
			return upstream("remove item", err)
		}
		s.logger.Warn("Item already removed at Plaid", zap.String("item_id", itemID.String()))
	}

	if err := s.items.Delete(ctx, userID, itemID); err != nil {
		return notFound("item", err)
	}

	s.logger.Info("Plaid item removed",
		zap.String("user_id", userID.String()),
		zap.String("item_id", itemID.String()),
	)
	return nil
}

// openAccessToken decrypts an item's Plaid access token. The user id is the
// associated data, so a token copied to another user's row fails to open.
func openAccessToken(sealer TokenSealer, item *models.Item) (string, error) {
	token, err := sealer.Open(item.AccessTokenEncrypted, item.UserID.String())
	if err != nil {
		return "", fmt.Errorf("open access token for item %s: %w", item.ID, err)
	}
	return token, nil
}

func toAccountModels(userID, itemID uuid.UUID, accounts []plaid.Account) []*models.Account {
	out := make([]*models.Account, 0, len(accounts))
	for _, a := range accounts {
		acc := &models.Account{
			ID:              uuid.New(),
			UserID:          userID,
			ItemID:          itemID,
			PlaidAccountID:  a.AccountID,
			Name:            a.Name,
			OfficialName:    a.OfficialName,
			Mask:            a.Mask,
			Type:            a.Type,
			Subtype:         a.Subtype,
			IsoCurrencyCode: a.Balances.IsoCurrencyCode,
		}
		if a.Balances.Current != nil {
			acc.CurrentBalance = *a.Balances.Current
		}
		if a.Balances.Available != nil {
			acc.AvailableBalance.Decimal = *a.Balances.Available
			acc.AvailableBalance.Valid = true
		}
		if a.Balances.Limit != nil {
			acc.CreditLimit.Decimal = *a.Balances.Limit
			acc.CreditLimit.Valid = true
		}
		out = append(out, acc)
	}
	return out
}

func toItemResponse(it *models.Item) dto.ItemResponse {
	resp := dto.ItemResponse{
		ID:              it.ID.String(),
		InstitutionID:   it.InstitutionID,
		InstitutionName: it.InstitutionName,
		Status:          string(it.Status),
		ErrorCode:       it.ErrorCode,
		CreatedAt:       formatTime(it.CreatedAt),
	}
	if it.LastSyncedAt != nil {
		ts := formatTime(*it.LastSyncedAt)
		resp.LastSyncedAt = &ts
	}
	return resp
}

// itemStatusFor maps a Plaid failure to the status recorded on the item.
func itemStatusFor(err error) (models.ItemStatus, string) {
	code := plaid.ErrorCode(err)
	switch {
	case code == plaid.CodeItemLoginRequired:
		return models.ItemStatusLoginRequired, code
	case code == "" && errors.Is(err, context.Canceled):
		return "", ""
	case code == "":
		return models.ItemStatusError, "INTERNAL_ERROR"
	default:
		return models.ItemStatusError, code
	}
}
