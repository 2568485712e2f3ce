package service

import (
	"context"
	"fmt"

	"finboard/internal/dto"
	"finboard/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AccountService struct {
	plaid    PlaidClient
	items    ItemStore
	accounts AccountStore
	sealer   TokenSealer
	logger   *zap.Logger
}

func NewAccountService(
	client PlaidClient,
	items ItemStore,
	accounts AccountStore,
	sealer TokenSealer,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		plaid:    client,
		items:    items,
		accounts: accounts,
		sealer:   sealer,
		logger:   logger,
	}
}

// ListAccounts returns the user's accounts with asset, liability and net worth totals.
func (s *AccountService) ListAccounts(ctx context.Context, userID uuid.UUID) (*dto.AccountsResponse, error) {
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	resp := &dto.AccountsResponse{Accounts: make([]dto.AccountResponse, 0, len(accounts))}
	resp.Assets, resp.Liabilities, resp.NetWorth = netWorth(accounts)
	for _, a := range accounts {
		resp.Accounts = append(resp.Accounts, toAccountResponse(a))
	}
	return resp, nil
}

func (s *AccountService) GetAccount(ctx context.Context, userID, accountID uuid.UUID) (*dto.AccountResponse, error) {
	a, err := s.accounts.GetByID(ctx, userID, accountID)
	if err != nil {
		return nil, notFound("account", err)
	}
	resp := toAccountResponse(a)
	return &resp, nil
}

// RefreshBalances pulls real-time balances for every item of the user. Items
// that fail are flagged and skipped; the refreshed list is returned either way.
func (s *AccountService) RefreshBalances(ctx context.Context, userID uuid.UUID) (*dto.AccountsResponse, error) {
	if s.plaid == nil {
		return nil, ErrNotConfigured
	}

	items, err := s.items.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	for _, item := range items {
		if item.Status == models.ItemStatusRevoked {
			continue
		}
		if err := s.refreshItem(ctx, item); err != nil {
			s.logger.Warn("Balance refresh failed",
				zap.String("item_id", item.ID.String()),
				zap.Error(err),
			)
			if status, code := itemStatusFor(err); status != "" {
				if uerr := s.items.UpdateStatus(ctx, item.ID, status, code); uerr != nil {
					s.logger.Error("Failed to record item status", zap.Error(uerr))
				}
			}
		}
	}

	return s.ListAccounts(ctx, userID)
}

func (s *AccountService) refreshItem(ctx context.Context, item *models.Item) error {
	token, err := openAccessToken(s.sealer, item)
	if err != nil {
		return err
	}
	resp, err := s.plaid.GetBalances(ctx, token)
	if err != nil {
		return err
	}
	return s.accounts.UpsertBatch(ctx, toAccountModels(item.UserID, item.ID, resp.Accounts))
}

// netWorth sums current balances: depository and investment accounts are
// assets, credit and loan accounts are liabilities.
func netWorth(accounts []*models.Account) (assets, liabilities, net decimal.Decimal) {
	for _, a := range accounts {
		switch {
		case a.IsAsset():
			assets = assets.Add(a.CurrentBalance)
		case a.IsLiability():
			liabilities = liabilities.Add(a.CurrentBalance)
		}
	}
	return assets, liabilities, assets.Sub(liabilities)
}

func toAccountResponse(a *models.Account) dto.AccountResponse {
	resp := dto.AccountResponse{
		ID:              a.ID.String(),
		ItemID:          a.ItemID.String(),
		InstitutionName: a.InstitutionName,
		Name:            a.Name,
		OfficialName:    a.OfficialName,
		Mask:            a.Mask,
		Type:            a.Type,
		Subtype:         a.Subtype,
		CurrentBalance:  a.CurrentBalance,
		IsoCurrencyCode: a.IsoCurrencyCode,
	}
	if a.AvailableBalance.Valid {
		v := a.AvailableBalance.Decimal
		resp.AvailableBalance = &v
	}
	if a.CreditLimit.Valid {
		v := a.CreditLimit.Decimal
		resp.CreditLimit = &v
	}
	return resp
}
