package service

import (
	"context"
	"fmt"
	"strings"

	"finboard/internal/dto"
	"finboard/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
	maxCategoryLength       = 64
)

type TransactionService struct {
	txs    TransactionStore
	logger *zap.Logger
}

func NewTransactionService(txs TransactionStore, logger *zap.Logger) *TransactionService {
	return &TransactionService{
		txs:    txs,
		logger: logger,
	}
}

// ListTransactions returns one page of the user's transactions, newest first,
// with the total count matching the filter.
func (s *TransactionService) ListTransactions(ctx context.Context, userID uuid.UUID, f models.TransactionFilter) (*dto.TransactionListResponse, error) {
	switch {
	case f.Limit == 0:
		f.Limit = defaultTransactionLimit
	case f.Limit > maxTransactionLimit:
		f.Limit = maxTransactionLimit
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidInput)
	}
	f.Category = strings.ToUpper(strings.TrimSpace(f.Category))
	f.Search = strings.TrimSpace(f.Search)

	txs, total, err := s.txs.List(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	resp := &dto.TransactionListResponse{
		Transactions: make([]dto.TransactionResponse, 0, len(txs)),
		Total:        total,
		Limit:        f.Limit,
		Offset:       f.Offset,
	}
	for _, t := range txs {
		resp.Transactions = append(resp.Transactions, toTransactionResponse(t))
	}
	return resp, nil
}

// UpdateTransactionCategory sets the user's category override. An empty
// category clears it and the synced category applies again.
func (s *TransactionService) UpdateTransactionCategory(ctx context.Context, userID, txID uuid.UUID, category string) (*dto.TransactionResponse, error) {
	category = strings.ToUpper(strings.TrimSpace(category))
	category = strings.ReplaceAll(category, " ", "_")
	if len(category) > maxCategoryLength {
		return nil, fmt.Errorf("%w: category longer than %d characters", ErrInvalidInput, maxCategoryLength)
	}

	if err := s.txs.SetCategoryOverride(ctx, userID, txID, category); err != nil {
		return nil, notFound("transaction", err)
	}
	t, err := s.txs.GetByID(ctx, userID, txID)
	if err != nil {
		return nil, notFound("transaction", err)
	}

	s.logger.Info("Transaction category updated",
		zap.String("transaction_id", txID.String()),
		zap.String("category", category),
	)
	resp := toTransactionResponse(t)
	return &resp, nil
}

func toTransactionResponse(t *models.Transaction) dto.TransactionResponse {
	return dto.TransactionResponse{
		ID:               t.ID.String(),
		AccountID:        t.AccountID.String(),
		Name:             t.Name,
		MerchantName:     t.MerchantName,
		Amount:           t.Amount,
		IsoCurrencyCode:  t.IsoCurrencyCode,
		Date:             t.Date.Format("2006-01-02"),
		Pending:          t.Pending,
		Category:         t.EffectiveCategory(),
		CategoryDetailed: t.CategoryDetailed,
		Overridden:       t.CategoryOverride != "",
		PaymentChannel:   t.PaymentChannel,
	}
}
