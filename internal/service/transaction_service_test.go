package service

import (
	"context"
	"testing"

	"finboard/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListTransactionsClampsLimit(t *testing.T) {
	txs := &fakeTransactions{}
	svc := NewTransactionService(txs, zap.NewNop())
	userID := uuid.New()

	resp, err := svc.ListTransactions(context.Background(), userID, models.TransactionFilter{Category: " food_and_drink "})
	require.NoError(t, err)
	assert.Equal(t, uint64(defaultTransactionLimit), resp.Limit)
	assert.Equal(t, "FOOD_AND_DRINK", txs.lastQuery.Category)
	assert.NotNil(t, resp.Transactions)

	resp, err = svc.ListTransactions(context.Background(), userID, models.TransactionFilter{Limit: 10_000, Offset: 20})
	require.NoError(t, err)
	assert.Equal(t, uint64(maxTransactionLimit), resp.Limit)
	assert.Equal(t, uint64(20), resp.Offset)

	start, end := day("2026-03-10"), day("2026-03-01")
	_, err = svc.ListTransactions(context.Background(), userID, models.TransactionFilter{StartDate: &start, EndDate: &end})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateTransactionCategory(t *testing.T) {
	userID := uuid.New()
	tx := txn("2026-03-03", "Corner Store", "20", "GENERAL_MERCHANDISE")
	tx.UserID = userID
	txs := &fakeTransactions{rows: []*models.Transaction{tx}}
	svc := NewTransactionService(txs, zap.NewNop())

	resp, err := svc.UpdateTransactionCategory(context.Background(), userID, tx.ID, "food and drink")
	require.NoError(t, err)
	assert.Equal(t, "FOOD_AND_DRINK", resp.Category)
	assert.True(t, resp.Overridden)

	resp, err = svc.UpdateTransactionCategory(context.Background(), userID, tx.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "GENERAL_MERCHANDISE", resp.Category)
	assert.False(t, resp.Overridden)

	_, err = svc.UpdateTransactionCategory(context.Background(), uuid.New(), tx.ID, "TRAVEL")
	assert.ErrorIs(t, err, ErrNotFound)
}
