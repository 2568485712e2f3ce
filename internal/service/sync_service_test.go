package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"finboard/internal/models"
	"finboard/pkg/categorize"
	"finboard/pkg/config"
	"finboard/pkg/metrics"
	"finboard/pkg/plaid"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type syncFixture struct {
	client   *fakePlaid
	items    *fakeItems
	accounts *fakeAccounts
	txs      *fakeTransactions
	metrics  *metrics.Metrics
	svc      *SyncService
	userID   uuid.UUID
	item     *models.Item
}

func newSyncFixture(t *testing.T, syncFn func(token, cursor string) (*plaid.SyncResponse, error)) *syncFixture {
	t.Helper()
	f := &syncFixture{
		client:   &fakePlaid{syncFn: syncFn, accounts: map[string][]plaid.Account{}},
		items:    &fakeItems{},
		accounts: &fakeAccounts{},
		txs:      &fakeTransactions{},
		metrics:  metrics.New(),
		userID:   uuid.New(),
	}
	f.item = &models.Item{
		ID:                   uuid.New(),
		UserID:               f.userID,
		PlaidItemID:          "item-1",
		AccessTokenEncrypted: sealFor(f.userID, "access-1"),
		Status:               models.ItemStatusActive,
		SyncCursor:           "cur-0",
	}
	f.items.add(f.item)
	require.NoError(t, f.accounts.UpsertBatch(context.Background(), []*models.Account{
		{ID: uuid.New(), UserID: f.userID, ItemID: f.item.ID, PlaidAccountID: "acc-1", Type: "depository"},
	}))

	f.svc = NewSyncService(f.client, f.items, f.accounts, f.txs, fakeSealer{}, categorize.Default(), f.metrics,
		config.SyncConfig{Concurrency: 2, PageSize: 100}, zap.NewNop())
	t.Cleanup(f.svc.Close)
	return f
}

func ptx(id, account, date, name, amount string) plaid.Transaction {
	return plaid.Transaction{
		TransactionID:   id,
		AccountID:       account,
		Date:            date,
		Name:            name,
		Amount:          decimal.RequireFromString(amount),
		IsoCurrencyCode: "USD",
	}
}

func TestSyncItemPagesUntilDone(t *testing.T) {
	pages := map[string]*plaid.SyncResponse{
		"cur-0": {Added: []plaid.Transaction{ptx("t1", "acc-1", "2026-03-01", "NETFLIX.COM", "15.49")}, NextCursor: "cur-1", HasMore: true},
		"cur-1": {
			Modified:   []plaid.Transaction{ptx("t0", "acc-1", "2026-02-27", "Payroll", "-2500")},
			Removed:    []plaid.RemovedTransaction{{TransactionID: "t-old"}},
			NextCursor: "cur-2",
		},
	}
	f := newSyncFixture(t, func(token, cursor string) (*plaid.SyncResponse, error) {
		assert.Equal(t, "access-1", token)
		return pages[cursor], nil
	})

	result, err := f.svc.SyncItem(context.Background(), f.item)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, 1, result.Removed)

	require.Len(t, f.txs.batches, 1)
	batch := f.txs.batches[0]
	assert.Equal(t, "cur-2", batch.Cursor)
	assert.Equal(t, []string{"t-old"}, batch.Removed)
	require.Len(t, batch.Upserts, 2)
	assert.Equal(t, "ENTERTAINMENT", batch.Upserts[0].Category)
	assert.Equal(t, f.userID, batch.Upserts[0].UserID)
	assert.Equal(t, "cur-2", f.item.SyncCursor)
	assert.NotNil(t, f.item.LastSyncedAt)

	expected := `
# HELP finboard_sync_transactions_total Transactions applied by Plaid sync, by kind.
# TYPE finboard_sync_transactions_total counter
finboard_sync_transactions_total{kind="added"} 1
finboard_sync_transactions_total{kind="modified"} 1
finboard_sync_transactions_total{kind="removed"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected), "finboard_sync_transactions_total"))
}

func TestSyncItemCollapsesRepeatedTransaction(t *testing.T) {
	posted := ptx("t1", "acc-1", "2026-03-01", "Coffee", "4.50")
	pages := map[string]*plaid.SyncResponse{
		"cur-0": {
			Added: []plaid.Transaction{
				ptx("t1", "acc-1", "2026-03-01", "Coffee", "4.25"),
				ptx("t2", "acc-1", "2026-03-01", "Parking", "3"),
			},
			NextCursor: "cur-1",
			HasMore:    true,
		},
		"cur-1": {
			Modified:   []plaid.Transaction{posted},
			Removed:    []plaid.RemovedTransaction{{TransactionID: "t2"}},
			NextCursor: "cur-2",
		},
	}
	f := newSyncFixture(t, func(_, cursor string) (*plaid.SyncResponse, error) {
		return pages[cursor], nil
	})

	result, err := f.svc.SyncItem(context.Background(), f.item)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 1, result.Modified)

	batch := f.txs.batches[0]
	require.Len(t, batch.Upserts, 1)
	assert.Equal(t, "t1", batch.Upserts[0].PlaidTransactionID)
	assert.True(t, batch.Upserts[0].Amount.Equal(decimal.RequireFromString("4.50")))
	assert.Equal(t, []string{"t2"}, batch.Removed)
	assert.Equal(t, "cur-2", f.item.SyncCursor)
}

func TestSyncItemPrefersPlaidCategory(t *testing.T) {
	tx := ptx("t1", "acc-1", "2026-03-01", "NETFLIX.COM", "15.49")
	tx.PersonalFinanceCategory = &plaid.PersonalFinanceCategory{Primary: "ENTERTAINMENT_TV", Detailed: "ENTERTAINMENT_TV_AND_MOVIES"}
	f := newSyncFixture(t, func(string, string) (*plaid.SyncResponse, error) {
		return &plaid.SyncResponse{Added: []plaid.Transaction{tx}, NextCursor: "cur-1"}, nil
	})

	_, err := f.svc.SyncItem(context.Background(), f.item)
	require.NoError(t, err)
	up := f.txs.batches[0].Upserts[0]
	assert.Equal(t, "ENTERTAINMENT_TV", up.Category)
	assert.Equal(t, "ENTERTAINMENT_TV_AND_MOVIES", up.CategoryDetailed)
}

func TestSyncItemRestartsAfterMutation(t *testing.T) {
	calls := 0
	f := newSyncFixture(t, func(_, cursor string) (*plaid.SyncResponse, error) {
		calls++
		switch {
		case calls == 1:
			return &plaid.SyncResponse{Added: []plaid.Transaction{ptx("stale", "acc-1", "2026-03-01", "x", "1")}, NextCursor: "cur-1", HasMore: true}, nil
		case calls == 2:
			return nil, &plaid.Error{ErrorType: "TRANSACTIONS_ERROR", ErrorCode: plaid.CodeMutationDuringPagination}
		default:
			assert.Equal(t, "cur-0", cursor)
			return &plaid.SyncResponse{Added: []plaid.Transaction{ptx("fresh", "acc-1", "2026-03-01", "x", "1")}, NextCursor: "cur-9"}, nil
		}
	})

	result, err := f.svc.SyncItem(context.Background(), f.item)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	require.Len(t, f.txs.batches[0].Upserts, 1)
	assert.Equal(t, "fresh", f.txs.batches[0].Upserts[0].PlaidTransactionID)
}

func TestSyncItemGivesUpAfterRepeatedMutation(t *testing.T) {
	f := newSyncFixture(t, func(string, string) (*plaid.SyncResponse, error) {
		return nil, &plaid.Error{ErrorType: "TRANSACTIONS_ERROR", ErrorCode: plaid.CodeMutationDuringPagination}
	})

	_, err := f.svc.SyncItem(context.Background(), f.item)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, maxSyncAttempts, f.client.syncCalls)
	assert.Empty(t, f.txs.batches)
}

func TestSyncItemLoginRequired(t *testing.T) {
	f := newSyncFixture(t, func(string, string) (*plaid.SyncResponse, error) {
		return nil, &plaid.Error{ErrorType: "ITEM_ERROR", ErrorCode: plaid.CodeItemLoginRequired}
	})

	result, err := f.svc.SyncItem(context.Background(), f.item)
	require.Error(t, err)
	assert.NotEmpty(t, result.Error)
	require.Len(t, f.items.statuses, 1)
	assert.Equal(t, models.ItemStatusLoginRequired, f.items.statuses[0].Status)
	assert.Equal(t, plaid.CodeItemLoginRequired, f.items.statuses[0].Code)
}

func TestSyncItemLoadsUnknownAccounts(t *testing.T) {
	f := newSyncFixture(t, func(string, string) (*plaid.SyncResponse, error) {
		return &plaid.SyncResponse{Added: []plaid.Transaction{
			ptx("t1", "acc-new", "2026-03-01", "Shell", "40"),
			ptx("t2", "acc-ghost", "2026-03-01", "Shell", "40"),
		}, NextCursor: "cur-1"}, nil
	})
	f.client.accounts["access-1"] = []plaid.Account{{AccountID: "acc-1", Type: "depository"}, {AccountID: "acc-new", Type: "credit"}}

	_, err := f.svc.SyncItem(context.Background(), f.item)
	require.NoError(t, err)
	require.Len(t, f.txs.batches[0].Upserts, 1, "transactions for accounts Plaid does not return are skipped")
	assert.Equal(t, "t1", f.txs.batches[0].Upserts[0].PlaidTransactionID)
}

func TestSyncUserIsolatesFailures(t *testing.T) {
	f := newSyncFixture(t, func(token, _ string) (*plaid.SyncResponse, error) {
		if token == "access-broken" {
			return nil, errors.New("connection reset")
		}
		return &plaid.SyncResponse{NextCursor: "cur-1"}, nil
	})
	broken := &models.Item{ID: uuid.New(), UserID: f.userID, AccessTokenEncrypted: sealFor(f.userID, "access-broken")}
	revoked := &models.Item{ID: uuid.New(), UserID: f.userID, Status: models.ItemStatusRevoked, AccessTokenEncrypted: sealFor(f.userID, "access-r")}
	f.items.add(broken, revoked)

	resp, err := f.svc.SyncUser(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, f.items.statuses, 1)
	assert.Equal(t, broken.ID, f.items.statuses[0].ItemID)
	assert.Equal(t, models.ItemStatusError, f.items.statuses[0].Status)
}

func TestSyncNotConfigured(t *testing.T) {
	svc := NewSyncService(nil, &fakeItems{}, &fakeAccounts{}, &fakeTransactions{}, fakeSealer{}, nil, nil, config.SyncConfig{}, zap.NewNop())
	defer svc.Close()

	_, err := svc.SyncAll(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	svc.Trigger(&models.Item{})
}

func TestTriggerAndScheduler(t *testing.T) {
	defer goleak.VerifyNone(t)

	synced := make(chan string, 8)
	client := &fakePlaid{syncFn: func(token, _ string) (*plaid.SyncResponse, error) {
		select {
		case synced <- token:
		default:
		}
		return &plaid.SyncResponse{NextCursor: "cur-1"}, nil
	}}
	userID := uuid.New()
	items := &fakeItems{}
	item := &models.Item{ID: uuid.New(), UserID: userID, AccessTokenEncrypted: sealFor(userID, "access-1")}
	items.add(item)

	svc := NewSyncService(client, items, &fakeAccounts{}, &fakeTransactions{}, fakeSealer{}, nil, nil,
		config.SyncConfig{Interval: 10 * time.Millisecond}, zap.NewNop())

	svc.Trigger(item)
	select {
	case token := <-synced:
		assert.Equal(t, "access-1", token)
	case <-time.After(2 * time.Second):
		t.Fatal("triggered sync did not run")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	select {
	case <-synced:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not sync")
	}
	cancel()
	<-done
	svc.Close()
}

func TestTriggerRacingClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := &fakePlaid{syncFn: func(string, string) (*plaid.SyncResponse, error) {
		return &plaid.SyncResponse{NextCursor: "cur-1"}, nil
	}}
	items := &fakeItems{}
	svc := NewSyncService(client, items, &fakeAccounts{}, &fakeTransactions{}, fakeSealer{}, nil, nil,
		config.SyncConfig{}, zap.NewNop())

	newItem := func() *models.Item {
		userID := uuid.New()
		item := &models.Item{ID: uuid.New(), UserID: userID, AccessTokenEncrypted: sealFor(userID, "access-1")}
		items.add(item)
		return item
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		item := newItem()
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Trigger(item)
		}()
	}
	svc.Close()
	wg.Wait()

	client.mu.Lock()
	calls := client.syncCalls
	client.mu.Unlock()

	svc.Trigger(newItem())
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, calls, client.syncCalls, "no sync starts after Close")
}
