package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finboard/internal/dto"
	"finboard/internal/models"
	"finboard/internal/repository"
	"finboard/pkg/categorize"
	"finboard/pkg/config"
	"finboard/pkg/metrics"
	"finboard/pkg/plaid"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxSyncPageSize = 500
	maxSyncAttempts = 3
	// triggerTimeout bounds a webhook- or link-triggered background sync.
	triggerTimeout = 5 * time.Minute
)

type SyncService struct {
	plaid       PlaidClient
	items       ItemStore
	accounts    AccountStore
	txs         TransactionStore
	sealer      TokenSealer
	categorizer *categorize.Categorizer
	metrics     *metrics.Metrics
	cfg         config.SyncConfig
	logger      *zap.Logger

	// Background syncs started by Trigger run under baseCtx until Close.
	// mu orders wg.Add in Trigger before wg.Wait in Close.
	baseCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewSyncService(
	client PlaidClient,
	items ItemStore,
	accounts AccountStore,
	txs TransactionStore,
	sealer TokenSealer,
	categorizer *categorize.Categorizer,
	m *metrics.Metrics,
	cfg config.SyncConfig,
	logger *zap.Logger,
) *SyncService {
	if cfg.PageSize <= 0 || cfg.PageSize > maxSyncPageSize {
		cfg.PageSize = maxSyncPageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if categorizer == nil {
		categorizer = categorize.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncService{
		plaid:       client,
		items:       items,
		accounts:    accounts,
		txs:         txs,
		sealer:      sealer,
		categorizer: categorizer,
		metrics:     m,
		cfg:         cfg,
		logger:      logger,
		baseCtx:     ctx,
		cancel:      cancel,
		now:         time.Now,
	}
}

// syncPage is the accumulated result of paging /transactions/sync to the end.
type syncPage struct {
	added    []plaid.Transaction
	modified []plaid.Transaction
	// changed holds added and modified transactions in the order Plaid sent them.
	changed []plaid.Transaction
	removed []string
	cursor  string
}

// SyncItem pulls every pending update for one item and applies it in a single
// database transaction together with the new cursor.
func (s *SyncService) SyncItem(ctx context.Context, item *models.Item) (dto.ItemSyncResult, error) {
	result := dto.ItemSyncResult{ItemID: item.ID.String()}
	if s.plaid == nil {
		return result, ErrNotConfigured
	}

	err := s.syncItem(ctx, item, &result)
	if err != nil {
		result.Error = err.Error()
		s.recordFailure(ctx, item, err)
		return result, err
	}
	return result, nil
}

func (s *SyncService) syncItem(ctx context.Context, item *models.Item, result *dto.ItemSyncResult) error {
	token, err := openAccessToken(s.sealer, item)
	if err != nil {
		return err
	}

	var page *syncPage
	for attempt := 1; attempt <= maxSyncAttempts; attempt++ {
		page, err = s.fetchUpdates(ctx, token, item.SyncCursor)
		if plaid.ErrorCode(err) != plaid.CodeMutationDuringPagination {
			break
		}
		// Plaid requires restarting the whole loop from the cursor we started with.
		s.logger.Warn("Transactions changed during pagination, restarting",
			zap.String("item_id", item.ID.String()),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		return upstream("sync transactions", err)
	}

	accountIDs, err := s.accountIDs(ctx, item, token, page)
	if err != nil {
		return err
	}

	batch := repository.SyncBatch{
		ItemID:   item.ID,
		Removed:  page.removed,
		Cursor:   page.cursor,
		SyncedAt: s.now().UTC(),
	}
	batch.Upserts = s.collapseChanges(item, accountIDs, page)

	if err := s.txs.ApplySync(ctx, batch); err != nil {
		return fmt.Errorf("apply sync: %w", err)
	}

	item.SyncCursor = page.cursor
	item.LastSyncedAt = &batch.SyncedAt
	item.Status = models.ItemStatusActive
	item.ErrorCode = ""

	result.Added = len(page.added)
	result.Modified = len(page.modified)
	result.Removed = len(page.removed)
	s.metrics.SyncApplied(result.Added, result.Modified, result.Removed)

	s.logger.Info("Item synced",
		zap.String("item_id", item.ID.String()),
		zap.Int("added", result.Added),
		zap.Int("modified", result.Modified),
		zap.Int("removed", result.Removed),
	)
	return nil
}

func (s *SyncService) fetchUpdates(ctx context.Context, token, cursor string) (*syncPage, error) {
	page := &syncPage{cursor: cursor}
	for {
		resp, err := s.plaid.SyncTransactions(ctx, token, page.cursor, s.cfg.PageSize)
		if err != nil {
			return nil, err
		}
		page.added = append(page.added, resp.Added...)
		page.modified = append(page.modified, resp.Modified...)
		page.changed = append(page.changed, resp.Added...)
		page.changed = append(page.changed, resp.Modified...)
		for _, r := range resp.Removed {
			page.removed = append(page.removed, r.TransactionID)
		}
		page.cursor = resp.NextCursor
		if !resp.HasMore {
			return page, nil
		}
	}
}

// accountIDs maps Plaid account ids to local ids, reloading the item's
// accounts when a transaction references one not stored yet.
func (s *SyncService) accountIDs(ctx context.Context, item *models.Item, token string, page *syncPage) (map[string]uuid.UUID, error) {
	ids, err := s.accounts.IDsByPlaidID(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("load account ids: %w", err)
	}

	missing := false
	for _, t := range page.changed {
		if _, ok := ids[t.AccountID]; !ok {
			missing = true
			break
		}
	}
	if !missing {
		return ids, nil
	}

	resp, err := s.plaid.GetAccounts(ctx, token)
	if err != nil {
		return nil, upstream("get accounts", err)
	}
	if err := s.accounts.UpsertBatch(ctx, toAccountModels(item.UserID, item.ID, resp.Accounts)); err != nil {
		return nil, fmt.Errorf("save accounts: %w", err)
	}
	ids, err = s.accounts.IDsByPlaidID(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("reload account ids: %w", err)
	}
	return ids, nil
}

// collapseChanges returns one row per Plaid transaction id, keeping the latest
// version. A single upsert statement cannot touch the same row twice, and ids
// removed later in the window are not written at all.
func (s *SyncService) collapseChanges(item *models.Item, accountIDs map[string]uuid.UUID, page *syncPage) []*models.Transaction {
	removed := make(map[string]bool, len(page.removed))
	for _, id := range page.removed {
		removed[id] = true
	}

	index := make(map[string]int, len(page.changed))
	var out []*models.Transaction
	for _, pt := range page.changed {
		if removed[pt.TransactionID] {
			continue
		}
		tx, ok := s.toTransaction(item, accountIDs, pt)
		if !ok {
			continue
		}
		if i, seen := index[pt.TransactionID]; seen {
			tx.ID = out[i].ID
			out[i] = tx
			continue
		}
		index[pt.TransactionID] = len(out)
		out = append(out, tx)
	}
	return out
}

func (s *SyncService) toTransaction(item *models.Item, accountIDs map[string]uuid.UUID, pt plaid.Transaction) (*models.Transaction, bool) {
	accountID, ok := accountIDs[pt.AccountID]
	if !ok {
		s.logger.Warn("Skipping transaction for unknown account",
			zap.String("item_id", item.ID.String()),
			zap.String("plaid_account_id", pt.AccountID),
		)
		return nil, false
	}
	date, err := time.Parse(time.DateOnly, pt.Date)
	if err != nil {
		s.logger.Warn("Skipping transaction with invalid date",
			zap.String("plaid_transaction_id", pt.TransactionID),
			zap.String("date", pt.Date),
		)
		return nil, false
	}

	tx := &models.Transaction{
		ID:                 uuid.New(),
		UserID:             item.UserID,
		AccountID:          accountID,
		PlaidTransactionID: pt.TransactionID,
		Name:               sanitizeText(pt.Name),
		MerchantName:       sanitizeText(pt.MerchantName),
		Amount:             pt.Amount,
		IsoCurrencyCode:    pt.IsoCurrencyCode,
		Date:               date,
		Pending:            pt.Pending,
		PaymentChannel:     pt.PaymentChannel,
	}
	if pfc := pt.PersonalFinanceCategory; pfc != nil && pfc.Primary != "" {
		tx.Category = pfc.Primary
		tx.CategoryDetailed = pfc.Detailed
	} else {
		tx.Category = s.categorizer.Categorize(tx.Name, tx.MerchantName)
	}
	return tx, true
}

func (s *SyncService) recordFailure(ctx context.Context, item *models.Item, err error) {
	status, code := itemStatusFor(err)
	s.logger.Error("Item sync failed",
		zap.String("item_id", item.ID.String()),
		zap.String("error_code", code),
		zap.Error(err),
	)
	if status == "" {
		return
	}
	item.Status = status
	item.ErrorCode = code
	if uerr := s.items.UpdateStatus(context.WithoutCancel(ctx), item.ID, status, code); uerr != nil {
		s.logger.Error("Failed to record item status", zap.String("item_id", item.ID.String()), zap.Error(uerr))
	}
}

// SyncUser syncs every linked item of one user.
func (s *SyncService) SyncUser(ctx context.Context, userID uuid.UUID) (*dto.SyncResponse, error) {
	if s.plaid == nil {
		return nil, ErrNotConfigured
	}
	items, err := s.items.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	syncable := make([]*models.Item, 0, len(items))
	for _, it := range items {
		if it.Status != models.ItemStatusRevoked {
			syncable = append(syncable, it)
		}
	}
	return s.syncItems(ctx, syncable), nil
}

// SyncAll syncs every non-revoked item in the database.
func (s *SyncService) SyncAll(ctx context.Context) (*dto.SyncResponse, error) {
	if s.plaid == nil {
		return nil, ErrNotConfigured
	}
	items, err := s.items.ListSyncable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list syncable items: %w", err)
	}
	return s.syncItems(ctx, items), nil
}

// syncItems fans out over items. A failing item is reported in its result and
// never cancels the others.
func (s *SyncService) syncItems(ctx context.Context, items []*models.Item) *dto.SyncResponse {
	results := make([]dto.ItemSyncResult, len(items))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i], _ = s.SyncItem(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	resp := &dto.SyncResponse{Items: results}
	for _, r := range results {
		resp.Added += r.Added
		resp.Modified += r.Modified
		resp.Removed += r.Removed
		if r.Error != "" {
			resp.Failed++
		}
	}
	return resp
}

// Trigger syncs an item in the background. Close waits for it.
func (s *SyncService) Trigger(item *models.Item) {
	if s.plaid == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.baseCtx, triggerTimeout)
		defer cancel()
		_, _ = s.SyncItem(ctx, item)
	}()
}

// Run syncs all items every Interval until ctx is done. A zero interval
// disables the scheduler and Run returns immediately.
func (s *SyncService) Run(ctx context.Context) {
	if s.cfg.Interval <= 0 || s.plaid == nil {
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Background sync started", zap.Duration("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Background sync stopped")
			return
		case <-ticker.C:
			resp, err := s.SyncAll(ctx)
			if err != nil {
				s.logger.Error("Background sync failed", zap.Error(err))
				continue
			}
			s.logger.Info("Background sync finished",
				zap.Int("items", len(resp.Items)),
				zap.Int("failed", resp.Failed),
			)
		}
	}
}

// Close cancels triggered syncs and waits for them to return.
func (s *SyncService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
