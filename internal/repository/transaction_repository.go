package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finboard/internal/models"
	"finboard/pkg/postgres"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Postgres caps a statement at 65535 parameters; 500 rows × 14 columns stays well below.
const upsertChunk = 500

var transactionColumns = []string{
	"id", "user_id", "account_id", "plaid_transaction_id", "name", "merchant_name", "amount", "iso_currency_code",
	"date", "pending", "category", "category_detailed", "category_override", "payment_channel", "created_at", "updated_at",
}

const effectiveCategory = "COALESCE(NULLIF(category_override, ''), category)"

type TransactionRepository struct {
	db     postgres.DB
	logger *zap.Logger
}

func NewTransactionRepository(db postgres.DB, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

// SyncBatch is one item's accumulated /transactions/sync result.
type SyncBatch struct {
	ItemID   uuid.UUID
	Upserts  []*models.Transaction
	Removed  []string
	Cursor   string
	SyncedAt time.Time
}

// ApplySync writes a sync batch and advances the item cursor atomically, so a
// failure leaves the previous cursor in place and the page is fetched again.
func (r *TransactionRepository) ApplySync(ctx context.Context, batch SyncBatch) error {
	return postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		for start := 0; start < len(batch.Upserts); start += upsertChunk {
			end := min(start+upsertChunk, len(batch.Upserts))
			if err := r.upsert(ctx, tx, batch.Upserts[start:end]); err != nil {
				return fmt.Errorf("upsert transactions: %w", err)
			}
		}

		if len(batch.Removed) > 0 {
			sql, args, err := squirrel.Delete("transactions").
				Where(squirrel.Eq{"plaid_transaction_id": batch.Removed}).
				PlaceholderFormat(squirrel.Dollar).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, sql, args...); err != nil {
				return fmt.Errorf("delete removed transactions: %w", err)
			}
		}

		sql, args, err := squirrel.Update("plaid_items").
			Set("sync_cursor", batch.Cursor).
			Set("last_synced_at", batch.SyncedAt).
			Set("status", models.ItemStatusActive).
			Set("error_code", "").
			Set("updated_at", batch.SyncedAt).
			Where(squirrel.Eq{"id": batch.ItemID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("save sync cursor: %w", err)
		}
		return nil
	})
}

func (r *TransactionRepository) upsert(ctx context.Context, tx pgx.Tx, transactions []*models.Transaction) error {
	builder := squirrel.Insert("transactions").
		Columns("id", "user_id", "account_id", "plaid_transaction_id", "name", "merchant_name", "amount",
			"iso_currency_code", "date", "pending", "category", "category_detailed", "payment_channel").
		// category_override is user-owned and survives Plaid updates.
		Suffix(`ON CONFLICT (plaid_transaction_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			name = EXCLUDED.name,
			merchant_name = EXCLUDED.merchant_name,
			amount = EXCLUDED.amount,
			iso_currency_code = EXCLUDED.iso_currency_code,
			date = EXCLUDED.date,
			pending = EXCLUDED.pending,
			category = EXCLUDED.category,
			category_detailed = EXCLUDED.category_detailed,
			payment_channel = EXCLUDED.payment_channel,
			updated_at = NOW()`).
		PlaceholderFormat(squirrel.Dollar)

	for _, t := range transactions {
		builder = builder.Values(t.ID, t.UserID, t.AccountID, t.PlaidTransactionID, t.Name, t.MerchantName, t.Amount,
			t.IsoCurrencyCode, t.Date, t.Pending, t.Category, t.CategoryDetailed, t.PaymentChannel)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, sql, args...)
	return err
}

func applyFilter(q squirrel.SelectBuilder, userID uuid.UUID, f models.TransactionFilter) squirrel.SelectBuilder {
	q = q.Where(squirrel.Eq{"user_id": userID})
	if f.AccountID != nil {
		q = q.Where(squirrel.Eq{"account_id": *f.AccountID})
	}
	if f.Category != "" {
		q = q.Where(squirrel.Expr(effectiveCategory+" = ?", strings.ToUpper(f.Category)))
	}
	if f.StartDate != nil {
		q = q.Where(squirrel.GtOrEq{"date": *f.StartDate})
	}
	if f.EndDate != nil {
		q = q.Where(squirrel.LtOrEq{"date": *f.EndDate})
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(f.Search) + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"merchant_name": pattern},
		})
	}
	if f.Pending != nil {
		q = q.Where(squirrel.Eq{"pending": *f.Pending})
	}
	return q
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns one page of the user's transactions, newest first, and the
// total number matching the filter.
func (r *TransactionRepository) List(ctx context.Context, userID uuid.UUID, f models.TransactionFilter) ([]*models.Transaction, int, error) {
	countSQL, countArgs, err := applyFilter(
		squirrel.Select("COUNT(*)").From("transactions").PlaceholderFormat(squirrel.Dollar), userID, f,
	).ToSql()
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := applyFilter(
		squirrel.Select(transactionColumns...).From("transactions").PlaceholderFormat(squirrel.Dollar), userID, f,
	).
		OrderBy("date DESC", "created_at DESC").
		Limit(f.Limit).
		Offset(f.Offset)

	transactions, err := r.query(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

// ListBetween returns every transaction dated within [start, end], pending included.
func (r *TransactionRepository) ListBetween(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*models.Transaction, error) {
	return r.query(ctx, squirrel.Select(transactionColumns...).
		From("transactions").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.GtOrEq{"date": start}).
		Where(squirrel.LtOrEq{"date": end}).
		OrderBy("date").
		PlaceholderFormat(squirrel.Dollar))
}

func (r *TransactionRepository) Recent(ctx context.Context, userID uuid.UUID, limit uint64) ([]*models.Transaction, error) {
	return r.query(ctx, squirrel.Select(transactionColumns...).
		From("transactions").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("date DESC", "created_at DESC").
		Limit(limit).
		PlaceholderFormat(squirrel.Dollar))
}

func (r *TransactionRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error) {
	transactions, err := r.query(ctx, squirrel.Select(transactionColumns...).
		From("transactions").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		PlaceholderFormat(squirrel.Dollar))
	if err != nil {
		return nil, err
	}
	if len(transactions) == 0 {
		return nil, pgx.ErrNoRows
	}
	return transactions[0], nil
}

// SetCategoryOverride stores the user's category. An empty category clears it.
func (r *TransactionRepository) SetCategoryOverride(ctx context.Context, userID, id uuid.UUID, category string) error {
	sql, args, err := squirrel.Update("transactions").
		Set("category_override", category).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *TransactionRepository) query(ctx context.Context, query squirrel.SelectBuilder) ([]*models.Transaction, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.AccountID, &t.PlaidTransactionID, &t.Name, &t.MerchantName, &t.Amount, &t.IsoCurrencyCode,
			&t.Date, &t.Pending, &t.Category, &t.CategoryDetailed, &t.CategoryOverride, &t.PaymentChannel, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, &t)
	}
	return transactions, rows.Err()
}
