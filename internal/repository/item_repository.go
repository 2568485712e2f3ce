package repository

import (
	"context"
	"time"

	"finboard/internal/models"
	"finboard/pkg/postgres"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var itemColumns = []string{
	"id", "user_id", "plaid_item_id", "access_token_encrypted", "institution_id", "institution_name",
	"status", "error_code", "sync_cursor", "last_synced_at", "created_at", "updated_at",
}

type ItemRepository struct {
	db     postgres.DB
	logger *zap.Logger
}

func NewItemRepository(db postgres.DB, logger *zap.Logger) *ItemRepository {
	return &ItemRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert stores a newly exchanged item. Re-linking the same Plaid item keeps
// the row id and cursor and replaces the token. The stored id is written back.
func (r *ItemRepository) Upsert(ctx context.Context, item *models.Item) error {
	query := squirrel.Insert("plaid_items").
		Columns("id", "user_id", "plaid_item_id", "access_token_encrypted", "institution_id", "institution_name", "status").
		Values(item.ID, item.UserID, item.PlaidItemID, item.AccessTokenEncrypted, item.InstitutionID, item.InstitutionName, models.ItemStatusActive).
		Suffix(`ON CONFLICT (user_id, plaid_item_id) DO UPDATE SET
			access_token_encrypted = EXCLUDED.access_token_encrypted,
			institution_id = EXCLUDED.institution_id,
			institution_name = EXCLUDED.institution_name,
			status = EXCLUDED.status,
			error_code = '',
			updated_at = NOW()
			RETURNING id, sync_cursor`).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	return postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := ensureProfile(ctx, tx, item.UserID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, sql, args...).Scan(&item.ID, &item.SyncCursor); err != nil {
			return err
		}
		item.Status = models.ItemStatusActive
		return nil
	})
}

func (r *ItemRepository) scanAll(rows pgx.Rows) ([]*models.Item, error) {
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(
			&it.ID, &it.UserID, &it.PlaidItemID, &it.AccessTokenEncrypted, &it.InstitutionID, &it.InstitutionName,
			&it.Status, &it.ErrorCode, &it.SyncCursor, &it.LastSyncedAt, &it.CreatedAt, &it.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *ItemRepository) list(ctx context.Context, where squirrel.Sqlizer) ([]*models.Item, error) {
	query := squirrel.Select(itemColumns...).
		From("plaid_items").
		OrderBy("created_at").
		PlaceholderFormat(squirrel.Dollar)
	if where != nil {
		query = query.Where(where)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

func (r *ItemRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Item, error) {
	return r.list(ctx, squirrel.Eq{"user_id": userID})
}

// ListSyncable returns every item across users that is not revoked.
func (r *ItemRepository) ListSyncable(ctx context.Context) ([]*models.Item, error) {
	return r.list(ctx, squirrel.NotEq{"status": models.ItemStatusRevoked})
}

func (r *ItemRepository) get(ctx context.Context, where squirrel.Sqlizer) (*models.Item, error) {
	items, err := r.list(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, pgx.ErrNoRows
	}
	return items[0], nil
}

// GetByID scopes the lookup to the owner; other users' items are not found.
func (r *ItemRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Item, error) {
	return r.get(ctx, squirrel.Eq{"id": id, "user_id": userID})
}

func (r *ItemRepository) GetByPlaidItemID(ctx context.Context, plaidItemID string) (*models.Item, error) {
	return r.get(ctx, squirrel.Eq{"plaid_item_id": plaidItemID})
}

func (r *ItemRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ItemStatus, errorCode string) error {
	query := squirrel.Update("plaid_items").
		Set("status", status).
		Set("error_code", errorCode).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// Delete removes the item; accounts, transactions cascade.
func (r *ItemRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	query := squirrel.Delete("plaid_items").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
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
