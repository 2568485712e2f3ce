package repository

import (
	"context"

	"finboard/internal/models"
	"finboard/pkg/postgres"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type AccountRepository struct {
	db     postgres.DB
	logger *zap.Logger
}

func NewAccountRepository(db postgres.DB, logger *zap.Logger) *AccountRepository {
	return &AccountRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertBatch inserts or refreshes accounts keyed by Plaid account id.
func (r *AccountRepository) UpsertBatch(ctx context.Context, accounts []*models.Account) error {
	if len(accounts) == 0 {
		return nil
	}

	builder := squirrel.Insert("accounts").
		Columns("id", "user_id", "item_id", "plaid_account_id", "name", "official_name", "mask", "type", "subtype",
			"current_balance", "available_balance", "credit_limit", "iso_currency_code").
		Suffix(`ON CONFLICT (plaid_account_id) DO UPDATE SET
			name = EXCLUDED.name,
			official_name = EXCLUDED.official_name,
			mask = EXCLUDED.mask,
			type = EXCLUDED.type,
			subtype = EXCLUDED.subtype,
			current_balance = EXCLUDED.current_balance,
			available_balance = EXCLUDED.available_balance,
			credit_limit = EXCLUDED.credit_limit,
			iso_currency_code = EXCLUDED.iso_currency_code,
			updated_at = NOW()`).
		PlaceholderFormat(squirrel.Dollar)

	for _, a := range accounts {
		builder = builder.Values(a.ID, a.UserID, a.ItemID, a.PlaidAccountID, a.Name, a.OfficialName, a.Mask, a.Type, a.Subtype,
			a.CurrentBalance, a.AvailableBalance, a.CreditLimit, a.IsoCurrencyCode)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *AccountRepository) selectAccounts() squirrel.SelectBuilder {
	return squirrel.Select(
		"a.id", "a.user_id", "a.item_id", "a.plaid_account_id", "a.name", "a.official_name", "a.mask", "a.type", "a.subtype",
		"a.current_balance", "a.available_balance", "a.credit_limit", "a.iso_currency_code", "a.created_at", "a.updated_at",
		"i.institution_name",
	).
		From("accounts a").
		Join("plaid_items i ON i.id = a.item_id").
		PlaceholderFormat(squirrel.Dollar)
}

func (r *AccountRepository) query(ctx context.Context, query squirrel.SelectBuilder) ([]*models.Account, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.ItemID, &a.PlaidAccountID, &a.Name, &a.OfficialName, &a.Mask, &a.Type, &a.Subtype,
			&a.CurrentBalance, &a.AvailableBalance, &a.CreditLimit, &a.IsoCurrencyCode, &a.CreatedAt, &a.UpdatedAt,
			&a.InstitutionName,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// ListByUser orders by institution then account name.
func (r *AccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	return r.query(ctx, r.selectAccounts().
		Where(squirrel.Eq{"a.user_id": userID}).
		OrderBy("i.institution_name", "a.name"))
}

func (r *AccountRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Account, error) {
	accounts, err := r.query(ctx, r.selectAccounts().
		Where(squirrel.Eq{"a.id": id, "a.user_id": userID}))
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, pgx.ErrNoRows
	}
	return accounts[0], nil
}

// IDsByPlaidID maps Plaid account ids of one item to local ids.
func (r *AccountRepository) IDsByPlaidID(ctx context.Context, itemID uuid.UUID) (map[string]uuid.UUID, error) {
	sql, args, err := squirrel.Select("plaid_account_id", "id").
		From("accounts").
		Where(squirrel.Eq{"item_id": itemID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]uuid.UUID)
	for rows.Next() {
		var (
			plaidID string
			id      uuid.UUID
		)
		if err := rows.Scan(&plaidID, &id); err != nil {
			return nil, err
		}
		ids[plaidID] = id
	}
	return ids, rows.Err()
}
