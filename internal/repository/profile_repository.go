package repository

import (
	"context"
	"fmt"

	"finboard/internal/models"
	"finboard/pkg/postgres"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type ProfileRepository struct {
	db     postgres.DB
	logger *zap.Logger
}

func NewProfileRepository(db postgres.DB, logger *zap.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger,
	}
}

// ensureProfile inserts a bare profile row so rows that reference the user
// satisfy their foreign key. AuthService.Me fills in the details later.
func ensureProfile(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	sql, args, err := squirrel.Insert("profiles").
		Columns("id").
		Values(userID).
		Suffix("ON CONFLICT (id) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}

// Upsert creates the profile on first login and refreshes email/name afterwards.
func (r *ProfileRepository) Upsert(ctx context.Context, p *models.Profile) error {
	query := squirrel.Insert("profiles").
		Columns("id", "email", "display_name").
		Values(p.ID, p.Email, p.DisplayName).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = CASE WHEN EXCLUDED.display_name = '' THEN profiles.display_name ELSE EXCLUDED.display_name END,
			updated_at = NOW()`).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	query := squirrel.Select("id", "email", "display_name", "created_at", "updated_at").
		From("profiles").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var p models.Profile
	err = r.db.QueryRow(ctx, sql, args...).Scan(&p.ID, &p.Email, &p.DisplayName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// Counts returns how many items and accounts the user has linked.
func (r *ProfileRepository) Counts(ctx context.Context, userID uuid.UUID) (items, accounts int, err error) {
	query := squirrel.Select().
		Column(squirrel.Expr("(SELECT COUNT(*) FROM plaid_items WHERE user_id = ?)", userID)).
		Column(squirrel.Expr("(SELECT COUNT(*) FROM accounts WHERE user_id = ?)", userID)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, 0, err
	}

	err = r.db.QueryRow(ctx, sql, args...).Scan(&items, &accounts)
	return items, accounts, err
}

// userTables are cleared child-first on account deletion.
var userTables = []struct{ table, column string }{
	{"chat_messages", "user_id"},
	{"recurring_streams", "user_id"},
	{"transactions", "user_id"},
	{"accounts", "user_id"},
	{"plaid_items", "user_id"},
	{"profiles", "id"},
}

// DeleteAllData removes every row belonging to the user in one transaction.
// Running it again for a deleted user is a no-op.
func (r *ProfileRepository) DeleteAllData(ctx context.Context, userID uuid.UUID) error {
	return postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, t := range userTables {
			sql, args, err := squirrel.Delete(t.table).
				Where(squirrel.Eq{t.column: userID}).
				PlaceholderFormat(squirrel.Dollar).
				ToSql()
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, sql, args...)
			if err != nil {
				return fmt.Errorf("delete from %s: %w", t.table, err)
			}
			r.logger.Debug("Deleted user rows",
				zap.String("table", t.table),
				zap.Int64("rows", tag.RowsAffected()),
			)
		}
		return nil
	})
}
