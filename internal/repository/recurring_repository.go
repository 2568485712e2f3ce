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

type RecurringRepository struct {
	db     postgres.DB
	logger *zap.Logger
}

func NewRecurringRepository(db postgres.DB, logger *zap.Logger) *RecurringRepository {
	return &RecurringRepository{
		db:     db,
		logger: logger,
	}
}

// Replace swaps the user's stored recurring snapshot for streams.
func (r *RecurringRepository) Replace(ctx context.Context, userID uuid.UUID, streams []*models.RecurringStream) error {
	return postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		sql, args, err := squirrel.Delete("recurring_streams").
			Where(squirrel.Eq{"user_id": userID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return err
		}
		if len(streams) == 0 {
			return nil
		}

		builder := squirrel.Insert("recurring_streams").
			Columns("id", "user_id", "merchant", "category", "frequency", "average_amount", "monthly_amount",
				"last_date", "next_date", "occurrences", "source").
			PlaceholderFormat(squirrel.Dollar)
		for _, s := range streams {
			builder = builder.Values(s.ID, userID, s.Merchant, s.Category, s.Frequency, s.AverageAmount, s.MonthlyAmount,
				s.LastDate, s.NextDate, s.Occurrences, s.Source)
		}

		sql, args, err = builder.ToSql()
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, sql, args...)
		return err
	})
}

// ListByUser returns the stored snapshot, largest monthly cost first.
func (r *RecurringRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.RecurringStream, error) {
	sql, args, err := squirrel.Select("id", "user_id", "merchant", "category", "frequency", "average_amount", "monthly_amount",
		"last_date", "next_date", "occurrences", "source", "created_at").
		From("recurring_streams").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("monthly_amount DESC", "merchant").
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

	var streams []*models.RecurringStream
	for rows.Next() {
		var s models.RecurringStream
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Merchant, &s.Category, &s.Frequency, &s.AverageAmount, &s.MonthlyAmount,
			&s.LastDate, &s.NextDate, &s.Occurrences, &s.Source, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		streams = append(streams, &s)
	}
	return streams, rows.Err()
}
