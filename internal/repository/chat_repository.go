package repository

import (
	"context"
	"slices"

	"finboard/internal/models"
	"finboard/pkg/postgres"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type ChatRepository struct {
	db     postgres.DB
	logger *zap.Logger
}

func NewChatRepository(db postgres.DB, logger *zap.Logger) *ChatRepository {
	return &ChatRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ChatRepository) CreateBatch(ctx context.Context, messages ...*models.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	builder := squirrel.Insert("chat_messages").
		Columns("id", "user_id", "role", "content", "model", "created_at").
		PlaceholderFormat(squirrel.Dollar)
	for _, m := range messages {
		builder = builder.Values(m.ID, m.UserID, m.Role, m.Content, m.Model, m.CreatedAt)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	return postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		var owners []uuid.UUID
		for _, m := range messages {
			if slices.Contains(owners, m.UserID) {
				continue
			}
			owners = append(owners, m.UserID)
			if err := ensureProfile(ctx, tx, m.UserID); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, sql, args...)
		return err
	})
}

// Recent returns the user's last limit messages in chronological order.
func (r *ChatRepository) Recent(ctx context.Context, userID uuid.UUID, limit uint64) ([]*models.ChatMessage, error) {
	sql, args, err := squirrel.Select("id", "user_id", "role", "content", "model", "created_at").
		From("chat_messages").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(limit).
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

	var messages []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.Model, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(messages)
	return messages, nil
}

func (r *ChatRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	sql, args, err := squirrel.Delete("chat_messages").
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
