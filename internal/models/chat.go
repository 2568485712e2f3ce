package models

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Role      string    `db:"role"`
	Content   string    `db:"content"`
	Model     string    `db:"model"`
	CreatedAt time.Time `db:"created_at"`
}
