package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile mirrors a Supabase auth user. The id is the GoTrue user id.
type Profile struct {
	ID          uuid.UUID `db:"id"`
	Email       string    `db:"email"`
	DisplayName string    `db:"display_name"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}
