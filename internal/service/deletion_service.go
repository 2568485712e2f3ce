package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DeletionService struct {
	plaid    PlaidClient
	items    ItemStore
	profiles ProfileStore
	auth     AuthProvider
	sealer   TokenSealer
	logger   *zap.Logger
}

func NewDeletionService(
	client PlaidClient,
	items ItemStore,
	profiles ProfileStore,
	auth AuthProvider,
	sealer TokenSealer,
	logger *zap.Logger,
) *DeletionService {
	return &DeletionService{
		plaid:    client,
		items:    items,
		profiles: profiles,
		auth:     auth,
		sealer:   sealer,
		logger:   logger,
	}
}

// DeleteAccount removes everything stored for the user, then the auth user.
// Plaid revocation is best effort. The database step is idempotent, so a
// failed auth deletion can be retried by calling DeleteAccount again.
func (s *DeletionService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	items, err := s.items.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	if s.plaid != nil {
		for _, item := range items {
			if err := s.revoke(ctx, item.ID, item.AccessTokenEncrypted, userID); err != nil {
				s.logger.Warn("Failed to remove Plaid item during account deletion",
					zap.String("item_id", item.ID.String()),
					zap.Error(err),
				)
			}
		}
	}

	if err := s.profiles.DeleteAllData(ctx, userID); err != nil {
		return fmt.Errorf("delete user data: %w", err)
	}

	if err := s.auth.DeleteUser(userID); err != nil {
		s.logger.Error("User data deleted but auth user remains",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return upstream("delete auth user", err)
	}

	s.logger.Info("Account deleted",
		zap.String("user_id", userID.String()),
		zap.Int("items", len(items)),
	)
	return nil
}

func (s *DeletionService) revoke(ctx context.Context, itemID uuid.UUID, sealed string, userID uuid.UUID) error {
	token, err := s.sealer.Open(sealed, userID.String())
	if err != nil {
		return fmt.Errorf("open access token for item %s: %w", itemID, err)
	}
	return s.plaid.RemoveItem(ctx, token)
}
