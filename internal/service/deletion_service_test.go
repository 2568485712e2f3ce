package service

import (
	"context"
	"errors"
	"testing"

	"finboard/internal/models"
	"finboard/pkg/plaid"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDeleteAccount(t *testing.T) {
	userID := uuid.New()
	newFixture := func(removeErr, deleteErr error) (*DeletionService, *fakePlaid, *fakeProfiles, *fakeAuth) {
		items := &fakeItems{}
		items.add(
			&models.Item{ID: uuid.New(), UserID: userID, AccessTokenEncrypted: sealFor(userID, "access-1")},
			&models.Item{ID: uuid.New(), UserID: userID, AccessTokenEncrypted: sealFor(userID, "access-2")},
		)
		client := &fakePlaid{removeErr: removeErr}
		profiles := newFakeProfiles()
		auth := &fakeAuth{deleteErr: deleteErr}
		return NewDeletionService(client, items, profiles, auth, fakeSealer{}, zap.NewNop()), client, profiles, auth
	}

	t.Run("plaid failures are not fatal", func(t *testing.T) {
		svc, client, profiles, auth := newFixture(&plaid.Error{ErrorCode: "INTERNAL_SERVER_ERROR"}, nil)
		require.NoError(t, svc.DeleteAccount(context.Background(), userID))
		assert.ElementsMatch(t, []string{"access-1", "access-2"}, client.removed)
		assert.Equal(t, []uuid.UUID{userID}, profiles.deleted)
		assert.Equal(t, []uuid.UUID{userID}, auth.deleted)
	})

	t.Run("auth failure after data deletion can be retried", func(t *testing.T) {
		svc, _, profiles, auth := newFixture(nil, errors.New("response status code 500"))
		err := svc.DeleteAccount(context.Background(), userID)
		assert.ErrorIs(t, err, ErrUpstream)
		assert.Equal(t, []uuid.UUID{userID}, profiles.deleted, "rows are gone before the auth call")
		assert.Equal(t, []uuid.UUID{userID}, auth.deleted)

		auth.deleteErr = nil
		require.NoError(t, svc.DeleteAccount(context.Background(), userID))
		assert.Equal(t, []uuid.UUID{userID, userID}, profiles.deleted)
		assert.Equal(t, []uuid.UUID{userID, userID}, auth.deleted)
	})

	t.Run("database failure keeps auth user", func(t *testing.T) {
		svc, _, profiles, auth := newFixture(nil, nil)
		profiles.deleteErr = errors.New("deadlock detected")
		require.Error(t, svc.DeleteAccount(context.Background(), userID))
		assert.Empty(t, auth.deleted)
	})
}
