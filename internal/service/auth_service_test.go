package service

import (
	"context"
	"fmt"
	"testing"

	"finboard/internal/models"
	"finboard/pkg/supabase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartOAuth(t *testing.T) {
	svc := NewAuthService(newFakeProfiles(), &fakeAuth{}, zap.NewNop())

	resp, err := svc.StartOAuth("github")
	require.NoError(t, err)
	assert.Equal(t, "github", resp.Provider)
	assert.Equal(t, "verifier-1", resp.CodeVerifier)
	assert.Contains(t, resp.AuthorizationURL, "provider=github")

	_, err = svc.StartOAuth("myspace")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestExchangeCodeCreatesProfile(t *testing.T) {
	profiles := newFakeProfiles()
	userID := uuid.New()
	auth := &fakeAuth{session: &supabase.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "bearer",
		ExpiresIn:    3600,
		User:         supabase.User{ID: userID, Email: "ana@example.com", FullName: "Ana Lima"},
	}}
	svc := NewAuthService(profiles, auth, zap.NewNop())

	resp, err := svc.ExchangeCode(context.Background(), "code", "verifier")
	require.NoError(t, err)
	assert.Equal(t, "access", resp.AccessToken)
	assert.Equal(t, userID.String(), resp.User.ID)

	p, err := profiles.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", p.Email)
	assert.Equal(t, "Ana Lima", p.DisplayName)
}

func TestExchangeCodeErrors(t *testing.T) {
	svc := NewAuthService(newFakeProfiles(), &fakeAuth{err: fmt.Errorf("token: %w", supabase.ErrRejected)}, zap.NewNop())

	_, err := svc.ExchangeCode(context.Background(), "", "verifier")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ExchangeCode(context.Background(), "bad", "verifier")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	down := NewAuthService(newFakeProfiles(), &fakeAuth{err: fmt.Errorf("dial tcp: connection refused")}, zap.NewNop())
	_, err = down.Refresh("refresh")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestMe(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.items, profiles.accounts = 2, 5
	svc := NewAuthService(profiles, &fakeAuth{}, zap.NewNop())
	userID := uuid.New()

	_, err := svc.Me(context.Background(), userID, "")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, profiles.Upsert(context.Background(), profileFor(userID)))
	me, err := svc.Me(context.Background(), userID, "access-token")
	require.NoError(t, err)
	assert.Equal(t, 2, me.ItemCount)
	assert.Equal(t, 5, me.AccountCount)
	assert.Equal(t, "2026-01-02T03:04:05Z", me.CreatedAt)
}

func TestMeProvisionsMissingProfile(t *testing.T) {
	userID := uuid.New()
	profiles := newFakeProfiles()
	auth := &fakeAuth{user: &supabase.User{ID: userID, Email: "ana@example.com", FullName: "Ana Lima"}}
	svc := NewAuthService(profiles, auth, zap.NewNop())

	me, err := svc.Me(context.Background(), userID, "access-token")
	require.NoError(t, err)
	assert.Equal(t, "Ana Lima", me.DisplayName)
	assert.Equal(t, "ana@example.com", profiles.profiles[userID].Email)

	_, err = svc.Me(context.Background(), uuid.New(), "access-token")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "token of another user")

	_, err = NewAuthService(newFakeProfiles(), &fakeAuth{}, zap.NewNop()).Me(context.Background(), userID, "revoked")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMeFillsBareProfile(t *testing.T) {
	userID := uuid.New()
	profiles := newFakeProfiles()
	// Left behind by an item link before the first /me.
	require.NoError(t, profiles.Upsert(context.Background(), &models.Profile{ID: userID}))

	svc := NewAuthService(profiles, &fakeAuth{}, zap.NewNop())
	me, err := svc.Me(context.Background(), userID, "revoked")
	require.NoError(t, err, "a GoTrue failure still returns the bare profile")
	assert.Empty(t, me.Email)

	svc = NewAuthService(profiles, &fakeAuth{user: &supabase.User{ID: userID, Email: "ana@example.com"}}, zap.NewNop())
	me, err = svc.Me(context.Background(), userID, "access-token")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", me.Email)
}

func TestLogout(t *testing.T) {
	auth := &fakeAuth{}
	svc := NewAuthService(newFakeProfiles(), auth, zap.NewNop())

	require.NoError(t, svc.Logout("access-token"))
	assert.Equal(t, []string{"access-token"}, auth.loggedOut)

	auth.err = supabase.ErrRejected
	assert.ErrorIs(t, svc.Logout("expired"), ErrInvalidCredentials)
}
