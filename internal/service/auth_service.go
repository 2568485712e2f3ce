package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finboard/internal/dto"
	"finboard/internal/models"
	"finboard/pkg/supabase"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type AuthService struct {
	profiles ProfileStore
	auth     AuthProvider
	logger   *zap.Logger
}

func NewAuthService(profiles ProfileStore, auth AuthProvider, logger *zap.Logger) *AuthService {
	return &AuthService{
		profiles: profiles,
		auth:     auth,
		logger:   logger,
	}
}

func (s *AuthService) StartOAuth(provider string) (*dto.OAuthStartResponse, error) {
	authz, err := s.auth.Authorize(provider)
	if err != nil {
		return nil, s.mapAuthError("start oauth", err)
	}
	return &dto.OAuthStartResponse{
		Provider:         provider,
		AuthorizationURL: authz.URL,
		CodeVerifier:     authz.Verifier,
	}, nil
}

// ExchangeCode completes the PKCE flow and makes sure a profile row exists.
func (s *AuthService) ExchangeCode(ctx context.Context, code, verifier string) (*dto.SessionResponse, error) {
	if code == "" || verifier == "" {
		return nil, fmt.Errorf("%w: code and code_verifier are required", ErrInvalidInput)
	}

	session, err := s.auth.ExchangeCode(code, verifier)
	if err != nil {
		return nil, s.mapAuthError("exchange code", err)
	}

	profile := &models.Profile{
		ID:          session.User.ID,
		Email:       session.User.Email,
		DisplayName: session.User.FullName,
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	s.logger.Info("User signed in", zap.String("user_id", session.User.ID.String()))
	return toSessionResponse(session), nil
}

func (s *AuthService) Refresh(refreshToken string) (*dto.SessionResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh_token is required", ErrInvalidInput)
	}
	session, err := s.auth.Refresh(refreshToken)
	if err != nil {
		return nil, s.mapAuthError("refresh session", err)
	}
	return toSessionResponse(session), nil
}

// Me returns the caller's profile. Sessions issued by supabase-js directly never
// pass through ExchangeCode, so a missing profile is created from GoTrue's user.
// Linking an item or chatting first leaves a bare row without an email, which
// is filled in the same way.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID, accessToken string) (*dto.ProfileResponse, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	switch {
	case errors.Is(err, pgx.ErrNoRows) && accessToken != "":
		if profile, err = s.provisionProfile(ctx, userID, accessToken); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, notFound("profile", err)
	case profile.Email == "" && accessToken != "":
		filled, err := s.provisionProfile(ctx, userID, accessToken)
		if err != nil {
			s.logger.Warn("Failed to fill bare profile", zap.String("user_id", userID.String()), zap.Error(err))
			break
		}
		profile = filled
	}

	items, accounts, err := s.profiles.Counts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count linked data: %w", err)
	}
	return &dto.ProfileResponse{
		ID:           profile.ID.String(),
		Email:        profile.Email,
		DisplayName:  profile.DisplayName,
		CreatedAt:    profile.CreatedAt.Format(time.RFC3339),
		ItemCount:    items,
		AccountCount: accounts,
	}, nil
}

func (s *AuthService) provisionProfile(ctx context.Context, userID uuid.UUID, accessToken string) (*models.Profile, error) {
	user, err := s.auth.GetUser(accessToken)
	if err != nil {
		return nil, s.mapAuthError("get user", err)
	}
	if user.ID != userID {
		return nil, fmt.Errorf("get user: token subject mismatch: %w", ErrInvalidCredentials)
	}

	if err := s.profiles.Upsert(ctx, &models.Profile{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.FullName,
	}); err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	s.logger.Info("Profile created on first request", zap.String("user_id", userID.String()))

	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound("profile", err)
	}
	return profile, nil
}

func (s *AuthService) Logout(accessToken string) error {
	if err := s.auth.Logout(accessToken); err != nil {
		return s.mapAuthError("logout", err)
	}
	return nil
}

func (s *AuthService) mapAuthError(op string, err error) error {
	switch {
	case errors.Is(err, supabase.ErrUnsupportedProvider):
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidInput, err)
	case errors.Is(err, supabase.ErrRejected):
		return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	default:
		s.logger.Error("Auth provider call failed", zap.String("operation", op), zap.Error(err))
		return upstream(op, err)
	}
}

func toSessionResponse(s *supabase.Session) *dto.SessionResponse {
	return &dto.SessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		ExpiresAt:    s.ExpiresAt,
		User: dto.ProfileResponse{
			ID:          s.User.ID.String(),
			Email:       s.User.Email,
			DisplayName: s.User.FullName,
			AvatarURL:   s.User.AvatarURL,
			CreatedAt:   formatTime(s.User.CreatedAt),
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
