// Package supabase wraps the GoTrue client for the OAuth and admin calls the
// backend makes against Supabase Auth.
package supabase

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"finboard/pkg/config"
	"finboard/pkg/metrics"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported oauth provider")
	// ErrRejected means GoTrue answered with a 4xx: bad code, expired refresh
	// token, revoked session.
	ErrRejected = errors.New("rejected by supabase auth")
)

var providers = map[string]types.Provider{
	"google": types.ProviderGoogle,
	"github": types.ProviderGitHub,
	"apple":  types.ProviderApple,
	"azure":  types.ProviderAzure,
}

type User struct {
	ID        uuid.UUID
	Email     string
	FullName  string
	AvatarURL string
	CreatedAt time.Time
}

type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
	ExpiresAt    int64
	User         User
}

// Authorization is the first leg of the PKCE flow. The verifier must be
// presented again with the code on exchange.
type Authorization struct {
	URL      string
	Verifier string
}

type AuthClient struct {
	anon    gotrue.Client
	admin   gotrue.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewAuthClient(cfg *config.SupabaseConfig, logger *zap.Logger, m *metrics.Metrics) *AuthClient {
	authURL := cfg.URL + "/auth/v1"
	httpClient := http.Client{Timeout: 15 * time.Second}

	return &AuthClient{
		// The project ref is unused once a custom URL is set.
		anon: gotrue.New("", cfg.AnonKey).
			WithCustomGoTrueURL(authURL).
			WithClient(httpClient),
		admin: gotrue.New("", cfg.ServiceRoleKey).
			WithCustomGoTrueURL(authURL).
			WithClient(httpClient).
			WithToken(cfg.ServiceRoleKey),
		logger:  logger,
		metrics: m,
	}
}

// Authorize starts a PKCE login with the named provider.
func (c *AuthClient) Authorize(provider string) (*Authorization, error) {
	p, ok := providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}

	resp, err := c.anon.Authorize(types.AuthorizeRequest{
		Provider: p,
		FlowType: types.FlowPKCE,
		Scopes:   "email",
	})
	c.metrics.UpstreamCall("supabase", "authorize", err)
	if err != nil {
		return nil, c.wrap("authorize", err)
	}
	return &Authorization{URL: resp.AuthorizationURL, Verifier: resp.Verifier}, nil
}

// ExchangeCode trades an auth code and its PKCE verifier for a session.
func (c *AuthClient) ExchangeCode(code, verifier string) (*Session, error) {
	resp, err := c.anon.Token(types.TokenRequest{
		GrantType:    "pkce",
		Code:         code,
		CodeVerifier: verifier,
	})
	c.metrics.UpstreamCall("supabase", "token_pkce", err)
	if err != nil {
		return nil, c.wrap("exchange code", err)
	}
	return toSession(resp.Session), nil
}

func (c *AuthClient) Refresh(refreshToken string) (*Session, error) {
	resp, err := c.anon.RefreshToken(refreshToken)
	c.metrics.UpstreamCall("supabase", "token_refresh", err)
	if err != nil {
		return nil, c.wrap("refresh session", err)
	}
	return toSession(resp.Session), nil
}

// GetUser fetches the user behind an access token.
func (c *AuthClient) GetUser(accessToken string) (*User, error) {
	resp, err := c.anon.WithToken(accessToken).GetUser()
	c.metrics.UpstreamCall("supabase", "get_user", err)
	if err != nil {
		return nil, c.wrap("get user", err)
	}
	u := toUser(resp.User)
	return &u, nil
}

// Logout revokes every refresh token of the session's user.
func (c *AuthClient) Logout(accessToken string) error {
	err := c.anon.WithToken(accessToken).Logout()
	c.metrics.UpstreamCall("supabase", "logout", err)
	if err != nil {
		return c.wrap("logout", err)
	}
	return nil
}

// DeleteUser removes the auth user with the service role key.
func (c *AuthClient) DeleteUser(id uuid.UUID) error {
	err := c.admin.AdminDeleteUser(types.AdminDeleteUserRequest{UserID: id})
	c.metrics.UpstreamCall("supabase", "admin_delete_user", err)
	if err != nil {
		return c.wrap("delete user", err)
	}
	return nil
}

var statusPattern = regexp.MustCompile(`response status code (\d{3})`)

func (c *AuthClient) wrap(op string, err error) error {
	if errors.Is(err, types.ErrInvalidTokenRequest) {
		return fmt.Errorf("%s: %w: %v", op, ErrRejected, err)
	}
	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		if status, _ := strconv.Atoi(m[1]); status >= 400 && status < 500 {
			c.logger.Debug("Supabase auth rejected request", zap.String("operation", op), zap.Int("status", status))
			return fmt.Errorf("%s: %w: %v", op, ErrRejected, err)
		}
	}
	c.logger.Error("Supabase auth request failed", zap.String("operation", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func toSession(s types.Session) *Session {
	return &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		ExpiresAt:    s.ExpiresAt,
		User:         toUser(s.User),
	}
}

func toUser(u types.User) User {
	out := User{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
	if name, ok := u.UserMetadata["full_name"].(string); ok {
		out.FullName = name
	} else if name, ok := u.UserMetadata["name"].(string); ok {
		out.FullName = name
	}
	if avatar, ok := u.UserMetadata["avatar_url"].(string); ok {
		out.AvatarURL = avatar
	}
	return out
}
