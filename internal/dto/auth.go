package dto

type OAuthStartResponse struct {
	Provider         string `json:"provider" example:"github"`
	AuthorizationURL string `json:"authorization_url"`
	// CodeVerifier must be sent back with the code to /auth/callback.
	CodeVerifier string `json:"code_verifier"`
}

type CallbackRequest struct {
	Code         string `json:"code" validate:"required"`
	CodeVerifier string `json:"code_verifier" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type SessionResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type" example:"bearer"`
	ExpiresIn    int             `json:"expires_in" example:"3600"`
	ExpiresAt    int64           `json:"expires_at"`
	User         ProfileResponse `json:"user"`
}

type ProfileResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	ItemCount    int    `json:"item_count"`
	AccountCount int    `json:"account_count"`
}
