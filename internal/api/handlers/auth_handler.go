package handlers

import (
	"strings"

	"finboard/internal/dto"
	"finboard/internal/service"
	"finboard/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService     *service.AuthService
	deletionService *service.DeletionService
	logger          *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, deletionService *service.DeletionService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService:     authService,
		deletionService: deletionService,
		logger:          logger,
	}
}

// StartOAuth godoc
// @Summary Start OAuth login
// @Description Returns the Supabase authorization URL and the PKCE code verifier for the provider
// @Tags auth
// @Produce json
// @Param provider path string true "OAuth provider" Enums(github, google)
// @Success 200 {object} dto.OAuthStartResponse
// @Failure 400 {object} map[string]string
// @Router /auth/oauth/{provider} [get]
func (h *AuthHandler) StartOAuth(c *fiber.Ctx) error {
	resp, err := h.authService.StartOAuth(strings.ToLower(c.Params("provider")))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to start login")
	}
	return c.JSON(resp)
}

// Callback godoc
// @Summary Complete OAuth login
// @Description Exchanges the authorization code and code verifier for a session
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.CallbackRequest true "Authorization code"
// @Success 200 {object} dto.SessionResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/callback [post]
func (h *AuthHandler) Callback(c *fiber.Ctx) error {
	var req dto.CallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.authService.ExchangeCode(c.Context(), req.Code, req.CodeVerifier)
	if err != nil {
		return respondError(c, h.logger, err, "Login failed")
	}
	return c.JSON(resp)
}

// Refresh godoc
// @Summary Refresh session
// @Description Exchanges a refresh token for a new session
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RefreshRequest true "Refresh token"
// @Success 200 {object} dto.SessionResponse
// @Failure 401 {object} map[string]string
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.RefreshToken == "" {
		return badRequest(c, "refresh_token is required")
	}

	resp, err := h.authService.Refresh(req.RefreshToken)
	if err != nil {
		return respondError(c, h.logger, err, "Token refresh failed")
	}
	return c.JSON(resp)
}

// Me godoc
// @Summary Current user
// @Tags auth
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.ProfileResponse
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/me [get]
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	resp, err := h.authService.Me(c.Context(), userID, middleware.AccessToken(c))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to load profile")
	}
	return c.JSON(resp)
}

// Logout godoc
// @Summary Sign out
// @Description Revokes the session's refresh tokens
// @Tags auth
// @Security Bearer
// @Success 204
// @Failure 401 {object} map[string]string
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.authService.Logout(middleware.AccessToken(c)); err != nil {
		return respondError(c, h.logger, err, "Logout failed")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteMe godoc
// @Summary Delete account
// @Description Unlinks every bank connection, deletes all stored data and the login
// @Tags auth
// @Security Bearer
// @Success 204
// @Failure 401 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /api/v1/me [delete]
func (h *AuthHandler) DeleteMe(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	if err := h.deletionService.DeleteAccount(c.Context(), userID); err != nil {
		return respondError(c, h.logger, err, "Account deletion failed")
	}
	h.logger.Info("Account deleted", zap.String("user_id", userID.String()))
	return c.SendStatus(fiber.StatusNoContent)
}
