package handlers

import (
	"finboard/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AccountHandler struct {
	accountService *service.AccountService
	logger         *zap.Logger
}

func NewAccountHandler(accountService *service.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// ListAccounts godoc
// @Summary List accounts
// @Description Stored balances of every linked account with asset, liability and net worth totals
// @Tags accounts
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.AccountsResponse
// @Failure 401 {object} map[string]string
// @Router /api/v1/accounts [get]
func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	resp, err := h.accountService.ListAccounts(c.Context(), userID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list accounts")
	}
	return c.JSON(resp)
}

// GetAccount godoc
// @Summary Get account
// @Tags accounts
// @Produce json
// @Security Bearer
// @Param id path string true "Account ID"
// @Success 200 {object} dto.AccountResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/accounts/{id} [get]
func (h *AccountHandler) GetAccount(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	accountID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid account ID")
	}

	resp, err := h.accountService.GetAccount(c.Context(), userID, accountID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to get account")
	}
	return c.JSON(resp)
}

// RefreshBalances godoc
// @Summary Refresh balances
// @Description Pulls current balances from Plaid for every active item
// @Tags accounts
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.AccountsResponse
// @Failure 503 {object} map[string]string
// @Router /api/v1/accounts/refresh [post]
func (h *AccountHandler) RefreshBalances(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	resp, err := h.accountService.RefreshBalances(c.Context(), userID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to refresh balances")
	}
	return c.JSON(resp)
}
