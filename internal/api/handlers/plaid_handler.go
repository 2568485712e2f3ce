package handlers

import (
	"strings"

	"finboard/internal/dto"
	"finboard/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const plaidVerificationHeader = "Plaid-Verification"

type PlaidHandler struct {
	plaidService   *service.PlaidService
	webhookService *service.WebhookService
	logger         *zap.Logger
}

func NewPlaidHandler(plaidService *service.PlaidService, webhookService *service.WebhookService, logger *zap.Logger) *PlaidHandler {
	return &PlaidHandler{
		plaidService:   plaidService,
		webhookService: webhookService,
		logger:         logger,
	}
}

// CreateLinkToken godoc
// @Summary Create a Plaid Link token
// @Description Creates a link token for connecting a new institution
// @Tags plaid
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.LinkTokenResponse
// @Failure 401 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/v1/plaid/link-token [post]
func (h *PlaidHandler) CreateLinkToken(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	resp, err := h.plaidService.CreateLinkToken(c.Context(), userID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to create link token")
	}
	return c.JSON(resp)
}

// CreateUpdateLinkToken godoc
// @Summary Create a Plaid Link token in update mode
// @Description Creates a link token that repairs the login of an existing item
// @Tags plaid
// @Produce json
// @Security Bearer
// @Param id path string true "Item ID"
// @Success 200 {object} dto.LinkTokenResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/items/{id}/link-token [post]
func (h *PlaidHandler) CreateUpdateLinkToken(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	itemID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid item ID")
	}

	resp, err := h.plaidService.CreateUpdateLinkToken(c.Context(), userID, itemID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to create link token")
	}
	return c.JSON(resp)
}

// ExchangePublicToken godoc
// @Summary Link an institution
// @Description Exchanges the Link public token, stores the item and its accounts and starts the first sync
// @Tags plaid
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body dto.ExchangeRequest true "Public token from Plaid Link"
// @Success 201 {object} dto.ItemResponse
// @Failure 400 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /api/v1/plaid/exchange [post]
func (h *PlaidHandler) ExchangePublicToken(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.ExchangeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	req.PublicToken = strings.TrimSpace(req.PublicToken)
	if req.PublicToken == "" {
		return badRequest(c, "public_token is required")
	}

	resp, err := h.plaidService.ExchangePublicToken(c.Context(), userID, &req)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to link institution")
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// ListItems godoc
// @Summary List linked institutions
// @Tags plaid
// @Produce json
// @Security Bearer
// @Success 200 {array} dto.ItemResponse
// @Failure 401 {object} map[string]string
// @Router /api/v1/items [get]
func (h *PlaidHandler) ListItems(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	items, err := h.plaidService.ListItems(c.Context(), userID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list items")
	}
	return c.JSON(items)
}

// RemoveItem godoc
// @Summary Unlink an institution
// @Description Revokes the item at Plaid and deletes its accounts and transactions
// @Tags plaid
// @Security Bearer
// @Param id path string true "Item ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/items/{id} [delete]
func (h *PlaidHandler) RemoveItem(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	itemID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid item ID")
	}

	if err := h.plaidService.RemoveItem(c.Context(), userID, itemID); err != nil {
		return respondError(c, h.logger, err, "Failed to remove item")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Webhook godoc
// @Summary Plaid webhook receiver
// @Description Verifies the Plaid-Verification JWT and reacts to item and transaction events
// @Tags plaid
// @Accept json
// @Produce json
// @Param Plaid-Verification header string false "Signed webhook JWT"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /plaid/webhook [post]
func (h *PlaidHandler) Webhook(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer after the handler returns.
	body := append([]byte(nil), c.Body()...)

	if err := h.webhookService.Handle(c.Context(), c.Get(plaidVerificationHeader), body); err != nil {
		return respondError(c, h.logger, err, "Failed to process webhook")
	}
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}
