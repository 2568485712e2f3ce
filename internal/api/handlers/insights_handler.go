package handlers

import (
	"finboard/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type InsightsHandler struct {
	insightsService *service.InsightsService
	logger          *zap.Logger
}

func NewInsightsHandler(insightsService *service.InsightsService, logger *zap.Logger) *InsightsHandler {
	return &InsightsHandler{
		insightsService: insightsService,
		logger:          logger,
	}
}

// SpendingSummary godoc
// @Summary Spending summary
// @Description Totals by category, month and merchant; defaults to the current month
// @Tags insights
// @Produce json
// @Security Bearer
// @Param start_date query string false "First day (YYYY-MM-DD)"
// @Param end_date query string false "Last day (YYYY-MM-DD)"
// @Success 200 {object} dto.SpendingSummaryResponse
// @Failure 400 {object} map[string]string
// @Router /api/v1/insights/spending [get]
func (h *InsightsHandler) SpendingSummary(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	start, err := queryDate(c, "start_date")
	if err != nil {
		return badRequest(c, err.Error())
	}
	end, err := queryDate(c, "end_date")
	if err != nil {
		return badRequest(c, err.Error())
	}

	resp, err := h.insightsService.SpendingSummary(c.Context(), userID, start, end)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to build spending summary")
	}
	return c.JSON(resp)
}

// RecurringCharges godoc
// @Summary Recurring charges
// @Description Subscriptions and bills from Plaid recurring streams and transaction history
// @Tags insights
// @Produce json
// @Security Bearer
// @Param cached query bool false "Return the last stored snapshot without re-running detection"
// @Success 200 {object} dto.RecurringResponse
// @Failure 401 {object} map[string]string
// @Router /api/v1/insights/recurring [get]
func (h *InsightsHandler) RecurringCharges(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	fetch := h.insightsService.RecurringCharges
	if c.QueryBool("cached") {
		fetch = h.insightsService.RecurringSnapshot
	}
	resp, err := fetch(c.Context(), userID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to detect recurring charges")
	}
	return c.JSON(resp)
}
