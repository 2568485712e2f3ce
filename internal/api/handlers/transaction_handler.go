package handlers

import (
	"fmt"
	"strconv"
	"time"

	"finboard/internal/dto"
	"finboard/internal/models"
	"finboard/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TransactionHandler struct {
	txService   *service.TransactionService
	syncService *service.SyncService
	logger      *zap.Logger
}

func NewTransactionHandler(txService *service.TransactionService, syncService *service.SyncService, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		txService:   txService,
		syncService: syncService,
		logger:      logger,
	}
}

// ListTransactions godoc
// @Summary List transactions
// @Description Newest first, filtered by account, category, date range, text and pending state
// @Tags transactions
// @Produce json
// @Security Bearer
// @Param account_id query string false "Account ID"
// @Param category query string false "Category, e.g. FOOD_AND_DRINK"
// @Param start_date query string false "First day (YYYY-MM-DD)"
// @Param end_date query string false "Last day (YYYY-MM-DD)"
// @Param search query string false "Matches name or merchant"
// @Param pending query bool false "Pending state"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} dto.TransactionListResponse
// @Failure 400 {object} map[string]string
// @Router /api/v1/transactions [get]
func (h *TransactionHandler) ListTransactions(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	filter, err := parseTransactionFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	resp, err := h.txService.ListTransactions(c.Context(), userID, filter)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list transactions")
	}
	return c.JSON(resp)
}

// UpdateCategory godoc
// @Summary Recategorize a transaction
// @Description Sets the user's category override; an empty category restores the original
// @Tags transactions
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Transaction ID"
// @Param request body dto.UpdateCategoryRequest true "New category"
// @Success 200 {object} dto.TransactionResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/transactions/{id} [patch]
func (h *TransactionHandler) UpdateCategory(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	txID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid transaction ID")
	}

	var req dto.UpdateCategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.txService.UpdateTransactionCategory(c.Context(), userID, txID, req.Category)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to update transaction")
	}
	return c.JSON(resp)
}

// Sync godoc
// @Summary Sync transactions now
// @Description Runs a Plaid transactions sync for every active item of the user
// @Tags transactions
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.SyncResponse
// @Failure 503 {object} map[string]string
// @Router /api/v1/transactions/sync [post]
func (h *TransactionHandler) Sync(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	resp, err := h.syncService.SyncUser(c.Context(), userID)
	if err != nil {
		return respondError(c, h.logger, err, "Sync failed")
	}
	return c.JSON(resp)
}

func parseTransactionFilter(c *fiber.Ctx) (models.TransactionFilter, error) {
	filter := models.TransactionFilter{
		Category: c.Query("category"),
		Search:   c.Query("search"),
	}

	if v := c.Query("account_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, fmt.Errorf("invalid account_id")
		}
		filter.AccountID = &id
	}

	var err error
	if filter.StartDate, err = queryDate(c, "start_date"); err != nil {
		return filter, err
	}
	if filter.EndDate, err = queryDate(c, "end_date"); err != nil {
		return filter, err
	}

	if v := c.Query("pending"); v != "" {
		pending, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("invalid pending")
		}
		filter.Pending = &pending
	}

	if filter.Limit, err = queryUint(c, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryUint(c, "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

func queryDate(c *fiber.Ctx, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s, expected YYYY-MM-DD", key)
	}
	return &t, nil
}

func queryUint(c *fiber.Ctx, key string) (uint64, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
