package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"finboard/internal/dto"
	"finboard/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const streamTimeout = 2 * time.Minute

type ChatHandler struct {
	advisor *service.AdvisorService
	logger  *zap.Logger
}

func NewChatHandler(advisor *service.AdvisorService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		advisor: advisor,
		logger:  logger,
	}
}

// Chat godoc
// @Summary Ask the finance assistant
// @Description Answers a question using the user's accounts, spending and recurring charges
// @Tags chat
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body dto.ChatRequest true "Question"
// @Success 200 {object} dto.ChatResponse
// @Failure 400 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/v1/chat [post]
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.advisor.Chat(c.Context(), userID, req.Message)
	if err != nil {
		return respondError(c, h.logger, err, "Assistant failed to answer")
	}
	return c.JSON(resp)
}

// ChatStream godoc
// @Summary Ask the finance assistant with a streamed reply
// @Description Server-sent events: data frames carry {"delta": "..."}, an {"error": "..."} frame reports a failure, the stream ends with [DONE]
// @Tags chat
// @Accept json
// @Produce text/event-stream
// @Security Bearer
// @Param request body dto.ChatRequest true "Question"
// @Success 200 {string} string
// @Failure 400 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/v1/chat/stream [post]
func (h *ChatHandler) ChatStream(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	// Anything that can be rejected is rejected before the stream starts,
	// while a JSON status response is still possible.
	if !h.advisor.Enabled() {
		return respondError(c, h.logger, service.ErrNotConfigured, "Assistant unavailable")
	}
	message, err := service.ValidateMessage(req.Message)
	if err != nil {
		return respondError(c, h.logger, err, "Invalid message")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	// The writer runs after the handler returns, so it must not touch c.
	logger := h.logger.With(zap.String("user_id", userID.String()))
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), streamTimeout)
		defer cancel()

		_, err := h.advisor.ChatStream(ctx, userID, message, func(delta string) error {
			return writeEvent(w, fiber.Map{"delta": delta})
		})
		if err != nil {
			status, body := statusFor(err, "Assistant failed to answer")
			if status >= fiber.StatusInternalServerError {
				logger.Error("Chat stream failed", zap.Error(err))
			}
			if werr := writeEvent(w, fiber.Map{"error": body}); werr != nil {
				return
			}
		}
		if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
			return
		}
		_ = w.Flush()
	})
	return nil
}

func writeEvent(w *bufio.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	// Flush fails once the client has gone away, which aborts the model stream.
	return w.Flush()
}

// History godoc
// @Summary Chat history
// @Description Stored messages, oldest first
// @Tags chat
// @Produce json
// @Security Bearer
// @Param limit query int false "Number of messages" default(50)
// @Success 200 {object} dto.ChatHistoryResponse
// @Failure 401 {object} map[string]string
// @Router /api/v1/chat/history [get]
func (h *ChatHandler) History(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return badRequest(c, "invalid limit")
	}

	resp, err := h.advisor.History(c.Context(), userID, limit)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to load chat history")
	}
	return c.JSON(resp)
}

// ClearHistory godoc
// @Summary Clear chat history
// @Tags chat
// @Produce json
// @Security Bearer
// @Success 200 {object} map[string]int64
// @Failure 401 {object} map[string]string
// @Router /api/v1/chat/history [delete]
func (h *ChatHandler) ClearHistory(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	deleted, err := h.advisor.ClearHistory(c.Context(), userID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to clear chat history")
	}
	return c.JSON(fiber.Map{
		"deleted": deleted,
	})
}
