package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"finboard/internal/models"
	"finboard/pkg/config"
	"finboard/pkg/plaid"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type WebhookService struct {
	plaid  PlaidClient
	items  ItemStore
	syncer ItemSyncer
	cfg    *config.PlaidConfig
	logger *zap.Logger
}

func NewWebhookService(client PlaidClient, items ItemStore, syncer ItemSyncer, cfg *config.PlaidConfig, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		plaid:  client,
		items:  items,
		syncer: syncer,
		cfg:    cfg,
		logger: logger,
	}
}

// Handle verifies and dispatches one Plaid webhook. Webhooks for unknown items
// or with unknown codes are acknowledged without action.
func (s *WebhookService) Handle(ctx context.Context, verification string, body []byte) error {
	if s.plaid == nil {
		return ErrNotConfigured
	}
	if s.cfg.VerifyWebhooks {
		if err := s.plaid.VerifyWebhook(ctx, verification, body); err != nil {
			s.logger.Warn("Rejected Plaid webhook", zap.Error(err))
			return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
	}

	var hook plaid.Webhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return fmt.Errorf("%w: malformed webhook body", ErrInvalidInput)
	}

	log := s.logger.With(
		zap.String("webhook_type", hook.WebhookType),
		zap.String("webhook_code", hook.WebhookCode),
		zap.String("plaid_item_id", hook.ItemID),
	)

	if hook.ItemID == "" {
		log.Info("Webhook without item acknowledged")
		return nil
	}
	item, err := s.items.GetByPlaidItemID(ctx, hook.ItemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Warn("Webhook for unknown item acknowledged")
			return nil
		}
		return fmt.Errorf("load item: %w", err)
	}

	switch hook.WebhookType {
	case plaid.WebhookTypeTransactions:
		if hook.WebhookCode == plaid.WebhookSyncUpdatesAvailable {
			log.Info("Sync updates available, syncing item")
			s.syncer.Trigger(item)
			return nil
		}
	case plaid.WebhookTypeItem:
		return s.handleItem(ctx, log, item, &hook)
	}

	log.Info("Webhook acknowledged")
	return nil
}

func (s *WebhookService) handleItem(ctx context.Context, log *zap.Logger, item *models.Item, hook *plaid.Webhook) error {
	var (
		status models.ItemStatus
		code   string
	)
	switch hook.WebhookCode {
	case plaid.WebhookItemError:
		status = models.ItemStatusError
		if hook.Error != nil {
			code = hook.Error.ErrorCode
		}
		if code == plaid.CodeItemLoginRequired {
			status = models.ItemStatusLoginRequired
		}
	case plaid.WebhookItemPendingExpiration:
		status = models.ItemStatusPendingExpiration
	case plaid.WebhookItemLoginRepaired:
		status = models.ItemStatusActive
	case plaid.WebhookItemPermissionRevoked:
		status = models.ItemStatusRevoked
	default:
		log.Info("Webhook acknowledged")
		return nil
	}

	if err := s.items.UpdateStatus(ctx, item.ID, status, code); err != nil {
		return fmt.Errorf("update item status: %w", err)
	}
	log.Info("Item status updated", zap.String("status", string(status)), zap.String("error_code", code))

	if status == models.ItemStatusActive {
		item.Status = status
		item.ErrorCode = ""
		s.syncer.Trigger(item)
	}
	return nil
}
