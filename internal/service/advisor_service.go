package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"finboard/internal/dto"
	"finboard/internal/models"
	"finboard/pkg/config"
	"finboard/pkg/llm"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxChatMessageLength  = 4000
	defaultHistoryLimit   = 10
	defaultHistoryPage    = 50
	maxHistoryPage        = 200
	contextRecentCount    = 15
	contextTopCategories  = 5
	contextTrailingWindow = 30 * 24 * time.Hour
)

const advisorPrompt = `You are a personal finance assistant inside a budgeting dashboard.
Answer using the user's financial data below. Be concise and specific, quote amounts from the data,
and say so when the data does not answer the question. Do not invent accounts or transactions.
You are not a licensed financial advisor; for investment, tax or legal decisions suggest a professional.

%s`

type AdvisorService struct {
	model     ChatModel
	accounts  AccountStore
	txs       TransactionStore
	recurring RecurringStore
	chats     ChatStore
	cfg       *config.OpenRouterConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewAdvisorService accepts a nil model when no OpenRouter key is configured;
// chat then fails with ErrNotConfigured while history stays readable.
func NewAdvisorService(
	model ChatModel,
	accounts AccountStore,
	txs TransactionStore,
	recurring RecurringStore,
	chats ChatStore,
	cfg *config.OpenRouterConfig,
	logger *zap.Logger,
) *AdvisorService {
	return &AdvisorService{
		model:     model,
		accounts:  accounts,
		txs:       txs,
		recurring: recurring,
		chats:     chats,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Enabled reports whether a chat model is configured.
func (s *AdvisorService) Enabled() bool {
	return s.model != nil
}

// FinancialSnapshot is the data the advisor context is rendered from.
type FinancialSnapshot struct {
	Now       time.Time
	Accounts  []*models.Account
	Window    []*models.Transaction // the current month and the trailing 30 days
	Recurring []*models.RecurringStream
	Recent    []*models.Transaction
}

func (s *AdvisorService) Chat(ctx context.Context, userID uuid.UUID, message string) (*dto.ChatResponse, error) {
	messages, err := s.prepare(ctx, userID, message)
	if err != nil {
		return nil, err
	}

	completion, err := s.model.Complete(ctx, messages)
	if err != nil {
		return nil, s.mapModelError(err)
	}
	return s.persist(ctx, userID, messages[len(messages)-1].Content, completion), nil
}

// ChatStream streams reply deltas to onDelta and stores the full reply once
// the model finishes.
func (s *AdvisorService) ChatStream(ctx context.Context, userID uuid.UUID, message string, onDelta func(string) error) (*dto.ChatResponse, error) {
	messages, err := s.prepare(ctx, userID, message)
	if err != nil {
		return nil, err
	}

	completion, err := s.model.Stream(ctx, messages, onDelta)
	if err != nil {
		return nil, s.mapModelError(err)
	}
	return s.persist(ctx, userID, messages[len(messages)-1].Content, completion), nil
}

// ValidateMessage trims the message and enforces the length limit.
func ValidateMessage(message string) (string, error) {
	message = strings.TrimSpace(sanitizeText(message))
	if message == "" {
		return "", fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(message) > maxChatMessageLength {
		return "", fmt.Errorf("%w: message longer than %d characters", ErrInvalidInput, maxChatMessageLength)
	}
	return message, nil
}

func (s *AdvisorService) prepare(ctx context.Context, userID uuid.UUID, message string) ([]llm.Message, error) {
	if s.model == nil {
		return nil, ErrNotConfigured
	}
	message, err := ValidateMessage(message)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := s.cfg.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	history, err := s.chats.Recent(ctx, userID, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: fmt.Sprintf(advisorPrompt, BuildContext(snapshot))})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})
	return messages, nil
}

func (s *AdvisorService) snapshot(ctx context.Context, userID uuid.UUID) (*FinancialSnapshot, error) {
	now := s.now().UTC()
	today := truncateDay(now)
	monthStart, _ := monthBounds(today)
	windowStart := today.Add(-contextTrailingWindow)
	if monthStart.Before(windowStart) {
		windowStart = monthStart
	}

	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	window, err := s.txs.ListBetween(ctx, userID, windowStart, today)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	recurring, err := s.recurring.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load recurring streams: %w", err)
	}
	recent, err := s.txs.Recent(ctx, userID, contextRecentCount)
	if err != nil {
		return nil, fmt.Errorf("load recent transactions: %w", err)
	}

	return &FinancialSnapshot{
		Now:       now,
		Accounts:  accounts,
		Window:    window,
		Recurring: recurring,
		Recent:    recent,
	}, nil
}

// BuildContext renders the snapshot as plain text for the system prompt.
// Accounts appear by name, type and mask only.
func BuildContext(snap *FinancialSnapshot) string {
	var b strings.Builder
	today := truncateDay(snap.Now)

	b.WriteString(fmt.Sprintf("Today is %s.\n\n", today.Format(time.DateOnly)))

	b.WriteString("Accounts:\n")
	if len(snap.Accounts) == 0 {
		b.WriteString("- none linked\n")
	}
	for _, a := range snap.Accounts {
		name := a.Name
		if a.Mask != "" {
			name += " ••" + a.Mask
		}
		if a.InstitutionName != "" {
			name += " (" + a.InstitutionName + ")"
		}
		b.WriteString(fmt.Sprintf("- %s, %s: %s\n", name, accountKind(a), formatUSD(a.CurrentBalance)))
	}
	assets, liabilities, net := netWorth(snap.Accounts)
	b.WriteString(fmt.Sprintf("Net worth: %s (assets %s, liabilities %s)\n\n",
		formatUSD(net), formatUSD(assets), formatUSD(liabilities)))

	monthStart, monthEnd := monthBounds(today)
	month := summarize(snap.Window, monthStart, monthEnd)
	trailing := summarize(snap.Window, today.Add(-contextTrailingWindow), today)

	b.WriteString(fmt.Sprintf("This month (%s): spent %s, income %s\n",
		monthStart.Format("January 2006"), formatUSD(month.TotalSpent), formatUSD(month.TotalIncome)))
	b.WriteString(fmt.Sprintf("Last 30 days: spent %s, income %s\n",
		formatUSD(trailing.TotalSpent), formatUSD(trailing.TotalIncome)))

	if len(month.ByCategory) > 0 {
		b.WriteString("Top categories this month:\n")
		for i, c := range month.ByCategory {
			if i == contextTopCategories {
				break
			}
			b.WriteString(fmt.Sprintf("- %s: %s (%s%%)\n", normalizeCategoryLabel(c.Category), formatUSD(c.Amount), c.Percent.StringFixed(1)))
		}
	}
	b.WriteString("\n")

	if len(snap.Recurring) > 0 {
		total := decimal.Zero
		b.WriteString("Recurring charges:\n")
		for _, r := range snap.Recurring {
			total = total.Add(r.MonthlyAmount)
			b.WriteString(fmt.Sprintf("- %s: %s %s, about %s/month, next %s\n",
				r.Merchant, formatUSD(r.AverageAmount), r.Frequency, formatUSD(r.MonthlyAmount), r.NextDate.Format(time.DateOnly)))
		}
		b.WriteString(fmt.Sprintf("Recurring total: %s/month\n\n", formatUSD(total)))
	}

	if len(snap.Recent) > 0 {
		b.WriteString("Recent transactions (positive is spending, negative is income):\n")
		for i, t := range snap.Recent {
			if i == contextRecentCount {
				break
			}
			line := fmt.Sprintf("- %s %s %s [%s]", t.Date.Format(time.DateOnly), t.DisplayName(), formatUSD(t.Amount), normalizeCategoryLabel(t.EffectiveCategory()))
			if t.Pending {
				line += " pending"
			}
			b.WriteString(line + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func accountKind(a *models.Account) string {
	if a.Subtype != "" {
		return a.Type + "/" + a.Subtype
	}
	return a.Type
}

// formatUSD renders an amount as $1,234.56 with a leading minus for negatives.
func formatUSD(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}
	return sign + "$" + grouped.String() + "." + frac
}

func (s *AdvisorService) persist(ctx context.Context, userID uuid.UUID, question string, completion *llm.Completion) *dto.ChatResponse {
	now := s.now().UTC()
	reply := sanitizeText(completion.Content)
	model := completion.Model
	if model == "" {
		model = s.model.Model()
	}

	user := &models.ChatMessage{
		ID:        uuid.New(),
		UserID:    userID,
		Role:      llm.RoleUser,
		Content:   question,
		CreatedAt: now,
	}
	assistant := &models.ChatMessage{
		ID:        uuid.New(),
		UserID:    userID,
		Role:      llm.RoleAssistant,
		Content:   reply,
		Model:     model,
		CreatedAt: now.Add(time.Millisecond),
	}
	// The reply was already produced; a failed write only loses history.
	if err := s.chats.CreateBatch(ctx, user, assistant); err != nil {
		s.logger.Error("Failed to store chat messages", zap.String("user_id", userID.String()), zap.Error(err))
	}

	return &dto.ChatResponse{
		Reply:     reply,
		Model:     model,
		CreatedAt: assistant.CreatedAt.Format(time.RFC3339),
	}
}

func (s *AdvisorService) mapModelError(err error) error {
	s.logger.Error("Chat completion failed", zap.Error(err))
	return upstream("chat completion", err)
}

func (s *AdvisorService) History(ctx context.Context, userID uuid.UUID, limit int) (*dto.ChatHistoryResponse, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryPage
	case limit > maxHistoryPage:
		limit = maxHistoryPage
	}
	msgs, err := s.chats.Recent(ctx, userID, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	resp := &dto.ChatHistoryResponse{Messages: make([]dto.ChatMessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, dto.ChatMessageResponse{
			ID:        m.ID.String(),
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp, nil
}

func (s *AdvisorService) ClearHistory(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.chats.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("clear chat history: %w", err)
	}
	s.logger.Info("Chat history cleared", zap.String("user_id", userID.String()), zap.Int64("messages", n))
	return n, nil
}
