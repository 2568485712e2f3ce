package api

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"finboard/internal/models"
	"finboard/internal/repository"
	"finboard/pkg/llm"
	"finboard/pkg/supabase"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubProfiles struct{}

func (stubProfiles) Upsert(context.Context, *models.Profile) error { return nil }
func (stubProfiles) GetByID(context.Context, uuid.UUID) (*models.Profile, error) {
	return nil, pgx.ErrNoRows
}
func (stubProfiles) Counts(context.Context, uuid.UUID) (int, int, error) { return 0, 0, nil }
func (stubProfiles) DeleteAllData(context.Context, uuid.UUID) error { return nil }

type stubItems struct{}

func (stubItems) Upsert(context.Context, *models.Item) error { return nil }
func (stubItems) ListByUser(context.Context, uuid.UUID) ([]*models.Item, error) {
	return nil, nil
}
func (stubItems) ListSyncable(context.Context) ([]*models.Item, error) { return nil, nil }
func (stubItems) GetByID(context.Context, uuid.UUID, uuid.UUID) (*models.Item, error) {
	return nil, pgx.ErrNoRows
}
func (stubItems) GetByPlaidItemID(context.Context, string) (*models.Item, error) {
	return nil, pgx.ErrNoRows
}
func (stubItems) UpdateStatus(context.Context, uuid.UUID, models.ItemStatus, string) error {
	return nil
}
func (stubItems) Delete(context.Context, uuid.UUID, uuid.UUID) error { return nil }

type stubAccounts struct{}

func (stubAccounts) UpsertBatch(context.Context, []*models.Account) error { return nil }
func (stubAccounts) ListByUser(context.Context, uuid.UUID) ([]*models.Account, error) {
	return nil, nil
}
func (stubAccounts) GetByID(context.Context, uuid.UUID, uuid.UUID) (*models.Account, error) {
	return nil, pgx.ErrNoRows
}
func (stubAccounts) IDsByPlaidID(context.Context, uuid.UUID) (map[string]uuid.UUID, error) {
	return map[string]uuid.UUID{}, nil
}

type stubTransactions struct {
	mu      sync.Mutex
	rows    []*models.Transaction
	filters []models.TransactionFilter
}

func (s *stubTransactions) ApplySync(context.Context, repository.SyncBatch) error { return nil }

func (s *stubTransactions) List(_ context.Context, _ uuid.UUID, f models.TransactionFilter) ([]*models.Transaction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = append(s.filters, f)
	return s.rows, len(s.rows), nil
}

func (s *stubTransactions) ListBetween(context.Context, uuid.UUID, time.Time, time.Time) ([]*models.Transaction, error) {
	return s.rows, nil
}

func (s *stubTransactions) Recent(context.Context, uuid.UUID, uint64) ([]*models.Transaction, error) {
	return s.rows, nil
}

func (s *stubTransactions) GetByID(context.Context, uuid.UUID, uuid.UUID) (*models.Transaction, error) {
	return nil, pgx.ErrNoRows
}

func (s *stubTransactions) SetCategoryOverride(context.Context, uuid.UUID, uuid.UUID, string) error {
	return pgx.ErrNoRows
}

type stubRecurring struct{}

func (stubRecurring) Replace(context.Context, uuid.UUID, []*models.RecurringStream) error {
	return nil
}
func (stubRecurring) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.RecurringStream, error) {
	return []*models.RecurringStream{{
		ID:            uuid.New(),
		UserID:        userID,
		Merchant:      "Netflix",
		Category:      "ENTERTAINMENT",
		Frequency:     models.FrequencyMonthly,
		AverageAmount: decimal.RequireFromString("15.49"),
		MonthlyAmount: decimal.RequireFromString("15.49"),
		LastDate:      time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC),
		NextDate:      time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		Occurrences:   6,
		Source:        "plaid",
	}}, nil
}

type stubChats struct {
	mu       sync.Mutex
	messages []*models.ChatMessage
}

func (s *stubChats) CreateBatch(_ context.Context, messages ...*models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, messages...)
	return nil
}

func (s *stubChats) Recent(context.Context, uuid.UUID, uint64) ([]*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.ChatMessage(nil), s.messages...), nil
}

func (s *stubChats) DeleteByUser(context.Context, uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.messages))
	s.messages = nil
	return n, nil
}

type stubAuth struct{}

func (stubAuth) Authorize(provider string) (*supabase.Authorization, error) {
	if provider != "github" {
		return nil, supabase.ErrUnsupportedProvider
	}
	return &supabase.Authorization{
		URL:      "https://project.supabase.co/auth/v1/authorize?provider=github&code_challenge=abc",
		Verifier: "verifier-123",
	}, nil
}

func (stubAuth) ExchangeCode(string, string) (*supabase.Session, error) {
	return nil, supabase.ErrRejected
}

func (stubAuth) Refresh(string) (*supabase.Session, error) { return nil, supabase.ErrRejected }
func (stubAuth) GetUser(string) (*supabase.User, error) { return nil, supabase.ErrRejected }
func (stubAuth) Logout(string) error                    { return nil }
func (stubAuth) DeleteUser(uuid.UUID) error             { return nil }

type stubModel struct {
	reply string
	err   error
}

func (m *stubModel) Model() string { return "test/model" }

func (m *stubModel) Complete(context.Context, []llm.Message) (*llm.Completion, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Completion{Content: m.reply, Model: m.Model()}, nil
}

func (m *stubModel) Stream(_ context.Context, _ []llm.Message, onDelta func(string) error) (*llm.Completion, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, word := range strings.SplitAfter(m.reply, " ") {
		if err := onDelta(word); err != nil {
			return nil, err
		}
	}
	return &llm.Completion{Content: m.reply, Model: m.Model()}, nil
}

type stubSealer struct{}

func (stubSealer) Seal(plaintext, aad string) (string, error) { return aad + "|" + plaintext, nil }

func (stubSealer) Open(ciphertext, aad string) (string, error) {
	token, ok := strings.CutPrefix(ciphertext, aad+"|")
	if !ok {
		return "", errors.New("message authentication failed")
	}
	return token, nil
}
