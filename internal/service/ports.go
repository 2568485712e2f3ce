package service

import (
	"context"
	"time"

	"finboard/internal/models"
	"finboard/internal/repository"
	"finboard/pkg/llm"
	"finboard/pkg/plaid"
	"finboard/pkg/supabase"

	"github.com/google/uuid"
)

// The interfaces below are the slices of repositories and upstream clients
// each service depends on. Concrete types live in internal/repository and pkg/.

type ProfileStore interface {
	Upsert(ctx context.Context, p *models.Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Counts(ctx context.Context, userID uuid.UUID) (items, accounts int, err error)
	DeleteAllData(ctx context.Context, userID uuid.UUID) error
}

type ItemStore interface {
	Upsert(ctx context.Context, item *models.Item) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Item, error)
	ListSyncable(ctx context.Context) ([]*models.Item, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Item, error)
	GetByPlaidItemID(ctx context.Context, plaidItemID string) (*models.Item, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ItemStatus, errorCode string) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type AccountStore interface {
	UpsertBatch(ctx context.Context, accounts []*models.Account) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Account, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Account, error)
	IDsByPlaidID(ctx context.Context, itemID uuid.UUID) (map[string]uuid.UUID, error)
}

type TransactionStore interface {
	ApplySync(ctx context.Context, batch repository.SyncBatch) error
	List(ctx context.Context, userID uuid.UUID, f models.TransactionFilter) ([]*models.Transaction, int, error)
	ListBetween(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*models.Transaction, error)
	Recent(ctx context.Context, userID uuid.UUID, limit uint64) ([]*models.Transaction, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error)
	SetCategoryOverride(ctx context.Context, userID, id uuid.UUID, category string) error
}

type RecurringStore interface {
	Replace(ctx context.Context, userID uuid.UUID, streams []*models.RecurringStream) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.RecurringStream, error)
}

type ChatStore interface {
	CreateBatch(ctx context.Context, messages ...*models.ChatMessage) error
	Recent(ctx context.Context, userID uuid.UUID, limit uint64) ([]*models.ChatMessage, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type PlaidClient interface {
	CreateLinkToken(ctx context.Context, req plaid.LinkTokenRequest) (*plaid.LinkTokenResponse, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*plaid.ExchangeResponse, error)
	GetItem(ctx context.Context, accessToken string) (*plaid.Item, error)
	GetInstitutionName(ctx context.Context, institutionID string, countryCodes []string) (string, error)
	GetAccounts(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error)
	GetBalances(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error)
	SyncTransactions(ctx context.Context, accessToken, cursor string, count int) (*plaid.SyncResponse, error)
	GetRecurring(ctx context.Context, accessToken string) (*plaid.RecurringResponse, error)
	RemoveItem(ctx context.Context, accessToken string) error
	VerifyWebhook(ctx context.Context, token string, body []byte) error
}

type AuthProvider interface {
	Authorize(provider string) (*supabase.Authorization, error)
	ExchangeCode(code, verifier string) (*supabase.Session, error)
	Refresh(refreshToken string) (*supabase.Session, error)
	GetUser(accessToken string) (*supabase.User, error)
	Logout(accessToken string) error
	DeleteUser(id uuid.UUID) error
}

type ChatModel interface {
	Model() string
	Complete(ctx context.Context, messages []llm.Message) (*llm.Completion, error)
	Stream(ctx context.Context, messages []llm.Message, onDelta func(string) error) (*llm.Completion, error)
}

// TokenSealer encrypts Plaid access tokens at rest.
type TokenSealer interface {
	Seal(plaintext, aad string) (string, error)
	Open(ciphertext, aad string) (string, error)
}
