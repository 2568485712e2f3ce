package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"finboard/internal/models"
	"finboard/internal/repository"
	"finboard/pkg/llm"
	"finboard/pkg/plaid"
	"finboard/pkg/supabase"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type fakeProfiles struct {
	mu        sync.Mutex
	profiles  map[uuid.UUID]*models.Profile
	items     int
	accounts  int
	deleted   []uuid.UUID
	deleteErr error
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: map[uuid.UUID]*models.Profile{}}
}

func (f *fakeProfiles) Upsert(_ context.Context, p *models.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	cp.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.profiles[p.ID] = &cp
	return nil
}

func (f *fakeProfiles) GetByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeProfiles) Counts(context.Context, uuid.UUID) (int, int, error) {
	return f.items, f.accounts, nil
}

func (f *fakeProfiles) DeleteAllData(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, userID)
	delete(f.profiles, userID)
	return nil
}

type statusUpdate struct {
	ItemID uuid.UUID
	Status models.ItemStatus
	Code   string
}

type fakeItems struct {
	mu       sync.Mutex
	items    []*models.Item
	statuses []statusUpdate
}

func (f *fakeItems) add(items ...*models.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, items...)
}

func (f *fakeItems) Upsert(_ context.Context, item *models.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.Status = models.ItemStatusActive
	for _, it := range f.items {
		if it.UserID == item.UserID && it.PlaidItemID == item.PlaidItemID {
			item.ID = it.ID
			item.SyncCursor = it.SyncCursor
			*it = *item
			return nil
		}
	}
	cp := *item
	f.items = append(f.items, &cp)
	return nil
}

func (f *fakeItems) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Item
	for _, it := range f.items {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeItems) ListSyncable(context.Context) ([]*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Item
	for _, it := range f.items {
		if it.Status != models.ItemStatusRevoked {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeItems) GetByID(_ context.Context, userID, id uuid.UUID) (*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.ID == id && it.UserID == userID {
			return it, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeItems) GetByPlaidItemID(_ context.Context, plaidItemID string) (*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.PlaidItemID == plaidItemID {
			return it, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeItems) UpdateStatus(_ context.Context, id uuid.UUID, status models.ItemStatus, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, statusUpdate{ItemID: id, Status: status, Code: code})
	return nil
}

func (f *fakeItems) Delete(_ context.Context, userID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, it := range f.items {
		if it.ID == id && it.UserID == userID {
			f.items = slices.Delete(f.items, i, i+1)
			return nil
		}
	}
	return pgx.ErrNoRows
}

type fakeAccounts struct {
	mu       sync.Mutex
	accounts []*models.Account
	upserts  int
}

func (f *fakeAccounts) UpsertBatch(_ context.Context, accounts []*models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	for _, a := range accounts {
		replaced := false
		for i, existing := range f.accounts {
			if existing.PlaidAccountID == a.PlaidAccountID {
				cp := *a
				cp.ID = existing.ID
				f.accounts[i] = &cp
				replaced = true
			}
		}
		if !replaced {
			cp := *a
			f.accounts = append(f.accounts, &cp)
		}
	}
	return nil
}

func (f *fakeAccounts) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Account
	for _, a := range f.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccounts) GetByID(_ context.Context, userID, id uuid.UUID) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.ID == id && a.UserID == userID {
			return a, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeAccounts) IDsByPlaidID(_ context.Context, itemID uuid.UUID) (map[string]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]uuid.UUID{}
	for _, a := range f.accounts {
		if a.ItemID == itemID {
			out[a.PlaidAccountID] = a.ID
		}
	}
	return out, nil
}

type fakeTransactions struct {
	mu        sync.Mutex
	rows      []*models.Transaction
	batches   []repository.SyncBatch
	applyErr  error
	lastQuery models.TransactionFilter
}

func (f *fakeTransactions) ApplySync(_ context.Context, batch repository.SyncBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeTransactions) List(_ context.Context, userID uuid.UUID, filter models.TransactionFilter) ([]*models.Transaction, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = filter
	var out []*models.Transaction
	for _, t := range f.rows {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, len(out), nil
}

func (f *fakeTransactions) ListBetween(_ context.Context, userID uuid.UUID, start, end time.Time) ([]*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Transaction
	for _, t := range f.rows {
		if t.UserID == userID && !t.Date.Before(start) && !t.Date.After(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTransactions) Recent(_ context.Context, userID uuid.UUID, limit uint64) ([]*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Transaction
	for _, t := range f.rows {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b *models.Transaction) int { return b.Date.Compare(a.Date) })
	if uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeTransactions) GetByID(_ context.Context, userID, id uuid.UUID) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.ID == id && t.UserID == userID {
			return t, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeTransactions) SetCategoryOverride(_ context.Context, userID, id uuid.UUID, category string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.ID == id && t.UserID == userID {
			t.CategoryOverride = category
			return nil
		}
	}
	return pgx.ErrNoRows
}

type fakeRecurring struct {
	mu      sync.Mutex
	streams map[uuid.UUID][]*models.RecurringStream
}

func newFakeRecurring() *fakeRecurring {
	return &fakeRecurring{streams: map[uuid.UUID][]*models.RecurringStream{}}
}

func (f *fakeRecurring) Replace(_ context.Context, userID uuid.UUID, streams []*models.RecurringStream) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[userID] = streams
	return nil
}

func (f *fakeRecurring) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.RecurringStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[userID], nil
}

type fakeChats struct {
	mu       sync.Mutex
	messages []*models.ChatMessage
}

func (f *fakeChats) CreateBatch(_ context.Context, messages ...*models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messages...)
	return nil
}

func (f *fakeChats) Recent(_ context.Context, userID uuid.UUID, limit uint64) ([]*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ChatMessage
	for _, m := range f.messages {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	if uint64(len(out)) > limit {
		out = out[uint64(len(out))-limit:]
	}
	return out, nil
}

func (f *fakeChats) DeleteByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*models.ChatMessage
	for _, m := range f.messages {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	n := int64(len(f.messages) - len(kept))
	f.messages = kept
	return n, nil
}

// fakePlaid serves canned responses keyed by access token.
type fakePlaid struct {
	mu sync.Mutex

	linkRequests []plaid.LinkTokenRequest
	exchange     *plaid.ExchangeResponse
	institution  string
	item         *plaid.Item
	accounts     map[string][]plaid.Account
	balancesErr  error
	syncFn       func(token, cursor string) (*plaid.SyncResponse, error)
	syncCalls    int
	recurring    map[string]*plaid.RecurringResponse
	recurringErr error
	removeErr    error
	removed      []string
	verifyErr    error
}

func (f *fakePlaid) CreateLinkToken(_ context.Context, req plaid.LinkTokenRequest) (*plaid.LinkTokenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkRequests = append(f.linkRequests, req)
	return &plaid.LinkTokenResponse{LinkToken: "link-sandbox-123", Expiration: "2026-10-15T12:00:00Z"}, nil
}

func (f *fakePlaid) ExchangePublicToken(context.Context, string) (*plaid.ExchangeResponse, error) {
	return f.exchange, nil
}

func (f *fakePlaid) GetItem(context.Context, string) (*plaid.Item, error) {
	if f.item == nil {
		return nil, &plaid.Error{ErrorType: "ITEM_ERROR", ErrorCode: plaid.CodeItemNotFound}
	}
	return f.item, nil
}

func (f *fakePlaid) GetInstitutionName(context.Context, string, []string) (string, error) {
	return f.institution, nil
}

func (f *fakePlaid) GetAccounts(_ context.Context, token string) (*plaid.AccountsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &plaid.AccountsResponse{Accounts: f.accounts[token]}, nil
}

func (f *fakePlaid) GetBalances(ctx context.Context, token string) (*plaid.AccountsResponse, error) {
	if f.balancesErr != nil {
		return nil, f.balancesErr
	}
	return f.GetAccounts(ctx, token)
}

func (f *fakePlaid) SyncTransactions(_ context.Context, token, cursor string, _ int) (*plaid.SyncResponse, error) {
	f.mu.Lock()
	f.syncCalls++
	fn := f.syncFn
	f.mu.Unlock()
	return fn(token, cursor)
}

func (f *fakePlaid) GetRecurring(_ context.Context, token string) (*plaid.RecurringResponse, error) {
	if f.recurringErr != nil {
		return nil, f.recurringErr
	}
	if r, ok := f.recurring[token]; ok {
		return r, nil
	}
	return &plaid.RecurringResponse{}, nil
}

func (f *fakePlaid) RemoveItem(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, token)
	return f.removeErr
}

func (f *fakePlaid) VerifyWebhook(context.Context, string, []byte) error {
	return f.verifyErr
}

type fakeAuth struct {
	session    *supabase.Session
	user       *supabase.User
	err        error
	deleteErr  error
	deleted    []uuid.UUID
	loggedOut  []string
	authorized []string
}

func (f *fakeAuth) Authorize(provider string) (*supabase.Authorization, error) {
	if provider != "github" && provider != "google" {
		return nil, supabase.ErrUnsupportedProvider
	}
	f.authorized = append(f.authorized, provider)
	return &supabase.Authorization{URL: "https://auth.example/authorize?provider=" + provider, Verifier: "verifier-1"}, nil
}

func (f *fakeAuth) ExchangeCode(string, string) (*supabase.Session, error) {
	return f.session, f.err
}

func (f *fakeAuth) Refresh(string) (*supabase.Session, error) {
	return f.session, f.err
}

func (f *fakeAuth) GetUser(string) (*supabase.User, error) {
	if f.user == nil {
		return nil, supabase.ErrRejected
	}
	return f.user, nil
}

func (f *fakeAuth) Logout(token string) error {
	f.loggedOut = append(f.loggedOut, token)
	return f.err
}

func (f *fakeAuth) DeleteUser(id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

// fakeSealer binds the plaintext to its associated data without encrypting.
type fakeSealer struct{}

func (fakeSealer) Seal(plaintext, aad string) (string, error) {
	return aad + "|" + plaintext, nil
}

func (fakeSealer) Open(ciphertext, aad string) (string, error) {
	token, ok := strings.CutPrefix(ciphertext, aad+"|")
	if !ok {
		return "", errors.New("message authentication failed")
	}
	return token, nil
}

func sealFor(userID uuid.UUID, token string) string {
	s, _ := fakeSealer{}.Seal(token, userID.String())
	return s
}

type fakeModel struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests [][]llm.Message
}

func (f *fakeModel) Model() string { return "openai/gpt-4o-mini" }

func (f *fakeModel) Complete(_ context.Context, messages []llm.Message) (*llm.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, messages)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Content: f.reply, Model: f.Model()}, nil
}

func (f *fakeModel) Stream(ctx context.Context, messages []llm.Message, onDelta func(string) error) (*llm.Completion, error) {
	out, err := f.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	for _, word := range strings.SplitAfter(out.Content, " ") {
		if err := onDelta(word); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type fakeSyncer struct {
	mu        sync.Mutex
	triggered []*models.Item
}

func (f *fakeSyncer) Trigger(item *models.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, item)
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}
