package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"finboard/internal/dto"
	"finboard/internal/models"
	"finboard/pkg/categorize"
	"finboard/pkg/plaid"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	recurringLookback = 180 * 24 * time.Hour
	topMerchantCount  = 5
)

var (
	hundred      = decimal.NewFromInt(100)
	twelve       = decimal.NewFromInt(12)
	amountSpread = decimal.NewFromFloat(0.2)
)

type InsightsService struct {
	plaid       PlaidClient
	items       ItemStore
	txs         TransactionStore
	recurring   RecurringStore
	sealer      TokenSealer
	categorizer *categorize.Categorizer
	logger      *zap.Logger
	now         func() time.Time
}

func NewInsightsService(
	client PlaidClient,
	items ItemStore,
	txs TransactionStore,
	recurring RecurringStore,
	sealer TokenSealer,
	categorizer *categorize.Categorizer,
	logger *zap.Logger,
) *InsightsService {
	if categorizer == nil {
		categorizer = categorize.Default()
	}
	return &InsightsService{
		plaid:       client,
		items:       items,
		txs:         txs,
		recurring:   recurring,
		sealer:      sealer,
		categorizer: categorizer,
		logger:      logger,
		now:         time.Now,
	}
}

// SpendingSummary aggregates settled spending and income between start and
// end inclusive. Nil bounds default to the current calendar month.
func (s *InsightsService) SpendingSummary(ctx context.Context, userID uuid.UUID, start, end *time.Time) (*dto.SpendingSummaryResponse, error) {
	from, to := monthBounds(s.now())
	if start != nil {
		from = truncateDay(*start)
	}
	if end != nil {
		to = truncateDay(*end)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidInput)
	}

	txs, err := s.txs.ListBetween(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return summarize(txs, from, to), nil
}

// summarize follows Plaid's sign convention: positive amounts are spending,
// negative amounts income. Pending rows and transfers are left out.
func summarize(txs []*models.Transaction, start, end time.Time) *dto.SpendingSummaryResponse {
	resp := &dto.SpendingSummaryResponse{
		Start:        start.Format(time.DateOnly),
		End:          end.Format(time.DateOnly),
		ByCategory:   []dto.CategoryTotal{},
		ByMonth:      []dto.MonthTotal{},
		TopMerchants: []dto.MerchantTotal{},
	}

	categories := map[string]*dto.CategoryTotal{}
	merchants := map[string]*dto.MerchantTotal{}
	months := map[string]*dto.MonthTotal{}
	for m := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(end); m = m.AddDate(0, 1, 0) {
		resp.ByMonth = append(resp.ByMonth, dto.MonthTotal{Month: m.Format("2006-01")})
	}
	// Index only once the slice stops growing.
	for i := range resp.ByMonth {
		months[resp.ByMonth[i].Month] = &resp.ByMonth[i]
	}

	for _, t := range txs {
		if t.Pending || categorize.IsTransfer(t.EffectiveCategory()) {
			continue
		}
		if t.Date.Before(start) || t.Date.After(end) {
			continue
		}
		month := months[t.Date.Format("2006-01")]

		if t.Amount.IsNegative() {
			income := t.Amount.Neg()
			resp.TotalIncome = resp.TotalIncome.Add(income)
			if month != nil {
				month.Income = month.Income.Add(income)
			}
			continue
		}
		if t.Amount.IsZero() {
			continue
		}

		resp.TotalSpent = resp.TotalSpent.Add(t.Amount)
		if month != nil {
			month.Spent = month.Spent.Add(t.Amount)
		}

		category := t.EffectiveCategory()
		if category == "" {
			category = categorize.Other
		}
		ct, ok := categories[category]
		if !ok {
			ct = &dto.CategoryTotal{Category: category}
			categories[category] = ct
		}
		ct.Amount = ct.Amount.Add(t.Amount)
		ct.Count++

		name := t.DisplayName()
		mt, ok := merchants[name]
		if !ok {
			mt = &dto.MerchantTotal{Merchant: name}
			merchants[name] = mt
		}
		mt.Amount = mt.Amount.Add(t.Amount)
		mt.Count++
	}

	for _, ct := range categories {
		if !resp.TotalSpent.IsZero() {
			ct.Percent = ct.Amount.Div(resp.TotalSpent).Mul(hundred).Round(2)
		}
		resp.ByCategory = append(resp.ByCategory, *ct)
	}
	slices.SortFunc(resp.ByCategory, func(a, b dto.CategoryTotal) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})

	for _, mt := range merchants {
		resp.TopMerchants = append(resp.TopMerchants, *mt)
	}
	slices.SortFunc(resp.TopMerchants, func(a, b dto.MerchantTotal) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Merchant, b.Merchant)
	})
	if len(resp.TopMerchants) > topMerchantCount {
		resp.TopMerchants = resp.TopMerchants[:topMerchantCount]
	}

	resp.Net = resp.TotalIncome.Sub(resp.TotalSpent)
	return resp
}

// RecurringCharges merges Plaid's recurring outflow streams with locally
// detected ones and stores the result as the user's recurring snapshot.
func (s *InsightsService) RecurringCharges(ctx context.Context, userID uuid.UUID) (*dto.RecurringResponse, error) {
	now := truncateDay(s.now())

	streams := s.plaidStreams(ctx, userID, now)

	txs, err := s.txs.ListBetween(ctx, userID, now.Add(-recurringLookback), now)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	known := make(map[string]bool, len(streams))
	for _, st := range streams {
		known[categorize.NormalizeMerchant(st.Merchant)] = true
	}
	for _, st := range detectRecurring(txs, s.categorizer) {
		if known[categorize.NormalizeMerchant(st.Merchant)] {
			continue
		}
		streams = append(streams, st)
	}

	slices.SortFunc(streams, func(a, b *models.RecurringStream) int {
		if c := b.MonthlyAmount.Cmp(a.MonthlyAmount); c != 0 {
			return c
		}
		return cmp.Compare(a.Merchant, b.Merchant)
	})
	for _, st := range streams {
		st.ID = uuid.New()
		st.UserID = userID
	}

	if err := s.recurring.Replace(ctx, userID, streams); err != nil {
		s.logger.Warn("Failed to store recurring snapshot", zap.String("user_id", userID.String()), zap.Error(err))
	}
	return toRecurringResponse(streams), nil
}

// RecurringSnapshot returns the last stored recurring streams without
// contacting Plaid or re-running detection.
func (s *InsightsService) RecurringSnapshot(ctx context.Context, userID uuid.UUID) (*dto.RecurringResponse, error) {
	streams, err := s.recurring.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load recurring streams: %w", err)
	}
	return toRecurringResponse(streams), nil
}

// plaidStreams returns active outflow streams from every item. A failing item
// is logged and skipped so detection still runs on local data.
func (s *InsightsService) plaidStreams(ctx context.Context, userID uuid.UUID, now time.Time) []*models.RecurringStream {
	if s.plaid == nil {
		return nil
	}
	items, err := s.items.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to list items for recurring streams", zap.Error(err))
		return nil
	}

	var out []*models.RecurringStream
	for _, item := range items {
		if item.Status == models.ItemStatusRevoked {
			continue
		}
		token, err := openAccessToken(s.sealer, item)
		if err != nil {
			s.logger.Warn("Skipping item for recurring streams", zap.Error(err))
			continue
		}
		resp, err := s.plaid.GetRecurring(ctx, token)
		if err != nil {
			s.logger.Warn("Plaid recurring streams unavailable, using local detection",
				zap.String("item_id", item.ID.String()),
				zap.String("error_code", plaid.ErrorCode(err)),
				zap.Error(err),
			)
			continue
		}
		for _, ps := range resp.OutflowStreams {
			if st := fromPlaidStream(ps); st != nil {
				out = append(out, st)
			}
		}
	}
	return out
}

func fromPlaidStream(ps plaid.RecurringStream) *models.RecurringStream {
	if !ps.IsActive {
		return nil
	}
	freq, ok := plaidFrequencies[ps.Frequency]
	if !ok {
		return nil
	}
	last, err := time.Parse(time.DateOnly, ps.LastDate)
	if err != nil {
		return nil
	}

	merchant := ps.MerchantName
	if merchant == "" {
		merchant = ps.Description
	}
	category := categorize.Other
	if ps.PersonalFinanceCategory != nil && ps.PersonalFinanceCategory.Primary != "" {
		category = ps.PersonalFinanceCategory.Primary
	}
	avg := ps.AverageAmount.Amount.Abs().Round(2)

	return &models.RecurringStream{
		Merchant:      merchant,
		Category:      category,
		Frequency:     freq,
		AverageAmount: avg,
		MonthlyAmount: monthlyEstimate(freq, avg),
		LastDate:      last,
		NextDate:      nextDate(freq, last, 0),
		Occurrences:   len(ps.TransactionIDs),
		Source:        models.RecurringSourcePlaid,
	}
}

var plaidFrequencies = map[string]models.Frequency{
	"WEEKLY":       models.FrequencyWeekly,
	"BIWEEKLY":     models.FrequencyBiweekly,
	"SEMI_MONTHLY": models.FrequencySemiMonthly,
	"MONTHLY":      models.FrequencyMonthly,
	"ANNUALLY":     models.FrequencyAnnually,
}

// frequencyWindows are the median-interval ranges, in days, for each frequency.
var frequencyWindows = []struct {
	freq     models.Frequency
	min, max float64
}{
	{models.FrequencyWeekly, 5, 9},
	{models.FrequencyBiweekly, 12, 16},
	{models.FrequencyMonthly, 26, 35},
	{models.FrequencyQuarterly, 85, 95},
	{models.FrequencyAnnually, 350, 380},
}

func classifyInterval(days float64) (models.Frequency, bool) {
	for _, w := range frequencyWindows {
		if days >= w.min && days <= w.max {
			return w.freq, true
		}
	}
	return "", false
}

// detectRecurring groups settled outflows by normalized merchant and keeps
// the groups charged at a regular interval with stable amounts.
func detectRecurring(txs []*models.Transaction, categorizer *categorize.Categorizer) []*models.RecurringStream {
	groups := map[string][]*models.Transaction{}
	for _, t := range txs {
		if t.Pending || !t.Amount.IsPositive() || categorize.IsTransfer(t.EffectiveCategory()) {
			continue
		}
		key := categorize.NormalizeMerchant(t.DisplayName())
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], t)
	}

	var out []*models.RecurringStream
	for _, group := range groups {
		if st := detectStream(group, categorizer); st != nil {
			out = append(out, st)
		}
	}
	return out
}

func detectStream(group []*models.Transaction, categorizer *categorize.Categorizer) *models.RecurringStream {
	slices.SortFunc(group, func(a, b *models.Transaction) int { return a.Date.Compare(b.Date) })
	latest := group[len(group)-1]

	subscription := categorizer.IsSubscription(latest.MerchantName + " " + latest.Name)
	minOccurrences := 3
	if subscription {
		minOccurrences = 2
	}
	if len(group) < minOccurrences {
		return nil
	}

	var intervals []float64
	for i := 1; i < len(group); i++ {
		days := group[i].Date.Sub(group[i-1].Date).Hours() / 24
		if days >= 1 {
			intervals = append(intervals, days)
		}
	}
	if len(intervals) == 0 {
		return nil
	}
	interval := median(intervals)
	freq, ok := classifyInterval(interval)
	if !ok {
		return nil
	}

	amounts := make([]decimal.Decimal, len(group))
	sum := decimal.Zero
	for i, t := range group {
		amounts[i] = t.Amount
		sum = sum.Add(t.Amount)
	}
	if !subscription {
		mid := medianDecimal(amounts)
		limit := mid.Mul(amountSpread)
		for _, a := range amounts {
			if a.Sub(mid).Abs().GreaterThan(limit) {
				return nil
			}
		}
	}

	avg := sum.Div(decimal.NewFromInt(int64(len(group)))).Round(2)
	category := latest.EffectiveCategory()
	if category == "" {
		category = categorize.Other
	}
	return &models.RecurringStream{
		Merchant:      latest.DisplayName(),
		Category:      category,
		Frequency:     freq,
		AverageAmount: avg,
		MonthlyAmount: monthlyEstimate(freq, avg),
		LastDate:      latest.Date,
		NextDate:      nextDate(freq, latest.Date, interval),
		Occurrences:   len(group),
		Source:        models.RecurringSourceHeuristic,
	}
}

// monthlyEstimate normalizes a per-charge amount to a monthly cost.
func monthlyEstimate(freq models.Frequency, amount decimal.Decimal) decimal.Decimal {
	switch freq {
	case models.FrequencyWeekly:
		return amount.Mul(decimal.NewFromInt(52)).Div(twelve).Round(2)
	case models.FrequencyBiweekly:
		return amount.Mul(decimal.NewFromInt(26)).Div(twelve).Round(2)
	case models.FrequencySemiMonthly:
		return amount.Mul(decimal.NewFromInt(2)).Round(2)
	case models.FrequencyQuarterly:
		return amount.Div(decimal.NewFromInt(3)).Round(2)
	case models.FrequencyAnnually:
		return amount.Div(twelve).Round(2)
	default:
		return amount.Round(2)
	}
}

// nextDate adds the observed interval when there is one, else the nominal period.
func nextDate(freq models.Frequency, last time.Time, intervalDays float64) time.Time {
	if intervalDays >= 1 {
		return last.AddDate(0, 0, int(intervalDays+0.5))
	}
	switch freq {
	case models.FrequencyWeekly:
		return last.AddDate(0, 0, 7)
	case models.FrequencyBiweekly:
		return last.AddDate(0, 0, 14)
	case models.FrequencySemiMonthly:
		return last.AddDate(0, 0, 15)
	case models.FrequencyQuarterly:
		return last.AddDate(0, 3, 0)
	case models.FrequencyAnnually:
		return last.AddDate(1, 0, 0)
	default:
		return last.AddDate(0, 1, 0)
	}
}

func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func medianDecimal(values []decimal.Decimal) decimal.Decimal {
	sorted := slices.Clone(values)
	slices.SortFunc(sorted, func(a, b decimal.Decimal) int { return a.Cmp(b) })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
}

func toRecurringResponse(streams []*models.RecurringStream) *dto.RecurringResponse {
	resp := &dto.RecurringResponse{Streams: make([]dto.RecurringStreamResponse, 0, len(streams))}
	for _, st := range streams {
		resp.MonthlyTotal = resp.MonthlyTotal.Add(st.MonthlyAmount)
		resp.Streams = append(resp.Streams, dto.RecurringStreamResponse{
			Merchant:      st.Merchant,
			Category:      st.Category,
			Frequency:     string(st.Frequency),
			AverageAmount: st.AverageAmount,
			MonthlyAmount: st.MonthlyAmount,
			LastDate:      st.LastDate.Format(time.DateOnly),
			NextDate:      st.NextDate.Format(time.DateOnly),
			Occurrences:   st.Occurrences,
			Source:        st.Source,
		})
	}
	return resp
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// monthBounds returns the first and last day of t's calendar month.
func monthBounds(t time.Time) (time.Time, time.Time) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}

func normalizeCategoryLabel(category string) string {
	return strings.ReplaceAll(strings.ToLower(category), "_", " ")
}
