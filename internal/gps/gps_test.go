package gps

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ikpa/internal/apperr"
	"ikpa/internal/core"
	"ikpa/internal/finance"
	"ikpa/internal/simulation"
)

var now = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	budgets  map[string]core.Budget
	expenses []core.Expense
	goal     *core.Goal
	sessions map[int64]Session
}

func (f *fakeStore) GetBudgetByCategory(_ context.Context, _ int64, category string) (core.Budget, error) {
	b, ok := f.budgets[category]
	if !ok {
		return core.Budget{}, core.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) ListExpenses(_ context.Context, _ int64, from, to time.Time) ([]core.Expense, error) {
	var out []core.Expense
	for _, e := range f.expenses {
		if !e.Date.Before(from) && e.Date.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) TopActiveGoal(context.Context, int64) (core.Goal, error) {
	if f.goal == nil {
		return core.Goal{}, core.ErrNotFound
	}
	return *f.goal, nil
}

func (f *fakeStore) CreateRecoverySession(_ context.Context, s *Session) error {
	s.ID = int64(len(f.sessions) + 1)
	f.sessions[s.ID] = *s
	return nil
}

func (f *fakeStore) GetRecoverySession(_ context.Context, userID, id int64) (Session, error) {
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return Session{}, core.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) SelectRecoveryPath(_ context.Context, _ int64, id int64, path PathID, at time.Time) error {
	s := f.sessions[id]
	if s.SelectedPath != "" {
		return core.ErrConflict
	}
	s.SelectedPath = path
	s.SelectedAt = &at
	f.sessions[id] = s
	return nil
}

type fixedSnapshot finance.Snapshot

func (f fixedSnapshot) Get(context.Context, int64) (finance.Snapshot, error) {
	return finance.Snapshot(f), nil
}

func food(d time.Time, cents int64) core.Expense {
	return core.Expense{Date: d, Category: core.CategoryFood, Amount: core.Money{Cents: cents}, Merchant: "Shoprite"}
}

func newFixture() (*Service, *fakeStore) {
	store := &fakeStore{
		budgets: map[string]core.Budget{
			core.CategoryFood: {Category: core.CategoryFood, Amount: core.Money{Cents: 100_000}, Period: core.Monthly},
		},
		expenses: []core.Expense{
			food(time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), 80_000),
			food(time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC), 50_000),
			food(time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC), 40_000),
			food(time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC), 50_000),
			{Date: time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC), Category: core.CategoryTransport, Amount: core.Money{Cents: 900_000}},
		},
		goal: &core.Goal{
			ID: 3, Name: "Emergency fund", Status: core.GoalActive,
			TargetAmount: core.Money{Cents: 1_000_000}, CurrentAmount: core.Money{Cents: 500_000},
			TargetDate: now.AddDate(1, 0, 0),
		},
		sessions: map[int64]Session{},
	}
	snap := fixedSnapshot{MonthlyIncome: core.Money{Cents: 300_000}, NetCashFlow: core.Money{Cents: 60_000}}
	svc := NewService(store, snap, simulation.NewEngine(2), 300)
	svc.now = func() time.Time { return now }
	return svc, store
}

func pathByID(t *testing.T, s Session, id PathID) Path {
	t.Helper()
	for _, p := range s.Paths {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("path %s missing", id)
	return Path{}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		overspend, monthly int64
		months, weeks      int
	}{
		{30_000, 60_000, 1, 5},
		{60_000, 60_000, 1, 5},
		{60_001, 60_000, 2, 9},
		{180_000, 60_000, 3, 13},
		{1, 0, 0, 1},
	}
	for _, tt := range tests {
		months, weeks := Extension(decimal.NewFromInt(tt.overspend), decimal.NewFromInt(tt.monthly))
		assert.Equal(t, tt.months, months, "months for %d/%d", tt.overspend, tt.monthly)
		assert.Equal(t, tt.weeks, weeks, "weeks for %d/%d", tt.overspend, tt.monthly)
	}
}

func TestRecalculate_Critical(t *testing.T) {
	svc, store := newFixture()

	s, err := svc.Recalculate(context.Background(), 1, core.CategoryFood)
	require.NoError(t, err)

	assert.Equal(t, int64(1), s.ID)
	assert.Contains(t, store.sessions, s.ID)
	assert.Equal(t, LevelCritical, s.Budget.Trigger)
	assert.Equal(t, int64(130_000), s.Budget.Spent.Cents)
	assert.Equal(t, int64(30_000), s.Budget.Overspend.Cents)
	assert.True(t, s.Budget.PercentUsed.Equal(decimal.NewFromInt(130)))
	assert.Equal(t, Message(LevelCritical), s.Message)

	require.Len(t, s.Paths, 3)
	timePath := pathByID(t, s, TimeAdjustment)
	// 300 over at 600 a month saved is one month, shown as five weeks.
	assert.Equal(t, 1, timePath.ExtensionMonths)
	assert.Equal(t, 5, timePath.ExtensionWeeks)

	rate := pathByID(t, s, RateAdjustment)
	assert.Equal(t, int64(62_500), rate.NewMonthlySavings.Cents)
	assert.Equal(t, "20.83", rate.NewSavingsRate.String())

	freeze := pathByID(t, s, FreezeProtocol)
	assert.Equal(t, 2, freeze.FreezeWeeks)
	assert.Equal(t, int64(30_000), freeze.FreezeRecovers.Cents)

	imp := s.Impact
	assert.Equal(t, int64(3), imp.GoalID)
	assert.GreaterOrEqual(t, imp.ProbabilityDrop, 0.0)
	for _, p := range s.Paths {
		assert.GreaterOrEqual(t, p.GoalProbability, imp.ProbabilityAfter, string(p.ID))
		assert.NotEmpty(t, p.Name)
		assert.False(t, ContainsBannedWord(p.Name+" "+p.Description))
	}
}

func TestRecalculate_WarningHasNoPaths(t *testing.T) {
	svc, store := newFixture()
	store.expenses = []core.Expense{food(time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), 85_000)}

	s, err := svc.Recalculate(context.Background(), 1, core.CategoryFood)
	require.NoError(t, err)
	assert.Equal(t, LevelWarning, s.Budget.Trigger)
	assert.Equal(t, int64(15_000), s.Budget.Remaining.Cents)
	assert.Empty(t, s.Paths)
	assert.Equal(t, s.Impact.ProbabilityBefore, s.Impact.ProbabilityAfter)
}

func TestRecalculate_Errors(t *testing.T) {
	svc, store := newFixture()
	ctx := context.Background()

	_, err := svc.Recalculate(ctx, 1, core.CategoryHousing)
	assert.True(t, apperr.Is(err, apperr.CodeBudgetNotFound))

	_, err = svc.Recalculate(ctx, 1, "yachts")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	store.goal = nil
	_, err = svc.Recalculate(ctx, 1, core.CategoryFood)
	require.True(t, apperr.Is(err, apperr.CodeGpsNoActiveGoal))
	assert.Equal(t, 422, apperr.From(err).Status)
}

func TestSelectPath(t *testing.T) {
	svc, _ := newFixture()
	ctx := context.Background()

	s, err := svc.Recalculate(ctx, 1, core.CategoryFood)
	require.NoError(t, err)

	_, err = svc.SelectPath(ctx, 1, s.ID, "teleport")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	got, err := svc.SelectPath(ctx, 1, s.ID, FreezeProtocol)
	require.NoError(t, err)
	assert.Equal(t, FreezeProtocol, got.SelectedPath)
	require.NotNil(t, got.SelectedAt)

	_, err = svc.SelectPath(ctx, 1, s.ID, RateAdjustment)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))

	_, err = svc.SelectPath(ctx, 2, s.ID, RateAdjustment)
	assert.True(t, apperr.Is(err, apperr.CodeSessionNotFound))
}

func TestTriggerLevel(t *testing.T) {
	cases := map[string]Level{"0": LevelNone, "79.99": LevelNone, "80": LevelWarning, "100": LevelExceeded, "119.99": LevelExceeded, "120": LevelCritical}
	for in, want := range cases {
		assert.Equal(t, want, TriggerLevel(decimal.RequireFromString(in)), in)
	}
}

func TestMessagesAreSupportive(t *testing.T) {
	for level, msg := range messages {
		assert.False(t, ContainsBannedWord(msg), "message for %s", level)
	}
	assert.True(t, ContainsBannedWord("You OVERSPENT again"))
}
