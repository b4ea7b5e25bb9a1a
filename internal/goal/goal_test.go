package goal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ikpa/internal/apperr"
	"ikpa/internal/core"
)

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func money(c int64) core.Money { return core.Money{Cents: c} }

func contribs(amounts ...int64) []core.Contribution {
	out := make([]core.Contribution, 0, len(amounts))
	for i, a := range amounts {
		out = append(out, core.Contribution{Amount: money(a), Date: now.AddDate(0, 0, -10*(i+1))})
	}
	return out
}

func TestCompute(t *testing.T) {
	base := core.Goal{
		ID:            7,
		TargetAmount:  money(1_200_000),
		CurrentAmount: money(600_000),
		TargetDate:    now.AddDate(0, 6, 0),
		Status:        core.GoalActive,
	}

	tests := []struct {
		name    string
		goal    func(core.Goal) core.Goal
		contrib []core.Contribution
		want    Status
	}{
		{"on track", nil, contribs(100_000, 100_000, 100_000), StatusOnTrack},
		{"ahead", nil, contribs(300_000, 300_000, 300_000), StatusAhead},
		{"behind", nil, contribs(30_000, 30_000, 30_000), StatusBehind},
		{"behind without contributions", nil, nil, StatusBehind},
		{"completed", func(g core.Goal) core.Goal { g.CurrentAmount = money(1_300_000); return g }, nil, StatusCompleted},
		{"overdue", func(g core.Goal) core.Goal { g.TargetDate = now.AddDate(0, 0, -1); return g }, contribs(100_000), StatusOverdue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := base
			if tt.goal != nil {
				g = tt.goal(g)
			}
			p := Compute(g, tt.contrib, now)
			assert.Equal(t, tt.want, p.Status)
		})
	}
}

func TestCompute_Figures(t *testing.T) {
	g := core.Goal{
		TargetAmount:  money(1_200_000),
		CurrentAmount: money(300_000),
		TargetDate:    now.AddDate(0, 6, 0),
		Status:        core.GoalActive,
	}
	cs := append(contribs(150_000, 150_000, 150_000), core.Contribution{Amount: money(999_999_999), Date: now.AddDate(0, -4, 0)})
	p := Compute(g, cs, now)

	assert.Equal(t, "25", p.PercentComplete.String())
	assert.Equal(t, int64(900_000), p.Remaining.Cents)
	assert.Equal(t, 7, p.MonthsRemaining)
	assert.Equal(t, int64(128_571), p.RequiredMonthly.Cents)
	assert.Equal(t, int64(150_000), p.AverageMonthly.Cents, "contribution older than three months ignored")
	require.NotNil(t, p.ProjectedCompletion)
	assert.Equal(t, now.AddDate(0, 6, 0), *p.ProjectedCompletion)
}

func TestCrossedMilestones(t *testing.T) {
	assert.Equal(t, []int{25, 50}, CrossedMilestones(money(1000), money(100), money(500)))
	assert.Equal(t, []int{100}, CrossedMilestones(money(1000), money(999), money(1000)))
	assert.Empty(t, CrossedMilestones(money(1000), money(500), money(600)))
	assert.Empty(t, CrossedMilestones(money(0), money(0), money(600)))
}

type fakeStore struct {
	goals map[int64]core.Goal
	added []core.Contribution
}

func (f *fakeStore) GetGoal(_ context.Context, userID, id int64) (core.Goal, error) {
	g, ok := f.goals[id]
	if !ok || g.UserID != userID {
		return core.Goal{}, core.ErrNotFound
	}
	return g, nil
}

func (f *fakeStore) ListContributions(context.Context, int64, int64) ([]core.Contribution, error) {
	return f.added, nil
}

func (f *fakeStore) AddContribution(_ context.Context, _ int64, c *core.Contribution) (core.Goal, error) {
	f.added = append(f.added, *c)
	g := f.goals[c.GoalID]
	g.CurrentAmount = g.CurrentAmount.Add(c.Amount)
	f.goals[c.GoalID] = g
	return g, nil
}

func TestService_Contribute(t *testing.T) {
	store := &fakeStore{goals: map[int64]core.Goal{
		1: {ID: 1, UserID: 9, TargetAmount: money(1000), CurrentAmount: money(200), Status: core.GoalActive, TargetDate: now.AddDate(1, 0, 0)},
		2: {ID: 2, UserID: 9, TargetAmount: money(1000), Status: core.GoalPaused},
	}}
	var hit []int
	svc := NewService(store, func(_ context.Context, _ core.Goal, m int) { hit = append(hit, m) })
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	g, err := svc.Contribute(ctx, 9, 1, money(600), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(800), g.CurrentAmount.Cents)
	assert.Equal(t, []int{25, 50, 75}, hit)
	assert.Equal(t, now, store.added[0].Date)

	_, err = svc.Contribute(ctx, 9, 1, money(0), now)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = svc.Contribute(ctx, 10, 1, money(100), now)
	assert.True(t, apperr.Is(err, apperr.CodeGoalNotFound))

	_, err = svc.Contribute(ctx, 9, 2, money(100), now)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))

	p, err := svc.Progress(ctx, 9, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), p.AverageMonthly.Cents)
}
