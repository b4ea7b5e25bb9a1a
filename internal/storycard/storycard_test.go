package storycard

import (
	"context"
	"regexp"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ikpa/internal/apperr"
	"ikpa/internal/core"
)

var (
	now  = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	user = core.User{ID: 5, Currency: core.NGN, Email: "ada@example.com"}
	g    = core.Goal{ID: 9, UserID: 5, Name: "New laptop", TargetAmount: core.Money{Cents: 80_000_000}, CurrentAmount: core.Money{Cents: 40_000_000}}
)

func TestGenerate(t *testing.T) {
	debt := core.Debt{Name: "Car loan"}
	tests := []struct {
		name     string
		kind     Kind
		src      Source
		privacy  bool
		headline string
		body     string
	}{
		{"milestone public", KindGoalMilestone, Source{Goal: &g, Milestone: 50}, false,
			"50% of the way to New laptop!", "I've saved ₦400,000.00 of ₦800,000.00 for New laptop."},
		{"milestone private", KindGoalMilestone, Source{Goal: &g, Milestone: 50}, true,
			"50% of the way to New laptop!", "I've saved 50% of my target for New laptop."},
		{"goal reached", KindGoalMilestone, Source{Goal: &g, Milestone: 100}, true,
			"Goal reached: New laptop!", "I've saved 100% of my target for New laptop."},
		{"commitment public", KindCommitmentWon, Source{Goal: &g, StakeAmount: core.Money{Cents: 500_000}}, false,
			"Commitment kept: New laptop", "I put ₦5,000.00 on the line and kept my word."},
		{"streak private", KindSavingsStreak, Source{StreakMonths: 6, Saved: core.Money{Cents: 100}}, true,
			"6-month savings streak", "I've saved every month for 6 months straight."},
		{"debt public", KindDebtPaid, Source{Debt: &debt, PaidOff: core.Money{Cents: 150_000_000}}, false,
			"Debt free: Car loan", "I paid off ₦1,500,000.00 on my Car loan."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Generate(user, tt.kind, tt.src, tt.privacy, now)
			require.NoError(t, err)
			assert.Equal(t, tt.headline, c.Headline)
			assert.Equal(t, tt.body, c.Body)
			assert.Equal(t, "#Ikpa", c.Hashtags[0])
			_, err = uuid.Parse(c.ID)
			assert.NoError(t, err)
			assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{8}$`), c.ReferralCode)
			if tt.privacy {
				assert.NotContains(t, c.Body, "₦")
			}
		})
	}
}

func TestGenerate_Invalid(t *testing.T) {
	cases := []struct {
		kind Kind
		src  Source
	}{
		{KindGoalMilestone, Source{Milestone: 50}},
		{KindGoalMilestone, Source{Goal: &g, Milestone: 60}},
		{KindSavingsStreak, Source{}},
		{KindDebtPaid, Source{}},
		{"birthday", Source{}},
	}
	for _, c := range cases {
		_, err := Generate(user, c.kind, c.src, false, now)
		assert.True(t, apperr.Is(err, apperr.CodeValidation), "%s", c.kind)
	}
}

type memStore struct {
	cards []Card
}

func (m *memStore) CreateStoryCard(_ context.Context, c *Card) error {
	for _, e := range m.cards {
		if c.Kind == KindGoalMilestone && e.UserID == c.UserID && e.GoalID == c.GoalID && e.Milestone == c.Milestone {
			return core.ErrConflict
		}
	}
	m.cards = append(m.cards, *c)
	return nil
}

func (m *memStore) ListStoryCards(_ context.Context, userID int64) ([]Card, error) {
	var out []Card
	for _, c := range m.cards {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type users map[int64]core.User

func (u users) GetUser(_ context.Context, id int64) (core.User, error) {
	if v, ok := u[id]; ok {
		return v, nil
	}
	return core.User{}, core.ErrNotFound
}

func TestService_MilestoneDedup(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, users{5: user})
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	svc.OnMilestone(ctx, g, 25)
	svc.OnMilestone(ctx, g, 25)
	require.Len(t, store.cards, 1)
	assert.True(t, store.cards[0].Privacy)

	_, err := svc.Create(ctx, user, KindGoalMilestone, Source{Goal: &g, Milestone: 25}, false)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))

	svc.now = func() time.Time { return now.Add(time.Hour) }
	streak, err := svc.Create(ctx, user, KindSavingsStreak, Source{StreakMonths: 3}, false)
	require.NoError(t, err)

	list, err := svc.List(ctx, 5)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, streak.ID, list[0].ID, "newest first")
}
