package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ikpa/internal/commitment"
	"ikpa/internal/core"
	"ikpa/internal/debrief"
	"ikpa/internal/finance"
	"ikpa/internal/goal"
	"ikpa/internal/gps"
	"ikpa/internal/shark"
	"ikpa/internal/storycard"
)

var (
	_ finance.Store    = (*Store)(nil)
	_ goal.Store       = (*Store)(nil)
	_ gps.Store        = (*Store)(nil)
	_ commitment.Store = (*Store)(nil)
	_ storycard.Store  = (*Store)(nil)
	_ debrief.Store    = (*Store)(nil)
)

var t0 = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "ikpa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newUser(t *testing.T, s *Store, email string) core.User {
	t.Helper()
	u := core.User{Email: email, Name: "Ada", PasswordHash: "x", Currency: core.NGN, Country: "NG", CreatedAt: t0}
	require.NoError(t, s.CreateUser(context.Background(), &u))
	return u
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: Postgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &Store{dialect: SQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"": SQLite, "sqlite": SQLite, "Postgres": Postgres, "pgx": Postgres} {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDialect("mysql")
	assert.Error(t, err)
}

func TestMigrationVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	s, err := Open(context.Background(), SQLite, path)
	require.NoError(t, err)
	s.Close()

	v, dirty, err := MigrationVersion(SQLite, SQLiteDSN(path))
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(3), v)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := newUser(t, s, "Ada@Example.com")
	assert.NotZero(t, u.ID)

	got, err := s.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, core.NGN, got.Currency)
	assert.True(t, got.CreatedAt.Equal(t0))

	dup := core.User{Email: "ada@example.com", Name: "Other", PasswordHash: "y", Currency: core.NGN, CreatedAt: t0}
	assert.ErrorIs(t, s.CreateUser(ctx, &dup), ErrConflict)

	_, err = s.GetUser(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{u.ID}, ids)
}

func TestExpensesAreScopedAndWindowed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ada := newUser(t, s, "ada@example.com")
	bola := newUser(t, s, "bola@example.com")

	for i, day := range []int{1, 15, 28} {
		e := core.Expense{UserID: ada.ID, Date: time.Date(2025, 2, day, 12, 0, 0, 0, time.UTC),
			Merchant: "Shoprite", Category: core.CategoryFood, Amount: core.Money{Cents: int64(1000 * (i + 1))}, CreatedAt: t0}
		require.NoError(t, s.CreateExpense(ctx, &e))
	}
	other := core.Expense{UserID: bola.ID, Date: time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC),
		Merchant: "Uber", Category: core.CategoryTransport, Amount: core.Money{Cents: 500}, CreatedAt: t0}
	require.NoError(t, s.CreateExpense(ctx, &other))

	all, err := s.ListExpenses(ctx, ada.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mid, err := s.ListExpenses(ctx, ada.ID,
		time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, mid, 1)
	assert.Equal(t, int64(2000), mid[0].Amount.Cents)
	assert.Equal(t, 15, mid[0].Date.Day())

	assert.ErrorIs(t, s.DeleteExpense(ctx, ada.ID, other.ID), ErrNotFound)
	require.NoError(t, s.DeleteExpense(ctx, bola.ID, other.ID))
}

func TestDebtKeepsInterestRate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUser(t, s, "ada@example.com")

	d := core.Debt{UserID: u.ID, Name: "Card", Balance: core.Money{Cents: 50000},
		InterestRate: decimal.RequireFromString("24.5"), MinimumPayment: core.Money{Cents: 2500}, CreatedAt: t0}
	require.NoError(t, s.CreateDebt(ctx, &d))

	debts, err := s.ListDebts(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.True(t, debts[0].InterestRate.Equal(decimal.RequireFromString("24.5")))
	assert.Equal(t, int64(2500), debts[0].MinimumPayment.Cents)
}

func TestBudgetPerCategory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUser(t, s, "ada@example.com")

	b := core.Budget{UserID: u.ID, Category: core.CategoryFood, Amount: core.Money{Cents: 100000}, Period: core.Monthly, CreatedAt: t0}
	require.NoError(t, s.CreateBudget(ctx, &b))

	again := b
	assert.ErrorIs(t, s.CreateBudget(ctx, &again), ErrConflict)

	got, err := s.GetBudgetByCategory(ctx, u.ID, core.CategoryFood)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = s.GetBudgetByCategory(ctx, u.ID, core.CategoryTransport)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddContributionCompletesGoal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUser(t, s, "ada@example.com")

	g := core.Goal{UserID: u.ID, Name: "Laptop", TargetAmount: core.Money{Cents: 10000},
		TargetDate: t0.AddDate(1, 0, 0), Priority: 5, CreatedAt: t0}
	require.NoError(t, s.CreateGoal(ctx, &g))

	after, err := s.AddContribution(ctx, u.ID, &core.Contribution{GoalID: g.ID, Amount: core.Money{Cents: 4000}, Date: t0, CreatedAt: t0})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), after.CurrentAmount.Cents)
	assert.Equal(t, core.GoalActive, after.Status)

	after, err = s.AddContribution(ctx, u.ID, &core.Contribution{GoalID: g.ID, Amount: core.Money{Cents: 6000}, Date: t0, CreatedAt: t0})
	require.NoError(t, err)
	assert.Equal(t, core.GoalCompleted, after.Status)

	cs, err := s.ListContributions(ctx, u.ID, g.ID)
	require.NoError(t, err)
	assert.Len(t, cs, 2)

	other := newUser(t, s, "bola@example.com")
	_, err = s.AddContribution(ctx, other.ID, &core.Contribution{GoalID: g.ID, Amount: core.Money{Cents: 1}, Date: t0})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.TopActiveGoal(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTopActiveGoalPrefersPriority(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUser(t, s, "ada@example.com")

	low := core.Goal{UserID: u.ID, Name: "Holiday", TargetAmount: core.Money{Cents: 1000}, TargetDate: t0.AddDate(0, 6, 0), Priority: 1, CreatedAt: t0}
	high := core.Goal{UserID: u.ID, Name: "Rent", TargetAmount: core.Money{Cents: 1000}, TargetDate: t0.AddDate(1, 0, 0), Priority: 8, CreatedAt: t0}
	require.NoError(t, s.CreateGoal(ctx, &low))
	require.NoError(t, s.CreateGoal(ctx, &high))

	top, err := s.TopActiveGoal(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, high.ID, top.ID)
}

func TestSubscriptionDecisionsUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUser(t, s, "ada@example.com")

	require.NoError(t, s.SaveDecision(ctx, shark.Decision{UserID: u.ID, Key: "netflix", Decision: shark.DecisionReviewLater, DecidedAt: t0}))
	require.NoError(t, s.SaveDecision(ctx, shark.Decision{UserID: u.ID, Key: "netflix", Decision: shark.DecisionCancel, DecidedAt: t0.Add(time.Hour)}))

	ds, err := s.ListDecisions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, shark.DecisionCancel, ds["netflix"].Decision)
}

func TestRecoverySessionResolvesOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUser(t, s, "ada@example.com")

	sess := gps.Session{
		UserID:    u.ID,
		Category:  core.CategoryFood,
		Budget:    gps.BudgetStatus{Category: core.CategoryFood, Budgeted: core.Money{Cents: 1000}, Spent: core.Money{Cents: 1200}},
		Impact:    gps.GoalImpact{GoalID: 1, GoalName: "Rent", ProbabilityBefore: 0.8, ProbabilityAfter: 0.7},
		Paths:     []gps.Path{{ID: gps.TimeAdjustment, Name: "Shift the date", ExtensionWeeks: 2}},
		Message:   "Let's look at this together.",
		CreatedAt: t0,
	}
	require.NoError(t, s.CreateRecoverySession(ctx, &sess))

	got, err := s.GetRecoverySession(ctx, u.ID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), got.Budget.Spent.Cents)
	require.Len(t, got.Paths, 1)
	assert.Equal(t, 2, got.Paths[0].ExtensionWeeks)
	assert.Nil(t, got.SelectedAt)

	require.NoError(t, s.SelectRecoveryPath(ctx, u.ID, sess.ID, gps.TimeAdjustment, t0))
	assert.ErrorIs(t, s.SelectRecoveryPath(ctx, u.ID, sess.ID, gps.FreezeProtocol, t0), ErrConflict)
	assert.ErrorIs(t, s.SelectRecoveryPath(ctx, u.ID, 999, gps.FreezeProtocol, t0), ErrNotFound)

	got, err = s.GetRecoverySession(ctx, u.ID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, gps.TimeAdjustment, got.SelectedPath)
	require.NotNil(t, got.SelectedAt)
}

func TestContracts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUser(t, s, "ada@example.com")
	g := core.Goal{UserID: u.ID, Name: "Rent", TargetAmount: core.Money{Cents: 1000}, TargetDate: t0.AddDate(1, 0, 0), CreatedAt: t0}
	require.NoError(t, s.CreateGoal(ctx, &g))

	c := commitment.Contract{UserID: u.ID, GoalID: g.ID, StakeType: commitment.StakeLossPool,
		StakeAmount: core.Money{Cents: 5000}, Deadline: t0.AddDate(0, 0, 10), CreatedAt: t0}
	require.NoError(t, s.CreateContract(ctx, &c))

	second := c
	assert.ErrorIs(t, s.CreateContract(ctx, &second), ErrConflict)

	busy, err := s.HasActiveContract(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, busy)

	due, err := s.ListUsersWithDueContracts(ctx, t0.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.ListUsersWithDueContracts(ctx, t0.AddDate(0, 0, 11))
	require.NoError(t, err)
	assert.Equal(t, []int64{u.ID}, due)

	at := t0.AddDate(0, 0, 11)
	require.NoError(t, s.UpdateContractStatus(ctx, c.ID, commitment.StatusSucceeded, &at))
	assert.ErrorIs(t, s.UpdateContractStatus(ctx, c.ID, commitment.StatusFailed, nil), ErrConflict)

	got, err := s.GetContract(ctx, u.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, commitment.StatusSucceeded, got.Status)
	require.NotNil(t, got.VerifiedAt)

	_, err = s.GetContract(ctx, u.ID+1, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// A resolved contract frees the goal for a new one.
	require.NoError(t, s.CreateContract(ctx, &second))
}

func TestStoryCardMilestonesAreUnique(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUser(t, s, "ada@example.com")

	card := storycard.Card{ID: "card-1", UserID: u.ID, Kind: storycard.KindGoalMilestone, GoalID: 7, Milestone: 50,
		Headline: "Halfway", Body: "50% there", Hashtags: []string{"#Ikpa"}, ReferralCode: "ABCDEF12", Privacy: true, CreatedAt: t0}
	require.NoError(t, s.CreateStoryCard(ctx, &card))

	dup := card
	dup.ID = "card-2"
	assert.ErrorIs(t, s.CreateStoryCard(ctx, &dup), ErrConflict)

	streak := storycard.Card{ID: "card-3", UserID: u.ID, Kind: storycard.KindSavingsStreak,
		Headline: "3-month savings streak", Body: "b", Hashtags: []string{}, ReferralCode: "1234ABCD", CreatedAt: t0.Add(time.Hour)}
	require.NoError(t, s.CreateStoryCard(ctx, &streak))

	cards, err := s.ListStoryCards(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "card-3", cards[0].ID)
	assert.Equal(t, []string{"#Ikpa"}, cards[1].Hashtags)
	assert.Equal(t, 50, cards[1].Milestone)
}

func TestDebriefIsReplacedPerContract(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUser(t, s, "ada@example.com")
	g := core.Goal{UserID: u.ID, Name: "Rent", TargetAmount: core.Money{Cents: 1000}, TargetDate: t0.AddDate(1, 0, 0), CreatedAt: t0}
	require.NoError(t, s.CreateGoal(ctx, &g))
	c := commitment.Contract{UserID: u.ID, GoalID: g.ID, StakeType: commitment.StakeLossPool,
		StakeAmount: core.Money{Cents: 5000}, Deadline: t0.AddDate(0, 0, 10), CreatedAt: t0}
	require.NoError(t, s.CreateContract(ctx, &c))

	_, err := s.GetDebrief(ctx, u.ID, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	first := debrief.Debrief{ContractID: c.ID, Summary: "first", Source: debrief.SourceFallback, GeneratedAt: t0}
	require.NoError(t, s.SaveDebrief(ctx, u.ID, first))
	second := debrief.Debrief{ContractID: c.ID, Summary: "second", Source: debrief.SourceLLM,
		NextSteps: []string{"Automate savings"}, GeneratedAt: t0.Add(time.Hour)}
	require.NoError(t, s.SaveDebrief(ctx, u.ID, second))

	got, err := s.GetDebrief(ctx, u.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Summary)
	assert.Equal(t, []string{"Automate savings"}, got.NextSteps)

	_, err = s.GetDebrief(ctx, u.ID+1, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
