package finance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ikpa/internal/cache"
	"ikpa/internal/core"
)

var now = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

func m(c int64) core.Money { return core.Money{Cents: c} }

func sampleInputs() Inputs {
	return Inputs{
		Now:     now,
		Incomes: []core.Income{{Amount: m(50_000_000), Frequency: core.Monthly, IsActive: true}, {Amount: m(9_000_000), Frequency: core.Monthly}},
		Expenses: []core.Expense{
			{Date: now.AddDate(0, 0, -5), Amount: m(30_000_000)},
			{Date: now.AddDate(0, -1, 0), Amount: m(30_000_000)},
			{Date: now.AddDate(0, -2, 0), Amount: m(30_000_000)},
			{Date: now.AddDate(0, -4, 0), Amount: m(99_000_000)},
		},
		FamilySupport: []core.FamilySupport{{Amount: m(2_000_000), Frequency: core.Monthly}},
		Debts:         []core.Debt{{Balance: m(100_000_000), MinimumPayment: m(5_000_000)}},
		Savings:       []core.SavingsAccount{{Balance: m(120_000_000)}},
	}
}

func TestComputeSnapshot(t *testing.T) {
	s := ComputeSnapshot(sampleInputs())

	assert.Equal(t, int64(50_000_000), s.MonthlyIncome.Cents, "inactive income ignored")
	assert.Equal(t, int64(32_000_000), s.MonthlyExpenses.Cents)
	assert.Equal(t, int64(2_000_000), s.MonthlyFamily.Cents)
	assert.Equal(t, int64(13_000_000), s.NetCashFlow.Cents)
	assert.True(t, s.SavingsRate.Equal(decimal.NewFromInt(26)), s.SavingsRate.String())
	assert.True(t, s.DebtToIncome.Equal(decimal.NewFromInt(10)), s.DebtToIncome.String())
	assert.Equal(t, "3.8", s.EmergencyFundMonths.String())
	assert.Equal(t, int64(20_000_000), s.NetWorth.Cents)
	assert.Equal(t, 86, s.CashFlowScore)
}

func TestComputeSnapshot_ScoreBounds(t *testing.T) {
	t.Run("negative cash flow", func(t *testing.T) {
		in := Inputs{
			Now:      now,
			Incomes:  []core.Income{{Amount: m(10_000), Frequency: core.Monthly, IsActive: true}},
			Expenses: []core.Expense{{Date: now, Amount: m(90_000)}},
			Debts:    []core.Debt{{Balance: m(1_000_000), MinimumPayment: m(10_000)}},
		}
		s := ComputeSnapshot(in)
		assert.True(t, s.NetCashFlow.IsNegative())
		assert.Equal(t, 0, s.CashFlowScore)
	})

	t.Run("strong finances score 100", func(t *testing.T) {
		in := Inputs{
			Now:      now,
			Incomes:  []core.Income{{Amount: m(1_000_000), Frequency: core.Monthly, IsActive: true}},
			Expenses: []core.Expense{{Date: now, Amount: m(600_000)}},
			Savings:  []core.SavingsAccount{{Balance: m(10_000_000)}},
		}
		assert.Equal(t, 100, ComputeSnapshot(in).CashFlowScore)
	})
}

type countingStore struct {
	calls atomic.Int32
	err   error
}

func (c *countingStore) ListIncomes(context.Context, int64) ([]core.Income, error) {
	c.calls.Add(1)
	return sampleInputs().Incomes, c.err
}
func (c *countingStore) ListExpenses(context.Context, int64, time.Time, time.Time) ([]core.Expense, error) {
	return sampleInputs().Expenses, nil
}
func (c *countingStore) ListDebts(context.Context, int64) ([]core.Debt, error) {
	return sampleInputs().Debts, nil
}
func (c *countingStore) ListSavingsAccounts(context.Context, int64) ([]core.SavingsAccount, error) {
	return sampleInputs().Savings, nil
}
func (c *countingStore) ListFamilySupport(context.Context, int64) ([]core.FamilySupport, error) {
	return sampleInputs().FamilySupport, nil
}

func TestSnapshotService_MemoizesAndInvalidates(t *testing.T) {
	store := &countingStore{}
	svc := NewSnapshotService(store, cache.NewLRUCache[Snapshot](10, time.Minute))
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	a, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	_, err = svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.calls.Load())
	assert.Equal(t, 86, a.CashFlowScore)

	_, err = svc.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.calls.Load())

	svc.Invalidate(1)
	_, err = svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(3), store.calls.Load())
}

func TestSnapshotService_ErrorsAreNotCached(t *testing.T) {
	store := &countingStore{err: errors.New("db down")}
	svc := NewSnapshotService(store, cache.NewLRUCache[Snapshot](10, time.Minute))

	_, err := svc.Get(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list incomes")

	store.err = nil
	_, err = svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.calls.Load())
}

// blockingStore holds the first ListIncomes call until release is closed and
// answers it with no incomes, as if it read before a write landed.
type blockingStore struct {
	countingStore
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) ListIncomes(ctx context.Context, userID int64) ([]core.Income, error) {
	if b.calls.Add(1) == 1 {
		close(b.entered)
		<-b.release
		return nil, nil
	}
	return sampleInputs().Incomes, nil
}

func TestSnapshotService_InvalidateDuringLoad(t *testing.T) {
	store := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewSnapshotService(store, cache.NewLRUCache[Snapshot](10, time.Minute))
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	done := make(chan Snapshot)
	go func() {
		snap, err := svc.Get(ctx, 1)
		assert.NoError(t, err)
		done <- snap
	}()

	<-store.entered
	svc.Invalidate(1)
	close(store.release)
	stale := <-done
	assert.True(t, stale.MonthlyIncome.IsZero())

	fresh, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.calls.Load())
	assert.Equal(t, ComputeSnapshot(sampleInputs()).MonthlyIncome, fresh.MonthlyIncome)
	assert.False(t, fresh.MonthlyIncome.IsZero())
}

func TestUserPrefix(t *testing.T) {
	assert.Equal(t, "user:42:", UserPrefix(42))
}
