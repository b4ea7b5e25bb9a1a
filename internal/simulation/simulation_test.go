package simulation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deterministic() Input {
	in := DefaultInput()
	in.ExpectedReturn = 0
	in.Volatility = 0
	in.IncomeGrowth = 0
	in.Inflation = 0
	in.CurrentNetWorth = 1000
	in.MonthlySavings = 100
	in.MonthlyIncome = 1000
	in.GoalAmount = 2000
	in.Iterations = 50
	return in
}

func TestRun_ZeroVolatilityIsClosedForm(t *testing.T) {
	in := deterministic()
	in.DeadlineMonths = 12

	res, err := NewEngine(4).Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 50, res.Iterations)
	assert.Equal(t, 1.0, res.Probability)
	assert.Equal(t, 10, res.MedianMonthsToGoal)

	require.Len(t, res.Checkpoints, 3, "deadline coincides with month 12")
	assert.Equal(t, []int{12, 60, 120}, []int{res.Checkpoints[0].Month, res.Checkpoints[1].Month, res.Checkpoints[2].Month})
	assert.True(t, res.Checkpoints[0].IsDeadline)
	assert.InDelta(t, 2200, res.Checkpoints[0].Nominal.P10, 1e-6)
	assert.InDelta(t, 2200, res.Checkpoints[0].Nominal.P90, 1e-6)
	assert.InDelta(t, 13000, res.Checkpoints[2].RealP50, 1e-6)
}

func TestRun_DeadlineBeforeGoal(t *testing.T) {
	in := deterministic()
	in.DeadlineMonths = 6

	res, err := NewEngine(2).Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Probability)
	assert.Equal(t, 10, res.MedianMonthsToGoal)
	assert.Equal(t, 6, res.Checkpoints[0].Month)
	assert.InDelta(t, 1600, res.Checkpoints[0].Nominal.P50, 1e-6)
}

func TestRun_GoalBeyondHorizonHasNoMedian(t *testing.T) {
	in := deterministic()
	in.HorizonMonths = 6

	res, err := NewEngine(2).Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Probability)
	assert.Equal(t, 0, res.MedianMonthsToGoal)
}

func TestRun_MedianCountsPathsThatMissTheGoal(t *testing.T) {
	in := deterministic()
	in.Volatility = 0.4
	in.ExpectedReturn = 0
	in.MonthlySavings = 0
	in.GoalAmount = 1600
	in.HorizonMonths = 12
	in.Iterations = 2000
	in.Seed = 7

	res, err := NewEngine(2).Run(context.Background(), in)
	require.NoError(t, err)

	// A 60% gain with no contributions is reached by a minority of paths.
	require.Less(t, res.Probability, 0.5)
	assert.Equal(t, 0, res.MedianMonthsToGoal)
}

func TestRun_InflationAdjustsRealMedian(t *testing.T) {
	in := deterministic()
	in.Inflation = 0.05
	in.HorizonMonths = 12

	res, err := NewEngine(1).Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Checkpoints, 1)
	assert.InDelta(t, 2200/1.05, res.Checkpoints[0].RealP50, 1e-6)
}

func TestRun_SeedIsReproducible(t *testing.T) {
	in := DefaultInput()
	in.CurrentNetWorth = 500000
	in.MonthlySavings = 50000
	in.GoalAmount = 3000000
	in.DeadlineMonths = 36
	in.Iterations = 2000
	in.Seed = 42

	e := NewEngine(4)
	a, err := e.Run(context.Background(), in)
	require.NoError(t, err)
	b, err := e.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	in.Seed = 43
	c, err := e.Run(context.Background(), in)
	require.NoError(t, err)
	assert.NotEqual(t, a.Checkpoints[0].Nominal.P50, c.Checkpoints[0].Nominal.P50)

	for _, cp := range a.Checkpoints {
		p := cp.Nominal
		assert.True(t, p.P10 <= p.P25 && p.P25 <= p.P50 && p.P50 <= p.P75 && p.P75 <= p.P90, "month %d: %+v", cp.Month, p)
	}
	assert.Greater(t, a.Probability, 0.0)
	assert.Less(t, a.Probability, 1.0)
}

func TestRun_Limits(t *testing.T) {
	t.Run("iterations capped", func(t *testing.T) {
		in := deterministic()
		in.Iterations = MaxIterations * 2
		in.HorizonMonths = 12
		res, err := NewEngine(8).Run(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, MaxIterations, res.Iterations)
	})

	t.Run("zero iterations use default", func(t *testing.T) {
		in := deterministic()
		in.Iterations = 0
		in.HorizonMonths = 12
		res, err := NewEngine(8).Run(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, DefaultIterations, res.Iterations)
	})

	t.Run("horizon too long", func(t *testing.T) {
		in := deterministic()
		in.HorizonMonths = MaxHorizonMonths + 1
		_, err := NewEngine(1).Run(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("negative volatility", func(t *testing.T) {
		in := deterministic()
		in.Volatility = -0.1
		_, err := NewEngine(1).Run(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(2).Run(ctx, deterministic())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompare(t *testing.T) {
	in := deterministic()
	in.DeadlineMonths = 8

	cmp, err := NewEngine(2).Compare(context.Background(), in, 0)
	require.NoError(t, err)

	assert.InDelta(t, 50, cmp.ExtraMonthlySavings, 1e-9)
	assert.Equal(t, 0.0, cmp.Current.Probability)
	assert.Equal(t, 1.0, cmp.Optimized.Probability)
	assert.Equal(t, 1.0, cmp.ProbabilityDelta)
	assert.Equal(t, 7, cmp.Optimized.MedianMonthsToGoal)
}

func TestQuantile(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 1.4, quantile(s, 0.10), 1e-9)
	assert.Equal(t, 3.0, quantile(s, 0.5))
	assert.Equal(t, 5.0, quantile(s, 1))
	assert.Equal(t, 0.0, quantile(nil, 0.5))
}
