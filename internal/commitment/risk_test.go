package commitment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ikpa/internal/core"
	"ikpa/internal/finance"
)

func TestAssess(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Contract{
		ID:          1,
		CreatedAt:   created,
		Deadline:    created.AddDate(0, 0, 100),
		StakeAmount: core.Money{Cents: 50_000},
	}
	income := core.Money{Cents: 100_000}
	mid := created.AddDate(0, 0, 50)

	tests := []struct {
		name    string
		current int64
		history History
		now     time.Time
		score   int
		level   RiskLevel
	}{
		// gap 0, time .5, history .3 prior, stake .5 -> 0+10+6+5
		{"on pace", 500, History{}, mid, 21, RiskLow},
		// gap .5, time .5, history 1, stake .5 -> 25+10+20+5
		{"no progress with bad history", 0, History{Failed: 2}, mid, 60, RiskMedium},
		// gap .2, time .5, history 0, stake .5 -> 10+10+0+5
		{"behind pace clean history", 300, History{Succeeded: 3}, mid, 25, RiskLow},
		// one hour in, gap and time are both near 0 -> 0+0+6+5
		{"first hour without progress", 0, History{}, created.Add(time.Hour), 11, RiskLow},
		// gap .9, time .9, history .3 prior, stake .5 -> 45+18+6+5
		{"no progress near deadline", 0, History{}, created.AddDate(0, 0, 90), 74, RiskHigh},
		{"goal reached", 1000, History{Failed: 5}, mid, 0, RiskLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := core.Goal{TargetAmount: core.Money{Cents: 1000}, CurrentAmount: core.Money{Cents: tt.current}}
			a := RiskService{}.Assess(c, g, tt.history, income, tt.now)
			assert.Equal(t, tt.score, a.Score)
			assert.Equal(t, tt.level, a.Level)
			assert.Len(t, a.Factors, 4)
			assert.NotEmpty(t, a.Recommendation)
		})
	}
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, RiskLow, LevelFor(39))
	assert.Equal(t, RiskMedium, LevelFor(40))
	assert.Equal(t, RiskMedium, LevelFor(69))
	assert.Equal(t, RiskHigh, LevelFor(70))
}

type incomeStub core.Money

func (i incomeStub) Get(context.Context, int64) (finance.Snapshot, error) {
	return finance.Snapshot{MonthlyIncome: core.Money(i)}, nil
}

func TestServiceRisk(t *testing.T) {
	svc, store := newService()
	store.contracts[1] = Contract{ID: 1, UserID: 7, GoalID: 2, Status: StatusActive, CreatedAt: now.AddDate(0, 0, -10), Deadline: now.AddDate(0, 0, 10)}

	a, err := svc.Risk(context.Background(), incomeStub{Cents: 100_000}, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ContractID)
	// gap 0.5-0.1=0.4, time 0.5, prior 0.3, stake 0 -> 20+10+6
	assert.Equal(t, 36, a.Score)
	assert.Equal(t, RiskLow, a.Level)
}
