package ubuntu

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ikpa/internal/core"
)

func TestAssess(t *testing.T) {
	income := core.Money{Cents: 1_000_000}
	tests := []struct {
		name     string
		supports []core.FamilySupport
		ratio    string
		level    Level
	}{
		{"none", nil, "0", LevelHealthy},
		{"moderate", []core.FamilySupport{{Recipient: "Mama", Amount: core.Money{Cents: 100_000}, Frequency: core.Monthly}}, "10", LevelModerate},
		{"weekly normalized", []core.FamilySupport{{Recipient: "Sibling", Amount: core.Money{Cents: 50_000}, Frequency: core.Weekly}}, "21.67", LevelElevated},
		{"critical", []core.FamilySupport{
			{Recipient: "Mama", Amount: core.Money{Cents: 200_000}, Frequency: core.Monthly},
			{Recipient: "School fees", Amount: core.Money{Cents: 600_000}, Frequency: core.Quarterly},
		}, "40", LevelCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(income, tt.supports)
			assert.True(t, a.DependencyRatio.Equal(decimal.RequireFromString(tt.ratio)), "ratio %s", a.DependencyRatio)
			assert.Equal(t, tt.level, a.Level)
			assert.True(t, strings.HasPrefix(a.Message, "Ubuntu: I am because we are."))
			assert.Len(t, a.Recipients, len(tt.supports))
		})
	}
}

func TestAssess_NoIncome(t *testing.T) {
	a := Assess(core.Money{}, []core.FamilySupport{{Amount: core.Money{Cents: 100}, Frequency: core.Monthly}})
	assert.Equal(t, LevelCritical, a.Level)
}

func TestMessagesNeverCallSupportWasteful(t *testing.T) {
	for level, msg := range messages {
		lower := strings.ToLower(msg)
		for _, w := range []string{"waste", "burden", "drain"} {
			assert.NotContains(t, lower, w, level)
		}
	}
}

func TestEmergencyAdjustment(t *testing.T) {
	g := core.Goal{ID: 4, TargetDate: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)}

	adj, err := EmergencyAdjustment(g, core.Money{Cents: 250_000}, core.Money{Cents: 100_000})
	require.NoError(t, err)
	assert.Equal(t, 3, adj.ShiftMonths)
	assert.Equal(t, "2026-05-01", adj.NewTargetDate)
	require.Len(t, adj.Options, 2)

	pause, reduced := adj.Options[0], adj.Options[1]
	assert.Equal(t, OptionPause, pause.Kind)
	assert.Equal(t, 3, pause.DurationMonths)
	assert.True(t, pause.MonthlyContribution.IsZero())

	assert.Equal(t, OptionReduced, reduced.Kind)
	assert.Equal(t, int64(50_000), reduced.MonthlyContribution.Cents)
	assert.Equal(t, 5, reduced.DurationMonths)
	assert.Equal(t, 3, reduced.ShiftMonths)
}

func TestEmergencyAdjustment_Edges(t *testing.T) {
	_, err := EmergencyAdjustment(core.Goal{}, core.Money{}, core.Money{Cents: 100})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	adj, err := EmergencyAdjustment(core.Goal{}, core.Money{Cents: 100}, core.Money{})
	require.NoError(t, err)
	assert.Equal(t, -1, adj.ShiftMonths)
	assert.Empty(t, adj.Options)
}
