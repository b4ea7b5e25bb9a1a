package commitment

import (
	"context"
	"fmt"
	"math"
	"time"

	"ikpa/internal/core"
	"ikpa/internal/finance"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const (
	weightProgressGap  = 0.5
	weightTimePressure = 0.2
	weightFailureRate  = 0.2
	weightStakeRatio   = 0.1

	// noHistoryFailureRate is assumed for users with no resolved contracts.
	noHistoryFailureRate = 0.3
)

type Factor struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

type Assessment struct {
	ContractID     int64     `json:"contract_id"`
	Score          int       `json:"score"`
	Level          RiskLevel `json:"level"`
	Factors        []Factor  `json:"factors"`
	Recommendation string    `json:"recommendation"`
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func LevelFor(score int) RiskLevel {
	switch {
	case score >= 70:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	}
	return RiskLow
}

var recommendations = map[RiskLevel]string{
	RiskLow:    "You're pacing well. Keep your contributions steady until the deadline.",
	RiskMedium: "You're a little behind the pace this commitment needs. A small extra contribution this week would close the gap.",
	RiskHigh:   "This commitment needs attention. Consider a larger contribution now or talk to your referee about a plan.",
}

// RiskService scores how likely a contract is to fail.
type RiskService struct{}

// Assess combines progress gap, time pressure, failure history and the stake
// relative to monthly income.
func (RiskService) Assess(c Contract, g core.Goal, h History, monthlyIncome core.Money, now time.Time) Assessment {
	window := c.Deadline.Sub(c.CreatedAt)
	elapsed := 1.0
	if window > 0 {
		elapsed = clamp01(float64(now.Sub(c.CreatedAt)) / float64(window))
	}

	actual := 0.0
	if g.TargetAmount.Cents > 0 {
		actual = clamp01(float64(g.CurrentAmount.Cents) / float64(g.TargetAmount.Cents))
	}
	// Expected progress is linear over the window.
	gap := clamp01(elapsed - actual)

	failure := h.FailureRate()
	if failure < 0 {
		failure = noHistoryFailureRate
	}

	stake := 0.0
	if monthlyIncome.Cents > 0 {
		stake = clamp01(float64(c.StakeAmount.Cents) / float64(monthlyIncome.Cents))
	} else if c.StakeAmount.Cents > 0 {
		stake = 1
	}

	factors := []Factor{
		{Name: "progress_gap", Value: gap, Weight: weightProgressGap},
		{Name: "time_pressure", Value: elapsed, Weight: weightTimePressure},
		{Name: "failure_history", Value: failure, Weight: weightFailureRate},
		{Name: "stake_to_income", Value: stake, Weight: weightStakeRatio},
	}
	total := 0.0
	for i := range factors {
		factors[i].Contribution = math.Round(factors[i].Value*factors[i].Weight*10000) / 100
		total += factors[i].Value * factors[i].Weight
	}
	score := int(math.Round(total * 100))
	level := LevelFor(score)
	if g.IsReached() {
		score, level = 0, RiskLow
	}

	return Assessment{
		ContractID:     c.ID,
		Score:          score,
		Level:          level,
		Factors:        factors,
		Recommendation: recommendations[level],
	}
}

// IncomeSource provides monthly income for the stake ratio.
type IncomeSource interface {
	Get(ctx context.Context, userID int64) (finance.Snapshot, error)
}

// Risk loads everything needed and assesses one of the user's contracts.
func (s *Service) Risk(ctx context.Context, income IncomeSource, userID, id int64) (Assessment, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return Assessment{}, err
	}
	g, err := s.store.GetGoal(ctx, userID, c.GoalID)
	if err != nil {
		return Assessment{}, fmt.Errorf("get goal: %w", err)
	}
	h, err := s.History(ctx, userID)
	if err != nil {
		return Assessment{}, err
	}
	snap, err := income.Get(ctx, userID)
	if err != nil {
		return Assessment{}, fmt.Errorf("snapshot: %w", err)
	}
	return RiskService{}.Assess(c, g, h, snap.MonthlyIncome, s.now()), nil
}
