// Package gps recalculates the route to a user's goal after budget slippage
// and offers recovery paths.
package gps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"ikpa/internal/apperr"
	"ikpa/internal/core"
	"ikpa/internal/finance"
	"ikpa/internal/goal"
	"ikpa/internal/simulation"
)

type Level string

const (
	LevelNone     Level = "none"
	LevelWarning  Level = "warning"
	LevelExceeded Level = "exceeded"
	LevelCritical Level = "critical"
)

// Trigger thresholds in percent of the budget used.
var (
	warningAt  = decimal.NewFromInt(80)
	exceededAt = decimal.NewFromInt(100)
	criticalAt = decimal.NewFromInt(120)
)

func TriggerLevel(percentUsed decimal.Decimal) Level {
	switch {
	case percentUsed.GreaterThanOrEqual(criticalAt):
		return LevelCritical
	case percentUsed.GreaterThanOrEqual(exceededAt):
		return LevelExceeded
	case percentUsed.GreaterThanOrEqual(warningAt):
		return LevelWarning
	}
	return LevelNone
}

type PathID string

const (
	TimeAdjustment PathID = "time_adjustment"
	RateAdjustment PathID = "rate_adjustment"
	FreezeProtocol PathID = "freeze_protocol"
)

func (p PathID) IsValid() bool {
	_, ok := pathText[p]
	return ok
}

const (
	MaxFreezeWeeks = 8
	freezeLookback = 12 // weeks of category history for the weekly average
)

type Path struct {
	ID                PathID          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	GoalProbability   float64         `json:"goal_probability"`
	ExtensionMonths   int             `json:"extension_months,omitempty"`
	ExtensionWeeks    int             `json:"extension_weeks,omitempty"`
	NewMonthlySavings core.Money      `json:"new_monthly_savings"`
	NewSavingsRate    decimal.Decimal `json:"new_savings_rate"`
	FreezeWeeks       int             `json:"freeze_weeks,omitempty"`
	FreezeRecovers    core.Money      `json:"freeze_recovers"`
}

type BudgetStatus struct {
	Category    string          `json:"category"`
	Budgeted    core.Money      `json:"budgeted"`
	Spent       core.Money      `json:"spent"`
	Remaining   core.Money      `json:"remaining"`
	Overspend   core.Money      `json:"overspend"`
	PercentUsed decimal.Decimal `json:"percent_used"`
	Trigger     Level           `json:"trigger"`
}

type GoalImpact struct {
	GoalID            int64   `json:"goal_id"`
	GoalName          string  `json:"goal_name"`
	ProbabilityBefore float64 `json:"probability_before"`
	ProbabilityAfter  float64 `json:"probability_after"`
	ProbabilityDrop   float64 `json:"probability_drop"`
}

// Session is a stored recalculation.
type Session struct {
	ID           int64        `json:"id"`
	UserID       int64        `json:"-"`
	Category     string       `json:"category"`
	Budget       BudgetStatus `json:"budget"`
	Impact       GoalImpact   `json:"goal_impact"`
	Paths        []Path       `json:"paths"`
	Message      string       `json:"message"`
	SelectedPath PathID       `json:"selected_path,omitempty"`
	SelectedAt   *time.Time   `json:"selected_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Store is the persistence the re-router needs.
type Store interface {
	GetBudgetByCategory(ctx context.Context, userID int64, category string) (core.Budget, error)
	ListExpenses(ctx context.Context, userID int64, from, to time.Time) ([]core.Expense, error)
	TopActiveGoal(ctx context.Context, userID int64) (core.Goal, error)
	CreateRecoverySession(ctx context.Context, s *Session) error
	GetRecoverySession(ctx context.Context, userID, id int64) (Session, error)
	SelectRecoveryPath(ctx context.Context, userID, id int64, path PathID, at time.Time) error
}

// SnapshotSource provides the user's current cash flow.
type SnapshotSource interface {
	Get(ctx context.Context, userID int64) (finance.Snapshot, error)
}

type Service struct {
	store      Store
	snapshots  SnapshotSource
	engine     *simulation.Engine
	iterations int
	now        func() time.Time
}

func NewService(store Store, snapshots SnapshotSource, engine *simulation.Engine, iterations int) *Service {
	if iterations <= 0 {
		iterations = 2000
	}
	return &Service{store: store, snapshots: snapshots, engine: engine, iterations: iterations, now: time.Now}
}

func sumCategory(expenses []core.Expense, category string) core.Money {
	var total core.Money
	for _, e := range expenses {
		if e.Category == category {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// Extension is how far the goal date moves to absorb overspend at the
// current monthly savings: whole months, reported in weeks and never less
// than one week.
func Extension(overspend, monthlySavings decimal.Decimal) (months, weeks int) {
	months = ceilDiv(overspend, monthlySavings)
	weeks = ceilDiv(decimal.NewFromInt(int64(months)*52), decimal.NewFromInt(12))
	return months, max(weeks, 1)
}

func ceilDiv(a, b decimal.Decimal) int {
	if !b.IsPositive() {
		return 0
	}
	return int(a.Div(b).Ceil().IntPart())
}

// Recalculate measures the category against its budget and re-plans the
// route to the highest-priority active goal.
func (s *Service) Recalculate(ctx context.Context, userID int64, category string) (Session, error) {
	if !core.IsKnownCategory(category) {
		return Session{}, apperr.Validation("unknown category").WithDetail("category", category)
	}
	now := s.now()

	budget, err := s.store.GetBudgetByCategory(ctx, userID, category)
	if errors.Is(err, core.ErrNotFound) {
		return Session{}, apperr.NoBudgetFound(category)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get budget: %w", err)
	}

	start, end := budget.PeriodBounds(now)
	lookback := now.AddDate(0, 0, -7*freezeLookback)
	from := start
	if lookback.Before(from) {
		from = lookback
	}
	expenses, err := s.store.ListExpenses(ctx, userID, from, end)
	if err != nil {
		return Session{}, fmt.Errorf("list expenses: %w", err)
	}
	var inPeriod, history []core.Expense
	for _, e := range expenses {
		if !e.Date.Before(start) && e.Date.Before(end) {
			inPeriod = append(inPeriod, e)
		}
		if !e.Date.Before(lookback) {
			history = append(history, e)
		}
	}

	status := BudgetStatus{Category: category, Budgeted: budget.Amount, Spent: sumCategory(inPeriod, category)}
	status.PercentUsed = core.Percent(status.Spent, status.Budgeted)
	status.Trigger = TriggerLevel(status.PercentUsed)
	if diff := status.Budgeted.Sub(status.Spent); diff.Cents > 0 {
		status.Remaining = diff
	} else {
		status.Overspend = core.Money{Cents: -diff.Cents}
	}

	g, err := s.store.TopActiveGoal(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return Session{}, apperr.GpsNoActiveGoal()
	}
	if err != nil {
		return Session{}, fmt.Errorf("top active goal: %w", err)
	}

	snap, err := s.snapshots.Get(ctx, userID)
	if err != nil {
		return Session{}, fmt.Errorf("snapshot: %w", err)
	}

	plan := s.plan(userID, g, snap, now)
	weeklyAvg := sumCategory(history, category).Decimal().Div(decimal.NewFromInt(freezeLookback))
	paths, impact, err := s.route(ctx, plan, g, snap, status.Overspend, weeklyAvg)
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		UserID:    userID,
		Category:  category,
		Budget:    status,
		Impact:    impact,
		Paths:     paths,
		Message:   Message(status.Trigger),
		CreatedAt: now,
	}
	if err := s.store.CreateRecoverySession(ctx, &sess); err != nil {
		return Session{}, fmt.Errorf("create recovery session: %w", err)
	}

	slog.InfoContext(ctx, "GPS recalculated",
		"component", "gps",
		"user_id", userID,
		"category", category,
		"trigger", status.Trigger,
		"overspend_cents", status.Overspend.Cents,
		"session_id", sess.ID)
	return sess, nil
}

// plan builds the baseline projection towards g. Monthly savings are the
// positive part of net cash flow.
func (s *Service) plan(userID int64, g core.Goal, snap finance.Snapshot, now time.Time) simulation.Input {
	in := simulation.DefaultInput()
	in.CurrentNetWorth = g.CurrentAmount.Float64()
	in.MonthlyIncome = snap.MonthlyIncome.Float64()
	in.MonthlyExpenses = snap.MonthlyExpenses.Float64()
	if snap.NetCashFlow.Cents > 0 {
		in.MonthlySavings = snap.NetCashFlow.Float64()
	}
	in.GoalAmount = g.TargetAmount.Float64()
	in.DeadlineMonths = max(goal.MonthsBetween(now, g.TargetDate), 1)
	in.HorizonMonths = max(in.DeadlineMonths, 12)
	in.Iterations = s.iterations
	in.Seed = userID
	return in
}

func (s *Service) route(ctx context.Context, base simulation.Input, g core.Goal, snap finance.Snapshot, overspend core.Money, weeklyAvg decimal.Decimal) ([]Path, GoalImpact, error) {
	after := base
	after.CurrentNetWorth -= overspend.Float64()

	impact := GoalImpact{GoalID: g.ID, GoalName: g.Name}
	var paths []Path
	inputs := map[string]simulation.Input{"before": base, "after": after}

	if overspend.Cents > 0 {
		od := overspend.Decimal()

		monthly := decimal.NewFromFloat(base.MonthlySavings)
		if !monthly.IsPositive() {
			monthly = snap.MonthlyIncome.Decimal().Mul(decimal.NewFromFloat(0.1))
		}
		extMonths, extWeeks := Extension(od, monthly)
		timeIn := after
		timeIn.DeadlineMonths = base.DeadlineMonths + extMonths
		timeIn.HorizonMonths = max(timeIn.HorizonMonths, timeIn.DeadlineMonths)
		inputs[string(TimeAdjustment)] = timeIn
		paths = append(paths, Path{ID: TimeAdjustment, ExtensionMonths: extMonths, ExtensionWeeks: extWeeks})

		extra := od.Div(decimal.NewFromInt(int64(base.DeadlineMonths)))
		newSavings := core.NewMoney(decimal.NewFromFloat(base.MonthlySavings).Add(extra))
		rateIn := after
		rateIn.MonthlySavings = newSavings.Float64()
		inputs[string(RateAdjustment)] = rateIn
		paths = append(paths, Path{
			ID:                RateAdjustment,
			NewMonthlySavings: newSavings,
			NewSavingsRate:    core.Percent(newSavings, snap.MonthlyIncome),
		})

		freezeWeeks := MaxFreezeWeeks
		if weeklyAvg.IsPositive() {
			freezeWeeks = min(max(ceilDiv(od, weeklyAvg), 1), MaxFreezeWeeks)
		}
		recovered := core.NewMoney(decimal.Min(weeklyAvg.Mul(decimal.NewFromInt(int64(freezeWeeks))), od))
		freezeIn := after
		freezeIn.CurrentNetWorth += recovered.Float64()
		inputs[string(FreezeProtocol)] = freezeIn
		paths = append(paths, Path{ID: FreezeProtocol, FreezeWeeks: freezeWeeks, FreezeRecovers: recovered})
	}

	results := make(map[string]float64, len(inputs))
	type outcome struct {
		key string
		p   float64
	}
	out := make(chan outcome, len(inputs))
	eg, ectx := errgroup.WithContext(ctx)
	for key, in := range inputs {
		eg.Go(func() error {
			r, err := s.engine.Run(ectx, in)
			if err != nil {
				return fmt.Errorf("simulate %s: %w", key, err)
			}
			out <- outcome{key, r.Probability}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, GoalImpact{}, err
	}
	close(out)
	for o := range out {
		results[o.key] = o.p
	}

	impact.ProbabilityBefore = results["before"]
	impact.ProbabilityAfter = results["after"]
	impact.ProbabilityDrop = impact.ProbabilityBefore - impact.ProbabilityAfter

	for i := range paths {
		text := pathText[paths[i].ID]
		paths[i].Name = text.name
		paths[i].Description = text.description
		paths[i].GoalProbability = results[string(paths[i].ID)]
	}
	return paths, impact, nil
}

// SelectPath resolves a session with the chosen path. A session resolves
// once.
func (s *Service) SelectPath(ctx context.Context, userID, sessionID int64, path PathID) (Session, error) {
	if !path.IsValid() {
		return Session{}, apperr.Validation("unknown recovery path").WithDetail("path", string(path))
	}
	sess, err := s.store.GetRecoverySession(ctx, userID, sessionID)
	if errors.Is(err, core.ErrNotFound) {
		return Session{}, apperr.SessionNotFound(sessionID)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get recovery session: %w", err)
	}
	if sess.SelectedPath != "" {
		return Session{}, apperr.Conflict("a recovery path was already chosen for this session")
	}
	offered := false
	for _, p := range sess.Paths {
		offered = offered || p.ID == path
	}
	if !offered {
		return Session{}, apperr.Validation("path was not offered in this session").WithDetail("path", string(path))
	}

	now := s.now()
	err = s.store.SelectRecoveryPath(ctx, userID, sessionID, path, now)
	if errors.Is(err, core.ErrConflict) {
		return Session{}, apperr.Conflict("a recovery path was already chosen for this session")
	}
	if err != nil {
		return Session{}, fmt.Errorf("select recovery path: %w", err)
	}
	sess.SelectedPath = path
	sess.SelectedAt = &now
	return sess, nil
}
