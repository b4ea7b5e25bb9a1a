// Package goal tracks progress towards savings goals.
package goal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"ikpa/internal/apperr"
	"ikpa/internal/core"
)

type Status string

const (
	StatusAhead     Status = "ahead"
	StatusOnTrack   Status = "on_track"
	StatusBehind    Status = "behind"
	StatusCompleted Status = "completed"
	StatusOverdue   Status = "overdue"
)

// OnTrackWindow is how far the projected completion may land from the
// target date and still count as on track.
const OnTrackWindow = 30 * 24 * time.Hour

const daysPerMonth = 30.4375

// Milestones are the completion percentages that earn a story card.
var Milestones = []int{25, 50, 75, 100}

type Progress struct {
	GoalID              int64           `json:"goal_id"`
	PercentComplete     decimal.Decimal `json:"percent_complete"`
	Remaining           core.Money      `json:"remaining"`
	MonthsRemaining     int             `json:"months_remaining"`
	RequiredMonthly     core.Money      `json:"required_monthly"`
	AverageMonthly      core.Money      `json:"average_monthly"`
	ProjectedCompletion *time.Time      `json:"projected_completion,omitempty"`
	Status              Status          `json:"status"`
}

// MonthsBetween returns the whole months from now until t, rounded up, or
// zero when t is not in the future.
func MonthsBetween(now, t time.Time) int {
	if !t.After(now) {
		return 0
	}
	return int(math.Ceil(t.Sub(now).Hours() / 24 / daysPerMonth))
}

// AverageMonthly is the mean monthly contribution over the three months
// before now.
func AverageMonthly(contributions []core.Contribution, now time.Time) core.Money {
	from := now.AddDate(0, -3, 0)
	var sum core.Money
	for _, c := range contributions {
		if c.Date.After(from) && !c.Date.After(now) {
			sum = sum.Add(c.Amount)
		}
	}
	return core.NewMoney(sum.Decimal().Div(decimal.NewFromInt(3)))
}

// Compute derives progress for g at now.
func Compute(g core.Goal, contributions []core.Contribution, now time.Time) Progress {
	p := Progress{
		GoalID:          g.ID,
		PercentComplete: decimal.Min(core.Percent(g.CurrentAmount, g.TargetAmount), decimal.NewFromInt(100)),
		MonthsRemaining: MonthsBetween(now, g.TargetDate),
		AverageMonthly:  AverageMonthly(contributions, now),
	}
	if rem := g.TargetAmount.Sub(g.CurrentAmount); rem.Cents > 0 {
		p.Remaining = rem
	}

	if g.IsReached() || g.Status == core.GoalCompleted {
		p.PercentComplete = decimal.NewFromInt(100)
		p.Remaining = core.Money{}
		p.Status = StatusCompleted
		return p
	}

	p.RequiredMonthly = core.NewMoney(p.Remaining.Decimal().Div(decimal.NewFromInt(int64(max(p.MonthsRemaining, 1)))))

	if p.AverageMonthly.Cents > 0 {
		months := p.Remaining.Decimal().Div(p.AverageMonthly.Decimal()).Ceil().IntPart()
		projected := now.AddDate(0, int(months), 0)
		p.ProjectedCompletion = &projected
	}

	switch {
	case now.After(g.TargetDate):
		p.Status = StatusOverdue
	case p.ProjectedCompletion == nil:
		p.Status = StatusBehind
	case p.ProjectedCompletion.Before(g.TargetDate.Add(-OnTrackWindow)):
		p.Status = StatusAhead
	case !p.ProjectedCompletion.After(g.TargetDate.Add(OnTrackWindow)):
		p.Status = StatusOnTrack
	default:
		p.Status = StatusBehind
	}
	return p
}

// CrossedMilestones lists the milestones reached by moving from before to
// after.
func CrossedMilestones(target, before, after core.Money) []int {
	if target.Cents <= 0 {
		return nil
	}
	var out []int
	for _, m := range Milestones {
		threshold := target.Cents * int64(m) / 100
		if before.Cents < threshold && after.Cents >= threshold {
			out = append(out, m)
		}
	}
	return out
}

// Store is the persistence the service needs.
type Store interface {
	GetGoal(ctx context.Context, userID, goalID int64) (core.Goal, error)
	ListContributions(ctx context.Context, userID, goalID int64) ([]core.Contribution, error)
	AddContribution(ctx context.Context, userID int64, c *core.Contribution) (core.Goal, error)
}

// MilestoneFunc is told about every milestone a contribution crosses.
type MilestoneFunc func(ctx context.Context, g core.Goal, milestone int)

type Service struct {
	store       Store
	onMilestone MilestoneFunc
	now         func() time.Time
}

func NewService(store Store, onMilestone MilestoneFunc) *Service {
	return &Service{store: store, onMilestone: onMilestone, now: time.Now}
}

func (s *Service) get(ctx context.Context, userID, goalID int64) (core.Goal, error) {
	g, err := s.store.GetGoal(ctx, userID, goalID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Goal{}, apperr.GoalNotFound(goalID)
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (s *Service) Progress(ctx context.Context, userID, goalID int64) (Progress, error) {
	g, err := s.get(ctx, userID, goalID)
	if err != nil {
		return Progress{}, err
	}
	cs, err := s.store.ListContributions(ctx, userID, goalID)
	if err != nil {
		return Progress{}, fmt.Errorf("list contributions: %w", err)
	}
	return Compute(g, cs, s.now()), nil
}

// Contribute records a deposit and reports any milestones it crosses.
func (s *Service) Contribute(ctx context.Context, userID, goalID int64, amount core.Money, date time.Time) (core.Goal, error) {
	if err := amount.Validate(); err != nil {
		return core.Goal{}, apperr.Validation("contribution amount must be positive")
	}
	before, err := s.get(ctx, userID, goalID)
	if err != nil {
		return core.Goal{}, err
	}
	if before.Status != core.GoalActive {
		return core.Goal{}, apperr.Conflict("goal is not active")
	}
	if date.IsZero() {
		date = s.now()
	}

	c := &core.Contribution{GoalID: goalID, Amount: amount, Date: date}
	after, err := s.store.AddContribution(ctx, userID, c)
	if err != nil {
		return core.Goal{}, fmt.Errorf("add contribution: %w", err)
	}

	for _, m := range CrossedMilestones(after.TargetAmount, before.CurrentAmount, after.CurrentAmount) {
		slog.InfoContext(ctx, "Goal milestone reached",
			"component", "goal",
			"goal_id", goalID,
			"milestone", m)
		if s.onMilestone != nil {
			s.onMilestone(ctx, after, m)
		}
	}
	return after, nil
}
