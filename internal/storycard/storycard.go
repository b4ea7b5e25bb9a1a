// Package storycard generates shareable progress cards.
package storycard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ikpa/internal/apperr"
	"ikpa/internal/core"
)

type Kind string

const (
	KindGoalMilestone Kind = "goal_milestone"
	KindCommitmentWon Kind = "commitment_won"
	KindSavingsStreak Kind = "savings_streak"
	KindDebtPaid      Kind = "debt_paid"
)

type Card struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"-"`
	Kind         Kind      `json:"kind"`
	GoalID       int64     `json:"goal_id,omitempty"`
	Milestone    int       `json:"milestone,omitempty"`
	Headline     string    `json:"headline"`
	Body         string    `json:"body"`
	Hashtags     []string  `json:"hashtags"`
	ReferralCode string    `json:"referral_code"`
	Privacy      bool      `json:"privacy"`
	CreatedAt    time.Time `json:"created_at"`
}

// Source carries the record a card is about. Which fields are needed depends
// on the kind.
type Source struct {
	Goal         *core.Goal
	Milestone    int
	StakeAmount  core.Money // commitment_won
	StreakMonths int        // savings_streak
	Saved        core.Money // savings_streak
	Debt         *core.Debt // debt_paid
	PaidOff      core.Money // debt_paid
}

var validMilestones = map[int]bool{25: true, 50: true, 75: true, 100: true}

// ReferralCode is the first eight hex digits of a random UUID, upper-cased.
func ReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Generate builds the card text. With privacy on, amounts are replaced by
// percentages.
func Generate(user core.User, kind Kind, src Source, privacy bool, now time.Time) (Card, error) {
	c := Card{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Kind:         kind,
		Privacy:      privacy,
		ReferralCode: ReferralCode(),
		CreatedAt:    now,
		Hashtags:     []string{"#Ikpa"},
	}
	money := func(m core.Money) string { return core.FormatMoney(m, user.Currency) }

	switch kind {
	case KindGoalMilestone:
		if src.Goal == nil {
			return Card{}, apperr.Validation("goal_milestone cards need a goal")
		}
		if !validMilestones[src.Milestone] {
			return Card{}, apperr.Validation("milestone must be 25, 50, 75 or 100")
		}
		g := src.Goal
		c.GoalID, c.Milestone = g.ID, src.Milestone
		if src.Milestone == 100 {
			c.Headline = "Goal reached: " + g.Name + "!"
		} else {
			c.Headline = fmt.Sprintf("%d%% of the way to %s!", src.Milestone, g.Name)
		}
		if privacy {
			c.Body = fmt.Sprintf("I've saved %d%% of my target for %s.", src.Milestone, g.Name)
		} else {
			c.Body = fmt.Sprintf("I've saved %s of %s for %s.", money(g.CurrentAmount), money(g.TargetAmount), g.Name)
		}
		c.Hashtags = append(c.Hashtags, "#GoalGetter", "#SavingsJourney")

	case KindCommitmentWon:
		c.Headline = "Commitment kept!"
		if src.Goal != nil {
			c.GoalID = src.Goal.ID
			c.Headline = "Commitment kept: " + src.Goal.Name
		}
		if privacy || src.StakeAmount.IsZero() {
			c.Body = "I made a promise to myself, put it on the line and hit 100% of my goal."
		} else {
			c.Body = fmt.Sprintf("I put %s on the line and kept my word.", money(src.StakeAmount))
		}
		c.Hashtags = append(c.Hashtags, "#KeptMyWord", "#CommitmentDevice")

	case KindSavingsStreak:
		if src.StreakMonths <= 0 {
			return Card{}, apperr.Validation("savings_streak cards need streak_months")
		}
		c.Headline = fmt.Sprintf("%d-month savings streak", src.StreakMonths)
		if privacy || src.Saved.IsZero() {
			c.Body = fmt.Sprintf("I've saved every month for %d months straight.", src.StreakMonths)
		} else {
			c.Body = fmt.Sprintf("I've saved %s over %d months.", money(src.Saved), src.StreakMonths)
		}
		c.Hashtags = append(c.Hashtags, "#SavingsStreak")

	case KindDebtPaid:
		if src.Debt == nil {
			return Card{}, apperr.Validation("debt_paid cards need a debt")
		}
		c.Headline = "Debt free: " + src.Debt.Name
		if privacy || src.PaidOff.IsZero() {
			c.Body = fmt.Sprintf("I paid off 100%% of my %s.", src.Debt.Name)
		} else {
			c.Body = fmt.Sprintf("I paid off %s on my %s.", money(src.PaidOff), src.Debt.Name)
		}
		c.Hashtags = append(c.Hashtags, "#DebtFree")

	default:
		return Card{}, apperr.Validation("unknown story card kind").WithDetail("kind", string(kind))
	}
	return c, nil
}

type Store interface {
	// CreateStoryCard returns core.ErrConflict when the user already has a
	// card for the same goal milestone.
	CreateStoryCard(ctx context.Context, c *Card) error
	ListStoryCards(ctx context.Context, userID int64) ([]Card, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id int64) (core.User, error)
}

type Service struct {
	store Store
	users UserStore
	now   func() time.Time
}

func NewService(store Store, users UserStore) *Service {
	return &Service{store: store, users: users, now: time.Now}
}

func (s *Service) Create(ctx context.Context, user core.User, kind Kind, src Source, privacy bool) (Card, error) {
	c, err := Generate(user, kind, src, privacy, s.now())
	if err != nil {
		return Card{}, err
	}
	if err := s.store.CreateStoryCard(ctx, &c); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return Card{}, apperr.Conflict("a card for this milestone already exists")
		}
		return Card{}, fmt.Errorf("create story card: %w", err)
	}
	return c, nil
}

// List returns the user's cards, newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]Card, error) {
	cs, err := s.store.ListStoryCards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list story cards: %w", err)
	}
	return cs, nil
}

// OnMilestone creates a private milestone card. It has the shape of
// goal.MilestoneFunc.
func (s *Service) OnMilestone(ctx context.Context, g core.Goal, milestone int) {
	user, err := s.users.GetUser(ctx, g.UserID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load user for milestone card", "component", "storycard", "error", err)
		return
	}
	_, err = s.Create(ctx, user, KindGoalMilestone, Source{Goal: &g, Milestone: milestone}, true)
	if err != nil && !apperr.Is(err, apperr.CodeConflict) {
		slog.WarnContext(ctx, "Failed to create milestone card",
			"component", "storycard",
			"goal_id", g.ID,
			"milestone", milestone,
			"error", err)
	}
}
