// Package commitment implements stake-backed goal contracts.
package commitment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ikpa/internal/apperr"
	"ikpa/internal/core"
)

type StakeType string

const (
	StakeSocial      StakeType = "social"
	StakeAntiCharity StakeType = "anti_charity"
	StakeLossPool    StakeType = "loss_pool"
)

func (s StakeType) IsValid() bool {
	switch s {
	case StakeSocial, StakeAntiCharity, StakeLossPool:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// MinLeadTime is how far out a deadline must be when a contract is created.
const MinLeadTime = 7 * 24 * time.Hour

type Contract struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	GoalID       int64      `json:"goal_id"`
	StakeType    StakeType  `json:"stake_type"`
	StakeAmount  core.Money `json:"stake_amount"`
	AntiCharity  string     `json:"anti_charity,omitempty"`
	RefereeEmail string     `json:"referee_email,omitempty"`
	Deadline     time.Time  `json:"deadline"`
	Status       Status     `json:"status"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type CreateRequest struct {
	GoalID       int64      `json:"goal_id"`
	StakeType    StakeType  `json:"stake_type"`
	StakeAmount  core.Money `json:"stake_amount"`
	AntiCharity  string     `json:"anti_charity"`
	RefereeEmail string     `json:"referee_email"`
	Deadline     time.Time  `json:"deadline"`
}

// Validate checks the request against now.
func (r CreateRequest) Validate(now time.Time) error {
	switch {
	case !r.StakeType.IsValid():
		return apperr.Validation("stake_type must be social, anti_charity or loss_pool")
	case r.StakeType != StakeSocial && r.StakeAmount.Cents <= 0:
		return apperr.Validation("stake_amount must be positive")
	case r.StakeAmount.IsNegative():
		return apperr.Validation("stake_amount must not be negative")
	case r.StakeType == StakeSocial && strings.TrimSpace(r.RefereeEmail) == "":
		return apperr.Validation("social contracts need a referee_email")
	case r.StakeType == StakeAntiCharity && strings.TrimSpace(r.AntiCharity) == "":
		return apperr.Validation("anti_charity contracts need an anti_charity")
	case r.Deadline.Before(now.Add(MinLeadTime)):
		return apperr.Validation("deadline must be at least 7 days away")
	}
	if r.RefereeEmail != "" {
		if err := core.ValidateEmail(r.RefereeEmail); err != nil {
			return apperr.Validation("referee_email is not a valid email")
		}
	}
	return nil
}

// History summarizes a user's past contracts.
type History struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// FailureRate is failed over resolved contracts, or -1 with no resolved ones.
func (h History) FailureRate() float64 {
	resolved := h.Succeeded + h.Failed
	if resolved == 0 {
		return -1
	}
	return float64(h.Failed) / float64(resolved)
}

func Summarize(cs []Contract) History {
	h := History{Total: len(cs)}
	for _, c := range cs {
		switch c.Status {
		case StatusActive:
			h.Active++
		case StatusSucceeded:
			h.Succeeded++
		case StatusFailed:
			h.Failed++
		case StatusCancelled:
			h.Cancelled++
		}
	}
	return h
}

type Store interface {
	GetGoal(ctx context.Context, userID, goalID int64) (core.Goal, error)
	HasActiveContract(ctx context.Context, goalID int64) (bool, error)
	CreateContract(ctx context.Context, c *Contract) error
	GetContract(ctx context.Context, userID, id int64) (Contract, error)
	// GetContractByID is not tenant-scoped; referees verify contracts they
	// do not own.
	GetContractByID(ctx context.Context, id int64) (Contract, error)
	ListContracts(ctx context.Context, userID int64) ([]Contract, error)
	// UpdateContractStatus only moves active contracts and returns
	// core.ErrConflict otherwise.
	UpdateContractStatus(ctx context.Context, id int64, status Status, verifiedAt *time.Time) error
	ListUsersWithDueContracts(ctx context.Context, now time.Time) ([]int64, error)
	ListDueContracts(ctx context.Context, userID int64, now time.Time) ([]Contract, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Create(ctx context.Context, userID int64, req CreateRequest) (Contract, error) {
	now := s.now()
	if err := req.Validate(now); err != nil {
		return Contract{}, err
	}

	g, err := s.store.GetGoal(ctx, userID, req.GoalID)
	if errors.Is(err, core.ErrNotFound) {
		return Contract{}, apperr.GoalNotFound(req.GoalID)
	}
	if err != nil {
		return Contract{}, fmt.Errorf("get goal: %w", err)
	}
	if g.Status != core.GoalActive {
		return Contract{}, apperr.Conflict("goal is not active")
	}

	busy, err := s.store.HasActiveContract(ctx, req.GoalID)
	if err != nil {
		return Contract{}, fmt.Errorf("check active contract: %w", err)
	}
	if busy {
		return Contract{}, apperr.Conflict("goal already has an active commitment")
	}

	c := Contract{
		UserID:       userID,
		GoalID:       req.GoalID,
		StakeType:    req.StakeType,
		StakeAmount:  req.StakeAmount,
		AntiCharity:  strings.TrimSpace(req.AntiCharity),
		RefereeEmail: strings.ToLower(strings.TrimSpace(req.RefereeEmail)),
		Deadline:     req.Deadline.UTC(),
		Status:       StatusActive,
		CreatedAt:    now,
	}
	if err := s.store.CreateContract(ctx, &c); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return Contract{}, apperr.Conflict("goal already has an active commitment")
		}
		return Contract{}, fmt.Errorf("create contract: %w", err)
	}
	slog.InfoContext(ctx, "Commitment created",
		"component", "commitment",
		"contract_id", c.ID,
		"goal_id", c.GoalID,
		"stake_type", c.StakeType)
	return c, nil
}

func (s *Service) Get(ctx context.Context, userID, id int64) (Contract, error) {
	c, err := s.store.GetContract(ctx, userID, id)
	if errors.Is(err, core.ErrNotFound) {
		return Contract{}, apperr.CommitmentNotFound(id)
	}
	if err != nil {
		return Contract{}, fmt.Errorf("get contract: %w", err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, userID int64) ([]Contract, error) {
	cs, err := s.store.ListContracts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	return cs, nil
}

func (s *Service) History(ctx context.Context, userID int64) (History, error) {
	cs, err := s.List(ctx, userID)
	if err != nil {
		return History{}, err
	}
	return Summarize(cs), nil
}

// Verify records the referee's verdict.
func (s *Service) Verify(ctx context.Context, contractID int64, refereeEmail string, success bool) (Contract, error) {
	c, err := s.store.GetContractByID(ctx, contractID)
	if errors.Is(err, core.ErrNotFound) {
		return Contract{}, apperr.CommitmentNotFound(contractID)
	}
	if err != nil {
		return Contract{}, fmt.Errorf("get contract: %w", err)
	}
	if c.RefereeEmail == "" || !strings.EqualFold(c.RefereeEmail, strings.TrimSpace(refereeEmail)) {
		return Contract{}, apperr.Forbidden("only the referee can verify this commitment")
	}
	if c.Status != StatusActive {
		return Contract{}, apperr.Conflict("commitment is no longer active")
	}

	status := StatusFailed
	if success {
		status = StatusSucceeded
	}
	return s.transition(ctx, c, status, true)
}

// Cancel withdraws an active contract.
func (s *Service) Cancel(ctx context.Context, userID, id int64) (Contract, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return Contract{}, err
	}
	if c.Status != StatusActive {
		return Contract{}, apperr.Conflict("commitment is no longer active")
	}
	return s.transition(ctx, c, StatusCancelled, false)
}

func (s *Service) transition(ctx context.Context, c Contract, status Status, verified bool) (Contract, error) {
	var at *time.Time
	if verified {
		now := s.now()
		at = &now
	}
	err := s.store.UpdateContractStatus(ctx, c.ID, status, at)
	if errors.Is(err, core.ErrConflict) {
		return Contract{}, apperr.Conflict("commitment is no longer active")
	}
	if err != nil {
		return Contract{}, fmt.Errorf("update contract: %w", err)
	}
	c.Status = status
	c.VerifiedAt = at
	return c, nil
}

type SettleReport struct {
	Succeeded int
	Failed    int
	Errors    int
	// Settled lists the contracts resolved in this run.
	Settled []int64
}

func (r *SettleReport) Add(o SettleReport) {
	r.Succeeded += o.Succeeded
	r.Failed += o.Failed
	r.Errors += o.Errors
	r.Settled = append(r.Settled, o.Settled...)
}

// DueUsers lists users with active contracts past their deadline.
func (s *Service) DueUsers(ctx context.Context, now time.Time) ([]int64, error) {
	return s.store.ListUsersWithDueContracts(ctx, now)
}

// SettleUser resolves the user's expired, unverified contracts by goal state.
// A contract that fails to settle is logged and skipped.
func (s *Service) SettleUser(ctx context.Context, userID int64, now time.Time) (SettleReport, error) {
	due, err := s.store.ListDueContracts(ctx, userID, now)
	if err != nil {
		return SettleReport{}, fmt.Errorf("list due contracts: %w", err)
	}

	var rep SettleReport
	for _, c := range due {
		g, err := s.store.GetGoal(ctx, c.UserID, c.GoalID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load goal for settlement",
				"component", "commitment",
				"contract_id", c.ID,
				"error", err)
			rep.Errors++
			continue
		}
		status := StatusFailed
		if g.IsReached() {
			status = StatusSucceeded
		}
		if err := s.store.UpdateContractStatus(ctx, c.ID, status, nil); err != nil {
			if !errors.Is(err, core.ErrConflict) {
				slog.ErrorContext(ctx, "Failed to settle contract",
					"component", "commitment",
					"contract_id", c.ID,
					"error", err)
				rep.Errors++
			}
			continue
		}
		rep.Settled = append(rep.Settled, c.ID)
		if status == StatusSucceeded {
			rep.Succeeded++
		} else {
			rep.Failed++
		}
	}
	return rep, nil
}

// Settle resolves every due contract across all users.
func (s *Service) Settle(ctx context.Context, now time.Time) (SettleReport, error) {
	users, err := s.DueUsers(ctx, now)
	if err != nil {
		return SettleReport{}, fmt.Errorf("list due users: %w", err)
	}
	var total SettleReport
	for _, u := range users {
		rep, err := s.SettleUser(ctx, u, now)
		if err != nil {
			return total, err
		}
		total.Add(rep)
	}
	return total, nil
}
