package shark

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ikpa/internal/apperr"
	"ikpa/internal/cache"
	"ikpa/internal/core"
	"ikpa/internal/finance"
)

// AuditWindow is how far back charges are read. It covers two annual cycles.
const AuditWindow = 25 * 30 * 24 * time.Hour

type Store interface {
	ListExpenses(ctx context.Context, userID int64, from, to time.Time) ([]core.Expense, error)
	ListDecisions(ctx context.Context, userID int64) (map[string]Decision, error)
	SaveDecision(ctx context.Context, d Decision) error
}

// Service runs audits over stored expenses and memoizes the report per user.
type Service struct {
	auditor *Auditor
	store   Store
	cache   *cache.LRUCache[Report]
	now     func() time.Time
}

func NewService(auditor *Auditor, store Store, c *cache.LRUCache[Report]) *Service {
	return &Service{auditor: auditor, store: store, cache: c, now: time.Now}
}

func cacheKey(userID int64) string {
	return finance.UserPrefix(userID) + "shark"
}

// Audit returns the user's subscription report.
func (s *Service) Audit(ctx context.Context, userID int64) (Report, error) {
	return s.cache.GetOrLoad(cacheKey(userID), func() (Report, error) {
		return s.run(ctx, userID)
	})
}

// Refresh recomputes the report and replaces the cached one.
func (s *Service) Refresh(ctx context.Context, userID int64) (Report, error) {
	r, err := s.run(ctx, userID)
	if err != nil {
		return Report{}, err
	}
	s.cache.Set(cacheKey(userID), r)
	return r, nil
}

func (s *Service) run(ctx context.Context, userID int64) (Report, error) {
	now := s.now().UTC()
	expenses, err := s.store.ListExpenses(ctx, userID, now.Add(-AuditWindow), time.Time{})
	if err != nil {
		return Report{}, fmt.Errorf("list expenses: %w", err)
	}
	decisions, err := s.store.ListDecisions(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("list decisions: %w", err)
	}

	r := s.auditor.Audit(expenses, decisions, now)
	slog.InfoContext(ctx, "Subscription audit complete",
		"component", "shark",
		"user_id", userID,
		"subscriptions", len(r.Subscriptions),
		"zombies", r.ZombieCount,
		"potential_annual_savings_cents", r.PotentialAnnualSavings.Cents)
	return r, nil
}

// Decide records the user's decision for a subscription in their report.
func (s *Service) Decide(ctx context.Context, userID int64, key string, kind DecisionKind) (Decision, error) {
	if err := kind.Validate(); err != nil {
		return Decision{}, apperr.Validation(err.Error())
	}
	r, err := s.Audit(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	found := false
	for _, sub := range r.Subscriptions {
		if sub.Key == key {
			found = true
			break
		}
	}
	if !found {
		return Decision{}, apperr.SubscriptionNotFound(key)
	}

	d := Decision{UserID: userID, Key: key, Decision: kind, DecidedAt: s.now().UTC().Truncate(time.Second)}
	if err := s.store.SaveDecision(ctx, d); err != nil {
		return Decision{}, fmt.Errorf("save decision: %w", err)
	}
	s.Invalidate(userID)
	return d, nil
}

// Invalidate drops the cached report. Call after the user's expenses change.
func (s *Service) Invalidate(userID int64) {
	s.cache.Delete(cacheKey(userID))
}
