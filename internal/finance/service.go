package finance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"ikpa/internal/cache"
	"ikpa/internal/core"
)

// Store is the read side the snapshot needs.
type Store interface {
	ListIncomes(ctx context.Context, userID int64) ([]core.Income, error)
	ListExpenses(ctx context.Context, userID int64, from, to time.Time) ([]core.Expense, error)
	ListDebts(ctx context.Context, userID int64) ([]core.Debt, error)
	ListSavingsAccounts(ctx context.Context, userID int64) ([]core.SavingsAccount, error)
	ListFamilySupport(ctx context.Context, userID int64) ([]core.FamilySupport, error)
}

// UserPrefix is the cache key prefix for everything memoized for a user.
func UserPrefix(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10) + ":"
}

// SnapshotService memoizes snapshots per user.
type SnapshotService struct {
	store Store
	cache *cache.LRUCache[Snapshot]
	now   func() time.Time
}

func NewSnapshotService(store Store, c *cache.LRUCache[Snapshot]) *SnapshotService {
	return &SnapshotService{store: store, cache: c, now: time.Now}
}

// Get returns the cached snapshot or computes a fresh one.
func (s *SnapshotService) Get(ctx context.Context, userID int64) (Snapshot, error) {
	return s.cache.GetOrLoad(UserPrefix(userID)+"snapshot", func() (Snapshot, error) {
		in, err := s.load(ctx, userID)
		if err != nil {
			return Snapshot{}, err
		}
		return ComputeSnapshot(in), nil
	})
}

// Inputs loads the raw records for a user.
func (s *SnapshotService) Inputs(ctx context.Context, userID int64) (Inputs, error) {
	return s.load(ctx, userID)
}

// Invalidate drops every cached value for the user. Call after any write to
// their financial records.
func (s *SnapshotService) Invalidate(userID int64) {
	s.cache.DeletePrefix(UserPrefix(userID))
}

func (s *SnapshotService) load(ctx context.Context, userID int64) (Inputs, error) {
	now := s.now()
	in := Inputs{Now: now}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.Incomes, err = s.store.ListIncomes(ctx, userID)
		return wrap("incomes", err)
	})
	g.Go(func() (err error) {
		in.Expenses, err = s.store.ListExpenses(ctx, userID, now.AddDate(0, -ExpenseWindow, 0), now)
		return wrap("expenses", err)
	})
	g.Go(func() (err error) {
		in.Debts, err = s.store.ListDebts(ctx, userID)
		return wrap("debts", err)
	})
	g.Go(func() (err error) {
		in.Savings, err = s.store.ListSavingsAccounts(ctx, userID)
		return wrap("savings", err)
	})
	g.Go(func() (err error) {
		in.FamilySupport, err = s.store.ListFamilySupport(ctx, userID)
		return wrap("family support", err)
	})
	if err := g.Wait(); err != nil {
		return Inputs{}, err
	}
	return in, nil
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("list %s: %w", what, err)
	}
	return nil
}
