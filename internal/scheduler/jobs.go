package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ikpa/internal/commitment"
)

// Settler is the part of the commitment service the settlement job drives.
type Settler interface {
	DueUsers(ctx context.Context, now time.Time) ([]int64, error)
	SettleUser(ctx context.Context, userID int64, now time.Time) (commitment.SettleReport, error)
}

// UserLister lists every user ID.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// SettlementJob settles expired contracts for every due user. onSettled, when
// set, is called for each resolved contract (e.g. to request a debrief).
func SettlementJob(settler Settler, concurrency int, now func() time.Time, onSettled func(ctx context.Context, userID, contractID int64) error) func(context.Context) error {
	return func(ctx context.Context) error {
		at := now().UTC()
		users, err := settler.DueUsers(ctx, at)
		if err != nil {
			return fmt.Errorf("list due users: %w", err)
		}

		var mu sync.Mutex
		var total commitment.SettleReport
		res := ForEachUser(ctx, JobCommitmentSettlement, users, concurrency, func(ctx context.Context, userID int64) error {
			rep, err := settler.SettleUser(ctx, userID, at)
			if err != nil {
				return err
			}
			mu.Lock()
			total.Add(rep)
			mu.Unlock()

			if onSettled == nil {
				return nil
			}
			for _, id := range rep.Settled {
				if err := onSettled(ctx, userID, id); err != nil {
					slog.WarnContext(ctx, "Post-settlement hook failed",
						"component", "scheduler",
						"user_id", userID,
						"contract_id", id,
						"error", err)
				}
			}
			return nil
		})

		slog.InfoContext(ctx, "Commitment settlement complete",
			"component", "scheduler",
			"users", len(users),
			"users_failed", res.Failed,
			"succeeded", total.Succeeded,
			"failed", total.Failed,
			"errors", total.Errors)
		return nil
	}
}

// SharkAuditJob runs audit for every user.
func SharkAuditJob(users UserLister, concurrency int, audit func(ctx context.Context, userID int64) error) func(context.Context) error {
	return func(ctx context.Context) error {
		ids, err := users.ListUserIDs(ctx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		res := ForEachUser(ctx, JobSharkWeeklyAudit, ids, concurrency, audit)
		slog.InfoContext(ctx, "Weekly subscription audit complete",
			"component", "scheduler",
			"users", len(ids),
			"processed", res.Processed,
			"failed", res.Failed)
		return nil
	}
}
