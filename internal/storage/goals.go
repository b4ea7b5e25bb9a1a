package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"ikpa/internal/core"
)

const goalColumns = "id, user_id, name, category, target_cents, current_cents, target_date, status, priority, created_at"

func scanGoal(row scanner) (core.Goal, error) {
	var g core.Goal
	var status string
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.Category, &g.TargetAmount.Cents, &g.CurrentAmount.Cents,
		&g.TargetDate, &status, &g.Priority, &g.CreatedAt); err != nil {
		return core.Goal{}, notFound(err)
	}
	g.Status = core.GoalStatus(status)
	g.TargetDate = g.TargetDate.UTC()
	g.CreatedAt = g.CreatedAt.UTC()
	return g, nil
}

func (s *Store) CreateGoal(ctx context.Context, g *core.Goal) error {
	if g.Status == "" {
		g.Status = core.GoalActive
	}
	g.TargetDate = ts(g.TargetDate)
	g.CreatedAt = ts(g.CreatedAt)
	id, err := s.insert(ctx, s.db,
		`INSERT INTO goals (user_id, name, category, target_cents, current_cents, target_date, status, priority, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.UserID, g.Name, g.Category, g.TargetAmount.Cents, g.CurrentAmount.Cents, g.TargetDate,
		string(g.Status), g.Priority, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	g.ID = id
	return nil
}

func (s *Store) GetGoal(ctx context.Context, userID, goalID int64) (core.Goal, error) {
	return s.getGoal(ctx, s.db, userID, goalID)
}

func (s *Store) getGoal(ctx context.Context, q queryer, userID, goalID int64) (core.Goal, error) {
	return scanGoal(s.queryRow(ctx, q,
		"SELECT "+goalColumns+" FROM goals WHERE id = ? AND user_id = ?", goalID, userID))
}

func (s *Store) ListGoals(ctx context.Context, userID int64) ([]core.Goal, error) {
	rows, err := s.query(ctx, s.db,
		"SELECT "+goalColumns+" FROM goals WHERE user_id = ? ORDER BY priority DESC, target_date, id", userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	out := []core.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// TopActiveGoal is the active goal with the highest priority, earliest
// target date first on ties.
func (s *Store) TopActiveGoal(ctx context.Context, userID int64) (core.Goal, error) {
	return scanGoal(s.queryRow(ctx, s.db,
		"SELECT "+goalColumns+` FROM goals WHERE user_id = ? AND status = ?
		 ORDER BY priority DESC, target_date, id LIMIT 1`, userID, string(core.GoalActive)))
}

func (s *Store) UpdateGoalStatus(ctx context.Context, userID, goalID int64, status core.GoalStatus) error {
	res, err := s.exec(ctx, s.db, "UPDATE goals SET status = ? WHERE id = ? AND user_id = ?",
		string(status), goalID, userID)
	if err != nil {
		return fmt.Errorf("update goal status: %w", err)
	}
	return expectOne(res)
}

// AddContribution records c and moves the goal's current amount in the same
// transaction. Reaching the target completes the goal.
func (s *Store) AddContribution(ctx context.Context, userID int64, c *core.Contribution) (core.Goal, error) {
	var updated core.Goal
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		g, err := s.getGoal(ctx, tx, userID, c.GoalID)
		if err != nil {
			return err
		}

		c.Date = ts(c.Date)
		c.CreatedAt = ts(c.CreatedAt)
		id, err := s.insert(ctx, tx,
			"INSERT INTO contributions (goal_id, amount_cents, date, created_at) VALUES (?, ?, ?, ?)",
			c.GoalID, c.Amount.Cents, c.Date, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert contribution: %w", err)
		}
		c.ID = id

		g.CurrentAmount = g.CurrentAmount.Add(c.Amount)
		if g.IsReached() {
			g.Status = core.GoalCompleted
		}
		if _, err := s.exec(ctx, tx, "UPDATE goals SET current_cents = ?, status = ? WHERE id = ?",
			g.CurrentAmount.Cents, string(g.Status), g.ID); err != nil {
			return fmt.Errorf("update goal amount: %w", err)
		}
		updated = g
		return nil
	})
	if err != nil {
		return core.Goal{}, err
	}
	slog.InfoContext(ctx, "Contribution recorded", "component", "storage",
		"user_id", userID, "goal_id", c.GoalID, "amount_cents", c.Amount.Cents)
	return updated, nil
}

// ListContributions returns a goal's contributions, oldest first.
func (s *Store) ListContributions(ctx context.Context, userID, goalID int64) ([]core.Contribution, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT c.id, c.goal_id, c.amount_cents, c.date, c.created_at
		 FROM contributions c JOIN goals g ON g.id = c.goal_id
		 WHERE g.user_id = ? AND c.goal_id = ? ORDER BY c.date, c.id`, userID, goalID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	out := []core.Contribution{}
	for rows.Next() {
		var c core.Contribution
		if err := rows.Scan(&c.ID, &c.GoalID, &c.Amount.Cents, &c.Date, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Date = c.Date.UTC()
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}
