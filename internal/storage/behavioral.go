package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ikpa/internal/commitment"
	"ikpa/internal/debrief"
	"ikpa/internal/gps"
	"ikpa/internal/shark"
	"ikpa/internal/storycard"
)

// --- subscription decisions ---

// SaveDecision upserts the user's decision for a subscription key.
func (s *Store) SaveDecision(ctx context.Context, d shark.Decision) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO subscription_decisions (user_id, key, decision, decided_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, key) DO UPDATE SET decision = excluded.decision, decided_at = excluded.decided_at`,
		d.UserID, d.Key, string(d.Decision), ts(d.DecidedAt))
	if err != nil {
		return fmt.Errorf("save subscription decision: %w", err)
	}
	return nil
}

func (s *Store) ListDecisions(ctx context.Context, userID int64) (map[string]shark.Decision, error) {
	rows, err := s.query(ctx, s.db,
		"SELECT user_id, key, decision, decided_at FROM subscription_decisions WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("list subscription decisions: %w", err)
	}
	defer rows.Close()

	out := map[string]shark.Decision{}
	for rows.Next() {
		var d shark.Decision
		var kind string
		if err := rows.Scan(&d.UserID, &d.Key, &kind, &d.DecidedAt); err != nil {
			return nil, err
		}
		d.Decision = shark.DecisionKind(kind)
		d.DecidedAt = d.DecidedAt.UTC()
		out[d.Key] = d
	}
	return out, rows.Err()
}

// --- recovery sessions ---

func (s *Store) CreateRecoverySession(ctx context.Context, sess *gps.Session) error {
	budget, err := json.Marshal(sess.Budget)
	if err != nil {
		return fmt.Errorf("encode budget status: %w", err)
	}
	impact, err := json.Marshal(sess.Impact)
	if err != nil {
		return fmt.Errorf("encode goal impact: %w", err)
	}
	paths, err := json.Marshal(sess.Paths)
	if err != nil {
		return fmt.Errorf("encode paths: %w", err)
	}

	sess.CreatedAt = ts(sess.CreatedAt)
	id, err := s.insert(ctx, s.db,
		`INSERT INTO recovery_sessions (user_id, category, budget, impact, paths, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.UserID, sess.Category, string(budget), string(impact), string(paths), sess.Message, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert recovery session: %w", err)
	}
	sess.ID = id
	return nil
}

func (s *Store) GetRecoverySession(ctx context.Context, userID, id int64) (gps.Session, error) {
	var sess gps.Session
	var budget, impact, paths string
	var selected sql.NullString
	var selectedAt sql.NullTime
	err := s.queryRow(ctx, s.db,
		`SELECT id, user_id, category, budget, impact, paths, message, selected_path, selected_at, created_at
		 FROM recovery_sessions WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&sess.ID, &sess.UserID, &sess.Category, &budget, &impact, &paths, &sess.Message,
			&selected, &selectedAt, &sess.CreatedAt)
	if err != nil {
		return gps.Session{}, notFound(err)
	}

	if err := json.Unmarshal([]byte(budget), &sess.Budget); err != nil {
		return gps.Session{}, fmt.Errorf("decode budget status: %w", err)
	}
	if err := json.Unmarshal([]byte(impact), &sess.Impact); err != nil {
		return gps.Session{}, fmt.Errorf("decode goal impact: %w", err)
	}
	if err := json.Unmarshal([]byte(paths), &sess.Paths); err != nil {
		return gps.Session{}, fmt.Errorf("decode paths: %w", err)
	}
	sess.SelectedPath = gps.PathID(selected.String)
	sess.SelectedAt = fromNull(selectedAt)
	sess.CreatedAt = sess.CreatedAt.UTC()
	return sess, nil
}

// SelectRecoveryPath resolves a session once. A session that already has a
// path returns ErrConflict.
func (s *Store) SelectRecoveryPath(ctx context.Context, userID, id int64, path gps.PathID, at time.Time) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE recovery_sessions SET selected_path = ?, selected_at = ?
		 WHERE id = ? AND user_id = ? AND selected_path IS NULL`,
		string(path), ts(at), id, userID)
	if err != nil {
		return fmt.Errorf("select recovery path: %w", err)
	}
	if err := expectOne(res); err != nil {
		if _, getErr := s.GetRecoverySession(ctx, userID, id); getErr != nil {
			return getErr
		}
		return ErrConflict
	}
	return nil
}

// --- commitment contracts ---

const contractColumns = "id, user_id, goal_id, stake_type, stake_cents, anti_charity, referee_email, deadline, status, verified_at, created_at"

func scanContract(row scanner) (commitment.Contract, error) {
	var c commitment.Contract
	var stake, status string
	var verified sql.NullTime
	if err := row.Scan(&c.ID, &c.UserID, &c.GoalID, &stake, &c.StakeAmount.Cents, &c.AntiCharity,
		&c.RefereeEmail, &c.Deadline, &status, &verified, &c.CreatedAt); err != nil {
		return commitment.Contract{}, notFound(err)
	}
	c.StakeType = commitment.StakeType(stake)
	c.Status = commitment.Status(status)
	c.VerifiedAt = fromNull(verified)
	c.Deadline = c.Deadline.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (s *Store) listContracts(ctx context.Context, query string, args ...any) ([]commitment.Contract, error) {
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	out := []commitment.Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateContract returns ErrConflict when the goal already has an active
// contract.
func (s *Store) CreateContract(ctx context.Context, c *commitment.Contract) error {
	if c.Status == "" {
		c.Status = commitment.StatusActive
	}
	c.Deadline = ts(c.Deadline)
	c.CreatedAt = ts(c.CreatedAt)
	id, err := s.insert(ctx, s.db,
		`INSERT INTO contracts (user_id, goal_id, stake_type, stake_cents, anti_charity, referee_email, deadline, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.GoalID, string(c.StakeType), c.StakeAmount.Cents, c.AntiCharity, c.RefereeEmail,
		c.Deadline, string(c.Status), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}
	c.ID = id
	return nil
}

func (s *Store) HasActiveContract(ctx context.Context, goalID int64) (bool, error) {
	var n int
	err := s.queryRow(ctx, s.db, "SELECT COUNT(*) FROM contracts WHERE goal_id = ? AND status = ?",
		goalID, string(commitment.StatusActive)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count active contracts: %w", err)
	}
	return n > 0, nil
}

func (s *Store) GetContract(ctx context.Context, userID, id int64) (commitment.Contract, error) {
	return scanContract(s.queryRow(ctx, s.db,
		"SELECT "+contractColumns+" FROM contracts WHERE id = ? AND user_id = ?", id, userID))
}

// GetContractByID is the one unscoped lookup. Referees verify contracts
// owned by someone else.
func (s *Store) GetContractByID(ctx context.Context, id int64) (commitment.Contract, error) {
	return scanContract(s.queryRow(ctx, s.db, "SELECT "+contractColumns+" FROM contracts WHERE id = ?", id))
}

func (s *Store) ListContracts(ctx context.Context, userID int64) ([]commitment.Contract, error) {
	return s.listContracts(ctx,
		"SELECT "+contractColumns+" FROM contracts WHERE user_id = ? ORDER BY created_at DESC, id DESC", userID)
}

// UpdateContractStatus moves an active contract to status. Contracts that are
// no longer active return ErrConflict.
func (s *Store) UpdateContractStatus(ctx context.Context, id int64, status commitment.Status, verifiedAt *time.Time) error {
	res, err := s.exec(ctx, s.db,
		"UPDATE contracts SET status = ?, verified_at = ? WHERE id = ? AND status = ?",
		string(status), nullTS(verifiedAt), id, string(commitment.StatusActive))
	if err != nil {
		return fmt.Errorf("update contract status: %w", err)
	}
	if err := expectOne(res); err != nil {
		if _, getErr := s.GetContractByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrConflict
	}
	return nil
}

func (s *Store) ListUsersWithDueContracts(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := s.query(ctx, s.db,
		"SELECT DISTINCT user_id FROM contracts WHERE status = ? AND deadline <= ? ORDER BY user_id",
		string(commitment.StatusActive), ts(now))
	if err != nil {
		return nil, fmt.Errorf("list users with due contracts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListDueContracts(ctx context.Context, userID int64, now time.Time) ([]commitment.Contract, error) {
	return s.listContracts(ctx,
		"SELECT "+contractColumns+" FROM contracts WHERE user_id = ? AND status = ? AND deadline <= ? ORDER BY deadline, id",
		userID, string(commitment.StatusActive), ts(now))
}

// --- story cards ---

// CreateStoryCard returns ErrConflict for a second card on the same goal
// milestone.
func (s *Store) CreateStoryCard(ctx context.Context, c *storycard.Card) error {
	tags, err := json.Marshal(c.Hashtags)
	if err != nil {
		return fmt.Errorf("encode hashtags: %w", err)
	}
	var goalID, milestone any
	if c.GoalID != 0 {
		goalID = c.GoalID
	}
	if c.Milestone != 0 {
		milestone = c.Milestone
	}

	c.CreatedAt = ts(c.CreatedAt)
	_, err = s.exec(ctx, s.db,
		`INSERT INTO story_cards (id, user_id, kind, goal_id, milestone, headline, body, hashtags, referral_code, privacy, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, string(c.Kind), goalID, milestone, c.Headline, c.Body, string(tags),
		c.ReferralCode, c.Privacy, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert story card: %w", err)
	}
	return nil
}

// ListStoryCards returns the user's cards, newest first.
func (s *Store) ListStoryCards(ctx context.Context, userID int64) ([]storycard.Card, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT id, user_id, kind, goal_id, milestone, headline, body, hashtags, referral_code, privacy, created_at
		 FROM story_cards WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list story cards: %w", err)
	}
	defer rows.Close()

	out := []storycard.Card{}
	for rows.Next() {
		var c storycard.Card
		var kind, tags string
		var goalID, milestone sql.NullInt64
		if err := rows.Scan(&c.ID, &c.UserID, &kind, &goalID, &milestone, &c.Headline, &c.Body, &tags,
			&c.ReferralCode, &c.Privacy, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Kind = storycard.Kind(kind)
		c.GoalID = goalID.Int64
		c.Milestone = int(milestone.Int64)
		if err := json.Unmarshal([]byte(tags), &c.Hashtags); err != nil {
			return nil, fmt.Errorf("decode hashtags: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- debriefs ---

// SaveDebrief replaces the stored debrief for the contract.
func (s *Store) SaveDebrief(ctx context.Context, userID int64, d debrief.Debrief) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode debrief: %w", err)
	}
	_, err = s.exec(ctx, s.db,
		`INSERT INTO debriefs (contract_id, user_id, source, body, generated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (contract_id) DO UPDATE SET source = excluded.source, body = excluded.body,
		 generated_at = excluded.generated_at`,
		d.ContractID, userID, d.Source, string(body), ts(d.GeneratedAt))
	if err != nil {
		return fmt.Errorf("save debrief: %w", err)
	}
	return nil
}

func (s *Store) GetDebrief(ctx context.Context, userID, contractID int64) (debrief.Debrief, error) {
	var body string
	err := s.queryRow(ctx, s.db,
		"SELECT body FROM debriefs WHERE contract_id = ? AND user_id = ?", contractID, userID).Scan(&body)
	if err != nil {
		return debrief.Debrief{}, notFound(err)
	}
	var d debrief.Debrief
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return debrief.Debrief{}, fmt.Errorf("decode debrief: %w", err)
	}
	return d, nil
}
