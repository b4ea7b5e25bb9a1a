package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ikpa/internal/core"
)

// --- incomes ---

func (s *Store) CreateIncome(ctx context.Context, in *core.Income) error {
	in.CreatedAt = ts(in.CreatedAt)
	id, err := s.insert(ctx, s.db,
		`INSERT INTO incomes (user_id, name, amount_cents, frequency, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		in.UserID, in.Name, in.Amount.Cents, string(in.Frequency), in.IsActive, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert income: %w", err)
	}
	in.ID = id
	return nil
}

func (s *Store) ListIncomes(ctx context.Context, userID int64) ([]core.Income, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT id, user_id, name, amount_cents, frequency, is_active, created_at
		 FROM incomes WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	out := []core.Income{}
	for rows.Next() {
		var in core.Income
		var freq string
		if err := rows.Scan(&in.ID, &in.UserID, &in.Name, &in.Amount.Cents, &freq, &in.IsActive, &in.CreatedAt); err != nil {
			return nil, err
		}
		in.Frequency = core.Frequency(freq)
		in.CreatedAt = in.CreatedAt.UTC()
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *Store) DeleteIncome(ctx context.Context, userID, id int64) error {
	return s.deleteOwned(ctx, "incomes", userID, id)
}

// --- expenses ---

const expenseColumns = "id, user_id, date, merchant, description, category, amount_cents, is_recurring, created_at"

func scanExpense(row scanner) (core.Expense, error) {
	var e core.Expense
	if err := row.Scan(&e.ID, &e.UserID, &e.Date, &e.Merchant, &e.Description, &e.Category,
		&e.Amount.Cents, &e.IsRecurring, &e.CreatedAt); err != nil {
		return core.Expense{}, notFound(err)
	}
	e.Date = e.Date.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func (s *Store) CreateExpense(ctx context.Context, e *core.Expense) error {
	e.Date = ts(e.Date)
	e.CreatedAt = ts(e.CreatedAt)
	id, err := s.insert(ctx, s.db,
		`INSERT INTO expenses (user_id, date, merchant, description, category, amount_cents, is_recurring, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Date, e.Merchant, e.Description, e.Category, e.Amount.Cents, e.IsRecurring, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	e.ID = id
	slog.DebugContext(ctx, "Expense saved", "component", "storage", "user_id", e.UserID, "expense_id", id)
	return nil
}

// ListExpenses returns expenses dated in [from, to), oldest first. A zero
// bound leaves that side open.
func (s *Store) ListExpenses(ctx context.Context, userID int64, from, to time.Time) ([]core.Expense, error) {
	query := "SELECT " + expenseColumns + " FROM expenses WHERE user_id = ?"
	args := []any{userID}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, ts(from))
	}
	if !to.IsZero() {
		query += " AND date < ?"
		args = append(args, ts(to))
	}
	query += " ORDER BY date, id"

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	return scanExpense(s.queryRow(ctx, s.db,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ? AND user_id = ?", id, userID))
}

func (s *Store) DeleteExpense(ctx context.Context, userID, id int64) error {
	return s.deleteOwned(ctx, "expenses", userID, id)
}

// --- debts ---

func (s *Store) CreateDebt(ctx context.Context, d *core.Debt) error {
	d.CreatedAt = ts(d.CreatedAt)
	id, err := s.insert(ctx, s.db,
		`INSERT INTO debts (user_id, name, balance_cents, interest_rate, minimum_payment_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.UserID, d.Name, d.Balance.Cents, d.InterestRate.StringFixed(2), d.MinimumPayment.Cents, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert debt: %w", err)
	}
	d.ID = id
	return nil
}

func (s *Store) ListDebts(ctx context.Context, userID int64) ([]core.Debt, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT id, user_id, name, balance_cents, interest_rate, minimum_payment_cents, created_at
		 FROM debts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	out := []core.Debt{}
	for rows.Next() {
		var d core.Debt
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Balance.Cents, &d.InterestRate,
			&d.MinimumPayment.Cents, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.CreatedAt = d.CreatedAt.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDebt(ctx context.Context, userID, id int64) error {
	return s.deleteOwned(ctx, "debts", userID, id)
}

// --- savings accounts ---

func (s *Store) CreateSavingsAccount(ctx context.Context, a *core.SavingsAccount) error {
	a.CreatedAt = ts(a.CreatedAt)
	id, err := s.insert(ctx, s.db,
		"INSERT INTO savings_accounts (user_id, name, balance_cents, created_at) VALUES (?, ?, ?, ?)",
		a.UserID, a.Name, a.Balance.Cents, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert savings account: %w", err)
	}
	a.ID = id
	return nil
}

func (s *Store) ListSavingsAccounts(ctx context.Context, userID int64) ([]core.SavingsAccount, error) {
	rows, err := s.query(ctx, s.db,
		"SELECT id, user_id, name, balance_cents, created_at FROM savings_accounts WHERE user_id = ? ORDER BY id",
		userID)
	if err != nil {
		return nil, fmt.Errorf("list savings accounts: %w", err)
	}
	defer rows.Close()

	out := []core.SavingsAccount{}
	for rows.Next() {
		var a core.SavingsAccount
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Balance.Cents, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSavingsAccount(ctx context.Context, userID, id int64) error {
	return s.deleteOwned(ctx, "savings_accounts", userID, id)
}

// --- budgets ---

const budgetColumns = "id, user_id, category, amount_cents, period, created_at"

func scanBudget(row scanner) (core.Budget, error) {
	var b core.Budget
	var period string
	if err := row.Scan(&b.ID, &b.UserID, &b.Category, &b.Amount.Cents, &period, &b.CreatedAt); err != nil {
		return core.Budget{}, notFound(err)
	}
	b.Period = core.Frequency(period)
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

// CreateBudget returns ErrConflict when the category already has a budget.
func (s *Store) CreateBudget(ctx context.Context, b *core.Budget) error {
	b.CreatedAt = ts(b.CreatedAt)
	id, err := s.insert(ctx, s.db,
		"INSERT INTO budgets (user_id, category, amount_cents, period, created_at) VALUES (?, ?, ?, ?, ?)",
		b.UserID, b.Category, b.Amount.Cents, string(b.Period), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert budget: %w", err)
	}
	b.ID = id
	return nil
}

func (s *Store) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	rows, err := s.query(ctx, s.db,
		"SELECT "+budgetColumns+" FROM budgets WHERE user_id = ? ORDER BY category", userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	out := []core.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GetBudgetByCategory(ctx context.Context, userID int64, category string) (core.Budget, error) {
	return scanBudget(s.queryRow(ctx, s.db,
		"SELECT "+budgetColumns+" FROM budgets WHERE user_id = ? AND category = ?", userID, category))
}

func (s *Store) DeleteBudget(ctx context.Context, userID, id int64) error {
	return s.deleteOwned(ctx, "budgets", userID, id)
}

// --- family support ---

func (s *Store) CreateFamilySupport(ctx context.Context, f *core.FamilySupport) error {
	f.CreatedAt = ts(f.CreatedAt)
	id, err := s.insert(ctx, s.db,
		`INSERT INTO family_support (user_id, recipient, relationship, amount_cents, frequency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.UserID, f.Recipient, f.Relationship, f.Amount.Cents, string(f.Frequency), f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert family support: %w", err)
	}
	f.ID = id
	return nil
}

func (s *Store) ListFamilySupport(ctx context.Context, userID int64) ([]core.FamilySupport, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT id, user_id, recipient, relationship, amount_cents, frequency, created_at
		 FROM family_support WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list family support: %w", err)
	}
	defer rows.Close()

	out := []core.FamilySupport{}
	for rows.Next() {
		var f core.FamilySupport
		var freq string
		if err := rows.Scan(&f.ID, &f.UserID, &f.Recipient, &f.Relationship, &f.Amount.Cents, &freq, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Frequency = core.Frequency(freq)
		f.CreatedAt = f.CreatedAt.UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) DeleteFamilySupport(ctx context.Context, userID, id int64) error {
	return s.deleteOwned(ctx, "family_support", userID, id)
}
