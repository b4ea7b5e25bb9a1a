package http

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ikpa/internal/core"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// Views give the core records their public JSON shape.
type (
	userView struct {
		ID        int64         `json:"id"`
		Email     string        `json:"email"`
		Name      string        `json:"name"`
		Currency  core.Currency `json:"currency"`
		Country   string        `json:"country,omitempty"`
		CreatedAt time.Time     `json:"created_at"`
	}

	incomeView struct {
		ID            int64          `json:"id"`
		Name          string         `json:"name"`
		Amount        core.Money     `json:"amount"`
		Frequency     core.Frequency `json:"frequency"`
		MonthlyAmount core.Money     `json:"monthly_amount"`
		IsActive      bool           `json:"is_active"`
		CreatedAt     time.Time      `json:"created_at"`
	}

	expenseView struct {
		ID          int64      `json:"id"`
		Date        string     `json:"date"`
		Merchant    string     `json:"merchant,omitempty"`
		Description string     `json:"description,omitempty"`
		Category    string     `json:"category"`
		Amount      core.Money `json:"amount"`
		IsRecurring bool       `json:"is_recurring"`
		CreatedAt   time.Time  `json:"created_at"`
	}

	debtView struct {
		ID             int64           `json:"id"`
		Name           string          `json:"name"`
		Balance        core.Money      `json:"balance"`
		InterestRate   decimal.Decimal `json:"interest_rate"`
		MinimumPayment core.Money      `json:"minimum_payment"`
		CreatedAt      time.Time       `json:"created_at"`
	}

	savingsView struct {
		ID        int64      `json:"id"`
		Name      string     `json:"name"`
		Balance   core.Money `json:"balance"`
		CreatedAt time.Time  `json:"created_at"`
	}

	budgetView struct {
		ID        int64          `json:"id"`
		Category  string         `json:"category"`
		Amount    core.Money     `json:"amount"`
		Period    core.Frequency `json:"period"`
		CreatedAt time.Time      `json:"created_at"`
	}

	familySupportView struct {
		ID           int64          `json:"id"`
		Recipient    string         `json:"recipient"`
		Relationship string         `json:"relationship,omitempty"`
		Amount       core.Money     `json:"amount"`
		Frequency    core.Frequency `json:"frequency"`
		Monthly      core.Money     `json:"monthly"`
		CreatedAt    time.Time      `json:"created_at"`
	}

	goalView struct {
		ID            int64           `json:"id"`
		Name          string          `json:"name"`
		Category      string          `json:"category,omitempty"`
		TargetAmount  core.Money      `json:"target_amount"`
		CurrentAmount core.Money      `json:"current_amount"`
		TargetDate    string          `json:"target_date"`
		Status        core.GoalStatus `json:"status"`
		Priority      int             `json:"priority"`
		CreatedAt     time.Time       `json:"created_at"`
	}
)

func newUserView(u core.User) userView {
	return userView{ID: u.ID, Email: u.Email, Name: u.Name, Currency: u.Currency, Country: u.Country, CreatedAt: u.CreatedAt}
}

func newIncomeView(i core.Income) incomeView {
	return incomeView{
		ID:            i.ID,
		Name:          i.Name,
		Amount:        i.Amount,
		Frequency:     i.Frequency,
		MonthlyAmount: i.MonthlyAmount(),
		IsActive:      i.IsActive,
		CreatedAt:     i.CreatedAt,
	}
}

func newExpenseView(e core.Expense) expenseView {
	return expenseView{
		ID:          e.ID,
		Date:        e.Date.Format(dateLayout),
		Merchant:    e.Merchant,
		Description: e.Description,
		Category:    e.Category,
		Amount:      e.Amount,
		IsRecurring: e.IsRecurring,
		CreatedAt:   e.CreatedAt,
	}
}

func newDebtView(d core.Debt) debtView {
	return debtView{ID: d.ID, Name: d.Name, Balance: d.Balance, InterestRate: d.InterestRate, MinimumPayment: d.MinimumPayment, CreatedAt: d.CreatedAt}
}

func newSavingsView(a core.SavingsAccount) savingsView {
	return savingsView{ID: a.ID, Name: a.Name, Balance: a.Balance, CreatedAt: a.CreatedAt}
}

func newBudgetView(b core.Budget) budgetView {
	return budgetView{ID: b.ID, Category: b.Category, Amount: b.Amount, Period: b.Period, CreatedAt: b.CreatedAt}
}

func newFamilySupportView(f core.FamilySupport) familySupportView {
	return familySupportView{
		ID:           f.ID,
		Recipient:    f.Recipient,
		Relationship: f.Relationship,
		Amount:       f.Amount,
		Frequency:    f.Frequency,
		Monthly:      f.Frequency.Monthly(f.Amount),
		CreatedAt:    f.CreatedAt,
	}
}

func newGoalView(g core.Goal) goalView {
	return goalView{
		ID:            g.ID,
		Name:          g.Name,
		Category:      g.Category,
		TargetAmount:  g.TargetAmount,
		CurrentAmount: g.CurrentAmount,
		TargetDate:    g.TargetDate.Format(dateLayout),
		Status:        g.Status,
		Priority:      g.Priority,
		CreatedAt:     g.CreatedAt,
	}
}

// mapViews converts a slice of records, never returning nil so empty lists
// encode as [].
func mapViews[T, V any](in []T, f func(T) V) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
