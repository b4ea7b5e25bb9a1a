package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"ikpa/internal/apperr"
	"ikpa/internal/core"
	"ikpa/internal/ubuntu"
)

// validation turns a record's Validate error into a 400.
func validation(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Validation(err.Error())
}

// handleDelete removes one of the user's records. what names the record in
// the 404 message.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, what string,
	del func(ctx context.Context, userID, id int64) error, after func(userID int64)) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = del(r.Context(), uid, id)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, r, apperr.NotFound(what).WithDetail("id", id))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if after != nil {
		after(uid)
	}

	slog.InfoContext(r.Context(), "Record deleted",
		"component", "http",
		"operation", "delete",
		"record", what,
		"id", id,
		"user_id", uid)
	w.WriteHeader(http.StatusNoContent)
}

type incomeRequest struct {
	Name      string         `json:"name"`
	Amount    core.Money     `json:"amount"`
	Frequency core.Frequency `json:"frequency"`
	IsActive  *bool          `json:"is_active"`
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	in := core.Income{
		UserID:    uid,
		Name:      sanitizeInput(req.Name),
		Amount:    req.Amount,
		Frequency: req.Frequency,
		IsActive:  req.IsActive == nil || *req.IsActive,
		CreatedAt: s.now(),
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, validation(err))
		return
	}
	if err := s.Store.CreateIncome(r.Context(), &in); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(uid, false)
	writeJSON(w, http.StatusCreated, newIncomeView(in))
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.Store.ListIncomes(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incomes": mapViews(list, newIncomeView)})
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "income", s.Store.DeleteIncome, func(uid int64) { s.invalidate(uid, false) })
}

type expenseRequest struct {
	Date        string     `json:"date"`
	Merchant    string     `json:"merchant"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Amount      core.Money `json:"amount"`
	IsRecurring bool       `json:"is_recurring"`
}

// categorize fills in the merchant and category from the rule table when the
// client left them out.
func (s *Server) categorize(e *core.Expense) {
	if s.Merchants != nil {
		if m, ok := s.Merchants.Match(strings.TrimSpace(e.Merchant + " " + e.Description)); ok {
			if e.Category == "" {
				e.Category = m.Category
			}
			if e.Merchant == "" {
				e.Merchant = m.Merchant
			}
			e.IsRecurring = e.IsRecurring || m.Subscription
		}
	}
	if e.Category == "" {
		e.Category = core.CategoryOther
	}
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := s.now()
	if date.IsZero() {
		date = now
	}

	e := core.Expense{
		UserID:      uid,
		Date:        date,
		Merchant:    sanitizeInput(req.Merchant),
		Description: sanitizeInput(req.Description),
		Category:    strings.ToLower(sanitizeInput(req.Category)),
		Amount:      req.Amount,
		IsRecurring: req.IsRecurring,
		CreatedAt:   now,
	}
	s.categorize(&e)
	if err := e.Validate(); err != nil {
		writeError(w, r, validation(err))
		return
	}
	if err := s.Store.CreateExpense(r.Context(), &e); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(uid, true)

	slog.InfoContext(r.Context(), "Expense created",
		"component", "http",
		"operation", "create",
		"user_id", uid,
		"category", e.Category,
		"amount_cents", e.Amount.Cents)
	writeJSON(w, http.StatusCreated, newExpenseView(e))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, to := params.Bounds()
	list, err := s.Store.ListExpenses(r.Context(), uid, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"overview": core.SummarizeMonth(params.Year, params.Month, list),
		"expenses": mapViews(list, newExpenseView),
	})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "expense", s.Store.DeleteExpense, func(uid int64) { s.invalidate(uid, true) })
}

type debtRequest struct {
	Name           string          `json:"name"`
	Balance        core.Money      `json:"balance"`
	InterestRate   decimal.Decimal `json:"interest_rate"`
	MinimumPayment core.Money      `json:"minimum_payment"`
}

func (s *Server) handleCreateDebt(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req debtRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	d := core.Debt{
		UserID:         uid,
		Name:           sanitizeInput(req.Name),
		Balance:        req.Balance,
		InterestRate:   req.InterestRate,
		MinimumPayment: req.MinimumPayment,
		CreatedAt:      s.now(),
	}
	if err := d.Validate(); err != nil {
		writeError(w, r, validation(err))
		return
	}
	if err := s.Store.CreateDebt(r.Context(), &d); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(uid, false)
	writeJSON(w, http.StatusCreated, newDebtView(d))
}

func (s *Server) handleListDebts(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.Store.ListDebts(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"debts": mapViews(list, newDebtView)})
}

func (s *Server) handleDeleteDebt(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "debt", s.Store.DeleteDebt, func(uid int64) { s.invalidate(uid, false) })
}

type savingsRequest struct {
	Name    string     `json:"name"`
	Balance core.Money `json:"balance"`
}

func (s *Server) handleCreateSavings(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req savingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	a := core.SavingsAccount{UserID: uid, Name: sanitizeInput(req.Name), Balance: req.Balance, CreatedAt: s.now()}
	if err := a.Validate(); err != nil {
		writeError(w, r, validation(err))
		return
	}
	if err := s.Store.CreateSavingsAccount(r.Context(), &a); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(uid, false)
	writeJSON(w, http.StatusCreated, newSavingsView(a))
}

func (s *Server) handleListSavings(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.Store.ListSavingsAccounts(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"savings": mapViews(list, newSavingsView)})
}

func (s *Server) handleDeleteSavings(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "savings account", s.Store.DeleteSavingsAccount, func(uid int64) { s.invalidate(uid, false) })
}

type budgetRequest struct {
	Category string         `json:"category"`
	Amount   core.Money     `json:"amount"`
	Period   core.Frequency `json:"period"`
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Period == "" {
		req.Period = core.Monthly
	}

	b := core.Budget{
		UserID:    uid,
		Category:  strings.ToLower(sanitizeInput(req.Category)),
		Amount:    req.Amount,
		Period:    req.Period,
		CreatedAt: s.now(),
	}
	if err := b.Validate(); err != nil {
		writeError(w, r, validation(err))
		return
	}
	err = s.Store.CreateBudget(r.Context(), &b)
	if errors.Is(err, core.ErrConflict) {
		writeError(w, r, apperr.Conflict("a budget for this category already exists").WithDetail("category", b.Category))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBudgetView(b))
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.Store.ListBudgets(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"budgets": mapViews(list, newBudgetView)})
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "budget", s.Store.DeleteBudget, nil)
}

type familySupportRequest struct {
	Recipient    string         `json:"recipient"`
	Relationship string         `json:"relationship"`
	Amount       core.Money     `json:"amount"`
	Frequency    core.Frequency `json:"frequency"`
}

func (s *Server) handleCreateFamilySupport(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req familySupportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	f := core.FamilySupport{
		UserID:       uid,
		Recipient:    sanitizeInput(req.Recipient),
		Relationship: sanitizeInput(req.Relationship),
		Amount:       req.Amount,
		Frequency:    req.Frequency,
		CreatedAt:    s.now(),
	}
	if err := f.Validate(); err != nil {
		writeError(w, r, validation(err))
		return
	}
	if err := s.Store.CreateFamilySupport(r.Context(), &f); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(uid, false)
	writeJSON(w, http.StatusCreated, newFamilySupportView(f))
}

func (s *Server) handleListFamilySupport(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.Store.ListFamilySupport(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"family_support": mapViews(list, newFamilySupportView)})
}

func (s *Server) handleDeleteFamilySupport(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "family support", s.Store.DeleteFamilySupport, func(uid int64) { s.invalidate(uid, false) })
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.Snapshots.Get(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUbuntuAssessment(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.Snapshots.Get(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	supports, err := s.Store.ListFamilySupport(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ubuntu.Assess(snap.MonthlyIncome, supports))
}

type emergencyRequest struct {
	GoalID int64      `json:"goal_id"`
	Amount core.Money `json:"amount"`
}

func (s *Server) handleUbuntuEmergency(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req emergencyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var g core.Goal
	if req.GoalID > 0 {
		g, err = s.Store.GetGoal(r.Context(), uid, req.GoalID)
		if errors.Is(err, core.ErrNotFound) {
			err = apperr.GoalNotFound(req.GoalID)
		}
	} else {
		g, err = s.Store.TopActiveGoal(r.Context(), uid)
		if errors.Is(err, core.ErrNotFound) {
			err = apperr.NotFound("active goal")
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	snap, err := s.Snapshots.Get(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	savings := snap.NetCashFlow
	if savings.IsNegative() {
		savings = core.Money{}
	}

	adj, err := ubuntu.EmergencyAdjustment(g, req.Amount, savings)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adj)
}
