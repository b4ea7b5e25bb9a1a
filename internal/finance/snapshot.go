// Package finance computes a user's financial snapshot and cash-flow score.
package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"ikpa/internal/core"
)

// Inputs are the records a snapshot is computed from. Expenses should cover
// at least the three months before Now.
type Inputs struct {
	Incomes       []core.Income
	Expenses      []core.Expense
	Debts         []core.Debt
	Savings       []core.SavingsAccount
	FamilySupport []core.FamilySupport
	Now           time.Time
}

type Snapshot struct {
	MonthlyIncome       core.Money      `json:"monthly_income"`
	MonthlyExpenses     core.Money      `json:"monthly_expenses"`
	MonthlyDebtPayments core.Money      `json:"monthly_debt_payments"`
	MonthlyFamily       core.Money      `json:"monthly_family_support"`
	NetCashFlow         core.Money      `json:"net_cash_flow"`
	SavingsRate         decimal.Decimal `json:"savings_rate"`
	DebtToIncome        decimal.Decimal `json:"debt_to_income"`
	EmergencyFundMonths decimal.Decimal `json:"emergency_fund_months"`
	TotalSavings        core.Money      `json:"total_savings"`
	TotalDebt           core.Money      `json:"total_debt"`
	NetWorth            core.Money      `json:"net_worth"`
	CashFlowScore       int             `json:"cash_flow_score"`
	ComputedAt          time.Time       `json:"computed_at"`
}

// Score weights, summing to 100.
const (
	weightSavingsRate = 30
	weightDebt        = 25
	weightEmergency   = 25
	weightCashFlow    = 20
)

var (
	hundred          = decimal.NewFromInt(100)
	targetSavingRate = decimal.NewFromInt(20) // % for full marks
	maxDebtToIncome  = decimal.NewFromInt(50) // % at which the sub-score is zero
	targetEmergency  = decimal.NewFromInt(6)  // months for full marks
)

// ExpenseWindow is how far back expenses are averaged.
const ExpenseWindow = 3

func clamp01(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return d
}

// ComputeSnapshot normalizes every record to a monthly figure and derives the
// ratios.
func ComputeSnapshot(in Inputs) Snapshot {
	s := Snapshot{ComputedAt: in.Now}

	for _, i := range in.Incomes {
		s.MonthlyIncome = s.MonthlyIncome.Add(i.MonthlyAmount())
	}

	from := in.Now.AddDate(0, -ExpenseWindow, 0)
	var spent core.Money
	for _, e := range in.Expenses {
		if !e.Date.Before(from) && !e.Date.After(in.Now) {
			spent = spent.Add(e.Amount)
		}
	}
	s.MonthlyExpenses = core.NewMoney(spent.Decimal().Div(decimal.NewFromInt(ExpenseWindow)))

	for _, f := range in.FamilySupport {
		s.MonthlyFamily = s.MonthlyFamily.Add(f.Frequency.Monthly(f.Amount))
	}
	s.MonthlyExpenses = s.MonthlyExpenses.Add(s.MonthlyFamily)

	for _, d := range in.Debts {
		s.TotalDebt = s.TotalDebt.Add(d.Balance)
		s.MonthlyDebtPayments = s.MonthlyDebtPayments.Add(d.MinimumPayment)
	}
	for _, a := range in.Savings {
		s.TotalSavings = s.TotalSavings.Add(a.Balance)
	}

	s.NetCashFlow = s.MonthlyIncome.Sub(s.MonthlyExpenses).Sub(s.MonthlyDebtPayments)
	s.NetWorth = s.TotalSavings.Sub(s.TotalDebt)
	s.SavingsRate = ratio(s.NetCashFlow, s.MonthlyIncome)
	s.DebtToIncome = ratio(s.MonthlyDebtPayments, s.MonthlyIncome)

	if s.MonthlyExpenses.Cents > 0 {
		s.EmergencyFundMonths = s.TotalSavings.Decimal().Div(s.MonthlyExpenses.Decimal()).Round(1)
	} else if s.TotalSavings.Cents > 0 {
		s.EmergencyFundMonths = targetEmergency
	}

	s.CashFlowScore = score(s)
	return s
}

// ratio is part/whole as a percentage, allowing a negative part.
func ratio(part, whole core.Money) decimal.Decimal {
	if whole.Cents <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part.Cents).Div(decimal.NewFromInt(whole.Cents)).Mul(hundred).Round(2)
}

func score(s Snapshot) int {
	savings := clamp01(s.SavingsRate.Div(targetSavingRate))

	debt := decimal.NewFromInt(1).Sub(clamp01(s.DebtToIncome.Div(maxDebtToIncome)))
	if s.MonthlyIncome.Cents <= 0 && s.MonthlyDebtPayments.Cents > 0 {
		debt = decimal.Zero
	}

	emergency := clamp01(s.EmergencyFundMonths.Div(targetEmergency))

	flow := decimal.Zero
	switch {
	case s.NetCashFlow.Cents > 0:
		flow = decimal.NewFromInt(1)
	case s.NetCashFlow.Cents == 0 && s.MonthlyIncome.Cents > 0:
		flow = decimal.NewFromFloat(0.5)
	}

	total := savings.Mul(decimal.NewFromInt(weightSavingsRate)).
		Add(debt.Mul(decimal.NewFromInt(weightDebt))).
		Add(emergency.Mul(decimal.NewFromInt(weightEmergency))).
		Add(flow.Mul(decimal.NewFromInt(weightCashFlow)))
	return int(total.Round(0).IntPart())
}
