// Package ubuntu assesses family financial support against income.
package ubuntu

import (
	"github.com/shopspring/decimal"

	"ikpa/internal/core"
)

type Level string

const (
	LevelHealthy  Level = "healthy"
	LevelModerate Level = "moderate"
	LevelElevated Level = "elevated"
	LevelCritical Level = "critical"
)

var (
	moderateAt = decimal.NewFromInt(10)
	elevatedAt = decimal.NewFromInt(20)
	criticalAt = decimal.NewFromInt(35)
)

func LevelFor(ratio decimal.Decimal) Level {
	switch {
	case ratio.GreaterThanOrEqual(criticalAt):
		return LevelCritical
	case ratio.GreaterThanOrEqual(elevatedAt):
		return LevelElevated
	case ratio.GreaterThanOrEqual(moderateAt):
		return LevelModerate
	}
	return LevelHealthy
}

var messages = map[Level]string{
	LevelHealthy:  "Ubuntu: I am because we are. You're supporting the people who matter while keeping your own goals strong.",
	LevelModerate: "Ubuntu: I am because we are. Your support for family is a real part of your plan, and your goals still have room to grow alongside it.",
	LevelElevated: "Ubuntu: I am because we are. Caring for family is a big share of your income right now. Planning it openly helps you keep giving without putting your own future on hold.",
	LevelCritical: "Ubuntu: I am because we are. You're carrying a lot for your family. Let's make sure you're cared for too, so you can keep showing up for them over the long run.",
}

type Recipient struct {
	Recipient    string     `json:"recipient"`
	Relationship string     `json:"relationship"`
	Monthly      core.Money `json:"monthly"`
}

type Assessment struct {
	MonthlyIncome   core.Money      `json:"monthly_income"`
	MonthlySupport  core.Money      `json:"monthly_support"`
	DependencyRatio decimal.Decimal `json:"dependency_ratio"`
	Level           Level           `json:"level"`
	Message         string          `json:"message"`
	Recipients      []Recipient     `json:"recipients"`
}

// Assess normalizes every support commitment to a monthly amount and rates
// the share of income it takes.
func Assess(incomeMonthly core.Money, supports []core.FamilySupport) Assessment {
	a := Assessment{MonthlyIncome: incomeMonthly, Recipients: make([]Recipient, 0, len(supports))}
	for _, s := range supports {
		monthly := s.Frequency.Monthly(s.Amount)
		a.MonthlySupport = a.MonthlySupport.Add(monthly)
		a.Recipients = append(a.Recipients, Recipient{Recipient: s.Recipient, Relationship: s.Relationship, Monthly: monthly})
	}
	a.DependencyRatio = core.Percent(a.MonthlySupport, incomeMonthly)
	if incomeMonthly.Cents <= 0 && a.MonthlySupport.Cents > 0 {
		a.DependencyRatio = decimal.NewFromInt(100)
	}
	a.Level = LevelFor(a.DependencyRatio)
	a.Message = messages[a.Level]
	return a
}

type OptionKind string

const (
	OptionPause   OptionKind = "temporary_pause"
	OptionReduced OptionKind = "reduced_contribution"
)

// Option is one way to absorb an emergency. DurationMonths is how long the
// option runs and MonthlyContribution is what still goes to the goal.
type Option struct {
	Kind                OptionKind `json:"kind"`
	Description         string     `json:"description"`
	DurationMonths      int        `json:"duration_months"`
	MonthlyContribution core.Money `json:"monthly_contribution"`
	ShiftMonths         int        `json:"shift_months"`
}

type Adjustment struct {
	GoalID          int64      `json:"goal_id"`
	EmergencyAmount core.Money `json:"emergency_amount"`
	ShiftMonths     int        `json:"shift_months"`
	NewTargetDate   string     `json:"new_target_date"`
	Options         []Option   `json:"options"`
	Message         string     `json:"message"`
}

// reducedShare is the part of normal savings kept going under the reduced
// contribution option.
var reducedShare = decimal.RequireFromString("0.5")

func ceilMonths(amount, perMonth decimal.Decimal) int {
	if !perMonth.IsPositive() {
		return 0
	}
	return int(amount.Div(perMonth).Ceil().IntPart())
}

// EmergencyAdjustment works out how a family emergency paid from savings
// moves a goal, and the two ways to absorb it.
func EmergencyAdjustment(g core.Goal, emergency, monthlySavings core.Money) (Adjustment, error) {
	if err := emergency.Validate(); err != nil {
		return Adjustment{}, err
	}
	adj := Adjustment{
		GoalID:          g.ID,
		EmergencyAmount: emergency,
		Message:         "Ubuntu: I am because we are. Showing up for family in a hard moment is part of your plan, not a detour from it.",
	}

	savings := monthlySavings.Decimal()
	if !savings.IsPositive() {
		adj.ShiftMonths = -1
		adj.Options = []Option{}
		return adj, nil
	}

	adj.ShiftMonths = ceilMonths(emergency.Decimal(), savings)
	if !g.TargetDate.IsZero() {
		adj.NewTargetDate = g.TargetDate.AddDate(0, adj.ShiftMonths, 0).Format("2006-01-02")
	}

	reduced := monthlySavings.MulDecimal(reducedShare)
	redirected := savings.Sub(reduced.Decimal())
	adj.Options = []Option{
		{
			Kind:                OptionPause,
			Description:         "Pause goal contributions and send that money to the emergency until it's covered.",
			DurationMonths:      adj.ShiftMonths,
			MonthlyContribution: core.Money{},
			ShiftMonths:         adj.ShiftMonths,
		},
		{
			Kind:                OptionReduced,
			Description:         "Keep half of your usual contribution going and use the rest for the emergency.",
			DurationMonths:      ceilMonths(emergency.Decimal(), redirected),
			MonthlyContribution: reduced,
			ShiftMonths:         adj.ShiftMonths,
		},
	}
	return adj, nil
}
