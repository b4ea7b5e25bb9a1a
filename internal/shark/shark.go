// Package shark audits recurring charges to surface subscriptions the user
// may have forgotten about.
package shark

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ikpa/internal/core"
	"ikpa/internal/merchant"
)

type Cadence string

const (
	Weekly    Cadence = "weekly"
	Monthly   Cadence = "monthly"
	Quarterly Cadence = "quarterly"
	Annual    Cadence = "annual"
)

type cadenceSpec struct {
	cadence  Cadence
	min, max float64 // median gap in days, inclusive
	days     int     // nominal length
	perYear  int64
}

var cadences = []cadenceSpec{
	{Weekly, 5, 9, 7, 52},
	{Monthly, 25, 35, 30, 12},
	{Quarterly, 80, 100, 91, 4},
	{Annual, 330, 400, 365, 1},
}

func specFor(c Cadence) cadenceSpec {
	for _, s := range cadences {
		if s.cadence == c {
			return s
		}
	}
	return cadences[1]
}

// Days returns the nominal cycle length.
func (c Cadence) Days() int { return specFor(c).days }

type Status string

const (
	StatusActive    Status = "active"
	StatusZombie    Status = "zombie"
	StatusCancelled Status = "cancelled"
)

const (
	FlagPriceIncrease     = "price_increase"
	FlagDuplicateCategory = "duplicate_category"
	FlagStale             = "stale"
)

type DecisionKind string

const (
	DecisionKeep        DecisionKind = "keep"
	DecisionCancel      DecisionKind = "cancel"
	DecisionReviewLater DecisionKind = "review_later"
)

var ErrInvalidDecision = errors.New("decision must be keep, cancel or review_later")

func (d DecisionKind) Validate() error {
	switch d {
	case DecisionKeep, DecisionCancel, DecisionReviewLater:
		return nil
	}
	return ErrInvalidDecision
}

// Decision is what the user chose to do with a subscription.
type Decision struct {
	UserID    int64
	Key       string
	Decision  DecisionKind
	DecidedAt time.Time
}

type Subscription struct {
	Key         string     `json:"key"`
	Merchant    string     `json:"merchant"`
	Category    string     `json:"category"`
	Cadence     Cadence    `json:"cadence"`
	LastAmount  core.Money `json:"last_amount"`
	MonthlyCost core.Money `json:"monthly_cost"`
	AnnualCost  core.Money `json:"annual_cost"`
	ChargeCount int        `json:"charge_count"`
	FirstCharge time.Time  `json:"first_charge"`
	LastCharge  time.Time  `json:"last_charge"`
	Status      Status     `json:"status"`
	Flags       []string   `json:"flags"`
}

func (s Subscription) HasFlag(flag string) bool {
	for _, f := range s.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

type Report struct {
	Subscriptions          []Subscription `json:"subscriptions"`
	TotalMonthly           core.Money     `json:"total_monthly"`
	TotalAnnual            core.Money     `json:"total_annual"`
	ZombieCount            int            `json:"zombie_count"`
	PotentialAnnualSavings core.Money     `json:"potential_annual_savings"`
	AuditedAt              time.Time      `json:"audited_at"`
}

// Auditor groups charges by merchant and classifies each group.
type Auditor struct {
	matcher *merchant.Matcher
}

func NewAuditor(m *merchant.Matcher) *Auditor {
	if m == nil {
		m = merchant.Default()
	}
	return &Auditor{matcher: m}
}

type group struct {
	key          string
	merchant     string
	category     string
	subscription bool
	charges      []core.Expense
}

// Key turns a merchant name into the URL-safe subscription key.
func Key(name string) string {
	name = merchant.Normalize(name)
	var b strings.Builder
	dash := false
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func (a *Auditor) group(expenses []core.Expense) []*group {
	byKey := map[string]*group{}
	var order []*group
	for _, e := range expenses {
		text := e.Merchant
		if text == "" {
			text = e.Description
		}
		var g *group
		if m, ok := a.matcher.Match(text); ok {
			key := Key(m.Merchant)
			if g = byKey[key]; g == nil {
				g = &group{key: key, merchant: m.Merchant, category: m.Category, subscription: m.Subscription}
			}
		} else if e.IsRecurring {
			key := Key(text)
			if key == "" {
				continue
			}
			if g = byKey[key]; g == nil {
				g = &group{key: key, merchant: strings.TrimSpace(text), category: e.Category}
			}
		} else {
			continue
		}
		if _, seen := byKey[g.key]; !seen {
			byKey[g.key] = g
			order = append(order, g)
		}
		g.charges = append(g.charges, e)
	}
	return order
}

func medianGapDays(charges []core.Expense) float64 {
	gaps := make([]float64, 0, len(charges)-1)
	for i := 1; i < len(charges); i++ {
		gaps = append(gaps, charges[i].Date.Sub(charges[i-1].Date).Hours()/24)
	}
	sort.Float64s(gaps)
	n := len(gaps)
	if n%2 == 1 {
		return gaps[n/2]
	}
	return (gaps[n/2-1] + gaps[n/2]) / 2
}

func detectCadence(g *group) (Cadence, bool) {
	if len(g.charges) == 1 {
		return Monthly, g.subscription
	}
	gap := medianGapDays(g.charges)
	for _, s := range cadences {
		if gap >= s.min && gap <= s.max {
			return s.cadence, true
		}
	}
	return "", false
}

// Audit detects subscriptions in expenses and classifies them against the
// user's decisions, keyed by subscription key.
func (a *Auditor) Audit(expenses []core.Expense, decisions map[string]Decision, now time.Time) Report {
	report := Report{AuditedAt: now, Subscriptions: []Subscription{}}

	for _, g := range a.group(expenses) {
		sort.SliceStable(g.charges, func(i, j int) bool { return g.charges[i].Date.Before(g.charges[j].Date) })
		cadence, ok := detectCadence(g)
		if !ok {
			continue
		}
		spec := specFor(cadence)
		n := len(g.charges)
		last := g.charges[n-1]

		annual := core.Money{Cents: last.Amount.Cents * spec.perYear}
		sub := Subscription{
			Key:         g.key,
			Merchant:    g.merchant,
			Category:    g.category,
			Cadence:     cadence,
			LastAmount:  last.Amount,
			AnnualCost:  annual,
			MonthlyCost: core.NewMoney(annual.Decimal().Div(decimal.NewFromInt(12))),
			ChargeCount: n,
			FirstCharge: g.charges[0].Date,
			LastCharge:  last.Date,
			Flags:       []string{},
		}
		sub.Status = classify(g.charges, decisions[g.key])

		if n >= 2 {
			prev := g.charges[n-2].Amount.Decimal()
			if last.Amount.Decimal().GreaterThan(prev.Mul(decimal.RequireFromString("1.05"))) {
				sub.Flags = append(sub.Flags, FlagPriceIncrease)
			}
		}
		if now.Sub(last.Date) > time.Duration(2*spec.days)*24*time.Hour {
			sub.Flags = append(sub.Flags, FlagStale)
		}
		report.Subscriptions = append(report.Subscriptions, sub)
	}

	flagDuplicates(report.Subscriptions)

	for _, s := range report.Subscriptions {
		if s.Status == StatusCancelled {
			continue
		}
		// A lone charge that never repeated is listed but not billed.
		if s.ChargeCount == 1 && s.HasFlag(FlagStale) {
			continue
		}
		report.TotalMonthly = report.TotalMonthly.Add(s.MonthlyCost)
		report.TotalAnnual = report.TotalAnnual.Add(s.AnnualCost)
		if s.Status == StatusZombie {
			report.ZombieCount++
			report.PotentialAnnualSavings = report.PotentialAnnualSavings.Add(s.AnnualCost)
		}
	}

	sort.SliceStable(report.Subscriptions, func(i, j int) bool {
		a, b := report.Subscriptions[i], report.Subscriptions[j]
		if a.AnnualCost.Cents != b.AnnualCost.Cents {
			return a.AnnualCost.Cents > b.AnnualCost.Cents
		}
		return a.Key < b.Key
	})
	return report
}

// classify applies the decision rules. Without usage data a subscription that
// has billed the same amount for three or more cycles and was never reviewed
// is treated as forgotten.
func classify(charges []core.Expense, d Decision) Status {
	switch d.Decision {
	case DecisionCancel:
		for _, c := range charges {
			if c.Date.After(d.DecidedAt) {
				return StatusZombie
			}
		}
		return StatusCancelled
	case DecisionKeep:
		return StatusActive
	}

	if len(charges) < 3 {
		return StatusActive
	}
	first := charges[0].Amount.Cents
	for _, c := range charges[1:] {
		if c.Amount.Cents != first {
			return StatusActive
		}
	}
	return StatusZombie
}

func flagDuplicates(subs []Subscription) {
	counts := map[string]int{}
	eligible := func(s Subscription) bool {
		return (s.Category == core.CategoryStreaming || s.Category == core.CategorySoftware) &&
			(s.Status == StatusActive || s.Status == StatusZombie)
	}
	for _, s := range subs {
		if eligible(s) {
			counts[s.Category]++
		}
	}
	for i := range subs {
		if eligible(subs[i]) && counts[subs[i].Category] > 1 {
			subs[i].Flags = append(subs[i].Flags, FlagDuplicateCategory)
		}
	}
}
