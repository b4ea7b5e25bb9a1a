package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency describes how often an income, support payment or charge recurs.
type Frequency string

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Annually  Frequency = "annually"
	OneTime   Frequency = "one_time"
)

var monthlyFactors = map[Frequency]decimal.Decimal{
	Daily:     decimal.RequireFromString("30.4167"),
	Weekly:    decimal.RequireFromString("4.3333"),
	Biweekly:  decimal.RequireFromString("2.1667"),
	Monthly:   decimal.NewFromInt(1),
	Quarterly: decimal.RequireFromString("0.3333"),
	Annually:  decimal.RequireFromString("0.0833"),
	OneTime:   decimal.Zero,
}

// IsValid reports whether f is a known frequency.
func (f Frequency) IsValid() bool {
	_, ok := monthlyFactors[f]
	return ok
}

// MonthlyFactor converts one occurrence into a monthly equivalent.
func (f Frequency) MonthlyFactor() decimal.Decimal {
	return monthlyFactors[f]
}

// Monthly normalizes an amount paid at frequency f to a monthly amount.
func (f Frequency) Monthly(m Money) Money {
	return m.MulDecimal(f.MonthlyFactor())
}

// Expense categories understood by budgets, the merchant table and GPS.
const (
	CategoryFood          = "food"
	CategoryTransport     = "transport"
	CategoryHousing       = "housing"
	CategoryUtilities     = "utilities"
	CategoryEntertainment = "entertainment"
	CategoryShopping      = "shopping"
	CategoryHealth        = "health"
	CategoryEducation     = "education"
	CategoryFamily        = "family"
	CategorySubscriptions = "subscriptions"
	CategorySoftware      = "software"
	CategoryStreaming     = "streaming"
	CategoryTelecom       = "telecom"
	CategoryOther         = "other"
)

var categories = map[string]struct{}{
	CategoryFood: {}, CategoryTransport: {}, CategoryHousing: {}, CategoryUtilities: {},
	CategoryEntertainment: {}, CategoryShopping: {}, CategoryHealth: {}, CategoryEducation: {},
	CategoryFamily: {}, CategorySubscriptions: {}, CategorySoftware: {}, CategoryStreaming: {},
	CategoryTelecom: {}, CategoryOther: {},
}

// IsKnownCategory reports whether c is one of the expense categories.
func IsKnownCategory(c string) bool {
	_, ok := categories[c]
	return ok
}

type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalPaused    GoalStatus = "paused"
	GoalAbandoned GoalStatus = "abandoned"
)

type (
	User struct {
		ID           int64
		Email        string
		Name         string
		PasswordHash string
		Currency     Currency
		Country      string
		CreatedAt    time.Time
	}

	Income struct {
		ID        int64
		UserID    int64
		Name      string
		Amount    Money
		Frequency Frequency
		IsActive  bool
		CreatedAt time.Time
	}

	Expense struct {
		ID          int64
		UserID      int64
		Date        time.Time
		Merchant    string
		Description string
		Category    string
		Amount      Money
		IsRecurring bool
		CreatedAt   time.Time
	}

	Debt struct {
		ID             int64
		UserID         int64
		Name           string
		Balance        Money
		InterestRate   decimal.Decimal // annual percentage, e.g. 24.5
		MinimumPayment Money
		CreatedAt      time.Time
	}

	SavingsAccount struct {
		ID        int64
		UserID    int64
		Name      string
		Balance   Money
		CreatedAt time.Time
	}

	Goal struct {
		ID            int64
		UserID        int64
		Name          string
		Category      string
		TargetAmount  Money
		CurrentAmount Money
		TargetDate    time.Time
		Status        GoalStatus
		Priority      int
		CreatedAt     time.Time
	}

	// Contribution is a deposit towards a goal.
	Contribution struct {
		ID        int64
		GoalID    int64
		Amount    Money
		Date      time.Time
		CreatedAt time.Time
	}

	Budget struct {
		ID        int64
		UserID    int64
		Category  string
		Amount    Money
		Period    Frequency // monthly or weekly
		CreatedAt time.Time
	}

	FamilySupport struct {
		ID           int64
		UserID       int64
		Recipient    string
		Relationship string
		Amount       Money
		Frequency    Frequency
		CreatedAt    time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyName        = errors.New("name must not be empty")
	ErrNameTooLong      = errors.New("name too long (max 100 characters)")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrInvalidCurrency  = errors.New("invalid currency")
	ErrInvalidDate      = errors.New("invalid date")
	ErrNegativeBalance  = errors.New("balance must not be negative")

	// ErrNotFound and ErrConflict are returned by stores.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if len([]rune(name)) > 100 {
		return ErrNameTooLong
	}
	return nil
}

// ValidateEmail checks for a single RFC 5322 address.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

func (u User) Validate() error {
	if err := ValidateEmail(u.Email); err != nil {
		return err
	}
	if err := validateName(u.Name); err != nil {
		return err
	}
	if !u.Currency.IsValid() {
		return ErrInvalidCurrency
	}
	return nil
}

func (i Income) Validate() error {
	if err := validateName(i.Name); err != nil {
		return err
	}
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	if !i.Frequency.IsValid() {
		return ErrInvalidFrequency
	}
	return nil
}

// MonthlyAmount normalizes the income to a monthly figure.
func (i Income) MonthlyAmount() Money {
	if !i.IsActive {
		return Money{}
	}
	return i.Frequency.Monthly(i.Amount)
}

func (e Expense) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if len(strings.TrimSpace(e.Description)) == 0 && len(strings.TrimSpace(e.Merchant)) == 0 {
		return errors.New("merchant or description is required")
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !IsKnownCategory(e.Category) {
		return ErrInvalidCategory
	}
	return nil
}

func (d Debt) Validate() error {
	if err := validateName(d.Name); err != nil {
		return err
	}
	if d.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	if d.InterestRate.IsNegative() || d.InterestRate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("interest rate must be between 0 and 100")
	}
	if d.MinimumPayment.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (s SavingsAccount) Validate() error {
	if err := validateName(s.Name); err != nil {
		return err
	}
	if s.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	return nil
}

func (g Goal) Validate() error {
	if err := validateName(g.Name); err != nil {
		return err
	}
	if err := g.TargetAmount.Validate(); err != nil {
		return err
	}
	if g.CurrentAmount.IsNegative() {
		return ErrNegativeBalance
	}
	if g.TargetDate.IsZero() {
		return ErrInvalidDate
	}
	created := g.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if !g.TargetDate.After(created) {
		return errors.New("target date must be after creation date")
	}
	if g.Priority < 0 || g.Priority > 10 {
		return errors.New("priority must be between 0 and 10")
	}
	return nil
}

// IsReached reports whether the goal's current amount covers its target.
func (g Goal) IsReached() bool {
	return g.CurrentAmount.Cents >= g.TargetAmount.Cents
}

func (b Budget) Validate() error {
	if !IsKnownCategory(b.Category) {
		return ErrInvalidCategory
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if b.Period != Monthly && b.Period != Weekly {
		return errors.New("budget period must be monthly or weekly")
	}
	return nil
}

// PeriodBounds returns the [start, end) window of the budget period that
// contains now. Weeks start on Monday.
func (b Budget) PeriodBounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	if b.Period == Weekly {
		offset := (int(now.Weekday()) + 6) % 7
		start := time.Date(now.Year(), now.Month(), now.Day()-offset, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 7)
	}
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func (f FamilySupport) Validate() error {
	if err := validateName(f.Recipient); err != nil {
		return err
	}
	if err := f.Amount.Validate(); err != nil {
		return err
	}
	if !f.Frequency.IsValid() {
		return ErrInvalidFrequency
	}
	return nil
}
