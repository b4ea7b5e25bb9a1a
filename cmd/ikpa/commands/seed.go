package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ikpa/internal/auth"
	"ikpa/internal/cli"
	"ikpa/internal/config"
	"ikpa/internal/core"
	"ikpa/internal/goal"
	"ikpa/internal/merchant"
	"ikpa/internal/storycard"
)

// Subscriptions charged every month so the subscription audit has something
// to find.
var seedSubscriptions = []struct {
	description string
	naira       int64
}{
	{"NETFLIX.COM LAGOS", 4400},
	{"SPOTIFY P2D4F1", 1300},
	{"SHOWMAX SUBSCRIPTION", 2900},
	{"CANVA* PRO", 5500},
}

var seedDescriptions = []string{
	"SHOPRITE LEKKI", "UBER TRIP", "BOLT RIDE", "CHOWDECK ORDER", "MTN AIRTIME",
	"IKEDC PREPAID", "JUMIA ORDER", "GLOVO DELIVERY", "MARKET RUN", "PHARMACY",
}

func seedCmd() *cobra.Command {
	var (
		email    string
		password string
		months   int
		seed     int64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo user with generated financial data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if months < 1 || months > 24 {
				return fmt.Errorf("months must be between 1 and 24")
			}
			cfg := config.Load()
			logger := cli.SetupLogger(cfg)
			ctx := cmd.Context()

			store, err := cli.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			fake := gofakeit.New(seed)
			now := time.Now().UTC()
			naira := func(n int64) core.Money { return core.Money{Cents: n * 100} }

			if email == "" {
				email = strings.ToLower(fake.Email())
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			u := core.User{
				Email:        email,
				Name:         fake.Name(),
				PasswordHash: hash,
				Currency:     core.NGN,
				Country:      "NG",
				CreatedAt:    now,
			}
			if err := store.CreateUser(ctx, &u); err != nil {
				return fmt.Errorf("create user %s: %w", email, err)
			}

			salary := naira(int64(fake.Number(350, 900)) * 1000)
			incomes := []core.Income{
				{Name: fake.Company() + " salary", Amount: salary, Frequency: core.Monthly},
				{Name: "Freelance", Amount: naira(int64(fake.Number(20, 80)) * 1000), Frequency: core.Monthly},
			}
			for i := range incomes {
				incomes[i].UserID, incomes[i].IsActive, incomes[i].CreatedAt = u.ID, true, now
				if err := store.CreateIncome(ctx, &incomes[i]); err != nil {
					return err
				}
			}

			matcher := merchant.Default()
			expenses := 0
			addExpense := func(date time.Time, description string, amount core.Money) error {
				e := core.Expense{UserID: u.ID, Date: date, Description: description, Amount: amount, CreatedAt: now}
				e.Category = core.CategoryOther
				if m, ok := matcher.Match(description); ok {
					e.Merchant, e.Category, e.IsRecurring = m.Merchant, m.Category, m.Subscription
				}
				expenses++
				return store.CreateExpense(ctx, &e)
			}
			for mo := months - 1; mo >= 0; mo-- {
				start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -mo, 0)
				end := start.AddDate(0, 1, 0)
				if end.After(now) {
					end = now
				}
				for _, s := range seedSubscriptions {
					if err := addExpense(start.AddDate(0, 0, 2), s.description, naira(s.naira)); err != nil {
						return err
					}
				}
				n := fake.Number(15, 30)
				for i := 0; i < n; i++ {
					amount := naira(int64(fake.Price(500, 25000)))
					if err := addExpense(fake.DateRange(start, end), fake.RandomString(seedDescriptions), amount); err != nil {
						return err
					}
				}
			}

			budgets := []core.Budget{
				{Category: core.CategoryFood, Amount: naira(80000)},
				{Category: core.CategoryTransport, Amount: naira(40000)},
				{Category: core.CategoryStreaming, Amount: naira(10000)},
			}
			for i := range budgets {
				budgets[i].UserID, budgets[i].Period, budgets[i].CreatedAt = u.ID, core.Monthly, now
				if err := store.CreateBudget(ctx, &budgets[i]); err != nil {
					return err
				}
			}

			debt := core.Debt{
				UserID:         u.ID,
				Name:           "Credit card",
				Balance:        naira(int64(fake.Number(100, 600)) * 1000),
				InterestRate:   decimal.NewFromFloat(fake.Float64Range(18, 36)).Round(1),
				MinimumPayment: naira(15000),
				CreatedAt:      now,
			}
			if err := store.CreateDebt(ctx, &debt); err != nil {
				return err
			}
			savings := core.SavingsAccount{UserID: u.ID, Name: "Emergency savings", Balance: naira(int64(fake.Number(50, 400)) * 1000), CreatedAt: now}
			if err := store.CreateSavingsAccount(ctx, &savings); err != nil {
				return err
			}
			support := core.FamilySupport{
				UserID:       u.ID,
				Recipient:    fake.FirstName(),
				Relationship: fake.RandomString([]string{"mother", "father", "sibling", "cousin"}),
				Amount:       naira(int64(fake.Number(20, 60)) * 1000),
				Frequency:    core.Monthly,
				CreatedAt:    now,
			}
			if err := store.CreateFamilySupport(ctx, &support); err != nil {
				return err
			}

			g := core.Goal{
				UserID:       u.ID,
				Name:         "Emergency fund",
				Category:     "emergency",
				TargetAmount: naira(int64(months) * 150_000),
				TargetDate:   now.AddDate(1, 0, 0),
				Status:       core.GoalActive,
				Priority:     8,
				CreatedAt:    now,
			}
			if err := store.CreateGoal(ctx, &g); err != nil {
				return err
			}
			cards := storycard.NewService(store, store)
			goals := goal.NewService(store, cards.OnMilestone)
			for mo := months - 1; mo >= 0; mo-- {
				if _, err := goals.Contribute(ctx, u.ID, g.ID, naira(int64(fake.Number(40, 90))*1000), now.AddDate(0, -mo, 0)); err != nil {
					return err
				}
			}

			logger.Info("Seeded demo user", "user_id", u.ID, "email", email, "months", months, "expenses", expenses)
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %s (password %q) with %d expenses over %d months\n", email, password, expenses, months)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&email, "email", "", "email of the demo user (random when empty)")
	f.StringVar(&password, "password", "ikpa-demo-pass", "password of the demo user")
	f.IntVar(&months, "months", 3, "months of history to generate")
	f.Int64Var(&seed, "seed", 0, "faker seed (0 picks a random one)")
	return cmd
}
