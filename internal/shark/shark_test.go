package shark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ikpa/internal/core"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func charge(merchant string, date time.Time, cents int64) core.Expense {
	return core.Expense{Merchant: merchant, Date: date, Amount: core.Money{Cents: cents}, Category: core.CategoryOther}
}

func find(t *testing.T, r Report, key string) Subscription {
	t.Helper()
	for _, s := range r.Subscriptions {
		if s.Key == key {
			return s
		}
	}
	t.Fatalf("subscription %q not found in %+v", key, r.Subscriptions)
	return Subscription{}
}

func TestAudit_ZombiePriceIncreaseAndDuplicates(t *testing.T) {
	now := day(2025, 6, 15)
	expenses := []core.Expense{
		charge("NETFLIX.COM", day(2025, 5, 1), 440000),
		charge("NETFLIX.COM", day(2025, 3, 1), 440000),
		charge("NETFLIX.COM", day(2025, 4, 1), 440000),
		charge("SPOTIFY P1234", day(2025, 4, 10), 90000),
		charge("SPOTIFY P5678", day(2025, 5, 10), 99900),
		charge("Shoprite Lekki", day(2025, 5, 11), 1500000),
	}

	r := NewAuditor(nil).Audit(expenses, nil, now)
	require.Len(t, r.Subscriptions, 2)

	netflix := r.Subscriptions[0]
	assert.Equal(t, "netflix", netflix.Key)
	assert.Equal(t, Monthly, netflix.Cadence)
	assert.Equal(t, StatusZombie, netflix.Status)
	assert.Equal(t, 3, netflix.ChargeCount)
	assert.Equal(t, day(2025, 3, 1), netflix.FirstCharge)
	assert.Equal(t, int64(5280000), netflix.AnnualCost.Cents)
	assert.Equal(t, int64(440000), netflix.MonthlyCost.Cents)
	assert.True(t, netflix.HasFlag(FlagDuplicateCategory))
	assert.False(t, netflix.HasFlag(FlagStale))

	spotify := find(t, r, "spotify")
	assert.Equal(t, StatusActive, spotify.Status)
	assert.True(t, spotify.HasFlag(FlagPriceIncrease))
	assert.True(t, spotify.HasFlag(FlagDuplicateCategory))
	assert.Equal(t, int64(99900), spotify.MonthlyCost.Cents)

	assert.Equal(t, 1, r.ZombieCount)
	assert.Equal(t, int64(5280000), r.PotentialAnnualSavings.Cents)
	assert.Equal(t, int64(5280000+1198800), r.TotalAnnual.Cents)
	assert.Equal(t, int64(539900), r.TotalMonthly.Cents)
}

func TestAudit_Decisions(t *testing.T) {
	now := day(2025, 6, 15)
	expenses := []core.Expense{
		charge("SHOWMAX", day(2025, 3, 5), 290000),
		charge("SHOWMAX", day(2025, 4, 5), 290000),
		charge("SHOWMAX", day(2025, 5, 5), 290000),
		charge("MULTICHOICE DSTV", day(2025, 3, 1), 2900000),
		charge("MULTICHOICE DSTV", day(2025, 4, 1), 2900000),
		charge("MULTICHOICE DSTV", day(2025, 5, 1), 2900000),
		charge("GYM ACCESS", day(2025, 4, 2), 1500000),
		charge("GYM ACCESS", day(2025, 5, 2), 1500000),
		charge("GYM ACCESS", day(2025, 6, 2), 1500000),
	}
	decisions := map[string]Decision{
		"showmax": {Key: "showmax", Decision: DecisionCancel, DecidedAt: day(2025, 4, 20)},
		"dstv":    {Key: "dstv", Decision: DecisionCancel, DecidedAt: day(2025, 5, 20)},
		"gym":     {Key: "gym", Decision: DecisionKeep, DecidedAt: day(2025, 5, 1)},
	}

	r := NewAuditor(nil).Audit(expenses, decisions, now)

	assert.Equal(t, StatusZombie, find(t, r, "showmax").Status)
	assert.Equal(t, StatusCancelled, find(t, r, "dstv").Status)
	assert.Equal(t, StatusActive, find(t, r, "gym").Status)
	assert.False(t, find(t, r, "dstv").HasFlag(FlagDuplicateCategory), "cancelled subscriptions are not duplicates")

	assert.Equal(t, 1, r.ZombieCount)
	assert.Equal(t, int64(290000*12+1500000*12), r.TotalAnnual.Cents, "cancelled excluded from totals")
}

func TestAudit_Detection(t *testing.T) {
	now := day(2025, 6, 15)

	t.Run("single subscription charge counts as monthly", func(t *testing.T) {
		r := NewAuditor(nil).Audit([]core.Expense{charge("Netflix", day(2025, 6, 1), 440000)}, nil, now)
		require.Len(t, r.Subscriptions, 1)
		assert.Equal(t, Monthly, r.Subscriptions[0].Cadence)
		assert.Equal(t, StatusActive, r.Subscriptions[0].Status)
	})

	t.Run("stale single charge is left out of totals", func(t *testing.T) {
		r := NewAuditor(nil).Audit([]core.Expense{
			charge("Netflix", day(2025, 2, 1), 440000),
			charge("SPOTIFY P1", day(2025, 5, 10), 90000),
			charge("SPOTIFY P2", day(2025, 6, 10), 90000),
		}, nil, now)
		require.Len(t, r.Subscriptions, 2)
		netflix := find(t, r, "netflix")
		assert.True(t, netflix.HasFlag(FlagStale))
		assert.Equal(t, 1, netflix.ChargeCount)
		assert.Equal(t, int64(90000), r.TotalMonthly.Cents)
		assert.Equal(t, int64(90000*12), r.TotalAnnual.Cents)
	})

	t.Run("irregular non-subscription merchant is ignored", func(t *testing.T) {
		r := NewAuditor(nil).Audit([]core.Expense{
			charge("UBER TRIP", day(2025, 6, 1), 350000),
			charge("UBER TRIP", day(2025, 6, 4), 420000),
		}, nil, now)
		assert.Empty(t, r.Subscriptions)
	})

	t.Run("unmatched recurring charges group by description", func(t *testing.T) {
		rent := func(d time.Time) core.Expense {
			e := charge("", d, 25000000)
			e.Description = "Landlord Rent Flat 3"
			e.Category = core.CategoryHousing
			e.IsRecurring = true
			return e
		}
		r := NewAuditor(nil).Audit([]core.Expense{rent(day(2025, 1, 1)), rent(day(2025, 4, 1))}, nil, now)
		require.Len(t, r.Subscriptions, 1)
		s := r.Subscriptions[0]
		assert.Equal(t, "landlord-rent-flat-3", s.Key)
		assert.Equal(t, Quarterly, s.Cadence)
		assert.Equal(t, core.CategoryHousing, s.Category)
		assert.Equal(t, int64(25000000*4), s.AnnualCost.Cents)
	})

	t.Run("weekly and stale", func(t *testing.T) {
		r := NewAuditor(nil).Audit([]core.Expense{
			charge("Chowdeck Plus", day(2025, 4, 1), 100000),
			charge("Chowdeck Plus", day(2025, 4, 8), 100000),
		}, nil, now)
		require.Len(t, r.Subscriptions, 1)
		assert.Equal(t, Weekly, r.Subscriptions[0].Cadence)
		assert.True(t, r.Subscriptions[0].HasFlag(FlagStale))
	})
}

func TestKey(t *testing.T) {
	assert.Equal(t, "apple-music", Key("Apple Music"))
	assert.Equal(t, "microsoft-365", Key("Microsoft 365"))
	assert.Equal(t, "", Key("***"))
}

func TestDecisionValidate(t *testing.T) {
	assert.NoError(t, DecisionCancel.Validate())
	assert.ErrorIs(t, DecisionKind("pause").Validate(), ErrInvalidDecision)
}
