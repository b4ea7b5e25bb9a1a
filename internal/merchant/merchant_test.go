package merchant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ikpa/internal/core"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"POS NETFLIX.COM 4432 LAGOS": "netflix.com 4432 lagos",
		"UBER *EATS 12345":           "uber eats",
		"  Spotify   AB  ":           "spotify ab",
		"WEB PURCHASE CANVA# 2025-01": "canva",
		"":                           "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestDefaultMatcher(t *testing.T) {
	m := Default()

	cases := []struct {
		desc         string
		merchant     string
		category     string
		subscription bool
	}{
		{"POS NETFLIX.COM 4432", "Netflix", core.CategoryStreaming, true},
		{"UBER *EATS 12345", "Uber Eats", core.CategoryFood, false},
		{"UBER TRIP LAGOS", "Uber", core.CategoryTransport, false},
		{"Bolt Food order", "Bolt Food", core.CategoryFood, false},
		{"AMAZON PRIME VIDEO", "Amazon Prime", core.CategoryStreaming, true},
		{"amazon marketplace", "Amazon", core.CategoryShopping, false},
		{"APPLE MUSIC subscription", "Apple Music", core.CategoryStreaming, true},
		{"DSTV MULTICHOICE", "DStv", core.CategoryStreaming, true},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, ok := m.Match(tc.desc)
			require.True(t, ok)
			assert.Equal(t, tc.merchant, got.Merchant)
			assert.Equal(t, tc.category, got.Category)
			assert.Equal(t, tc.subscription, got.Subscription)
		})
	}
}

func TestMatchNoResult(t *testing.T) {
	got, ok := Default().Match("MAMA PUT RESTAURANT")
	assert.False(t, ok)
	assert.Equal(t, core.CategoryOther, got.Category)
}

func TestTieBreaks(t *testing.T) {
	m, err := New([]Rule{
		{Merchant: "First", Category: core.CategoryFood, Patterns: []string{"shop"}},
		{Merchant: "Second", Category: core.CategoryShopping, Patterns: []string{"shop"}},
		{Merchant: "Preferred", Category: core.CategoryHealth, Priority: 5, Patterns: []string{"mart"}},
		{Merchant: "Other", Category: core.CategoryFood, Patterns: []string{"mart"}},
	})
	require.NoError(t, err)

	got, _ := m.Match("corner shop")
	assert.Equal(t, "First", got.Merchant, "equal length and priority keeps rule order")

	got, _ = m.Match("supermart")
	assert.Equal(t, "Preferred", got.Merchant, "priority beats rule order")
}

func TestParseRejectsBadRules(t *testing.T) {
	_, err := Parse([]byte("rules:\n  - merchant: X\n    category: nope\n    patterns: [x]\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("rules:\n  - merchant: X\n    category: food\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("rules: ["))
	assert.Error(t, err)
}

func TestLoadDefault(t *testing.T) {
	m, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, m.Rules())
}
