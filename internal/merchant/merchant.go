// Package merchant maps raw bank-statement descriptions to a merchant and a
// spending category using a prioritized substring rule table.
package merchant

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"ikpa/internal/core"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule maps one or more patterns to a merchant.
type Rule struct {
	Merchant     string   `yaml:"merchant"`
	Category     string   `yaml:"category"`
	Subscription bool     `yaml:"subscription"`
	Priority     int      `yaml:"priority"`
	Patterns     []string `yaml:"patterns"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Match is the result of a lookup.
type Match struct {
	Merchant     string
	Category     string
	Subscription bool
	Pattern      string
}

type compiledPattern struct {
	pattern string
	rule    int
}

// Matcher performs merchant lookups. It is immutable after construction.
type Matcher struct {
	rules    []Rule
	patterns []compiledPattern
}

// Default returns a matcher over the embedded rule table.
func Default() *Matcher {
	m, err := Parse(defaultRules)
	if err != nil {
		panic("merchant: invalid embedded rules: " + err.Error())
	}
	return m
}

// Load reads rules from path, or returns the default table when path is
// empty.
func Load(path string) (*Matcher, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read merchant rules: %w", err)
	}
	return Parse(data)
}

// Parse builds a matcher from a YAML rule document.
func Parse(data []byte) (*Matcher, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse merchant rules: %w", err)
	}
	return New(f.Rules)
}

// New validates rules and builds a matcher.
func New(rules []Rule) (*Matcher, error) {
	m := &Matcher{rules: rules}
	for i, r := range rules {
		if strings.TrimSpace(r.Merchant) == "" {
			return nil, fmt.Errorf("rule %d: merchant is required", i)
		}
		if !core.IsKnownCategory(r.Category) {
			return nil, fmt.Errorf("rule %d (%s): unknown category %q", i, r.Merchant, r.Category)
		}
		if len(r.Patterns) == 0 {
			return nil, fmt.Errorf("rule %d (%s): at least one pattern is required", i, r.Merchant)
		}
		for _, p := range r.Patterns {
			p = Normalize(p)
			if p == "" {
				return nil, fmt.Errorf("rule %d (%s): empty pattern", i, r.Merchant)
			}
			m.patterns = append(m.patterns, compiledPattern{pattern: p, rule: i})
		}
	}
	return m, nil
}

var (
	processorNoise = regexp.MustCompile(`\b(pos|web|purchase|payment|trf|transfer|card|debit|ref|ussd)\b`)
	trailingRef    = regexp.MustCompile(`[#*]?\s*[0-9][0-9\-/]{3,}\s*$`)
	nonWord        = regexp.MustCompile(`[^a-z0-9.&/\- ]+`)
	spaces         = regexp.MustCompile(`\s+`)
)

// Normalize lower-cases s and strips processor noise such as "POS", "*" and
// trailing reference numbers.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "*", " ")
	s = nonWord.ReplaceAllString(s, " ")
	for {
		trimmed := trailingRef.ReplaceAllString(strings.TrimSpace(s), "")
		if trimmed == strings.TrimSpace(s) {
			break
		}
		s = trimmed
	}
	s = processorNoise.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// Match looks up description. The longest matching pattern wins; ties are
// broken by rule priority and then by rule order.
func (m *Matcher) Match(description string) (Match, bool) {
	text := Normalize(description)
	if text == "" {
		return Match{Category: core.CategoryOther}, false
	}

	best := -1
	for i, p := range m.patterns {
		if !strings.Contains(text, p.pattern) {
			continue
		}
		if best < 0 || m.better(p, m.patterns[best]) {
			best = i
		}
	}
	if best < 0 {
		return Match{Category: core.CategoryOther}, false
	}

	p := m.patterns[best]
	r := m.rules[p.rule]
	return Match{
		Merchant:     r.Merchant,
		Category:     r.Category,
		Subscription: r.Subscription,
		Pattern:      p.pattern,
	}, true
}

func (m *Matcher) better(a, b compiledPattern) bool {
	if len(a.pattern) != len(b.pattern) {
		return len(a.pattern) > len(b.pattern)
	}
	pa, pb := m.rules[a.rule].Priority, m.rules[b.rule].Priority
	if pa != pb {
		return pa > pb
	}
	return a.rule < b.rule
}

// Rules returns a copy of the rule table.
func (m *Matcher) Rules() []Rule {
	return append([]Rule(nil), m.rules...)
}
