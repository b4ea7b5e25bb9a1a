// Package debrief runs the commitment debrief agent: a bounded tool-calling
// loop over the LLM with a deterministic fallback.
package debrief

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ikpa/internal/commitment"
	"ikpa/internal/core"
	"ikpa/internal/goal"
	"ikpa/internal/llm"
	"ikpa/internal/safety"
)

// MaxTurns bounds the number of model calls per debrief.
const MaxTurns = 5

const (
	SourceLLM      = "llm"
	SourceFallback = "fallback"
)

type Debrief struct {
	ContractID     int64      `json:"contract_id"`
	Summary        string     `json:"summary"`
	WhatWorked     []string   `json:"what_worked"`
	Obstacles      []string   `json:"obstacles"`
	NextSteps      []string   `json:"next_steps"`
	SuggestedStake core.Money `json:"suggested_stake"`
	Source         string     `json:"source"`
	SafetyScore    float64    `json:"safety_score"`
	GeneratedAt    time.Time  `json:"generated_at"`
}

// Text is everything in the debrief a user reads.
func (d Debrief) Text() string {
	parts := append([]string{d.Summary}, d.WhatWorked...)
	parts = append(parts, d.Obstacles...)
	parts = append(parts, d.NextSteps...)
	return strings.Join(parts, "\n")
}

type ContractSource interface {
	Get(ctx context.Context, userID, id int64) (commitment.Contract, error)
	History(ctx context.Context, userID int64) (commitment.History, error)
}

type GoalSource interface {
	Progress(ctx context.Context, userID, goalID int64) (goal.Progress, error)
}

type ExpenseSource interface {
	ListExpenses(ctx context.Context, userID int64, from, to time.Time) ([]core.Expense, error)
}

type Agent struct {
	llm       llm.Messenger
	contracts ContractSource
	goals     GoalSource
	expenses  ExpenseSource
	currency  core.Currency
	now       func() time.Time
}

// NewAgent builds an agent. A nil messenger always produces the fallback.
func NewAgent(m llm.Messenger, contracts ContractSource, goals GoalSource, expenses ExpenseSource) *Agent {
	return &Agent{llm: m, contracts: contracts, goals: goals, expenses: expenses, currency: core.NGN, now: time.Now}
}

const systemPrompt = `You are Ikpa's commitment coach. Review how a savings commitment went using the tools provided.
Be warm and specific and never judgmental. Do not recommend loans, investments or risky products.
When you are done, reply with only a JSON object:
{"summary": string, "what_worked": [string], "obstacles": [string], "next_steps": [string], "suggested_stake": number}`

// Debrief reviews one of the user's contracts.
func (a *Agent) Debrief(ctx context.Context, userID, contractID int64) (Debrief, error) {
	c, err := a.contracts.Get(ctx, userID, contractID)
	if err != nil {
		return Debrief{}, err
	}
	f := &facts{contract: c}

	if a.llm == nil {
		return a.fallback(ctx, f, "llm not configured"), nil
	}

	d, reason := a.converse(ctx, f)
	if reason != "" {
		return a.fallback(ctx, f, reason), nil
	}
	return d, nil
}

// converse runs the tool loop. A non-empty reason means the fallback must be
// used.
func (a *Agent) converse(ctx context.Context, f *facts) (Debrief, string) {
	messages := []llm.Message{{
		Role: llm.RoleUser,
		Content: []llm.ContentBlock{llm.TextBlock(fmt.Sprintf(
			"Please debrief my commitment #%d. Its status is %s.", f.contract.ID, f.contract.Status))},
	}}

	for turn := 1; turn <= MaxTurns; turn++ {
		resp, err := a.llm.CreateMessage(ctx, llm.Request{System: systemPrompt, Messages: messages, Tools: Tools})
		if err != nil {
			slog.WarnContext(ctx, "Debrief LLM call failed", "component", "debrief", "turn", turn, "error", err)
			return Debrief{}, "llm unavailable"
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})

		uses := resp.ToolUses()
		if len(uses) == 0 {
			return a.finish(ctx, f, resp.Text())
		}

		results := make([]llm.ContentBlock, 0, len(uses))
		for _, u := range uses {
			out, err := a.runTool(ctx, f, u.Name)
			if err != nil {
				slog.WarnContext(ctx, "Debrief tool failed", "component", "debrief", "tool", u.Name, "error", err)
				results = append(results, llm.ToolResultBlock(u.ID, err.Error(), true))
				continue
			}
			results = append(results, llm.ToolResultBlock(u.ID, out, false))
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: results})
	}
	return Debrief{}, "turn limit reached"
}

func (a *Agent) finish(ctx context.Context, f *facts, text string) (Debrief, string) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return Debrief{}, "no json in reply"
	}
	var d Debrief
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Debrief{}, "invalid json in reply"
	}
	if strings.TrimSpace(d.Summary) == "" {
		return Debrief{}, "empty summary"
	}
	if d.SuggestedStake.IsNegative() {
		d.SuggestedStake = core.Money{}
	}

	res := safety.Evaluate(d.Text())
	if !res.Safe {
		slog.WarnContext(ctx, "Debrief failed safety check",
			"component", "debrief",
			"contract_id", f.contract.ID,
			"score", res.Score,
			"violations", len(res.Violations))
		return Debrief{}, "unsafe reply"
	}

	d.ContractID = f.contract.ID
	d.Source = SourceLLM
	d.SafetyScore = res.Score
	d.WhatWorked = nonNil(d.WhatWorked)
	d.Obstacles = nonNil(d.Obstacles)
	d.NextSteps = nonNil(d.NextSteps)
	return d, ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// fallback builds a debrief from whatever data loads.
func (a *Agent) fallback(ctx context.Context, f *facts, reason string) Debrief {
	slog.InfoContext(ctx, "Using fallback debrief", "component", "debrief", "contract_id", f.contract.ID, "reason", reason)

	c := f.contract
	money := func(m core.Money) string { return core.FormatMoney(m, a.currency) }
	d := Debrief{ContractID: c.ID, Source: SourceFallback, WhatWorked: []string{}, Obstacles: []string{}, NextSteps: []string{}}

	pct := "some"
	if a.loadProgress(ctx, f) == nil {
		pct = f.progress.PercentComplete.StringFixed(0) + "%"
	}
	switch c.Status {
	case commitment.StatusSucceeded:
		d.Summary = fmt.Sprintf("You kept this commitment and reached %s of your goal. That follow-through is worth celebrating.", pct)
	case commitment.StatusFailed:
		d.Summary = fmt.Sprintf("This commitment closed at %s of your goal. Each round shows what helps you save, and the next one can build on it.", pct)
	case commitment.StatusCancelled:
		d.Summary = fmt.Sprintf("You stepped back from this commitment at %s of your goal. Your progress still counts.", pct)
	default:
		d.Summary = fmt.Sprintf("This commitment is underway at %s of your goal.", pct)
	}

	if f.progress != nil {
		p := f.progress
		if p.AverageMonthly.Cents > 0 {
			d.WhatWorked = append(d.WhatWorked, fmt.Sprintf("Regular contributions averaging %s a month.", money(p.AverageMonthly)))
		}
		if p.Status == goal.StatusBehind || p.Status == goal.StatusOverdue {
			d.Obstacles = append(d.Obstacles, "Contributions ran behind the pace the deadline needed.")
		}
		if p.RequiredMonthly.Cents > 0 {
			d.NextSteps = append(d.NextSteps, fmt.Sprintf("Set up an automatic transfer of %s each month.", money(p.RequiredMonthly)))
		}
	}
	if a.loadHistory(ctx, f) == nil && f.history.Succeeded > 0 {
		d.WhatWorked = append(d.WhatWorked, fmt.Sprintf("You've kept %d commitment(s) so far.", f.history.Succeeded))
	}
	if a.loadSpending(ctx, f) == nil && len(f.spending.ByCategory) > 0 {
		top := f.spending.ByCategory[0]
		d.Obstacles = append(d.Obstacles, fmt.Sprintf("%s was your largest spending category at %s.", top.Name, money(top.Amount)))
		d.NextSteps = append(d.NextSteps, fmt.Sprintf("Check in on %s spending once a week.", top.Name))
	}
	if len(d.NextSteps) == 0 {
		d.NextSteps = append(d.NextSteps, "Pick one small, automatic contribution and start it this week.")
	}

	d.SuggestedStake = suggestStake(c)
	d.SafetyScore = safety.Evaluate(d.Text()).Score
	return d
}

// suggestStake raises the stake after a win and eases it after a miss.
func suggestStake(c commitment.Contract) core.Money {
	if c.StakeType == commitment.StakeSocial {
		return core.Money{}
	}
	switch c.Status {
	case commitment.StatusSucceeded:
		return c.StakeAmount.MulDecimal(decimal.RequireFromString("1.1"))
	case commitment.StatusFailed:
		return c.StakeAmount.MulDecimal(decimal.RequireFromString("0.5"))
	}
	return c.StakeAmount
}
