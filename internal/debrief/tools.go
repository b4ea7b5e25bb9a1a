package debrief

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ikpa/internal/commitment"
	"ikpa/internal/core"
	"ikpa/internal/goal"
	"ikpa/internal/llm"
)

const (
	ToolGetContract          = "get_contract"
	ToolGetGoalProgress      = "get_goal_progress"
	ToolGetSpendingSummary   = "get_spending_summary"
	ToolGetCommitmentHistory = "get_commitment_history"
)

var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

// Tools are offered to the model on every turn. Every tool is bound to the
// contract being debriefed, so inputs carry no identifiers.
var Tools = []llm.Tool{
	{Name: ToolGetContract, Description: "Get the commitment contract being debriefed: stake, deadline and status.", InputSchema: emptySchema},
	{Name: ToolGetGoalProgress, Description: "Get progress towards the goal the commitment backs.", InputSchema: emptySchema},
	{Name: ToolGetSpendingSummary, Description: "Get spending by category during the commitment window.", InputSchema: emptySchema},
	{Name: ToolGetCommitmentHistory, Description: "Get counts of the user's past commitments by outcome.", InputSchema: emptySchema},
}

// facts is everything the tools can reveal, loaded lazily.
type facts struct {
	contract commitment.Contract
	progress *goal.Progress
	spending *spendingSummary
	history  *commitment.History
}

type spendingSummary struct {
	From       time.Time             `json:"from"`
	To         time.Time             `json:"to"`
	Total      core.Money            `json:"total"`
	ByCategory []core.CategoryAmount `json:"by_category"`
}

func (a *Agent) loadProgress(ctx context.Context, f *facts) error {
	if f.progress != nil {
		return nil
	}
	p, err := a.goals.Progress(ctx, f.contract.UserID, f.contract.GoalID)
	if err != nil {
		return err
	}
	f.progress = &p
	return nil
}

func (a *Agent) loadSpending(ctx context.Context, f *facts) error {
	if f.spending != nil {
		return nil
	}
	to := f.contract.Deadline
	if now := a.now(); now.Before(to) {
		to = now
	}
	expenses, err := a.expenses.ListExpenses(ctx, f.contract.UserID, f.contract.CreatedAt, to)
	if err != nil {
		return err
	}
	total, byCat := core.SummarizeCategories(expenses)
	f.spending = &spendingSummary{From: f.contract.CreatedAt, To: to, Total: total, ByCategory: byCat}
	return nil
}

func (a *Agent) loadHistory(ctx context.Context, f *facts) error {
	if f.history != nil {
		return nil
	}
	h, err := a.contracts.History(ctx, f.contract.UserID)
	if err != nil {
		return err
	}
	f.history = &h
	return nil
}

func (a *Agent) runTool(ctx context.Context, f *facts, name string) (string, error) {
	var v any
	switch name {
	case ToolGetContract:
		v = f.contract
	case ToolGetGoalProgress:
		if err := a.loadProgress(ctx, f); err != nil {
			return "", err
		}
		v = f.progress
	case ToolGetSpendingSummary:
		if err := a.loadSpending(ctx, f); err != nil {
			return "", err
		}
		v = f.spending
	case ToolGetCommitmentHistory:
		if err := a.loadHistory(ctx, f); err != nil {
			return "", err
		}
		v = f.history
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
