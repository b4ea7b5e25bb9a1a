package sheets

import (
	"context"
	"time"

	"ikpa/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter appends rows to a named sheet. The header is written first
	// when the sheet is empty. It returns the A1 range of the appended rows.
	LedgerWriter interface {
		AppendRows(ctx context.Context, sheet string, header []any, rows [][]any) (string, error)
	}

	// ExpenseSource lists a user's expenses in [from, to).
	ExpenseSource interface {
		ListExpenses(ctx context.Context, userID int64, from, to time.Time) ([]core.Expense, error)
	}
)
