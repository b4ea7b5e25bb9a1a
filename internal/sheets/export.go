// Package sheets exports a user's monthly ledger to a spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ikpa/internal/apperr"
	"ikpa/internal/core"
)

// LedgerHeader is the first row of every ledger sheet.
var LedgerHeader = []any{"Date", "Merchant", "Description", "Category", "Amount"}

// Result describes one export.
type Result struct {
	Sheet string     `json:"sheet"`
	Range string     `json:"range,omitempty"`
	Rows  int        `json:"rows"`
	Total core.Money `json:"total"`
}

type Exporter struct {
	writer   LedgerWriter
	expenses ExpenseSource
}

func NewExporter(writer LedgerWriter, expenses ExpenseSource) *Exporter {
	return &Exporter{writer: writer, expenses: expenses}
}

// SheetName returns the ledger sheet for a year, e.g. "2025 Ledger".
func SheetName(year int) string {
	return fmt.Sprintf("%d Ledger", year)
}

// ExportMonth appends the user's expenses for year/month to the ledger sheet.
// A month without expenses writes nothing.
func (e *Exporter) ExportMonth(ctx context.Context, userID int64, year, month int) (Result, error) {
	if month < 1 || month > 12 {
		return Result{}, apperr.Validation("month must be between 1 and 12").WithDetail("month", month)
	}
	if year < 2000 || year > 2100 {
		return Result{}, apperr.Validation("year out of range").WithDetail("year", year)
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	expenses, err := e.expenses.ListExpenses(ctx, userID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return Result{}, fmt.Errorf("list expenses: %w", err)
	}

	res := Result{Sheet: SheetName(year), Rows: len(expenses)}
	if len(expenses) == 0 {
		slog.InfoContext(ctx, "No expenses to export", "component", "sheets", "user_id", userID, "year", year, "month", month)
		return res, nil
	}

	rows := make([][]any, 0, len(expenses))
	for _, x := range expenses {
		rows = append(rows, ledgerRow(x))
		res.Total = res.Total.Add(x.Amount)
	}

	rng, err := e.writer.AppendRows(ctx, res.Sheet, LedgerHeader, rows)
	if err != nil {
		return Result{}, fmt.Errorf("append ledger rows: %w", err)
	}
	res.Range = rng

	slog.InfoContext(ctx, "Exported ledger",
		"component", "sheets",
		"user_id", userID,
		"year", year,
		"month", month,
		"rows", res.Rows,
		"sheets_range", rng)
	return res, nil
}

func ledgerRow(x core.Expense) []any {
	return []any{
		x.Date.UTC().Format("2006-01-02"),
		x.Merchant,
		x.Description,
		x.Category,
		x.Amount.Decimal().StringFixed(2),
	}
}
