package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ports "ikpa/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// Ensure interface conformance
var _ ports.LedgerWriter = (*Client)(nil)

// Credentials selects a service account. JSON wins over File.
type Credentials struct {
	JSON string
	File string
}

func (c Credentials) load() ([]byte, error) {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return []byte(c.JSON), nil
	case strings.TrimSpace(c.File) != "":
		data, err := os.ReadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, spreadsheetID string, creds Credentials) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	credentialsJSON, err := creds.load()
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created",
		"component", "sheets",
		"credentials_size", len(credentialsJSON))
	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// AppendRows writes rows after the last non-empty row of column A, creating
// the sheet and its header when needed.
func (c *Client) AppendRows(ctx context.Context, sheet string, header []any, rows [][]any) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(rows) == 0 {
		return "", errors.New("no rows to append")
	}

	if err := c.ensureSheet(ctx, sheet); err != nil {
		return "", err
	}

	quoted := ports.QuoteSheet(sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quoted+"!A:A").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get sheet dimensions for %s: %w", sheet, err)
	}
	used := lastUsedRow(resp.Values)

	var values [][]any
	if used == 0 && len(header) > 0 {
		values = append(values, header)
	}
	values = append(values, rows...)

	first := used + 1
	width := maxWidth(values)
	rng := ports.A1Range(sheet, first, first+len(values)-1, width)

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}

	dataFirst := first + len(values) - len(rows)
	return ports.A1Range(sheet, dataFirst, first+len(values)-1, width), nil
}

// ensureSheet adds the sheet tab when the spreadsheet does not have it yet.
func (c *Client) ensureSheet(ctx context.Context, sheet string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	if hasSheet(ss, sheet) {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	slog.InfoContext(ctx, "Created ledger sheet", "component", "sheets", "sheet", sheet)
	return nil
}

func hasSheet(ss *gsheet.Spreadsheet, title string) bool {
	if ss == nil {
		return false
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return true
		}
	}
	return false
}

// lastUsedRow returns the 1-based index of the last row with a value in its
// first cell, or 0 for an empty column.
func lastUsedRow(values [][]any) int {
	for i := len(values) - 1; i >= 0; i-- {
		if len(values[i]) > 0 && strings.TrimSpace(fmt.Sprint(values[i][0])) != "" {
			return i + 1
		}
	}
	return 0
}

func maxWidth(values [][]any) int {
	w := 0
	for _, r := range values {
		w = max(w, len(r))
	}
	return w
}
