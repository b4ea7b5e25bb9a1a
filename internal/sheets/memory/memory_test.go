package memory

import (
	"context"
	"testing"
)

func TestStoreAppendRows(t *testing.T) {
	s := New()
	header := []any{"Date", "Amount"}

	rng, err := s.AppendRows(context.Background(), "2025 Ledger", header, [][]any{{"2025-03-01", "10.00"}, {"2025-03-02", "5.50"}})
	if err != nil {
		t.Fatalf("AppendRows() error = %v", err)
	}
	if rng != "'2025 Ledger'!A2:B3" {
		t.Errorf("first range = %q", rng)
	}

	rng, err = s.AppendRows(context.Background(), "2025 Ledger", header, [][]any{{"2025-04-01", "1.00"}})
	if err != nil {
		t.Fatalf("AppendRows() error = %v", err)
	}
	if rng != "'2025 Ledger'!A4:B4" {
		t.Errorf("second range = %q", rng)
	}

	rows := s.Rows("2025 Ledger")
	if len(rows) != 4 || rows[0][0] != "Date" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestStoreAppendRowsRejectsEmpty(t *testing.T) {
	s := New()
	if _, err := s.AppendRows(context.Background(), "", nil, [][]any{{"x"}}); err == nil {
		t.Error("expected error for empty sheet name")
	}
	if _, err := s.AppendRows(context.Background(), "Ledger", nil, nil); err == nil {
		t.Error("expected error for no rows")
	}
}
