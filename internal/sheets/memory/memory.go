// Package memory is an in-process LedgerWriter. Sheets are kept as row
// slices, which makes it useful for tests and local runs without Google
// credentials.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ports "ikpa/internal/sheets"
)

type Store struct {
	mu     sync.Mutex
	sheets map[string][][]any
}

var _ ports.LedgerWriter = (*Store)(nil)

func New() *Store {
	return &Store{sheets: map[string][][]any{}}
}

// AppendRows appends rows after the last row of sheet and returns an A1
// range in the same shape the Google client does.
func (s *Store) AppendRows(_ context.Context, sheet string, header []any, rows [][]any) (string, error) {
	sheet = strings.TrimSpace(sheet)
	if sheet == "" {
		return "", fmt.Errorf("sheet name is required")
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("no rows to append")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.sheets[sheet]
	if len(existing) == 0 && len(header) > 0 {
		existing = append(existing, append([]any(nil), header...))
	}
	start := len(existing) + 1
	width := len(header)
	for _, r := range rows {
		existing = append(existing, append([]any(nil), r...))
		width = max(width, len(r))
	}
	s.sheets[sheet] = existing
	return ports.A1Range(sheet, start, start+len(rows)-1, width), nil
}

// Rows returns a copy of the rows in sheet, header included.
func (s *Store) Rows(sheet string) [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, 0, len(s.sheets[sheet]))
	for _, r := range s.sheets[sheet] {
		out = append(out, append([]any(nil), r...))
	}
	return out
}
