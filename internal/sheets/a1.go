package sheets

import (
	"fmt"
	"strings"
)

// ColumnLetter converts a 1-based column index to A1 notation (1 → A, 27 → AA).
func ColumnLetter(col int) string {
	if col < 1 {
		return ""
	}
	var out []byte
	for col > 0 {
		col--
		out = append([]byte{byte('A' + col%26)}, out...)
		col /= 26
	}
	return string(out)
}

// A1Range returns "<sheet>!A<first>:<col><last>" for width columns. Sheet
// names with spaces are quoted.
func A1Range(sheet string, first, last, width int) string {
	return fmt.Sprintf("%s!A%d:%s%d", QuoteSheet(sheet), first, ColumnLetter(max(width, 1)), last)
}

// QuoteSheet wraps a sheet name in single quotes when A1 notation needs it.
func QuoteSheet(sheet string) string {
	for _, r := range sheet {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
		}
	}
	return sheet
}
