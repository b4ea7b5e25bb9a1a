package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"` // 1-12
	Total      Money            `json:"total"`
	ByCategory []CategoryAmount `json:"by_category"`
}

// SummarizeMonth totals expenses by category for the given month, largest
// category first.
func SummarizeMonth(year, month int, expenses []Expense) MonthOverview {
	var in []Expense
	for _, e := range expenses {
		if e.Date.Year() == year && int(e.Date.Month()) == month {
			in = append(in, e)
		}
	}
	total, byCat := SummarizeCategories(in)
	return MonthOverview{Year: year, Month: month, Total: total, ByCategory: byCat}
}

// SummarizeCategories totals expenses by category, largest first. Ties keep
// first-seen order.
func SummarizeCategories(expenses []Expense) (Money, []CategoryAmount) {
	var total Money
	out := []CategoryAmount{}
	idx := map[string]int{}
	for _, e := range expenses {
		total = total.Add(e.Amount)
		i, ok := idx[e.Category]
		if !ok {
			i = len(out)
			idx[e.Category] = i
			out = append(out, CategoryAmount{Name: e.Category})
		}
		out[i].Amount = out[i].Amount.Add(e.Amount)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Amount.Cents > out[j-1].Amount.Cents; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return total, out
}
