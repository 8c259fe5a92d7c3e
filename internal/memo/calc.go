package memo

// Compute derives per-line totals, the grand total and the amount due.
// Amounts are summed in input order and never rounded or floored.
func Compute(items []LineItem, paid float64) Totals {
	totals := Totals{
		Lines: make([]float64, len(items)),
		Paid:  paid,
	}
	for i, item := range items {
		line := item.Total()
		totals.Lines[i] = line
		totals.GrandTotal += line
	}
	totals.Due = totals.GrandTotal - paid
	return totals
}
