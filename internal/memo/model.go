package memo

import "time"

// LineItem is one invoice row: a labelled quantity at a unit price.
type LineItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// Total returns Quantity * UnitPrice without rounding.
func (li LineItem) Total() float64 {
	return float64(li.Quantity) * li.UnitPrice
}

// Invoice is the per-request input to the renderer.
type Invoice struct {
	Items []LineItem
	Paid  float64
	// PaidGiven records whether the caller supplied a paid amount; the
	// renderer prints the Paid and Due lines only when it is set.
	PaidGiven   bool
	GeneratedAt time.Time
}

// Totals holds the computed amounts for an invoice. Due may be negative.
type Totals struct {
	Lines      []float64 `json:"lines"`
	GrandTotal float64   `json:"grandTotal"`
	Paid       float64   `json:"paid"`
	Due        float64   `json:"due"`
}
