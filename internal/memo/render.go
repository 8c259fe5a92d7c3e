package memo

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// DateLayout formats the date line, e.g. "2 January 2006, 3:04 PM".
const DateLayout = "2 January 2006, 3:04 PM"

const (
	defaultTitle  = "Invoice"
	defaultFooter = "Thanks for shopping!"

	pageMargin   = 72.0
	lineHeight   = 14.0
	nameWidth    = 16
	qtyWidth     = 6
	priceWidth   = 8
	ruleWidth    = 40
	bodyFontSize = 12
)

// ErrRender wraps every failure reported by the PDF backend.
var ErrRender = errors.New("memo: render failed")

// Renderer lays out an invoice as a single-column PDF memo. The zero value
// renders with the default title and footer in the local time zone.
type Renderer struct {
	Title    string
	Footer   string
	Location *time.Location
	Author   string
}

// Render writes the PDF for inv to w. For identical input, including
// GeneratedAt, the output is byte-identical.
func (r Renderer) Render(w io.Writer, inv Invoice, totals Totals) error {
	pdf := gofpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(inv.GeneratedAt)
	pdf.SetModificationDate(inv.GeneratedAt)
	pdf.SetTitle(r.title(), true)
	pdf.SetCreator("memo-api", true)
	if r.Author != "" {
		pdf.SetAuthor(r.Author, true)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	for _, b := range r.layout(inv, totals) {
		if b.gap {
			pdf.Ln(lineHeight)
			continue
		}
		pdf.SetFont(b.font, "", b.size)
		if b.wrap {
			pdf.MultiCell(0, b.height, tr(b.text), "", b.align, false)
			continue
		}
		pdf.CellFormat(0, b.height, tr(b.text), "", 1, b.align, false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("%w: %w", ErrRender, err)
	}
	return nil
}

// block is one line of the memo in drawing order.
type block struct {
	font   string
	size   float64
	height float64
	align  string
	text   string
	// wrap lets long item rows continue on the next line.
	wrap bool
	gap  bool
}

func (r Renderer) layout(inv Invoice, totals Totals) []block {
	text := func(font string, size, height float64, align, s string) block {
		return block{font: font, size: size, height: height, align: align, text: s}
	}
	mono := func(align, s string) block {
		return text("Courier", bodyFontSize, lineHeight, align, s)
	}
	rule := strings.Repeat("-", ruleWidth)

	blocks := []block{
		text("Helvetica", 18, 22, "C", r.title()),
		text("Helvetica", bodyFontSize, lineHeight+2, "C", "Date: "+r.formatDate(inv.GeneratedAt)),
		{gap: true},
		mono("L", formatRow("Product", "Qty", "Price", "Total")),
		mono("L", rule),
	}
	for i, item := range inv.Items {
		line := item.Total()
		if i < len(totals.Lines) {
			line = totals.Lines[i]
		}
		row := mono("L", formatRow(item.Name, strconv.Itoa(item.Quantity), formatAmount(item.UnitPrice), formatAmount(line)))
		row.wrap = true
		blocks = append(blocks, row)
	}
	blocks = append(blocks,
		mono("L", rule),
		mono("R", "Total: "+formatAmount(totals.GrandTotal)),
	)
	if inv.PaidGiven {
		blocks = append(blocks,
			mono("R", "Paid: "+formatAmount(totals.Paid)),
			mono("R", "Due: "+formatAmount(totals.Due)),
		)
	}
	return append(blocks,
		block{gap: true},
		text("Helvetica", 14, lineHeight+4, "C", r.footer()),
	)
}

func (r Renderer) title() string {
	if strings.TrimSpace(r.Title) == "" {
		return defaultTitle
	}
	return r.Title
}

func (r Renderer) footer() string {
	if strings.TrimSpace(r.Footer) == "" {
		return defaultFooter
	}
	return r.Footer
}

func (r Renderer) formatDate(t time.Time) string {
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// formatRow pads the first three columns to fixed widths. Values longer than
// their column are kept whole and push the rest of the row right.
func formatRow(name, qty, price, total string) string {
	return padRight(name, nameWidth) + " " + padRight(qty, qtyWidth) + " " + padRight(price, priceWidth) + " " + total
}

func padRight(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
