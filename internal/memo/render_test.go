package memo

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var frozen = time.Date(2024, time.March, 5, 14, 7, 0, 0, time.UTC)

func texts(blocks []block) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.gap {
			continue
		}
		out = append(out, b.text)
	}
	return out
}

func TestLayoutWithPaid(t *testing.T) {
	items := []LineItem{{Name: "Pen", Quantity: 2, UnitPrice: 10}, {Name: "Book", Quantity: 1, UnitPrice: 50}}
	inv := Invoice{Items: items, Paid: 60, PaidGiven: true, GeneratedAt: frozen}
	r := Renderer{Location: time.UTC}

	got := texts(r.layout(inv, Compute(items, 60)))
	require.Equal(t, []string{
		"Invoice",
		"Date: 5 March 2024, 2:07 PM",
		"Product          Qty    Price    Total",
		strings.Repeat("-", 40),
		"Pen              2      10.00    20.00",
		"Book             1      50.00    50.00",
		strings.Repeat("-", 40),
		"Total: 70.00",
		"Paid: 60.00",
		"Due: 10.00",
		"Thanks for shopping!",
	}, got)
}

func TestLayoutOmitsPaymentLinesWithoutPaid(t *testing.T) {
	items := []LineItem{{Name: "Pen", Quantity: 2, UnitPrice: 10}}
	inv := Invoice{Items: items, GeneratedAt: frozen}

	got := texts(Renderer{Location: time.UTC}.layout(inv, Compute(items, 0)))
	require.Contains(t, got, "Total: 20.00")
	for _, line := range got {
		require.False(t, strings.HasPrefix(line, "Paid:"))
		require.False(t, strings.HasPrefix(line, "Due:"))
	}
}

func TestLayoutZeroItemsHasNoRows(t *testing.T) {
	blocks := Renderer{}.layout(Invoice{GeneratedAt: frozen}, Compute(nil, 0))
	for _, b := range blocks {
		require.False(t, b.wrap, "unexpected item row %q", b.text)
	}
	require.Contains(t, texts(blocks), "Total: 0.00")
}

func TestLayoutNegativeDueAndCustomText(t *testing.T) {
	items := []LineItem{{Name: "A very long product name", Quantity: 1, UnitPrice: 5}}
	inv := Invoice{Items: items, Paid: 10, PaidGiven: true, GeneratedAt: frozen}
	r := Renderer{Title: "Receipt", Footer: "See you soon", Location: time.FixedZone("WIB", 7*3600)}

	got := texts(r.layout(inv, Compute(items, 10)))
	require.Equal(t, "Receipt", got[0])
	require.Equal(t, "Date: 5 March 2024, 9:07 PM", got[1])
	require.Equal(t, "A very long product name 1      5.00     5.00", got[4])
	require.Contains(t, got, "Due: -5.00")
	require.Equal(t, "See you soon", got[len(got)-1])
}

func TestRenderIsDeterministicWithFrozenClock(t *testing.T) {
	items := []LineItem{{Name: "Pen", Quantity: 2, UnitPrice: 10}, {Name: "Café", Quantity: 1, UnitPrice: 3.5}}
	inv := Invoice{Items: items, Paid: 5, PaidGiven: true, GeneratedAt: frozen}
	totals := Compute(items, 5)
	r := Renderer{Location: time.UTC, Author: "memo-api"}

	var first, second bytes.Buffer
	require.NoError(t, r.Render(&first, inv, totals))
	require.NoError(t, r.Render(&second, inv, totals))
	require.True(t, bytes.HasPrefix(first.Bytes(), []byte("%PDF-")))
	require.Equal(t, first.Bytes(), second.Bytes())

	later := inv
	later.GeneratedAt = frozen.Add(time.Minute)
	var third bytes.Buffer
	require.NoError(t, r.Render(&third, later, totals))
	require.NotEqual(t, first.Bytes(), third.Bytes())
}

func TestRenderZeroItemsProducesDocument(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Renderer{}.Render(&buf, Invoice{GeneratedAt: frozen}, Compute(nil, 0)))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	require.True(t, bytes.Contains(buf.Bytes(), []byte("%%EOF")))
}

func TestRenderManyItemsSpansPages(t *testing.T) {
	items := make([]LineItem, 120)
	for i := range items {
		items[i] = LineItem{Name: "Item", Quantity: 1, UnitPrice: 1}
	}
	var buf bytes.Buffer
	require.NoError(t, Renderer{}.Render(&buf, Invoice{Items: items, GeneratedAt: frozen}, Compute(items, 0)))
	require.True(t, bytes.Contains(buf.Bytes(), []byte("/Count 3")))
}

type brokenWriter struct{ err error }

func (w brokenWriter) Write([]byte) (int, error) { return 0, w.err }

func TestRenderWrapsBackendFailure(t *testing.T) {
	diskFull := errors.New("disk full")
	items := []LineItem{{Name: "Pen", Quantity: 2, UnitPrice: 10}}

	err := Renderer{}.Render(brokenWriter{err: diskFull}, Invoice{Items: items, GeneratedAt: frozen}, Compute(items, 0))
	require.ErrorIs(t, err, ErrRender)
	require.ErrorIs(t, err, diskFull)
}
