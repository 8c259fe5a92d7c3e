package memo_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/memo-api/internal/memo"
)

func TestParseItemsPreservesOrder(t *testing.T) {
	items, err := memo.ParseItems("Pen:2:10,Book:1:50, Ink Pot : 3 : 2.5 ")
	require.NoError(t, err)
	require.Equal(t, []memo.LineItem{
		{Name: "Pen", Quantity: 2, UnitPrice: 10},
		{Name: "Book", Quantity: 1, UnitPrice: 50},
		{Name: "Ink Pot", Quantity: 3, UnitPrice: 2.5},
	}, items)
}

func TestParseItemsMissing(t *testing.T) {
	for _, raw := range []string{"", "   "} {
		_, err := memo.ParseItems(raw)
		require.ErrorIs(t, err, memo.ErrMissingItems)
	}
}

func TestParseItemsRejectsMalformedRecords(t *testing.T) {
	cases := []struct {
		raw   string
		index int
		field string
	}{
		{raw: "Pen:2", index: 0, field: "record"},
		{raw: "Pen:2:10:extra", index: 0, field: "record"},
		{raw: "Pen:2:10,", index: 1, field: "record"},
		{raw: "Pen:2:10,:1:5", index: 1, field: "name"},
		{raw: "Pen:two:10", index: 0, field: "quantity"},
		{raw: "Pen:1.5:10", index: 0, field: "quantity"},
		{raw: "Pen:-1:10", index: 0, field: "quantity"},
		{raw: "Pen:2:ten", index: 0, field: "price"},
		{raw: "Pen:2:NaN", index: 0, field: "price"},
		{raw: "Pen:2:Inf", index: 0, field: "price"},
		{raw: "Pen:2:-0.5", index: 0, field: "price"},
		{raw: "Pen:2:1e400", index: 0, field: "price"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			_, err := memo.ParseItems(tc.raw)
			var itemErr *memo.MalformedLineItemError
			require.True(t, errors.As(err, &itemErr), "got %v", err)
			require.Equal(t, tc.index, itemErr.Index)
			require.Equal(t, tc.field, itemErr.Field)
			require.Contains(t, err.Error(), itemErr.Raw)
		})
	}
}

func TestParseItemsAcceptsZeroQuantityAndPrice(t *testing.T) {
	items, err := memo.ParseItems("Sample:0:0,Gift:1:-0")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 0, items[0].Quantity)
	require.Equal(t, "0.00", formatTwo(items[1].UnitPrice))
}

func TestParsePaid(t *testing.T) {
	amount, given, err := memo.ParsePaid("")
	require.NoError(t, err)
	require.False(t, given)
	require.Zero(t, amount)

	amount, given, err = memo.ParsePaid(" 60.5 ")
	require.NoError(t, err)
	require.True(t, given)
	require.Equal(t, 60.5, amount)

	for _, raw := range []string{"abc", "-1", "NaN", "+Inf"} {
		_, _, err := memo.ParsePaid(raw)
		var paidErr *memo.MalformedPaidError
		require.Truef(t, errors.As(err, &paidErr), "raw %q", raw)
		require.Equal(t, raw, paidErr.Raw)
	}
}

func TestCheckItemLimit(t *testing.T) {
	require.NoError(t, memo.CheckItemLimit("a:1:1,b:1:1", 2))
	require.NoError(t, memo.CheckItemLimit("a:1:1,b:1:1,c:1:1", 0))
	require.ErrorIs(t, memo.CheckItemLimit("a:1:1,b:1:1,c:1:1", 2), memo.ErrTooManyItems)
}

func TestCheckTotalsRejectsOverflow(t *testing.T) {
	cases := []struct {
		raw   string
		index int
	}{
		{raw: "Gold:2:1e308", index: 0},
		{raw: "Pen:1:1,Gold:1:1.7e308,Silver:1:1.7e308", index: 2},
	}
	for _, tc := range cases {
		items, err := memo.ParseItems(tc.raw)
		require.NoError(t, err, tc.raw)

		err = memo.CheckTotals(tc.raw, memo.Compute(items, 0))
		var itemErr *memo.MalformedLineItemError
		require.True(t, errors.As(err, &itemErr), tc.raw)
		require.Equal(t, tc.index, itemErr.Index, tc.raw)
		require.Equal(t, "total", itemErr.Field)
	}

	items, err := memo.ParseItems("Pen:2:10")
	require.NoError(t, err)
	require.NoError(t, memo.CheckTotals("Pen:2:10", memo.Compute(items, 0)))
}
