package memo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	recordSeparator = ","
	fieldSeparator  = ":"
)

var (
	// ErrMissingItems is returned when the items parameter is absent or blank.
	ErrMissingItems = errors.New("memo: missing items")
	// ErrTooManyItems is returned when the record count exceeds the configured limit.
	ErrTooManyItems = errors.New("memo: too many items")

	errFieldCount = errors.New("expected name:qty:price")
	errBlank      = errors.New("must not be blank")
	errNegative   = errors.New("must not be negative")
	errNotFinite  = errors.New("must be a finite number")
	errOverflow   = errors.New("total is too large")
)

// MalformedLineItemError identifies the record that failed to parse.
type MalformedLineItemError struct {
	Index int
	Raw   string
	Field string
	Err   error
}

func (e *MalformedLineItemError) Error() string {
	return fmt.Sprintf("memo: line item %d (%q): invalid %s: %v", e.Index, e.Raw, e.Field, e.Err)
}

func (e *MalformedLineItemError) Unwrap() error { return e.Err }

// MalformedPaidError is returned when the paid parameter is not a usable amount.
type MalformedPaidError struct {
	Raw string
	Err error
}

func (e *MalformedPaidError) Error() string {
	return fmt.Sprintf("memo: invalid paid amount %q: %v", e.Raw, e.Err)
}

func (e *MalformedPaidError) Unwrap() error { return e.Err }

// ParseItems splits raw into name:qty:price records. Any malformed record
// fails the whole call.
func ParseItems(raw string) ([]LineItem, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissingItems
	}
	records := strings.Split(raw, recordSeparator)
	items := make([]LineItem, 0, len(records))
	for i, record := range records {
		item, err := parseRecord(i, record)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// CheckItemLimit rejects raw before parsing when it holds more than max
// records. A max of zero disables the check.
func CheckItemLimit(raw string, max int) error {
	if max <= 0 || strings.TrimSpace(raw) == "" {
		return nil
	}
	if n := strings.Count(raw, recordSeparator) + 1; n > max {
		return fmt.Errorf("%w: %d records, limit %d", ErrTooManyItems, n, max)
	}
	return nil
}

func parseRecord(index int, record string) (LineItem, error) {
	fail := func(field string, err error) (LineItem, error) {
		return LineItem{}, &MalformedLineItemError{Index: index, Raw: record, Field: field, Err: err}
	}

	fields := strings.Split(record, fieldSeparator)
	if len(fields) != 3 {
		return fail("record", errFieldCount)
	}
	name := strings.TrimSpace(fields[0])
	if name == "" {
		return fail("name", errBlank)
	}

	qty, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return fail("quantity", unwrapNumError(err))
	}
	if qty < 0 {
		return fail("quantity", errNegative)
	}

	price, err := parseAmount(fields[2])
	if err != nil {
		return fail("price", err)
	}
	return LineItem{Name: name, Quantity: qty, UnitPrice: price}, nil
}

// CheckTotals rejects totals that overflowed float64. The error names the
// first record whose line total, or the running grand total up to it, is
// not finite. raw is the items parameter the totals were computed from.
func CheckTotals(raw string, totals Totals) error {
	records := strings.Split(raw, recordSeparator)
	var running float64
	for i, line := range totals.Lines {
		running += line
		if isFinite(line) && isFinite(running) {
			continue
		}
		record := ""
		if i < len(records) {
			record = records[i]
		}
		return &MalformedLineItemError{Index: i, Raw: record, Field: "total", Err: errOverflow}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParsePaid parses the optional paid amount. A blank value yields zero with
// given set to false.
func ParsePaid(raw string) (amount float64, given bool, err error) {
	if strings.TrimSpace(raw) == "" {
		return 0, false, nil
	}
	amount, err = parseAmount(raw)
	if err != nil {
		return 0, true, &MalformedPaidError{Raw: raw, Err: err}
	}
	return amount, true, nil
}

func parseAmount(raw string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, unwrapNumError(err)
	}
	if !isFinite(value) {
		return 0, errNotFinite
	}
	if value < 0 {
		return 0, errNegative
	}
	if value == 0 {
		// normalise -0
		value = 0
	}
	return value, nil
}

// unwrapNumError drops the strconv prefix so messages stay readable.
func unwrapNumError(err error) error {
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return numErr.Err
	}
	return err
}
