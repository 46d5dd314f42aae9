package domain

import (
	"fmt"
	"strings"
)

// Well-known columns of the trade sheet. Presence of any of them is optional.
const (
	ColumnShape   = "Shape"
	ColumnSize    = "Size (mm)"
	ColumnSieve   = "Sieve"
	ColumnPointer = "Pointer"
	ColumnColor   = "Color"
	ColumnQuality = "Quality"
	ColumnSeller  = "Seller"
	ColumnBuyer   = "Buyer"
	ColumnDate    = "Date"
	ColumnPrice   = "Price"
	ColumnTerms   = "Terms"
	ColumnAmt     = "Amt"
	ColumnProfit  = "Profit"
)

// TextFilterColumns are the columns offered as free text filters, in display order.
var TextFilterColumns = []string{
	ColumnShape,
	ColumnSize,
	ColumnSieve,
	ColumnPointer,
	ColumnColor,
	ColumnQuality,
	ColumnSeller,
	ColumnBuyer,
	ColumnDate,
}

// SummaryColumns are the numeric columns totalled in dashboard summaries.
var SummaryColumns = []string{ColumnPrice, ColumnAmt, ColumnProfit}

// View names a column subset of the table.
type View string

const (
	ViewAll    View = "all"
	ViewBuyer  View = "buyer"
	ViewSeller View = "seller"
)

// columnSpan is a half-open [from, to) range of column positions.
type columnSpan struct {
	from int
	to   int
}

var viewSpans = map[View][]columnSpan{
	ViewBuyer:  {{0, 14}},
	ViewSeller: {{0, 7}, {14, 20}},
}

// ParseView normalizes a view name. Empty input selects all columns.
func ParseView(raw string) (View, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.TrimSuffix(value, " data")
	switch value {
	case "", "all", "a":
		return ViewAll, nil
	case "buyer":
		return ViewBuyer, nil
	case "seller":
		return ViewSeller, nil
	default:
		return "", fmt.Errorf("unknown view %q", raw)
	}
}

// Columns returns the column positions visible in the view for a table of the given width.
func (v View) Columns(width int) []int {
	spans, ok := viewSpans[v]
	if !ok {
		spans = []columnSpan{{0, width}}
	}
	positions := make([]int, 0, width)
	for _, span := range spans {
		end := span.to
		if end > width {
			end = width
		}
		for i := span.from; i < end; i++ {
			positions = append(positions, i)
		}
	}
	return positions
}

// Apply projects the table onto the view's columns.
func (v View) Apply(table Table) Table {
	return table.Project(v.Columns(table.Schema.Len()))
}
