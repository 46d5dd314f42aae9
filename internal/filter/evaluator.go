package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/tradeboard/internal/domain"
)

// ErrUnknownColumns is returned by strict validation when filters reference undeclared columns.
var ErrUnknownColumns = errors.New("filter references unknown columns")

// Report describes how a filter set was applied to a table.
type Report struct {
	Logic          domain.Logic `json:"logic"`
	ActiveFilters  int          `json:"activeFilters"`
	SkippedColumns []string     `json:"skippedColumns"`
	Warnings       []string     `json:"warnings"`
	InputRows      int          `json:"inputRows"`
	MatchedRows    int          `json:"matchedRows"`
}

// predicate decides whether row i of a table matches.
type predicate func(table domain.Table, row int) bool

// Validate fails when the set references columns absent from the schema.
func Validate(set domain.FilterSet, schema domain.Schema) error {
	unknown := set.UnknownColumns(schema)
	if len(unknown) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownColumns, strings.Join(unknown, ", "))
}

// Evaluate returns the rows of table matching the filter set, in source order.
// Filters on columns the table does not have are skipped and reported.
// A set without active filters returns the table unchanged under either logic.
func Evaluate(table domain.Table, set domain.FilterSet) (domain.Table, Report) {
	logic := set.Logic
	if logic != domain.LogicOr {
		logic = domain.LogicAnd
	}
	report := Report{
		Logic:          logic,
		SkippedColumns: []string{},
		Warnings:       []string{},
		InputRows:      table.Len(),
	}

	predicates := buildPredicates(table.Schema, set, &report)
	report.ActiveFilters = len(predicates)
	if len(predicates) == 0 {
		report.MatchedRows = table.Len()
		return table, report
	}

	var rows []int
	if logic == domain.LogicOr {
		rows = unionRows(table, predicates)
	} else {
		rows = intersectRows(table, predicates)
	}
	report.MatchedRows = len(rows)
	return table.Select(rows), report
}

// intersectRows narrows the candidate rows once per predicate.
func intersectRows(table domain.Table, predicates []predicate) []int {
	candidates := make([]int, table.Len())
	for i := range candidates {
		candidates[i] = i
	}
	for _, match := range predicates {
		kept := candidates[:0]
		for _, row := range candidates {
			if match(table, row) {
				kept = append(kept, row)
			}
		}
		candidates = kept
		if len(candidates) == 0 {
			break
		}
	}
	return candidates
}

// unionRows accumulates a per-row mask set by any matching predicate.
func unionRows(table domain.Table, predicates []predicate) []int {
	mask := make([]bool, table.Len())
	for _, match := range predicates {
		for row := range mask {
			if !mask[row] && match(table, row) {
				mask[row] = true
			}
		}
	}
	rows := make([]int, 0, len(mask))
	for row, hit := range mask {
		if hit {
			rows = append(rows, row)
		}
	}
	return rows
}

func buildPredicates(schema domain.Schema, set domain.FilterSet, report *Report) []predicate {
	predicates := make([]predicate, 0, len(set.Columns)+1)
	for _, f := range set.ActiveColumns() {
		col, ok := schema.Index(f.Column)
		if !ok {
			report.SkippedColumns = append(report.SkippedColumns, f.Column)
			continue
		}
		switch f.Mode {
		case domain.FilterModeMultiSelect:
			predicates = append(predicates, multiSelectPredicate(schema.Columns[col], col, f.Values))
		default:
			expr := ParseExpression(f.Expression)
			if expr.Empty() {
				continue
			}
			predicates = append(predicates, textPredicate(col, expr))
		}
	}
	if set.DateRange.Active() {
		name := set.DateRange.ColumnName()
		col, ok := schema.Index(name)
		if ok {
			if set.DateRange.Invalid {
				report.Warnings = append(report.Warnings, "date range bound could not be read, no rows match it")
			}
			predicates = append(predicates, dateRangePredicate(col, set.DateRange))
		} else {
			report.SkippedColumns = append(report.SkippedColumns, name)
		}
	}
	return predicates
}

func textPredicate(col int, expr Expression) predicate {
	return func(table domain.Table, row int) bool {
		return expr.Match(table.Text(row, col))
	}
}

// multiSelectPredicate accepts a row when either its displayed or its canonical
// text is one of the chosen values.
func multiSelectPredicate(column domain.Column, col int, values []string) predicate {
	accepted := make(map[string]struct{}, len(values))
	for _, v := range values {
		if key := normalizeChoice(v); key != "" {
			accepted[key] = struct{}{}
		}
	}
	return func(table domain.Table, row int) bool {
		value := table.Value(row, col)
		if _, ok := accepted[normalizeChoice(domain.DisplayValue(column, value))]; ok {
			return true
		}
		_, ok := accepted[normalizeChoice(domain.CanonicalText(value))]
		return ok
	}
}

func dateRangePredicate(col int, dr *domain.DateRange) predicate {
	if dr.Invalid {
		return func(domain.Table, int) bool { return false }
	}
	start, end := dr.Start, dr.End
	return func(table domain.Table, row int) bool {
		return inRange(table.Value(row, col), start, end)
	}
}

func normalizeChoice(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
