package domain

import (
	"strings"
	"time"
)

// Logic selects how per-column filters are combined.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// ParseLogic normalizes user input, defaulting to AND.
func ParseLogic(raw string) Logic {
	if strings.EqualFold(strings.TrimSpace(raw), string(LogicOr)) {
		return LogicOr
	}
	return LogicAnd
}

// FilterMode distinguishes free text expressions from discrete value sets.
type FilterMode string

const (
	FilterModeText        FilterMode = "text"
	FilterModeMultiSelect FilterMode = "multiselect"
)

// Expression keywords. They act as operators only as whole words.
const (
	KeywordOr  = "or"
	KeywordAnd = "and"
)

// ExpressionHasTerms reports whether a text expression holds anything besides keywords.
func ExpressionHasTerms(expr string) bool {
	for _, token := range strings.Fields(strings.ToLower(expr)) {
		if token != KeywordOr && token != KeywordAnd {
			return true
		}
	}
	return false
}

// ColumnFilter constrains a single column.
type ColumnFilter struct {
	Column     string     `json:"column"`
	Mode       FilterMode `json:"mode"`
	Expression string     `json:"expression,omitempty"`
	Values     []string   `json:"values,omitempty"`
}

// Active reports whether the filter imposes any constraint.
func (f ColumnFilter) Active() bool {
	switch f.Mode {
	case FilterModeMultiSelect:
		for _, v := range f.Values {
			if strings.TrimSpace(v) != "" {
				return true
			}
		}
		return false
	default:
		return ExpressionHasTerms(f.Expression)
	}
}

// DefaultDateColumn is the column date ranges apply to unless told otherwise.
const DefaultDateColumn = ColumnDate

// DateRange is an inclusive calendar date window over a date column.
type DateRange struct {
	Column string     `json:"column,omitempty"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	// Invalid marks a range with a bound that could not be read. It matches no rows.
	Invalid bool `json:"invalid,omitempty"`
}

// Active reports whether the range constrains anything.
func (r *DateRange) Active() bool {
	return r != nil && (r.Start != nil || r.End != nil || r.Invalid)
}

// ColumnName returns the configured column or the default date column.
func (r *DateRange) ColumnName() string {
	if r == nil || strings.TrimSpace(r.Column) == "" {
		return DefaultDateColumn
	}
	return r.Column
}

// FilterSet is the complete collection of constraints for one render.
type FilterSet struct {
	Columns   []ColumnFilter `json:"columns"`
	DateRange *DateRange     `json:"dateRange,omitempty"`
	Logic     Logic          `json:"logic"`
}

// ActiveColumns returns the filters that constrain something.
func (s FilterSet) ActiveColumns() []ColumnFilter {
	active := make([]ColumnFilter, 0, len(s.Columns))
	for _, f := range s.Columns {
		if f.Active() {
			active = append(active, f)
		}
	}
	return active
}

// Empty reports whether no filter in the set is active.
func (s FilterSet) Empty() bool {
	return len(s.ActiveColumns()) == 0 && !s.DateRange.Active()
}

// UnknownColumns lists referenced columns that the schema does not declare.
func (s FilterSet) UnknownColumns(schema Schema) []string {
	var unknown []string
	seen := make(map[string]struct{})
	check := func(name string) {
		if _, ok := schema.Index(name); ok {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		unknown = append(unknown, name)
	}
	for _, f := range s.ActiveColumns() {
		check(f.Column)
	}
	if s.DateRange.Active() {
		check(s.DateRange.ColumnName())
	}
	return unknown
}
