package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SortDirection represents ordering direction for sortable columns.
type SortDirection string

const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// ParseSortDirection normalizes user input, defaulting to ascending.
func ParseSortDirection(raw string) (SortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "asc", "ascending":
		return SortDirectionAsc, nil
	case "desc", "descending":
		return SortDirectionDesc, nil
	default:
		return "", fmt.Errorf("unknown sort direction %q", raw)
	}
}

// Sort orders a table by one column.
type Sort struct {
	Column    string        `json:"column"`
	Direction SortDirection `json:"direction,omitempty"`
}

// Sort returns a copy of the table ordered by s. Blank cells sort last in
// either direction and ties keep source order. Unknown columns leave the order unchanged.
func (t Table) Sort(s Sort) Table {
	records := append([]Record(nil), t.Records...)
	col, ok := t.Schema.Index(s.Column)
	if !ok {
		return Table{Schema: t.Schema, Records: records}
	}
	desc := s.Direction == SortDirectionDesc
	sort.SliceStable(records, func(i, j int) bool {
		left, right := cell(records[i], col), cell(records[j], col)
		if left == nil || right == nil {
			return left != nil
		}
		c := compareValues(left, right)
		if desc {
			return c > 0
		}
		return c < 0
	})
	return Table{Schema: t.Schema, Records: records}
}

// Page returns at most limit records starting at offset. A zero limit keeps every remaining record.
func (t Table) Page(limit, offset int) Table {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(t.Records) {
		return Table{Schema: t.Schema, Records: []Record{}}
	}
	end := len(t.Records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return Table{Schema: t.Schema, Records: t.Records[offset:end]}
}

func cell(record Record, col int) any {
	if col >= len(record) {
		return nil
	}
	if s, ok := record[col].(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	return record[col]
}

// compareValues orders numbers numerically, times chronologically and
// everything else by case-insensitive canonical text.
func compareValues(left, right any) int {
	if l, ok := number(left); ok {
		if r, ok := number(right); ok {
			switch {
			case l < r:
				return -1
			case l > r:
				return 1
			}
			return 0
		}
	}
	if l, ok := left.(time.Time); ok {
		if r, ok := right.(time.Time); ok {
			return l.Compare(r)
		}
	}
	return strings.Compare(strings.ToLower(CanonicalText(left)), strings.ToLower(CanonicalText(right)))
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
