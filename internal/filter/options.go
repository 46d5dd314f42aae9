package filter

import (
	"sort"
	"strings"

	"github.com/rpattn/tradeboard/internal/domain"
)

// DistinctValues lists the non-blank displayed values of a column, sorted
// case-insensitively. It returns false when the column is absent.
func DistinctValues(table domain.Table, column string) ([]string, bool) {
	col, ok := table.Schema.Index(column)
	if !ok {
		return nil, false
	}
	meta := table.Schema.Columns[col]
	seen := make(map[string]struct{})
	values := []string{}
	for row := 0; row < table.Len(); row++ {
		text := strings.TrimSpace(domain.DisplayValue(meta, table.Value(row, col)))
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		values = append(values, text)
	}
	sort.SliceStable(values, func(i, j int) bool {
		return strings.ToLower(values[i]) < strings.ToLower(values[j])
	})
	return values, true
}
