package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DisplayValue renders a cell the way it is shown to users: dates day-first,
// Terms as a percentage of its stored fraction, everything else canonical.
func DisplayValue(column Column, value any) string {
	if value == nil {
		return ""
	}
	switch {
	case column.Name == ColumnTerms:
		return formatPercent(value)
	case column.Name == ColumnDate || column.Type == ColumnTypeTimestamp:
		if ts, ok := value.(time.Time); ok {
			return ts.Format(DisplayDateLayout)
		}
	}
	return CanonicalText(value)
}

// formatPercent renders a stored fraction (0.025) as "2.50%". Text already
// written as a percentage ("2.5%") keeps its figure. Non numeric values render blank.
func formatPercent(value any) string {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case int64:
		f = float64(v)
	case int:
		f = float64(v)
	case string:
		text := strings.TrimSpace(v)
		percent := strings.HasSuffix(text, "%")
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(text, "%")), 64)
		if err != nil {
			return ""
		}
		if percent {
			return fmt.Sprintf("%.2f%%", parsed)
		}
		f = parsed
	default:
		return ""
	}
	return fmt.Sprintf("%.2f%%", f*100)
}
