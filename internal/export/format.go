package export

import (
	"strings"

	"github.com/rpattn/tradeboard/internal/domain"
)

// DisplayRows renders every cell of the table with domain.DisplayValue.
func DisplayRows(table domain.Table) [][]string {
	rows := make([][]string, table.Len())
	for i := range rows {
		row := make([]string, table.Schema.Len())
		for j, column := range table.Schema.Columns {
			row[j] = domain.DisplayValue(column, table.Value(i, j))
		}
		rows[i] = row
	}
	return rows
}

// sanitizeFileComponent lower-cases value and keeps it safe for file names.
func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "export"
	}
	return result
}
