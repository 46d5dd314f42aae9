package validator

import (
	"fmt"

	"github.com/rpattn/tradeboard/internal/domain"
)

// expectedTypes lists the acceptable inferred types for well-known columns.
// Text is always acceptable since blank or mixed cells degrade a column to string.
var expectedTypes = map[string][]domain.ColumnType{
	domain.ColumnDate:   {domain.ColumnTypeTimestamp},
	domain.ColumnPrice:  {domain.ColumnTypeInteger, domain.ColumnTypeFloat},
	domain.ColumnTerms:  {domain.ColumnTypeInteger, domain.ColumnTypeFloat},
	domain.ColumnAmt:    {domain.ColumnTypeInteger, domain.ColumnTypeFloat},
	domain.ColumnProfit: {domain.ColumnTypeInteger, domain.ColumnTypeFloat},
}

// Warning describes a well-known column whose inferred type is unexpected.
type Warning struct {
	Column   string            `json:"column"`
	Detected domain.ColumnType `json:"detected"`
	Message  string            `json:"message"`
}

// ValidateColumns ensures the schema is addressable by name and reports
// well-known columns whose data did not look like the expected type.
func ValidateColumns(schema domain.Schema) ([]Warning, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	warnings := []Warning{}
	for _, column := range schema.Columns {
		allowed, ok := expectedTypes[column.Name]
		if !ok || column.Type == domain.ColumnTypeString {
			continue
		}
		if !typeAllowed(column.Type, allowed) {
			warnings = append(warnings, Warning{
				Column:   column.Name,
				Detected: column.Type,
				Message:  fmt.Sprintf("column %s detected as %s, expected one of %v", column.Name, column.Type, allowed),
			})
		}
	}
	return warnings, nil
}

func typeAllowed(t domain.ColumnType, allowed []domain.ColumnType) bool {
	for _, candidate := range allowed {
		if candidate == t {
			return true
		}
	}
	return false
}
