package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ColumnType represents the inferred type of a table column.
type ColumnType string

const (
	ColumnTypeString    ColumnType = "string"
	ColumnTypeInteger   ColumnType = "integer"
	ColumnTypeFloat     ColumnType = "float"
	ColumnTypeBoolean   ColumnType = "boolean"
	ColumnTypeTimestamp ColumnType = "timestamp"
)

// IsNumeric reports whether values of the type are integers or floats.
func (t ColumnType) IsNumeric() bool {
	return t == ColumnTypeInteger || t == ColumnTypeFloat
}

// DisplayDateLayout is the day-first layout used when rendering and parsing dates.
const DisplayDateLayout = "02-01-2006"

// Column describes a single declared column of an uploaded table.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Schema is the ordered list of columns shared by every record of a table.
type Schema struct {
	Columns []Column `json:"columns"`
}

// NewSchema builds a schema from the provided columns, preserving order.
func NewSchema(columns ...Column) Schema {
	return Schema{Columns: append([]Column(nil), columns...)}
}

// Len returns the number of declared columns.
func (s Schema) Len() int {
	return len(s.Columns)
}

// Names returns the column names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, column := range s.Columns {
		names[i] = column.Name
	}
	return names
}

// Index returns the position of the named column.
func (s Schema) Index(name string) (int, bool) {
	for i, column := range s.Columns {
		if column.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Lookup returns the named column definition.
func (s Schema) Lookup(name string) (Column, bool) {
	idx, ok := s.Index(name)
	if !ok {
		return Column{}, false
	}
	return s.Columns[idx], true
}

// Validate ensures the schema can be addressed unambiguously by column name.
func (s Schema) Validate() error {
	seen := make(map[string]int, len(s.Columns))
	for i, column := range s.Columns {
		if strings.TrimSpace(column.Name) == "" {
			return fmt.Errorf("column %d has an empty name", i+1)
		}
		if prev, ok := seen[column.Name]; ok {
			return fmt.Errorf("column %q declared twice (positions %d and %d)", column.Name, prev+1, i+1)
		}
		seen[column.Name] = i
	}
	return nil
}

// Record is one row of a table. Values are aligned with the table schema and
// hold string, int64, float64, bool, time.Time or nil.
type Record []any

// Table is an ordered sequence of records sharing a common schema.
type Table struct {
	Schema  Schema   `json:"schema"`
	Records []Record `json:"-"`
}

// NewTable returns a table with the given schema and records.
func NewTable(schema Schema, records []Record) Table {
	return Table{Schema: schema, Records: records}
}

// Len returns the number of records.
func (t Table) Len() int {
	return len(t.Records)
}

// Value returns the raw value stored at row/column, or nil when out of range.
func (t Table) Value(row, column int) any {
	if row < 0 || row >= len(t.Records) {
		return nil
	}
	record := t.Records[row]
	if column < 0 || column >= len(record) {
		return nil
	}
	return record[column]
}

// Text returns the canonical text of the value at row/column.
func (t Table) Text(row, column int) string {
	return CanonicalText(t.Value(row, column))
}

// Column returns the position of the named column.
func (t Table) Column(name string) (int, bool) {
	return t.Schema.Index(name)
}

// Select returns a table holding only the given rows, in the order given.
func (t Table) Select(rows []int) Table {
	records := make([]Record, 0, len(rows))
	for _, idx := range rows {
		if idx >= 0 && idx < len(t.Records) {
			records = append(records, t.Records[idx])
		}
	}
	return Table{Schema: t.Schema, Records: records}
}

// Project returns a table restricted to the column positions given.
func (t Table) Project(columns []int) Table {
	selected := make([]Column, 0, len(columns))
	valid := make([]int, 0, len(columns))
	for _, idx := range columns {
		if idx >= 0 && idx < len(t.Schema.Columns) {
			selected = append(selected, t.Schema.Columns[idx])
			valid = append(valid, idx)
		}
	}
	records := make([]Record, len(t.Records))
	for i, record := range t.Records {
		projected := make(Record, len(valid))
		for j, idx := range valid {
			if idx < len(record) {
				projected[j] = record[idx]
			}
		}
		records[i] = projected
	}
	return Table{Schema: Schema{Columns: selected}, Records: records}
}

// Row returns the record at position i as a name keyed map.
func (t Table) Row(i int) map[string]any {
	out := make(map[string]any, len(t.Schema.Columns))
	for j, column := range t.Schema.Columns {
		out[column.Name] = t.Value(i, j)
	}
	return out
}

// CanonicalText stringifies a cell value the way filters and exports see it.
func CanonicalText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format(DisplayDateLayout)
		}
		return v.Format(DisplayDateLayout + " 15:04:05")
	default:
		return fmt.Sprintf("%v", v)
	}
}
