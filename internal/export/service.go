package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/tradeboard/internal/domain"
)

// SheetName is the worksheet written to spreadsheet exports.
const SheetName = "DATA"

// ErrUnsupportedExport is returned for unknown export formats.
var ErrUnsupportedExport = errors.New("unsupported export format")

// Format enumerates export encodings.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
)

// ParseFormat normalizes a format name, defaulting to CSV.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), ".")) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel", "xls":
		return FormatXLSX, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedExport, raw)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// Result describes a completed export.
type Result struct {
	Format       Format `json:"format"`
	RowsExported int    `json:"rowsExported"`
	BytesWritten int64  `json:"bytesWritten"`
	FilePath     string `json:"filePath,omitempty"`
}

// Service serializes tables.
type Service struct {
	exportDir string
}

// Option customizes the service.
type Option func(*Service)

// WithExportDirectory sets where SaveFile writes.
func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.exportDir = filepath.Clean(dir)
		}
	}
}

// NewService creates an export service.
func NewService(opts ...Option) *Service {
	service := &Service{
		exportDir: filepath.Join(os.TempDir(), "tradeboard-exports"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// FileName builds a safe file name for the export.
func FileName(base string, format Format) string {
	name := sanitizeFileComponent(base)
	if name == "" {
		name = "export"
	}
	return fmt.Sprintf("%s.%s", name, format.Extension())
}

// Write encodes table to w in the given format.
func (s *Service) Write(ctx context.Context, w io.Writer, table domain.Table, format Format) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	counter := &countingWriter{writer: w}
	var err error
	switch format {
	case FormatCSV:
		err = writeCSV(counter, table)
	case FormatXLSX:
		err = writeXLSX(counter, table)
	case FormatParquet:
		err = writeParquet(counter, table)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedExport, format)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Format: format, RowsExported: table.Len(), BytesWritten: counter.count}, nil
}

// SaveFile writes the export into the export directory, replacing any file with the same name.
func (s *Service) SaveFile(ctx context.Context, table domain.Table, format Format, baseName string) (Result, error) {
	if err := s.ensureExportDirectory(); err != nil {
		return Result{}, err
	}
	finalPath := filepath.Join(s.exportDir, FileName(baseName, format))
	result, err := WriteFile(ctx, s, finalPath, table, format)
	if err != nil {
		return Result{}, err
	}
	log.Info().
		Str("component", "export").
		Str("format", string(format)).
		Int("rows", result.RowsExported).
		Str("path", finalPath).
		Msg("export saved")
	return result, nil
}

// WriteFile writes the export to path via a temporary file in the same directory.
func WriteFile(ctx context.Context, s *Service, path string, table domain.Table, format Format) (Result, error) {
	tempFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*.tmp")
	if err != nil {
		return Result{}, fmt.Errorf("create temp export file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	buffered := bufio.NewWriterSize(tempFile, 1<<20)
	result, err := s.Write(ctx, buffered, table, format)
	if err != nil {
		return Result{}, err
	}
	if err := buffered.Flush(); err != nil {
		return Result{}, fmt.Errorf("flush export file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return Result{}, fmt.Errorf("sync export file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return Result{}, fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return Result{}, fmt.Errorf("promote export file: %w", err)
	}
	cleanup = false
	result.FilePath = path
	return result, nil
}

func (s *Service) ensureExportDirectory() error {
	if strings.TrimSpace(s.exportDir) == "" {
		return errors.New("export directory is not configured")
	}
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return fmt.Errorf("ensure export directory: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, table domain.Table) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(table.Schema.Names()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range DisplayRows(table) {
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, table domain.Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("open sheet writer: %w", err)
	}

	header := make([]interface{}, table.Schema.Len())
	for i, name := range table.Schema.Names() {
		header[i] = name
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := 0; i < table.Len(); i++ {
		cells := make([]interface{}, table.Schema.Len())
		for j, column := range table.Schema.Columns {
			cells[j] = xlsxCell(column, table.Value(i, j))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// xlsxCell keeps numbers and booleans typed; dates and Terms use display text.
func xlsxCell(column domain.Column, value any) interface{} {
	if value == nil {
		return nil
	}
	if column.Name == domain.ColumnTerms || column.Name == domain.ColumnDate {
		return domain.DisplayValue(column, value)
	}
	switch v := value.(type) {
	case int64, float64, bool:
		return v
	default:
		return domain.DisplayValue(column, value)
	}
}

func writeParquet(w io.Writer, table domain.Table) error {
	group := parquet.Group{}
	for _, column := range table.Schema.Columns {
		group[column.Name] = parquet.Optional(parquetNode(column.Type))
	}
	schema := parquet.NewSchema("trade", group)

	leaves := make([]int, table.Schema.Len())
	for i, column := range table.Schema.Columns {
		leaf, ok := schema.Lookup(column.Name)
		if !ok {
			return fmt.Errorf("parquet column %s missing from schema", column.Name)
		}
		leaves[i] = leaf.ColumnIndex
	}

	writer := parquet.NewWriter(w, schema)
	const batchSize = 1024
	batch := make([]parquet.Row, 0, batchSize)
	for i := 0; i < table.Len(); i++ {
		row := make(parquet.Row, len(leaves))
		for j, column := range table.Schema.Columns {
			row[leaves[j]] = parquetValue(column.Type, table.Value(i, j), leaves[j])
		}
		batch = append(batch, row)
		if len(batch) == batchSize {
			if _, err := writer.WriteRows(batch); err != nil {
				return fmt.Errorf("write parquet rows: %w", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if _, err := writer.WriteRows(batch); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func parquetNode(t domain.ColumnType) parquet.Node {
	switch t {
	case domain.ColumnTypeInteger:
		return parquet.Int(64)
	case domain.ColumnTypeFloat:
		return parquet.Leaf(parquet.DoubleType)
	case domain.ColumnTypeBoolean:
		return parquet.Leaf(parquet.BooleanType)
	case domain.ColumnTypeTimestamp:
		return parquet.Timestamp(parquet.Millisecond)
	default:
		return parquet.String()
	}
}

// parquetValue encodes a cell for an optional leaf; cells that do not match
// the column type are written as nulls.
func parquetValue(t domain.ColumnType, value any, columnIndex int) parquet.Value {
	var v parquet.Value
	present := true
	switch t {
	case domain.ColumnTypeInteger:
		n, ok := value.(int64)
		v, present = parquet.Int64Value(n), ok
	case domain.ColumnTypeFloat:
		switch n := value.(type) {
		case float64:
			v = parquet.DoubleValue(n)
		case int64:
			v = parquet.DoubleValue(float64(n))
		default:
			present = false
		}
	case domain.ColumnTypeBoolean:
		b, ok := value.(bool)
		v, present = parquet.BooleanValue(b), ok
	case domain.ColumnTypeTimestamp:
		ts, ok := value.(time.Time)
		v, present = parquet.Int64Value(ts.UnixMilli()), ok
	default:
		if value == nil {
			present = false
		} else {
			v = parquet.ByteArrayValue([]byte(domain.CanonicalText(value)))
		}
	}
	if !present {
		return parquet.NullValue().Level(0, 0, columnIndex)
	}
	return v.Level(0, 1, columnIndex)
}

type countingWriter struct {
	writer io.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}
