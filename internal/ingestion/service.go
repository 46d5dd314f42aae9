package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/tradeboard/internal/domain"
	"github.com/rpattn/tradeboard/internal/filter"
	"github.com/rpattn/tradeboard/internal/repository"
	"github.com/rpattn/tradeboard/internal/schema/validator"
)

// DefaultSheetName is the worksheet holding the trade data.
const DefaultSheetName = "DATA"

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrSheetNotFound is returned when the workbook has no data sheet.
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrUploadLogDisabled is returned when no upload log store is configured.
	ErrUploadLogDisabled = errors.New("upload log is not enabled")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Service loads uploaded spreadsheets into typed in-memory tables.
type Service struct {
	logRepo   repository.UploadLogRepository
	sheetName string
}

// Option customizes the service.
type Option func(*Service)

// WithSheetName changes the worksheet read from workbooks.
func WithSheetName(name string) Option {
	return func(s *Service) {
		if strings.TrimSpace(name) != "" {
			s.sheetName = strings.TrimSpace(name)
		}
	}
}

// NewService creates a new ingestion service. logRepo may be nil.
func NewService(logRepo repository.UploadLogRepository, opts ...Option) *Service {
	service := &Service{
		logRepo:   logRepo,
		sheetName: DefaultSheetName,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// SheetName returns the worksheet the service reads.
func (s *Service) SheetName() string {
	return s.sheetName
}

// Request describes the upload to load.
type Request struct {
	SessionID uuid.UUID
	FileName  string
	Data      io.Reader
}

// Summary reports what was loaded.
type Summary struct {
	FileName       string              `json:"fileName"`
	SheetName      string              `json:"sheetName,omitempty"`
	TotalRows      int                 `json:"totalRows"`
	Columns        []domain.Column     `json:"columns"`
	RenamedHeaders map[string]string   `json:"renamedHeaders,omitempty"`
	InvalidCells   int                 `json:"invalidCells"`
	Warnings       []validator.Warning `json:"warnings"`
}

type tableData struct {
	headers        []string
	rawHeaders     []string
	rows           [][]string
	headerRowIndex int
	// textCells marks cells the workbook stores as text. Nil for csv.
	textCells [][]bool
}

func (t tableData) storedAsText(row, col int) bool {
	return row < len(t.textCells) && col < len(t.textCells[row]) && t.textCells[row][col]
}

// Load reads the uploaded file into a typed table. When the workbook lacks the
// data sheet it returns an empty table together with ErrSheetNotFound.
func (s *Service) Load(ctx context.Context, req Request) (domain.Table, Summary, error) {
	summary := Summary{
		FileName: req.FileName,
		Columns:  []domain.Column{},
		Warnings: []validator.Warning{},
	}
	if req.Data == nil {
		return domain.Table{}, summary, errors.New("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return domain.Table{}, summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return domain.Table{}, summary, errors.New("file is empty")
	}

	table, sheet, err := s.parseTable(req.FileName, payload)
	summary.SheetName = sheet
	if err != nil {
		s.logUploadError(ctx, req, nil, "", err)
		return domain.Table{}, summary, err
	}
	if len(table.headers) == 0 {
		return domain.Table{}, summary, errors.New("no header row detected")
	}

	summary.RenamedHeaders = renamedHeaders(table)
	schema := inferSchema(table)
	warnings, err := validator.ValidateColumns(schema)
	if err != nil {
		return domain.Table{}, summary, fmt.Errorf("invalid header row: %w", err)
	}
	summary.Warnings = warnings
	summary.Columns = schema.Columns

	records := make([]domain.Record, 0, len(table.rows))
	for rowIdx, row := range table.rows {
		rowNumber := table.headerRowIndex + rowIdx + 2 // include header row (1-based)
		record := make(domain.Record, len(schema.Columns))
		for colIdx, column := range schema.Columns {
			raw := strings.TrimSpace(row[colIdx])
			if raw == "" {
				continue
			}
			value, coerceErr := coerceValue(column.Type, raw)
			switch {
			case coerceErr != nil:
				summary.InvalidCells++
				s.logUploadError(ctx, req, &rowNumber, column.Name, coerceErr)
				record[colIdx] = raw
			case table.storedAsText(rowIdx, colIdx) && !keepsRendering(column.Type, value, raw):
				record[colIdx] = raw
			default:
				record[colIdx] = value
			}
		}
		records = append(records, record)
	}
	summary.TotalRows = len(records)

	log.Info().
		Str("component", "ingestion").
		Str("file", req.FileName).
		Str("sheet", sheet).
		Int("rows", summary.TotalRows).
		Int("columns", len(schema.Columns)).
		Int("invalidCells", summary.InvalidCells).
		Msg("upload loaded")

	return domain.NewTable(schema, records), summary, nil
}

func (s *Service) parseTable(fileName string, payload []byte) (tableData, string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		table, err := parseCSV(payload)
		return table, "", err
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		table, err := parseExcel(payload, s.sheetName)
		return table, s.sheetName, err
	default:
		return tableData{}, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (tableData, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalizeTable(records, nil)
}

func parseExcel(payload []byte, sheetName string) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	found := false
	for _, name := range sheets {
		if name == sheetName {
			found = true
			break
		}
	}
	if !found {
		return tableData{}, fmt.Errorf("%w: %q (available: %s)", ErrSheetNotFound, sheetName, strings.Join(sheets, ", "))
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read rows from sheet %s: %w", sheetName, err)
	}
	textCells, err := textCellMask(f, sheetName, rows)
	if err != nil {
		return tableData{}, err
	}
	return normalizeTable(rows, textCells)
}

// textCellMask reports which non-blank cells hold shared or inline strings.
func textCellMask(f *excelize.File, sheetName string, rows [][]string) ([][]bool, error) {
	mask := make([][]bool, len(rows))
	for i, row := range rows {
		mask[i] = make([]bool, len(row))
		for j, cell := range row {
			if cell == "" {
				continue
			}
			ref, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return nil, err
			}
			cellType, err := f.GetCellType(sheetName, ref)
			if err != nil {
				return nil, fmt.Errorf("failed to read cell type %s: %w", ref, err)
			}
			mask[i][j] = cellType == excelize.CellTypeSharedString || cellType == excelize.CellTypeInlineString
		}
	}
	return mask, nil
}

func normalizeTable(records [][]string, textCells [][]bool) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	var headerRow []string
	var dataRows [][]string
	var dataText [][]bool
	headerIndex := -1

	for idx, row := range records {
		if len(cleanRow(row)) == 0 {
			continue
		}
		if headerRow == nil {
			headerRow = row
			headerIndex = idx
			continue
		}
		dataRows = append(dataRows, row)
		if textCells != nil {
			dataText = append(dataText, textCells[idx])
		}
	}

	if headerRow == nil {
		return tableData{}, errors.New("header row could not be detected")
	}

	headerRow = trimTrailingBlank(headerRow)
	headers := uniqueHeaders(headerRow)
	rawHeaders := make([]string, len(headerRow))
	for i, value := range headerRow {
		rawHeaders[i] = strings.TrimSpace(value)
	}

	kept := dataRows[:0]
	keptText := dataText[:0]
	for i := range dataRows {
		row := padRow(dataRows[i], len(headers))
		if len(cleanRow(row)) == 0 {
			continue
		}
		kept = append(kept, row)
		if dataText != nil {
			keptText = append(keptText, dataText[i])
		}
	}
	dataRows = kept
	if dataText != nil {
		dataText = keptText
	}

	return tableData{
		headers:        headers,
		rawHeaders:     rawHeaders,
		rows:           dataRows,
		headerRowIndex: headerIndex,
		textCells:      dataText,
	}, nil
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}

// trimTrailingBlank drops empty header cells past the last named column.
func trimTrailingBlank(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}

// uniqueHeaders keeps header text as written, naming blanks and suffixing repeats.
func uniqueHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func renamedHeaders(table tableData) map[string]string {
	renamed := map[string]string{}
	for i, header := range table.headers {
		if i < len(table.rawHeaders) && table.rawHeaders[i] != header {
			renamed[header] = table.rawHeaders[i]
		}
	}
	if len(renamed) == 0 {
		return nil
	}
	return renamed
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

func inferSchema(table tableData) domain.Schema {
	columns := make([]domain.Column, 0, len(table.headers))
	for idx, header := range table.headers {
		columns = append(columns, domain.Column{
			Name: header,
			Type: profileColumn(table, idx),
		})
	}
	return domain.NewSchema(columns...)
}

// inferenceThreshold is the share of non-blank cells that must parse as a
// type for the column to take it. The remaining cells become invalid cells.
const inferenceThreshold = 0.9

func profileColumn(table tableData, col int) domain.ColumnType {
	var ints, floats, bools, timestamps, values int

	for rowIdx, row := range table.rows {
		if col >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[col])
		if value == "" {
			continue
		}
		values++
		text := table.storedAsText(rowIdx, col)

		if conformsTo(domain.ColumnTypeInteger, value, text) {
			ints++
		}
		if conformsTo(domain.ColumnTypeFloat, value, text) {
			floats++
		}
		if conformsTo(domain.ColumnTypeBoolean, value, text) {
			bools++
		}
		if conformsTo(domain.ColumnTypeTimestamp, value, text) {
			timestamps++
		}
	}

	conforms := func(n int) bool {
		return n > 0 && float64(n) >= inferenceThreshold*float64(values)
	}
	switch {
	case values == 0:
		return domain.ColumnTypeString
	case conforms(ints):
		return domain.ColumnTypeInteger
	case conforms(floats):
		return domain.ColumnTypeFloat
	case conforms(bools):
		return domain.ColumnTypeBoolean
	case conforms(timestamps):
		return domain.ColumnTypeTimestamp
	default:
		return domain.ColumnTypeString
	}
}

// conformsTo reports whether raw reads as columnType. A cell stored as text
// only conforms when the typed value renders back to the same text.
func conformsTo(columnType domain.ColumnType, raw string, text bool) bool {
	value, err := coerceValue(columnType, raw)
	if err != nil {
		return false
	}
	return !text || keepsRendering(columnType, value, raw)
}

// keepsRendering reports whether a typed value still reads as raw. Dates are
// exempt since text dates are the usual way sheets carry them.
func keepsRendering(columnType domain.ColumnType, value any, raw string) bool {
	if columnType == domain.ColumnTypeTimestamp {
		return true
	}
	return domain.CanonicalText(value) == raw
}

// numberPattern accepts plain decimals and correctly grouped thousands.
// Leading zeros, percentages and exponents stay text.
var numberPattern = regexp.MustCompile(`^[-+]?(\d{1,3}(,\d{3})+|0|[1-9]\d*)(\.\d+)?$`)

func parseNumber(raw string) (float64, error) {
	value := strings.TrimSpace(raw)
	if !numberPattern.MatchString(value) {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number %q", raw)
	}
	return f, nil
}

func coerceValue(columnType domain.ColumnType, raw string) (any, error) {
	switch columnType {
	case domain.ColumnTypeString:
		return raw, nil
	case domain.ColumnTypeInteger:
		f, err := parseNumber(raw)
		if err != nil || strings.Contains(raw, ".") || math.Abs(f) >= 1<<53 {
			return nil, fmt.Errorf("unable to coerce %q to integer", raw)
		}
		return int64(f), nil
	case domain.ColumnTypeFloat:
		f, err := parseNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to float", raw)
		}
		return f, nil
	case domain.ColumnTypeBoolean:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("unable to coerce %q to boolean", raw)
	case domain.ColumnTypeTimestamp:
		ts, err := filter.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to date: %w", raw, err)
		}
		return ts, nil
	default:
		return raw, nil
	}
}

// UploadLogs lists recorded upload problems for a session, newest first.
func (s *Service) UploadLogs(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]domain.UploadLogEntry, error) {
	if s.logRepo == nil {
		return nil, ErrUploadLogDisabled
	}
	return s.logRepo.List(ctx, sessionID, limit, offset)
}

func (s *Service) logUploadError(ctx context.Context, req Request, rowNumber *int, column string, err error) {
	if err == nil {
		return
	}
	log.Warn().
		Str("component", "ingestion").
		Str("file", req.FileName).
		Str("column", column).
		Err(err).
		Msg("upload problem")
	if s.logRepo == nil {
		return
	}
	entry := domain.UploadLogEntry{
		SessionID:    req.SessionID,
		FileName:     req.FileName,
		SheetName:    s.sheetName,
		RowNumber:    rowNumber,
		Column:       column,
		ErrorMessage: err.Error(),
		CreatedAt:    time.Now().UTC(),
	}
	if recordErr := s.logRepo.Record(ctx, entry); recordErr != nil {
		log.Error().Str("component", "ingestion").Err(recordErr).Msg("failed to record upload log")
	}
}
