package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/tradeboard/internal/domain"
)

type stubLogRepo struct {
	mu      sync.Mutex
	entries []domain.UploadLogEntry
	err     error
}

func (s *stubLogRepo) Record(ctx context.Context, entry domain.UploadLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.err
}

func (s *stubLogRepo) List(ctx context.Context, sessionID uuid.UUID, limit int, offset int) ([]domain.UploadLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.UploadLogEntry{}
	for _, entry := range s.entries {
		if entry.SessionID == sessionID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// workbook builds an xlsx file with the given sheets. Strings become shared
// string cells, numbers and booleans keep their cell types.
func workbook(t *testing.T, sheets map[string][][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName(f.GetSheetName(0), name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			values := append([]any(nil), row...)
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &values))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

var tradeRows = [][]any{
	{"Shape", "Color", "Date", "Price", "Terms", "Paid"},
	{"Round", "D", "05-03-2024", 1200, "2.5%", true},
	{"Oval", "E", "06-03-2024", 800, "3%", false},
	{"", "", "", "", "", ""},
	{"Pear", "F", "07-03-2024", 950, "1%", true},
}

func TestLoadWorkbookInfersTypes(t *testing.T) {
	service := NewService(nil)
	payload := workbook(t, map[string][][]any{DefaultSheetName: tradeRows})

	table, summary, err := service.Load(context.Background(), Request{
		FileName: "trades.xlsx",
		Data:     bytes.NewReader(payload),
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultSheetName, summary.SheetName)
	assert.Equal(t, 3, summary.TotalRows)
	assert.Equal(t, 0, summary.InvalidCells)
	assert.Equal(t, 3, table.Len())

	types := map[string]domain.ColumnType{}
	for _, column := range table.Schema.Columns {
		types[column.Name] = column.Type
	}
	assert.Equal(t, domain.ColumnTypeString, types["Shape"])
	assert.Equal(t, domain.ColumnTypeTimestamp, types["Date"])
	assert.Equal(t, domain.ColumnTypeInteger, types["Price"])
	assert.Equal(t, domain.ColumnTypeString, types["Terms"])
	assert.Equal(t, domain.ColumnTypeBoolean, types["Paid"])

	row := table.Row(0)
	assert.Equal(t, int64(1200), row["Price"])
	assert.Equal(t, "2.5%", row["Terms"])
	assert.Equal(t, true, row["Paid"])
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), row["Date"])
}

func TestLoadWorkbookWithoutDataSheet(t *testing.T) {
	repo := &stubLogRepo{}
	service := NewService(repo)
	sessionID := uuid.New()
	payload := workbook(t, map[string][][]any{"Sheet1": tradeRows})

	table, summary, err := service.Load(context.Background(), Request{
		SessionID: sessionID,
		FileName:  "trades.xlsx",
		Data:      bytes.NewReader(payload),
	})
	require.ErrorIs(t, err, ErrSheetNotFound)
	assert.Contains(t, err.Error(), "Sheet1")
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, DefaultSheetName, summary.SheetName)

	require.Len(t, repo.entries, 1)
	assert.Equal(t, sessionID, repo.entries[0].SessionID)
	assert.Nil(t, repo.entries[0].RowNumber)
}

func TestLoadCustomSheetName(t *testing.T) {
	service := NewService(nil, WithSheetName(" Trades "))
	payload := workbook(t, map[string][][]any{"Trades": tradeRows})

	table, summary, err := service.Load(context.Background(), Request{
		FileName: "book.XLSX",
		Data:     bytes.NewReader(payload),
	})
	require.NoError(t, err)
	assert.Equal(t, "Trades", service.SheetName())
	assert.Equal(t, "Trades", summary.SheetName)
	assert.Equal(t, 3, table.Len())
}

func TestLoadCSVWithBOMAndShortRows(t *testing.T) {
	service := NewService(nil)
	data := "\xEF\xBB\xBFShape,Color,Price\nRound,D,10\nOval\n"

	table, summary, err := service.Load(context.Background(), Request{
		FileName: "trades.csv",
		Data:     strings.NewReader(data),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Shape", "Color", "Price"}, table.Schema.Names())
	assert.Equal(t, 2, summary.TotalRows)
	assert.Equal(t, "Oval", table.Row(1)["Shape"])
	assert.Nil(t, table.Row(1)["Price"])
}

func TestLoadRecordsInvalidCells(t *testing.T) {
	repo := &stubLogRepo{}
	service := NewService(repo)
	sessionID := uuid.New()

	var b strings.Builder
	b.WriteString("Shape,Price\n")
	for i := 0; i < 10; i++ {
		b.WriteString("Round,100\n")
	}
	b.WriteString("Oval,n/a\n")

	table, summary, err := service.Load(context.Background(), Request{
		SessionID: sessionID,
		FileName:  "trades.csv",
		Data:      strings.NewReader(b.String()),
	})
	require.NoError(t, err)

	price, ok := table.Schema.Lookup("Price")
	require.True(t, ok)
	assert.Equal(t, domain.ColumnTypeInteger, price.Type)
	assert.Equal(t, 1, summary.InvalidCells)
	assert.Equal(t, "n/a", table.Row(10)["Price"])

	logs, err := service.UploadLogs(context.Background(), sessionID, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Price", logs[0].Column)
	require.NotNil(t, logs[0].RowNumber)
	assert.Equal(t, 12, *logs[0].RowNumber)
}

func TestLoadMixedColumnStaysString(t *testing.T) {
	service := NewService(nil)

	table, summary, err := service.Load(context.Background(), Request{
		FileName: "trades.csv",
		Data:     strings.NewReader("Sieve\n+2\nsmall\n3\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ColumnTypeString, table.Schema.Columns[0].Type)
	assert.Equal(t, 0, summary.InvalidCells)
}

func TestLoadRenamesDuplicateHeaders(t *testing.T) {
	service := NewService(nil)

	table, summary, err := service.Load(context.Background(), Request{
		FileName: "trades.csv",
		Data:     strings.NewReader("Price,Price,\n1,2,3\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Price", "Price_2"}, table.Schema.Names())
	assert.Equal(t, map[string]string{"Price_2": "Price"}, summary.RenamedHeaders)
}

func TestLoadRejectsUnsupportedAndEmpty(t *testing.T) {
	service := NewService(nil)

	_, _, err := service.Load(context.Background(), Request{FileName: "trades.pdf", Data: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = service.Load(context.Background(), Request{FileName: "trades.csv", Data: strings.NewReader("")})
	assert.Error(t, err)

	_, _, err = service.Load(context.Background(), Request{FileName: "trades.csv"})
	assert.Error(t, err)
}

func TestLoadWarnsOnIncompatibleWellKnownColumn(t *testing.T) {
	service := NewService(nil)

	_, summary, err := service.Load(context.Background(), Request{
		FileName: "trades.csv",
		Data:     strings.NewReader("Date,Price\ntrue,1\nfalse,2\n"),
	})
	require.NoError(t, err)
	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, "Date", summary.Warnings[0].Column)
}

func TestUploadLogsDisabledWithoutRepository(t *testing.T) {
	_, err := NewService(nil).UploadLogs(context.Background(), uuid.New(), 10, 0)
	assert.True(t, errors.Is(err, ErrUploadLogDisabled))
}

func TestLogRepositoryFailureDoesNotFailLoad(t *testing.T) {
	repo := &stubLogRepo{err: errors.New("db down")}
	service := NewService(repo)

	var b strings.Builder
	b.WriteString("Price\n")
	for i := 0; i < 10; i++ {
		b.WriteString("1\n")
	}
	b.WriteString("x\n")

	_, summary, err := service.Load(context.Background(), Request{FileName: "t.csv", Data: strings.NewReader(b.String())})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.InvalidCells)
}

func TestLoadCSVKeepsTextThatWouldChangeWhenTyped(t *testing.T) {
	service := NewService(nil)
	data := "Pointer,Terms,Lot,Price\n" +
		"007,2.5%,\"1,5\",\"1,200\"\n" +
		"010,3%,\"2,5\",800\n" +
		"0012,1%,\"1,5\",950\n"

	table, summary, err := service.Load(context.Background(), Request{FileName: "trades.csv", Data: strings.NewReader(data)})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.InvalidCells)

	types := map[string]domain.ColumnType{}
	for _, column := range table.Schema.Columns {
		types[column.Name] = column.Type
	}
	assert.Equal(t, domain.ColumnTypeString, types["Pointer"])
	assert.Equal(t, domain.ColumnTypeString, types["Terms"])
	assert.Equal(t, domain.ColumnTypeString, types["Lot"])
	assert.Equal(t, domain.ColumnTypeInteger, types["Price"])

	row := table.Row(0)
	assert.Equal(t, "007", row["Pointer"])
	assert.Equal(t, "2.5%", row["Terms"])
	assert.Equal(t, "1,5", row["Lot"])
	assert.Equal(t, int64(1200), row["Price"])
	assert.Equal(t, "0012", table.Row(2)["Pointer"])
}

func TestLoadWorkbookKeepsStringStoredCells(t *testing.T) {
	service := NewService(nil)
	rows := [][]any{{"Pointer", "Lot", "Weight"}}
	for i := 1; i <= 10; i++ {
		rows = append(rows, []any{i, fmt.Sprint(i), 1.5})
	}
	rows = append(rows, []any{"007", "1,200", "1.50"})
	payload := workbook(t, map[string][][]any{DefaultSheetName: rows})

	table, summary, err := service.Load(context.Background(), Request{FileName: "trades.xlsx", Data: bytes.NewReader(payload)})
	require.NoError(t, err)
	require.Equal(t, 11, table.Len())

	pointer, _ := table.Schema.Lookup("Pointer")
	lot, _ := table.Schema.Lookup("Lot")
	weight, _ := table.Schema.Lookup("Weight")
	assert.Equal(t, domain.ColumnTypeInteger, pointer.Type)
	assert.Equal(t, domain.ColumnTypeInteger, lot.Type, "text cells that read back unchanged still count")
	assert.Equal(t, domain.ColumnTypeFloat, weight.Type)

	assert.Equal(t, int64(3), table.Row(2)["Lot"])
	last := table.Row(10)
	assert.Equal(t, "007", last["Pointer"])
	assert.Equal(t, "1,200", last["Lot"])
	assert.Equal(t, "1.50", last["Weight"])
	assert.Equal(t, 1, summary.InvalidCells, "007 is not a number at all")
}
