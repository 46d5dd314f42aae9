package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/tradeboard/internal/domain"
)

const sheet = `Shape,Color,Buyer,Date,Price,Terms
Round,D,Globex,05-03-2024,1200,2.5%
Oval,E,Hooli,06-03-2024,800,3%
Round,F,Globex,09-03-2024,950,1%
`

func writeSheet(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, os.WriteFile(path, []byte(sheet), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--config", t.TempDir(), "--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestFilterCommandWritesCSV(t *testing.T) {
	path := writeSheet(t)

	out, err := execute(t, "filter", path, "--filter", "Shape=round", "--start", "01-03-2024", "--end", "06-03-2024")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Shape,Color,Buyer,Date,Price,Terms", lines[0])
	assert.Equal(t, "Round,D,Globex,05-03-2024,1200,2.50%", lines[1])
}

func TestFilterCommandOrLogicAndSelect(t *testing.T) {
	path := writeSheet(t)

	out, err := execute(t, "filter", path, "--select", "Buyer=hooli", "--filter", "Color=f", "--logic", "or")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3)
}

func TestFilterCommandStrictUnknownColumn(t *testing.T) {
	path := writeSheet(t)

	_, err := execute(t, "filter", path, "--filter", "Clarity=vvs", "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Clarity")

	out, err := execute(t, "filter", path, "--filter", "Clarity=vvs")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)
}

func TestFilterCommandWritesFile(t *testing.T) {
	path := writeSheet(t)
	target := filepath.Join(t.TempDir(), "out.xlsx")

	_, err := execute(t, "filter", path, "--format", "xlsx", "--out", target)
	require.NoError(t, err)
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestFilterCommandRejectsBadInput(t *testing.T) {
	path := writeSheet(t)

	_, err := execute(t, "filter", path, "--filter", "no-equals")
	assert.Error(t, err)

	_, err = execute(t, "filter", path, "--view", "broker")
	assert.Error(t, err)

	_, err = execute(t, "filter", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestFilterOptionsQuery(t *testing.T) {
	opts := &filterOptions{
		texts:      []string{"Shape=round or oval"},
		selects:    []string{"Color= D, E ,"},
		end:        "31-03-2024",
		dateColumn: domain.DefaultDateColumn,
		logic:      "or",
		view:       "Seller Data",
		sort:       "Price:desc",
	}
	query, err := opts.query()
	require.NoError(t, err)

	assert.Equal(t, domain.ViewSeller, query.View)
	assert.Equal(t, domain.LogicOr, query.Filters.Logic)
	require.Len(t, query.Filters.Columns, 2)
	assert.Equal(t, "round or oval", query.Filters.Columns[0].Expression)
	assert.Equal(t, []string{"D", "E"}, query.Filters.Columns[1].Values)
	require.NotNil(t, query.Filters.DateRange)
	assert.Nil(t, query.Filters.DateRange.Start)
	assert.NotNil(t, query.Filters.DateRange.End)
	require.NotNil(t, query.Sort)
	assert.Equal(t, domain.Sort{Column: "Price", Direction: domain.SortDirectionDesc}, *query.Sort)
}

func TestFilterCommandSorts(t *testing.T) {
	path := writeSheet(t)

	out, err := execute(t, "filter", path, "--sort", "Price")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "Oval,"))
	assert.True(t, strings.HasPrefix(lines[3], "Round,D,"))
}

func TestFilterCommandUnreadableDateMatchesNothing(t *testing.T) {
	path := writeSheet(t)

	out, err := execute(t, "filter", path, "--start", "31-13-2024", "--end", "31-03-2024")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1, "only the header is written")
	assert.Equal(t, "Shape,Color,Buyer,Date,Price,Terms", lines[0])

	opts := &filterOptions{start: "someday", dateColumn: domain.DefaultDateColumn, view: "all"}
	query, err := opts.query()
	require.NoError(t, err)
	require.NotNil(t, query.Filters.DateRange)
	assert.True(t, query.Filters.DateRange.Invalid)
	assert.Nil(t, query.Filters.DateRange.Start)
}
