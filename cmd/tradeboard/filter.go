package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rpattn/tradeboard/internal/dashboard"
	"github.com/rpattn/tradeboard/internal/domain"
	"github.com/rpattn/tradeboard/internal/export"
	"github.com/rpattn/tradeboard/internal/filter"
	"github.com/rpattn/tradeboard/internal/ingestion"
)

type filterOptions struct {
	texts      []string
	selects    []string
	start      string
	end        string
	dateColumn string
	logic      string
	view       string
	sort       string
	format     string
	out        string
	save       bool
	strict     bool
}

func newFilterCommand(root *rootOptions) *cobra.Command {
	opts := &filterOptions{}
	cmd := &cobra.Command{
		Use:   "filter <file>",
		Short: "Filter a trade sheet and write the selected view",
		Example: `  tradeboard filter trades.xlsx --filter "Shape=round or oval" --select Color=D,E --logic AND --view buyer
  tradeboard filter trades.xlsx --start 01-03-2024 --end 31-03-2024 --format xlsx --out march.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(cmd.Context(), root, opts, args[0], cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVar(&opts.texts, "filter", nil, "text filter as column=expression (repeatable)")
	flags.StringArrayVar(&opts.selects, "select", nil, "multi-select filter as column=value1,value2 (repeatable)")
	flags.StringVar(&opts.start, "start", "", "first day of the date range (dd-mm-yyyy or yyyy-mm-dd)")
	flags.StringVar(&opts.end, "end", "", "last day of the date range")
	flags.StringVar(&opts.dateColumn, "date-column", domain.DefaultDateColumn, "column the date range applies to")
	flags.StringVar(&opts.logic, "logic", string(domain.LogicAnd), "how filters combine: AND or OR")
	flags.StringVar(&opts.view, "view", string(domain.ViewAll), "column view: all, buyer or seller")
	flags.StringVar(&opts.sort, "sort", "", "order rows by column, optionally column:desc")
	flags.StringVar(&opts.format, "format", string(export.FormatCSV), "output format: csv, xlsx or parquet")
	flags.StringVarP(&opts.out, "out", "o", "-", "output file, - for stdout")
	flags.BoolVar(&opts.save, "save", false, "write into export.directory instead of --out")
	flags.BoolVar(&opts.strict, "strict", false, "fail when a filter names a column the sheet lacks")
	return cmd
}

func runFilter(ctx context.Context, root *rootOptions, opts *filterOptions, path string, stdout io.Writer) error {
	query, err := opts.query()
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	loader := ingestion.NewService(nil, ingestion.WithSheetName(root.cfg.Upload.SheetName))
	table, summary, err := loader.Load(ctx, ingestion.Request{FileName: filepath.Base(path), Data: file})
	if err != nil {
		return err
	}
	for _, warning := range summary.Warnings {
		log.Warn().Str("component", "cli").Str("column", warning.Column).Msg(warning.Message)
	}

	visible, report, err := dashboard.Apply(table, query)
	if err != nil {
		return err
	}
	if len(report.SkippedColumns) > 0 {
		log.Warn().Str("component", "cli").Strs("columns", report.SkippedColumns).Msg("filters on missing columns were skipped")
	}

	exporter := export.NewService(export.WithExportDirectory(root.cfg.Export.Directory))
	var result export.Result
	switch {
	case opts.save:
		result, err = exporter.SaveFile(ctx, visible, format, fmt.Sprintf("%s data", query.View))
	case opts.out == "" || opts.out == "-":
		buffered := bufio.NewWriter(stdout)
		result, err = exporter.Write(ctx, buffered, visible, format)
		if err == nil {
			err = buffered.Flush()
		}
	default:
		result, err = export.WriteFile(ctx, exporter, opts.out, visible, format)
	}
	if err != nil {
		return err
	}

	summaryTotals := dashboard.Summarize(visible)
	event := log.Info().
		Str("component", "cli").
		Str("view", string(query.View)).
		Str("logic", string(report.Logic)).
		Int("inputRows", report.InputRows).
		Int("totalEntries", summaryTotals.TotalEntries)
	for _, column := range summaryTotals.Columns {
		event = event.Float64(strings.ToLower(column.Column)+"Sum", column.Sum)
	}
	if result.FilePath != "" {
		event = event.Str("path", result.FilePath)
	}
	event.Msg("filter complete")
	return nil
}

func (o *filterOptions) query() (dashboard.Query, error) {
	view, err := domain.ParseView(o.view)
	if err != nil {
		return dashboard.Query{}, err
	}
	set := domain.FilterSet{Logic: domain.ParseLogic(o.logic)}
	for _, raw := range o.texts {
		column, expr, err := splitAssignment(raw)
		if err != nil {
			return dashboard.Query{}, err
		}
		set.Columns = append(set.Columns, domain.ColumnFilter{Column: column, Mode: domain.FilterModeText, Expression: expr})
	}
	for _, raw := range o.selects {
		column, list, err := splitAssignment(raw)
		if err != nil {
			return dashboard.Query{}, err
		}
		values := []string{}
		for _, value := range strings.Split(list, ",") {
			if value = strings.TrimSpace(value); value != "" {
				values = append(values, value)
			}
		}
		set.Columns = append(set.Columns, domain.ColumnFilter{Column: column, Mode: domain.FilterModeMultiSelect, Values: values})
	}
	if o.start != "" || o.end != "" {
		start, startOK := dateFlag("--start", o.start)
		end, endOK := dateFlag("--end", o.end)
		set.DateRange = &domain.DateRange{
			Column:  o.dateColumn,
			Start:   start,
			End:     end,
			Invalid: !startOK || !endOK,
		}
	}
	query := dashboard.Query{Filters: set, View: view, Strict: o.strict}
	if strings.TrimSpace(o.sort) != "" {
		column, rawDirection, _ := strings.Cut(o.sort, ":")
		direction, err := domain.ParseSortDirection(rawDirection)
		if err != nil {
			return dashboard.Query{}, err
		}
		query.Sort = &domain.Sort{Column: strings.TrimSpace(column), Direction: direction}
	}
	return query, nil
}

// dateFlag parses an optional date flag. An unreadable date is reported and
// makes the range match nothing.
func dateFlag(flag, raw string) (*time.Time, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	ts, err := filter.ParseDate(raw)
	if err != nil {
		log.Warn().Str("component", "cli").Str("flag", flag).Str("value", raw).Msg("unreadable date, no rows will match the range")
		return nil, false
	}
	return &ts, true
}

func splitAssignment(raw string) (string, string, error) {
	column, value, ok := strings.Cut(raw, "=")
	column = strings.TrimSpace(column)
	if !ok || column == "" {
		return "", "", fmt.Errorf("expected column=value, got %q", raw)
	}
	return column, value, nil
}
