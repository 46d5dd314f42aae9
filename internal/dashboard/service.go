package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"

	"github.com/rpattn/tradeboard/internal/auth"
	"github.com/rpattn/tradeboard/internal/domain"
	"github.com/rpattn/tradeboard/internal/export"
	"github.com/rpattn/tradeboard/internal/filter"
	"github.com/rpattn/tradeboard/internal/session"
)

// ErrUnknownColumn is returned when options are requested for a column the table lacks.
var ErrUnknownColumn = errors.New("unknown column")

// SessionSource resolves the table owned by a session.
type SessionSource interface {
	Get(id uuid.UUID) (session.Session, error)
}

// Query is the full dashboard configuration for one render.
type Query struct {
	Filters domain.FilterSet
	View    domain.View
	// Sort orders the matching rows before the view is applied.
	Sort *domain.Sort
	// Strict rejects filters on columns the table does not have instead of skipping them.
	Strict bool
	// Limit caps the rows returned by Render. Zero returns every row; Total is unaffected.
	Limit  int
	Offset int
}

// ColumnSummary aggregates one numeric column of the rendered rows.
type ColumnSummary struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
}

// Summary describes the rendered rows.
type Summary struct {
	TotalEntries int             `json:"totalEntries"`
	Columns      []ColumnSummary `json:"columns"`
}

// Result is a rendered dashboard page.
type Result struct {
	View           domain.View     `json:"view"`
	Logic          domain.Logic    `json:"logic"`
	Columns        []domain.Column `json:"columns"`
	Rows           [][]string      `json:"rows"`
	Total          int             `json:"total"`
	Summary        Summary         `json:"summary"`
	SkippedColumns []string        `json:"skippedColumns"`
	Warnings       []string        `json:"warnings"`
	LoadError      string          `json:"loadError,omitempty"`
}

// Service runs the filter, view and format pipeline over session tables.
type Service struct {
	sessions SessionSource
	exporter *export.Service
}

// NewService wires the dashboard to its session source and exporter.
func NewService(sessions SessionSource, exporter *export.Service) *Service {
	if exporter == nil {
		exporter = export.NewService()
	}
	return &Service{sessions: sessions, exporter: exporter}
}

// Render evaluates the query against the session's table.
func (s *Service) Render(ctx context.Context, sessionID uuid.UUID, query Query) (Result, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	result, err := Render(sess.Table, query)
	if err != nil {
		return Result{}, err
	}
	result.LoadError = sess.LoadError

	log.Debug().
		Str("component", "dashboard").
		Str("session", sessionID.String()).
		Str("view", string(result.View)).
		Str("logic", string(result.Logic)).
		Int("total", result.Total).
		Msg("dashboard rendered")
	return result, nil
}

// Export writes the rows selected by query to w.
func (s *Service) Export(ctx context.Context, sessionID uuid.UUID, query Query, format export.Format, w io.Writer) (export.Result, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return export.Result{}, err
	}
	table, _, err := Apply(sess.Table, query)
	if err != nil {
		return export.Result{}, err
	}
	return s.exporter.Write(ctx, w, table, format)
}

// Options lists the distinct values of column, for multi-select choices.
func (s *Service) Options(ctx context.Context, sessionID uuid.UUID, column string) ([]string, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	values, ok := filter.DistinctValues(sess.Table, column)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}
	return values, nil
}

func (s *Service) session(ctx context.Context, sessionID uuid.UUID) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}
	if err := auth.EnforceSessionScope(ctx, sessionID); err != nil {
		return session.Session{}, err
	}
	return s.sessions.Get(sessionID)
}

// Apply filters table and projects it onto the query's view.
func Apply(table domain.Table, query Query) (domain.Table, filter.Report, error) {
	if query.Strict {
		if err := filter.Validate(query.Filters, table.Schema); err != nil {
			return domain.Table{}, filter.Report{}, err
		}
	}
	filtered, report := filter.Evaluate(table, query.Filters)
	if query.Sort != nil && query.Sort.Column != "" {
		filtered = filtered.Sort(*query.Sort)
	}
	view := query.View
	if view == "" {
		view = domain.ViewAll
	}
	return view.Apply(filtered), report, nil
}

// Render runs the pipeline over a table without a session.
func Render(table domain.Table, query Query) (Result, error) {
	visible, report, err := Apply(table, query)
	if err != nil {
		return Result{}, err
	}
	view := query.View
	if view == "" {
		view = domain.ViewAll
	}

	rows := export.DisplayRows(visible.Page(query.Limit, query.Offset))
	return Result{
		View:           view,
		Logic:          report.Logic,
		Columns:        visible.Schema.Columns,
		Rows:           rows,
		Total:          visible.Len(),
		Summary:        Summarize(visible),
		SkippedColumns: report.SkippedColumns,
		Warnings:       report.Warnings,
	}, nil
}

// Summarize counts rows and totals the well-known numeric columns present in table.
func Summarize(table domain.Table) Summary {
	summary := Summary{TotalEntries: table.Len(), Columns: []ColumnSummary{}}
	for _, name := range domain.SummaryColumns {
		col, ok := table.Column(name)
		if !ok {
			continue
		}
		data := make(stats.Float64Data, 0, table.Len())
		for row := 0; row < table.Len(); row++ {
			if f, ok := numeric(table.Value(row, col)); ok {
				data = append(data, f)
			}
		}
		entry := ColumnSummary{Column: name, Count: len(data)}
		if len(data) > 0 {
			entry.Sum, _ = stats.Sum(data)
			entry.Mean, _ = stats.Mean(data)
		}
		summary.Columns = append(summary.Columns, entry)
	}
	return summary
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	default:
		return 0, false
	}
}
