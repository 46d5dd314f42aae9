package dashboard

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rpattn/tradeboard/internal/auth"
	"github.com/rpattn/tradeboard/internal/domain"
	"github.com/rpattn/tradeboard/internal/export"
	"github.com/rpattn/tradeboard/internal/filter"
	"github.com/rpattn/tradeboard/internal/httpjson"
	"github.com/rpattn/tradeboard/internal/session"
)

// FilterPayload is one column filter in a query request.
type FilterPayload struct {
	Column     string   `json:"column" validate:"required"`
	Mode       string   `json:"mode" validate:"omitempty,oneof=text multiselect"`
	Expression string   `json:"expression"`
	Values     []string `json:"values" validate:"max=500"`
}

// DateRangePayload bounds the date column. Bounds accept dd-mm-yyyy or ISO dates.
type DateRangePayload struct {
	Column string `json:"column"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// SortPayload orders the rendered rows by one column.
type SortPayload struct {
	Column    string `json:"column" validate:"required"`
	Direction string `json:"direction" validate:"omitempty,oneof=asc desc ascending descending ASC DESC"`
}

// QueryRequest is the JSON body of the query and export endpoints.
type QueryRequest struct {
	Filters   []FilterPayload   `json:"filters" validate:"max=64,dive"`
	DateRange *DateRangePayload `json:"dateRange"`
	Logic     string            `json:"logic" validate:"omitempty,oneof=AND OR and or"`
	View      string            `json:"view"`
	Sort      *SortPayload      `json:"sort"`
	Strict    bool              `json:"strict"`
	Limit     int               `json:"limit" validate:"min=0,max=100000"`
	Offset    int               `json:"offset" validate:"min=0"`
}

// ExportRequest adds the output format and download name to a query.
type ExportRequest struct {
	QueryRequest
	Format   string `json:"format" validate:"omitempty,oneof=csv xlsx parquet excel"`
	FileName string `json:"fileName" validate:"max=200"`
}

// SessionInfo describes a session without its rows.
type SessionInfo struct {
	ID         uuid.UUID       `json:"id"`
	FileName   string          `json:"fileName"`
	Rows       int             `json:"rows"`
	Columns    []domain.Column `json:"columns"`
	LoadError  string          `json:"loadError,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	LastAccess time.Time       `json:"lastAccess"`
}

// SessionManager is the part of the session store the handler needs.
type SessionManager interface {
	SessionSource
	Delete(id uuid.UUID) error
}

// Handler exposes the dashboard over HTTP.
type Handler struct {
	service  *Service
	sessions SessionManager
}

// NewHTTPHandler wraps the service.
func NewHTTPHandler(service *Service, sessions SessionManager) *Handler {
	return &Handler{service: service, sessions: sessions}
}

// Routes mounts the session scoped endpoints under /api/sessions/{id}.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Session)
	r.Delete("/", h.Delete)
	r.Post("/query", h.Query)
	r.Get("/options/{column}", h.Options)
	r.Post("/export", h.Export)
}

// Query renders the dashboard for the posted filter configuration.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req QueryRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err)
		return
	}
	query, err := req.toQuery()
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Render(r.Context(), sessionID, query)
	if err != nil {
		httpjson.Error(w, statusFor(err), err)
		return
	}
	httpjson.Write(w, http.StatusOK, result)
}

// Options lists the distinct values of a column.
func (h *Handler) Options(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	column, err := url.PathUnescape(chi.URLParam(r, "column"))
	if err != nil || strings.TrimSpace(column) == "" {
		httpjson.Error(w, http.StatusBadRequest, errors.New("invalid column name"))
		return
	}

	values, err := h.service.Options(r.Context(), sessionID, column)
	if err != nil {
		httpjson.Error(w, statusFor(err), err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"column": column, "values": values})
}

// Export streams the filtered rows as a file download.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req ExportRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err)
		return
	}
	query, err := req.toQuery()
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err)
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err)
		return
	}

	var buf bytes.Buffer
	result, err := h.service.Export(r.Context(), sessionID, query, format, &buf)
	if err != nil {
		httpjson.Error(w, statusFor(err), err)
		return
	}

	name := req.FileName
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("%s data", query.View)
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(name, format)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Rows-Exported", strconv.Itoa(result.RowsExported))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Session reports the session's file and schema.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		httpjson.Error(w, statusFor(err), err)
		return
	}
	httpjson.Write(w, http.StatusOK, SessionInfo{
		ID:         sess.ID,
		FileName:   sess.FileName,
		Rows:       sess.Table.Len(),
		Columns:    append([]domain.Column{}, sess.Table.Schema.Columns...),
		LoadError:  sess.LoadError,
		CreatedAt:  sess.CreatedAt,
		LastAccess: sess.LastAccess,
	})
}

// Delete discards the session and its table.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Delete(sessionID); err != nil {
		httpjson.Error(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sessionID parses the {id} path parameter and checks it against the caller scope.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, fmt.Errorf("invalid session id: %w", err))
		return uuid.Nil, false
	}
	if err := auth.EnforceSessionScope(r.Context(), id); err != nil {
		httpjson.Error(w, statusFor(err), err)
		return uuid.Nil, false
	}
	return id, true
}

func (req QueryRequest) toQuery() (Query, error) {
	view, err := domain.ParseView(req.View)
	if err != nil {
		return Query{}, err
	}
	set := domain.FilterSet{
		Logic:   domain.ParseLogic(req.Logic),
		Columns: make([]domain.ColumnFilter, 0, len(req.Filters)),
	}
	for _, f := range req.Filters {
		mode := domain.FilterMode(f.Mode)
		if mode == "" {
			mode = domain.FilterModeText
			if len(f.Values) > 0 && strings.TrimSpace(f.Expression) == "" {
				mode = domain.FilterModeMultiSelect
			}
		}
		set.Columns = append(set.Columns, domain.ColumnFilter{
			Column:     f.Column,
			Mode:       mode,
			Expression: f.Expression,
			Values:     f.Values,
		})
	}
	if req.DateRange != nil {
		start, startOK := dateBound(req.DateRange.Start)
		end, endOK := dateBound(req.DateRange.End)
		set.DateRange = &domain.DateRange{
			Column:  req.DateRange.Column,
			Start:   start,
			End:     end,
			Invalid: !startOK || !endOK,
		}
	}
	var order *domain.Sort
	if req.Sort != nil {
		direction, err := domain.ParseSortDirection(req.Sort.Direction)
		if err != nil {
			return Query{}, err
		}
		order = &domain.Sort{Column: req.Sort.Column, Direction: direction}
	}
	return Query{
		Filters: set,
		Sort:    order,
		View:    view,
		Strict:  req.Strict,
		Limit:   req.Limit,
		Offset:  req.Offset,
	}, nil
}

// dateBound returns nil for a blank bound and false for an unreadable one.
func dateBound(raw string) (*time.Time, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	ts, err := filter.ParseDate(raw)
	if err != nil {
		return nil, false
	}
	return &ts, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrOutOfScope):
		return http.StatusForbidden
	case errors.Is(err, filter.ErrUnknownColumns), errors.Is(err, ErrUnknownColumn):
		return http.StatusUnprocessableEntity
	case errors.Is(err, export.ErrUnsupportedExport):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
