package ingestion

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rpattn/tradeboard/internal/auth"
	"github.com/rpattn/tradeboard/internal/domain"
	"github.com/rpattn/tradeboard/internal/httpjson"
	"github.com/rpattn/tradeboard/internal/session"
)

// SessionStore is the part of the session store uploads need.
type SessionStore interface {
	Create(fileName string, table domain.Table, loadErr error) session.Session
	Replace(id uuid.UUID, fileName string, table domain.Table, loadErr error) (session.Session, error)
	Delete(id uuid.UUID) error
}

// UploadResponse is returned for every accepted upload, including ones whose
// workbook lacked the data sheet.
type UploadResponse struct {
	SessionID uuid.UUID `json:"sessionId"`
	Summary   Summary   `json:"summary"`
	Error     string    `json:"error,omitempty"`
}

// Handler exposes ingestion over HTTP.
type Handler struct {
	service  *Service
	sessions SessionStore
	maxBytes int64
}

// NewHTTPHandler wraps the service. maxBytes caps the multipart body.
func NewHTTPHandler(service *Service, sessions SessionStore, maxBytes int64) *Handler {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &Handler{service: service, sessions: sessions, maxBytes: maxBytes}
}

// Upload loads the multipart `file` field into a session. A session id given
// by the scope header or the `sessionId` form field is replaced; otherwise a
// new session is created.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxBytes {
		httpjson.Error(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", h.maxBytes))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpjson.Error(w, status, fmt.Errorf("invalid form data: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, fmt.Errorf("file required: %w", err))
		return
	}
	defer file.Close()

	targetID, err := h.targetSession(r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, auth.ErrOutOfScope) {
			status = http.StatusForbidden
		}
		httpjson.Error(w, status, err)
		return
	}

	created := false
	if targetID == uuid.Nil {
		sess := h.sessions.Create(header.Filename, domain.Table{}, nil)
		targetID = sess.ID
		created = true
	}

	table, summary, loadErr := h.service.Load(r.Context(), Request{
		SessionID: targetID,
		FileName:  header.Filename,
		Data:      file,
	})
	if loadErr != nil && !errors.Is(loadErr, ErrSheetNotFound) {
		if created {
			_ = h.sessions.Delete(targetID)
		}
		httpjson.Error(w, loadStatus(loadErr), loadErr)
		return
	}

	if _, err := h.sessions.Replace(targetID, header.Filename, table, loadErr); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		httpjson.Error(w, status, err)
		return
	}

	response := UploadResponse{SessionID: targetID, Summary: summary}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	if loadErr != nil {
		response.Error = loadErr.Error()
		status = http.StatusUnprocessableEntity
	}

	log.Info().
		Str("component", "ingestion").
		Str("session", targetID.String()).
		Str("file", header.Filename).
		Bool("created", created).
		Int("rows", summary.TotalRows).
		Msg("upload stored in session")

	httpjson.Write(w, status, response)
}

// Logs lists the upload problems recorded for a session.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sessionID, ok := auth.SessionIDFromContext(r.Context())
	if raw := strings.TrimSpace(query.Get("sessionId")); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httpjson.Error(w, http.StatusBadRequest, fmt.Errorf("invalid session id: %w", err))
			return
		}
		sessionID, ok = parsed, true
	}
	if !ok {
		httpjson.Error(w, http.StatusBadRequest, errors.New("sessionId is required"))
		return
	}
	if err := auth.EnforceSessionScope(r.Context(), sessionID); err != nil {
		httpjson.Error(w, http.StatusForbidden, err)
		return
	}

	limit, err := intParam(query.Get("limit"), 200)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err)
		return
	}
	offset, err := intParam(query.Get("offset"), 0)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err)
		return
	}

	entries, err := h.service.UploadLogs(r.Context(), sessionID, limit, offset)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUploadLogDisabled) {
			status = http.StatusServiceUnavailable
		}
		httpjson.Error(w, status, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"logs": entries})
}

// targetSession picks the session to replace. A form id must match the
// caller's scope when one is set.
func (h *Handler) targetSession(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.FormValue("sessionId"))
	if raw == "" {
		scoped, _ := auth.SessionIDFromContext(r.Context())
		return scoped, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session id: %w", err)
	}
	if err := auth.EnforceSessionScope(r.Context(), id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func loadStatus(err error) int {
	if errors.Is(err, ErrUnsupportedFormat) {
		return http.StatusUnsupportedMediaType
	}
	return http.StatusBadRequest
}

func intParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return value, nil
}
