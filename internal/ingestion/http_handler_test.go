package ingestion

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/tradeboard/internal/auth"
	"github.com/rpattn/tradeboard/internal/domain"
	"github.com/rpattn/tradeboard/internal/session"
)

func multipartUpload(t *testing.T, fileName string, payload []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeUpload(t *testing.T, rec *httptest.ResponseRecorder) UploadResponse {
	t.Helper()
	var response UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return response
}

func TestUploadCreatesSession(t *testing.T) {
	store := session.NewStore()
	handler := NewHTTPHandler(NewService(nil), store, 0)

	rec := httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "trades.csv", []byte("Shape,Price\nRound,10\n"), nil))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	response := decodeUpload(t, rec)
	assert.Equal(t, 1, response.Summary.TotalRows)

	sess, err := store.Get(response.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "trades.csv", sess.FileName)
	assert.Equal(t, 1, sess.Table.Len())
}

func TestUploadReplacesScopedSession(t *testing.T) {
	store := session.NewStore()
	handler := NewHTTPHandler(NewService(nil), store, 0)
	existing := store.Create("old.csv", domain.Table{}, nil)

	req := multipartUpload(t, "new.csv", []byte("Shape\nRound\nOval\n"), nil)
	req = req.WithContext(auth.ContextWithSessionID(req.Context(), existing.ID))
	rec := httptest.NewRecorder()
	handler.Upload(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, existing.ID, decodeUpload(t, rec).SessionID)
	assert.Equal(t, 1, store.Len())

	sess, err := store.Get(existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "new.csv", sess.FileName)
	assert.Equal(t, 2, sess.Table.Len())
}

func TestUploadMissingSheetKeepsEmptySession(t *testing.T) {
	store := session.NewStore()
	handler := NewHTTPHandler(NewService(nil), store, 0)
	payload := workbook(t, map[string][][]any{"Sheet1": tradeRows})

	rec := httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "trades.xlsx", payload, nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	response := decodeUpload(t, rec)
	assert.Contains(t, response.Error, "sheet not found")

	sess, err := store.Get(response.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Table.Len())
	assert.Contains(t, sess.LoadError, "sheet not found")
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	store := session.NewStore()
	handler := NewHTTPHandler(NewService(nil), store, 0)

	rec := httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "trades.pdf", []byte("%PDF"), nil))

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, 0, store.Len(), "failed uploads must not leave sessions behind")
}

func TestUploadUnknownSessionID(t *testing.T) {
	handler := NewHTTPHandler(NewService(nil), session.NewStore(), 0)

	rec := httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "trades.csv", []byte("Shape\nRound\n"), map[string]string{
		"sessionId": uuid.NewString(),
	}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadRequiresFile(t *testing.T) {
	handler := NewHTTPHandler(NewService(nil), session.NewStore(), 0)

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	handler.Upload(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadTooLarge(t *testing.T) {
	handler := NewHTTPHandler(NewService(nil), session.NewStore(), 64)

	rec := httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "trades.csv", bytes.Repeat([]byte("a"), 4096), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLogsEndpoint(t *testing.T) {
	repo := &stubLogRepo{}
	sessionID := uuid.New()
	handler := NewHTTPHandler(NewService(repo), session.NewStore(), 0)
	row := 3
	require.NoError(t, repo.Record(context.Background(), uploadEntry(sessionID, &row)))

	rec := httptest.NewRecorder()
	handler.Logs(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/logs?sessionId="+sessionID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"column": "Price"`)
	assert.Contains(t, rec.Body.String(), `"row_number": 3`)

	rec = httptest.NewRecorder()
	handler.Logs(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/logs", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.Logs(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/logs?sessionId="+sessionID.String()+"&limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	scoped := httptest.NewRequest(http.MethodGet, "/api/uploads/logs?sessionId="+sessionID.String(), nil)
	scoped = scoped.WithContext(auth.ContextWithSessionID(scoped.Context(), uuid.New()))
	rec = httptest.NewRecorder()
	handler.Logs(rec, scoped)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogsEndpointDisabled(t *testing.T) {
	handler := NewHTTPHandler(NewService(nil), session.NewStore(), 0)

	rec := httptest.NewRecorder()
	handler.Logs(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/logs?sessionId="+uuid.NewString(), nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func uploadEntry(sessionID uuid.UUID, row *int) domain.UploadLogEntry {
	return domain.UploadLogEntry{
		SessionID:    sessionID,
		FileName:     "trades.xlsx",
		SheetName:    DefaultSheetName,
		RowNumber:    row,
		Column:       "Price",
		ErrorMessage: `unable to coerce "n/a" to integer`,
	}
}

func TestUploadRejectsFormSessionOutsideScope(t *testing.T) {
	store := session.NewStore()
	handler := NewHTTPHandler(NewService(nil), store, 0)
	scoped := store.Create("scoped.csv", domain.Table{}, nil)
	other := store.Create("other.csv", domain.Table{}, nil)

	req := multipartUpload(t, "new.csv", []byte("Shape\nRound\n"), map[string]string{"sessionId": other.ID.String()})
	req = req.WithContext(auth.ContextWithSessionID(req.Context(), scoped.ID))
	rec := httptest.NewRecorder()
	handler.Upload(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	for _, id := range []uuid.UUID{scoped.ID, other.ID} {
		sess, err := store.Get(id)
		require.NoError(t, err)
		assert.NotEqual(t, "new.csv", sess.FileName)
	}

	req = multipartUpload(t, "new.csv", []byte("Shape\nRound\n"), map[string]string{"sessionId": scoped.ID.String()})
	req = req.WithContext(auth.ContextWithSessionID(req.Context(), scoped.ID))
	rec = httptest.NewRecorder()
	handler.Upload(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, scoped.ID, decodeUpload(t, rec).SessionID)
}
