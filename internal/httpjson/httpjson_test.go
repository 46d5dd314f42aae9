package httpjson

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Name  string `json:"name" validate:"required"`
	Limit int    `json:"limit" validate:"min=0"`
}

func TestDecodeValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","limit":3}`))
	var dst body
	require.NoError(t, Decode(req, &dst))
	assert.Equal(t, body{Name: "x", Limit: 3}, dst)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"limit":-1}`))
	err := Decode(req, &body{})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	Error(rec, http.StatusBadRequest, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field": "name"`)
	assert.Contains(t, rec.Body.String(), `"field": "limit"`)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	err := Decode(req, &body{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON body")
}

func TestErrorPlain(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusNotFound, errors.New("session not found"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"error": "session not found"`)
}
