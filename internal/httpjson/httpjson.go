package httpjson

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/rpattn/tradeboard/pkg/validator"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string                      `json:"error"`
	Fields []validator.ValidationError `json:"fields,omitempty"`
}

// Write encodes payload as the response body.
func Write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// Error writes an error response. Validation results keep their per-field detail.
func Error(w http.ResponseWriter, status int, err error) {
	body := ErrorBody{Error: err.Error()}
	var result validator.ValidationResult
	if errors.As(err, &result) {
		body.Error = "invalid request"
		body.Fields = result.Errors
	}
	Write(w, status, body)
}

// Decode reads a JSON body into dst and validates it. An empty body leaves dst untouched.
func Decode(r *http.Request, dst any) error {
	if r.Body != nil {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	return validator.Validate(dst)
}
