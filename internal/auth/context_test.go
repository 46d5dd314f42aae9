package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestEnforceSessionScope(t *testing.T) {
	id := uuid.New()

	if err := EnforceSessionScope(context.Background(), id); err != nil {
		t.Fatalf("unscoped request should pass, got %v", err)
	}
	if err := EnforceSessionScope(context.Background(), uuid.Nil); err == nil {
		t.Fatalf("expected nil session id to be rejected")
	}

	scoped := ContextWithSessionID(context.Background(), id)
	if err := EnforceSessionScope(scoped, id); err != nil {
		t.Fatalf("matching scope should pass, got %v", err)
	}
	if err := EnforceSessionScope(scoped, uuid.New()); !errors.Is(err, ErrOutOfScope) {
		t.Fatalf("expected mismatched scope to be rejected, got %v", err)
	}
}

func TestSessionScopeMiddleware(t *testing.T) {
	id := uuid.New()
	var seen uuid.UUID
	handler := SessionScope(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SessionHeader, id.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen != id {
		t.Fatalf("expected scoped request, got status %d id %s", rec.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SessionHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed header, got %d", rec.Code)
	}
}
