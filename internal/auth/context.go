package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// SessionHeader carries the caller's session identifier.
const SessionHeader = "X-Session-ID"

// ErrOutOfScope is returned when a request addresses a session other than its own.
var ErrOutOfScope = errors.New("session outside caller scope")

type contextKey string

const sessionIDKey contextKey = "sessionID"

// ContextWithSessionID returns a new context that carries the caller's session scope.
func ContextWithSessionID(ctx context.Context, id uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext retrieves the caller's session scope from the context, if any.
func SessionIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	value := ctx.Value(sessionIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	if !ok {
		return uuid.Nil, false
	}
	if id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// EnforceSessionScope ensures the addressed session matches the caller's scope when present.
func EnforceSessionScope(ctx context.Context, sessionID uuid.UUID) error {
	if sessionID == uuid.Nil {
		return fmt.Errorf("session id is required")
	}
	scopedID, ok := SessionIDFromContext(ctx)
	if !ok {
		return nil
	}
	if scopedID != sessionID {
		return fmt.Errorf("%w: %s", ErrOutOfScope, sessionID)
	}
	return nil
}

// SessionScope reads the session header into the request context. Malformed
// headers are rejected; absent headers leave the request unscoped.
func SessionScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(SessionHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid %s header: %v", SessionHeader, err), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithSessionID(r.Context(), id)))
	})
}
