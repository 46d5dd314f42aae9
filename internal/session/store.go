package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rpattn/tradeboard/internal/domain"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// Session is one user's uploaded table. The table is replaced wholesale on
// re-upload and never mutated in place.
type Session struct {
	ID         uuid.UUID    `json:"id"`
	FileName   string       `json:"fileName"`
	Table      domain.Table `json:"-"`
	LoadError  string       `json:"loadError,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	LastAccess time.Time    `json:"lastAccess"`
}

// Store keeps sessions in memory and evicts idle ones.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	ttl      time.Duration
	now      func() time.Time
}

// Option customizes the store.
type Option func(*Store)

// WithTTL sets the idle duration after which sessions are evicted.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	store := &Store{
		sessions: make(map[uuid.UUID]*Session),
		ttl:      2 * time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Create registers a new session owning table.
func (s *Store) Create(fileName string, table domain.Table, loadErr error) Session {
	now := s.now()
	session := &Session{
		ID:         uuid.New(),
		FileName:   fileName,
		Table:      table,
		CreatedAt:  now,
		LastAccess: now,
	}
	if loadErr != nil {
		session.LoadError = loadErr.Error()
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	return *session
}

// Get returns the session and refreshes its idle timer.
func (s *Store) Get(id uuid.UUID) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || s.expired(session) {
		delete(s.sessions, id)
		return Session{}, ErrSessionNotFound
	}
	session.LastAccess = s.now()
	return *session, nil
}

// Replace swaps the table of an existing session.
func (s *Store) Replace(id uuid.UUID, fileName string, table domain.Table, loadErr error) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || s.expired(session) {
		delete(s.sessions, id)
		return Session{}, ErrSessionNotFound
	}
	session.FileName = fileName
	session.Table = table
	session.LoadError = ""
	if loadErr != nil {
		session.LoadError = loadErr.Error()
	}
	session.LastAccess = s.now()
	return *session, nil
}

// Delete drops a session.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Sweep evicts idle sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if s.expired(session) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunJanitor sweeps idle sessions every interval until ctx is cancelled.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				log.Debug().Str("component", "session").Int("removed", removed).Int("live", s.Len()).Msg("evicted idle sessions")
			}
		}
	}
}

func (s *Store) expired(session *Session) bool {
	return s.now().Sub(session.LastAccess) > s.ttl
}
