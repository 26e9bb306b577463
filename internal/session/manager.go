package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/internship-compass/internal/completion"
	"github.com/jonathan/internship-compass/internal/dom"
	"github.com/jonathan/internship-compass/internal/i18n"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 30 * time.Minute

// DefaultMaxSessions bounds how many sessions are kept live at once.
const DefaultMaxSessions = 10000

// DocumentFactory builds the initial document for a new session.
type DocumentFactory func() (*dom.Document, error)

// Manager creates, finds and expires sessions.
type Manager struct {
	translator completion.Translator
	newDoc     DocumentFactory
	ttl        time.Duration
	max        int
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. A ttl of zero uses DefaultTTL.
func NewManager(translator completion.Translator, newDoc DocumentFactory, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		translator: translator,
		newDoc:     newDoc,
		ttl:        ttl,
		max:        DefaultMaxSessions,
		now:        time.Now,
		sessions:   make(map[string]*Session),
	}
}

// SetMaxSessions changes the live session cap. Values below one restore the default.
func (m *Manager) SetMaxSessions(n int) {
	if n < 1 {
		n = DefaultMaxSessions
	}
	m.mu.Lock()
	m.max = n
	m.mu.Unlock()
}

// Get returns a live session and marks it as used.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	s.touch(m.now())
	return s, true
}

// Create starts a new session with a fresh document. At the cap, the least
// recently used session is closed to make room.
func (m *Manager) Create() (*Session, error) {
	doc, err := m.newDoc()
	if err != nil {
		return nil, fmt.Errorf("failed to build session document: %w", err)
	}

	s := New(uuid.NewString(), doc, i18n.NewCache(m.translator))
	s.touch(m.now())

	m.mu.Lock()
	limit := m.max
	var evicted []*Session
	for len(m.sessions) >= limit {
		oldest := m.oldestLocked()
		delete(m.sessions, oldest.ID)
		evicted = append(evicted, oldest)
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()

	for _, old := range evicted {
		log.Printf("[session] evicted %s: session limit %d reached", old.ID, limit)
		old.Close()
	}
	return s, nil
}

func (m *Manager) oldestLocked() *Session {
	var oldest *Session
	var at time.Time
	for _, s := range m.sessions {
		if seen := s.idleSince(); oldest == nil || seen.Before(at) {
			oldest, at = s, seen
		}
	}
	return oldest
}

// GetOrCreate returns the session for id, creating one when id is unknown.
func (m *Manager) GetOrCreate(id string) (*Session, bool, error) {
	if id != "" {
		if s, ok := m.Get(id); ok {
			return s, false, nil
		}
	}
	s, err := m.Create()
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Remove closes and forgets a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the ttl and returns how many.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				log.Printf("[session] expired %d idle sessions", n)
			}
		}
	}
}
