// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and counts deactivation calls

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session        // keyed by session name
	contacts map[string]*ContactMapping // keyed by "session:identifier"
	nextID   int64

	// Deactivations counts DeactivateSession calls that changed a record
	Deactivations int
	// Err, when set, is returned by every method
	Err error

	closed bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*Session),
		contacts: make(map[string]*ContactMapping),
	}
}

// GetActiveSession returns a copy of the active session.
func (m *MockStore) GetActiveSession(ctx context.Context, name string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	s, ok := m.sessions[name]
	if !ok || !s.IsActive {
		return nil, ErrNotFound
	}
	result := *s
	return &result, nil
}

// DeactivateSession marks a session inactive.
func (m *MockStore) DeactivateSession(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return false, m.Err
	}
	s, ok := m.sessions[name]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	s.UpdatedAt = time.Now()
	m.Deactivations++
	return true, nil
}

// UpsertSession stores a copy of the session.
func (m *MockStore) UpsertSession(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if existing, ok := m.sessions[sess.Name]; ok {
		sess.ID = existing.ID
	} else {
		m.nextID++
		sess.ID = m.nextID
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now()
	}
	s := *sess
	m.sessions[s.Name] = &s
	return nil
}

// ListSessions returns copies of all sessions ordered by name.
func (m *MockStore) ListSessions(ctx context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		c := *s
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// SaveContact stores a copy of the mapping.
func (m *MockStore) SaveContact(ctx context.Context, c *ContactMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if c.ResolvedAt.IsZero() {
		c.ResolvedAt = time.Now()
	}
	mapping := *c
	m.contacts[c.SessionName+":"+c.Identifier] = &mapping
	return nil
}

// GetContact returns a copy of a stored mapping.
func (m *MockStore) GetContact(ctx context.Context, sessionName, identifier string) (*ContactMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	c, ok := m.contacts[sessionName+":"+identifier]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// Ping reports the configured error, if any.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Err
}

// SetErr sets Err under the store lock, for tests that share the store with
// running handlers.
func (m *MockStore) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// DeactivationCount returns Deactivations under the store lock.
func (m *MockStore) DeactivationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Deactivations
}

// Close marks the store closed. Data stays readable.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Compile-time interface checks
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
