// Package session manages in-memory multi-turn conversation state.
//
// Sessions are keyed by UUID. Appends to one session serialize on a
// per-session mutex; different sessions never contend with each other
// beyond the table lookup. A session expires after its idle timeout and
// is removed either lazily on access or by the periodic sweeper.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alexmeckes/SUMO-chatbot/internal/log"
)

// ErrNotFound indicates the session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one conversation message.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Config tunes the manager.
type Config struct {
	// IdleTimeout is how long a session survives without activity.
	IdleTimeout time.Duration
	// SweepInterval is how often the background sweeper runs.
	// Zero disables the sweeper; expired sessions are still evicted lazily.
	SweepInterval time.Duration
	// MaxTurns caps turns kept per session; oldest turns are dropped
	// beyond it. Zero means no cap.
	MaxTurns int
}

// entry is one live session. Its mutex serializes turn appends.
// evicted marks an entry already removed from the table; a caller that
// looked the entry up before removal must not write to it.
type entry struct {
	mu         sync.Mutex
	turns      []Turn
	entities   []string
	createdAt  time.Time
	lastActive time.Time
	evicted    bool
}

// Manager owns the session table. Safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	cfg    Config
	logger log.Logger

	now func() time.Time // replaced in tests

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewManager creates a session manager and starts the sweeper when
// SweepInterval is positive. Call Close to stop it.
func NewManager(cfg Config, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	m := &Manager{
		sessions: make(map[string]*entry),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		m.wg.Add(1)
		go m.sweepLoop()
	}
	return m
}

// Close stops the background sweeper. Idempotent.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

// Create registers a new session and returns its id.
func (m *Manager) Create() string {
	id := uuid.NewString()
	now := m.now()

	m.mu.Lock()
	m.sessions[id] = &entry{createdAt: now, lastActive: now}
	m.mu.Unlock()

	m.logger.Debug("session created", "session_id", id)
	return id
}

// AppendTurn appends a message to the session, refreshing its activity
// time. Unknown or expired sessions return ErrNotFound; the expired
// session is evicted on the way out.
func (m *Manager) AppendTurn(id string, role Role, text string) error {
	e, ok := m.lookup(id)
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// The sweeper may have removed the entry between lookup and here.
	if e.evicted {
		return ErrNotFound
	}
	e.turns = append(e.turns, Turn{Role: role, Text: text, At: m.now()})
	if m.cfg.MaxTurns > 0 && len(e.turns) > m.cfg.MaxTurns {
		// Drop oldest; shift within the same backing array to avoid
		// holding dropped turns alive.
		over := len(e.turns) - m.cfg.MaxTurns
		e.turns = append(e.turns[:0], e.turns[over:]...)
	}
	e.lastActive = m.now()
	return nil
}

// History returns a copy of the session's most recent maxTurns turns in
// chronological order; maxTurns <= 0 returns them all. Unknown or
// expired sessions yield an empty slice, not an error: the caller
// starts a fresh conversation transparently.
func (m *Manager) History(id string, maxTurns int) []Turn {
	e, ok := m.lookup(id)
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return nil
	}
	window := e.turns
	if maxTurns > 0 && len(window) > maxTurns {
		window = window[len(window)-maxTurns:]
	}
	turns := make([]Turn, len(window))
	copy(turns, window)
	return turns
}

// SetEntities replaces the coreference hints carried by the session.
func (m *Manager) SetEntities(id string, entities []string) error {
	e, ok := m.lookup(id)
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return ErrNotFound
	}
	e.entities = append([]string(nil), entities...)
	return nil
}

// Entities returns the session's coreference hints.
func (m *Manager) Entities(id string) []string {
	e, ok := m.lookup(id)
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return nil
	}
	return append([]string(nil), e.entities...)
}

// Clear empties the session's turns and entities but keeps the session
// alive. Unknown or expired sessions return ErrNotFound.
func (m *Manager) Clear(id string) error {
	e, ok := m.lookup(id)
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return ErrNotFound
	}
	e.turns = nil
	e.entities = nil
	e.lastActive = m.now()
	return nil
}

// Delete removes the session. Unknown sessions return ErrNotFound.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	m.evict(id, e)
	return nil
}

// evict marks the entry dead and removes it from the table.
// Caller holds m.mu.
func (m *Manager) evict(id string, e *entry) {
	e.mu.Lock()
	e.evicted = true
	e.mu.Unlock()
	delete(m.sessions, id)
}

// Count returns the number of live (non-expired) sessions.
func (m *Manager) Count() int {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.sessions {
		e.mu.Lock()
		expired := m.expired(e, now)
		e.mu.Unlock()
		if !expired {
			n++
		}
	}
	return n
}

// lookup fetches a live entry, evicting it lazily when expired.
func (m *Manager) lookup(id string) (*entry, bool) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	dead := e.evicted || m.expired(e, m.now())
	e.mu.Unlock()
	if dead {
		m.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// already replaced or removed the id.
		if cur, still := m.sessions[id]; still && cur == e {
			m.evict(id, e)
		}
		m.mu.Unlock()
		m.logger.Debug("session expired", "session_id", id)
		return nil, false
	}
	return e, true
}

// expired reports whether the entry has passed its idle timeout.
// Caller holds e.mu.
func (m *Manager) expired(e *entry, now time.Time) bool {
	if m.cfg.IdleTimeout <= 0 {
		return false
	}
	return now.Sub(e.lastActive) > m.cfg.IdleTimeout
}

// sweepLoop periodically removes expired sessions.
func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			if n := m.sweep(); n > 0 {
				m.logger.Debug("swept expired sessions", "count", n)
			}
		}
	}
}

// sweep removes all expired sessions and returns how many were dropped.
func (m *Manager) sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.sessions {
		e.mu.Lock()
		expired := m.expired(e, now)
		e.mu.Unlock()
		if expired {
			m.evict(id, e)
			n++
		}
	}
	return n
}
