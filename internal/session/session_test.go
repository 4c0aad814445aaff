package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestManager returns a manager with no sweeper and a controllable clock.
func newTestManager(t *testing.T, cfg Config) (*Manager, *time.Time) {
	t.Helper()
	m := NewManager(cfg, nil)
	t.Cleanup(m.Close)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	m.now = func() time.Time { return *clock }
	return m, clock
}

func TestCreateAndAppend(t *testing.T) {
	m, _ := newTestManager(t, Config{IdleTimeout: time.Hour})

	id := m.Create()
	if id == "" {
		t.Fatal("Create() returned empty id")
	}

	if err := m.AppendTurn(id, RoleUser, "hello"); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	if err := m.AppendTurn(id, RoleAssistant, "hi there"); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	turns := m.History(id, 0)
	if len(turns) != 2 {
		t.Fatalf("History returned %d turns, want 2", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Text != "hello" {
		t.Errorf("first turn = %+v", turns[0])
	}
	if turns[1].Role != RoleAssistant || turns[1].Text != "hi there" {
		t.Errorf("second turn = %+v", turns[1])
	}
}

func TestAppendUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, Config{IdleTimeout: time.Hour})

	if err := m.AppendTurn("no-such-id", RoleUser, "hello"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHistoryUnknownSessionIsEmpty(t *testing.T) {
	m, _ := newTestManager(t, Config{IdleTimeout: time.Hour})

	if turns := m.History("no-such-id", 0); len(turns) != 0 {
		t.Errorf("History for unknown session returned %d turns, want 0", len(turns))
	}
}

// History with a positive limit returns exactly the most recent turns,
// oldest first; zero returns everything.
func TestHistoryLimit(t *testing.T) {
	m, _ := newTestManager(t, Config{IdleTimeout: time.Hour})

	id := m.Create()
	for i := 1; i <= 5; i++ {
		if err := m.AppendTurn(id, RoleUser, fmt.Sprintf("turn-%d", i)); err != nil {
			t.Fatalf("AppendTurn %d failed: %v", i, err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"window of two", 2, []string{"turn-4", "turn-5"}},
		{"exact length", 5, []string{"turn-1", "turn-2", "turn-3", "turn-4", "turn-5"}},
		{"beyond length", 10, []string{"turn-1", "turn-2", "turn-3", "turn-4", "turn-5"}},
		{"zero means all", 0, []string{"turn-1", "turn-2", "turn-3", "turn-4", "turn-5"}},
		{"single newest", 1, []string{"turn-5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := m.History(id, tt.limit)
			if len(turns) != len(tt.want) {
				t.Fatalf("History(%d) returned %d turns, want %d", tt.limit, len(turns), len(tt.want))
			}
			for i, text := range tt.want {
				if turns[i].Text != text {
					t.Errorf("turn %d = %q, want %q", i, turns[i].Text, text)
				}
			}
		})
	}
}

func TestTurnCapDropsOldest(t *testing.T) {
	m, _ := newTestManager(t, Config{IdleTimeout: time.Hour, MaxTurns: 4})

	id := m.Create()
	for i := range 6 {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := m.AppendTurn(id, role, fmt.Sprintf("turn-%d", i)); err != nil {
			t.Fatalf("AppendTurn %d failed: %v", i, err)
		}
	}

	turns := m.History(id, 0)
	if len(turns) != 4 {
		t.Fatalf("History returned %d turns, want cap of 4", len(turns))
	}
	// The most recent turn always survives.
	if turns[len(turns)-1].Text != "turn-5" {
		t.Errorf("last turn = %q, want turn-5", turns[len(turns)-1].Text)
	}
	if turns[0].Text != "turn-2" {
		t.Errorf("first turn = %q, want turn-2 (oldest dropped)", turns[0].Text)
	}
}

func TestIdleExpiry(t *testing.T) {
	m, clock := newTestManager(t, Config{IdleTimeout: 30 * time.Minute})

	id := m.Create()
	if err := m.AppendTurn(id, RoleUser, "hello"); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	// Just under the timeout the session is still live.
	*clock = clock.Add(29 * time.Minute)
	if err := m.AppendTurn(id, RoleAssistant, "still here"); err != nil {
		t.Fatalf("AppendTurn before expiry failed: %v", err)
	}

	// Activity refreshed the clock; now push past the timeout.
	*clock = clock.Add(31 * time.Minute)
	if err := m.AppendTurn(id, RoleUser, "too late"); !errors.Is(err, ErrNotFound) {
		t.Errorf("append to expired session: got %v, want ErrNotFound", err)
	}
	if turns := m.History(id, 0); len(turns) != 0 {
		t.Errorf("expired session history has %d turns, want 0", len(turns))
	}
}

func TestClear(t *testing.T) {
	m, _ := newTestManager(t, Config{IdleTimeout: time.Hour})

	id := m.Create()
	_ = m.AppendTurn(id, RoleUser, "hello")
	_ = m.SetEntities(id, []string{"Firefox Sync"})

	if err := m.Clear(id); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if turns := m.History(id, 0); len(turns) != 0 {
		t.Errorf("history after Clear has %d turns", len(turns))
	}
	if ents := m.Entities(id); len(ents) != 0 {
		t.Errorf("entities after Clear = %v", ents)
	}
	// Session itself survives
	if err := m.AppendTurn(id, RoleUser, "again"); err != nil {
		t.Errorf("append after Clear failed: %v", err)
	}

	if err := m.Clear("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Clear unknown session: got %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	m, _ := newTestManager(t, Config{IdleTimeout: time.Hour})

	id := m.Create()
	if err := m.Delete(id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := m.Delete(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
}

func TestEntities(t *testing.T) {
	m, _ := newTestManager(t, Config{IdleTimeout: time.Hour})

	id := m.Create()
	if err := m.SetEntities(id, []string{"Firefox Sync", "Private Browsing"}); err != nil {
		t.Fatalf("SetEntities failed: %v", err)
	}

	ents := m.Entities(id)
	if len(ents) != 2 || ents[0] != "Firefox Sync" {
		t.Errorf("Entities = %v", ents)
	}

	// Returned slice is a copy
	ents[0] = "mutated"
	if m.Entities(id)[0] != "Firefox Sync" {
		t.Error("Entities returned a shared slice")
	}
}

func TestCount(t *testing.T) {
	m, clock := newTestManager(t, Config{IdleTimeout: 10 * time.Minute})

	m.Create()
	m.Create()
	if got := m.Count(); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}

	*clock = clock.Add(11 * time.Minute)
	if got := m.Count(); got != 0 {
		t.Errorf("Count after expiry = %d, want 0", got)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	m, clock := newTestManager(t, Config{IdleTimeout: 10 * time.Minute})

	m.Create()
	m.Create()
	*clock = clock.Add(11 * time.Minute)
	live := m.Create()

	if n := m.sweep(); n != 2 {
		t.Errorf("sweep removed %d sessions, want 2", n)
	}

	m.mu.RLock()
	remaining := len(m.sessions)
	m.mu.RUnlock()
	if remaining != 1 {
		t.Errorf("%d sessions remain, want 1", remaining)
	}
	if err := m.AppendTurn(live, RoleUser, "hello"); err != nil {
		t.Errorf("live session unusable after sweep: %v", err)
	}
}

// Eviction marks the entry dead before removing it from the table, so a
// writer that resolved the entry just before the sweep cannot land a
// turn in the orphaned entry.
func TestSweepMarksEntriesDead(t *testing.T) {
	m, clock := newTestManager(t, Config{IdleTimeout: 10 * time.Minute})

	id := m.Create()
	if err := m.AppendTurn(id, RoleUser, "hello"); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	m.mu.RLock()
	e := m.sessions[id]
	m.mu.RUnlock()

	*clock = clock.Add(11 * time.Minute)
	if n := m.sweep(); n != 1 {
		t.Fatalf("sweep removed %d sessions, want 1", n)
	}

	e.mu.Lock()
	evicted := e.evicted
	e.mu.Unlock()
	if !evicted {
		t.Error("swept entry not marked dead")
	}

	if err := m.AppendTurn(id, RoleUser, "too late"); !errors.Is(err, ErrNotFound) {
		t.Errorf("append after sweep: got %v, want ErrNotFound", err)
	}
	e.mu.Lock()
	turns := len(e.turns)
	e.mu.Unlock()
	if turns != 1 {
		t.Errorf("orphaned entry has %d turns, want 1", turns)
	}
}

func TestDeleteMarksEntryDead(t *testing.T) {
	m, _ := newTestManager(t, Config{IdleTimeout: time.Hour})

	id := m.Create()
	m.mu.RLock()
	e := m.sessions[id]
	m.mu.RUnlock()

	if err := m.Delete(id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.evicted {
		t.Error("deleted entry not marked dead")
	}
}

// Sweeper goroutine shuts down cleanly; goleak in TestMain verifies.
func TestSweeperLifecycle(t *testing.T) {
	m := NewManager(Config{IdleTimeout: time.Hour, SweepInterval: time.Millisecond}, nil)
	id := m.Create()
	_ = m.AppendTurn(id, RoleUser, "hello")
	time.Sleep(5 * time.Millisecond)
	m.Close()
	m.Close() // idempotent
}

// Concurrent appends to the same session must not lose turns, and
// appends across sessions must not interfere.
func TestConcurrentAppends(t *testing.T) {
	m, _ := newTestManager(t, Config{IdleTimeout: time.Hour})

	const goroutines = 8
	const perGoroutine = 25

	shared := m.Create()
	var wg sync.WaitGroup
	for g := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			own := m.Create()
			for i := range perGoroutine {
				if err := m.AppendTurn(shared, RoleUser, fmt.Sprintf("g%d-%d", g, i)); err != nil {
					t.Errorf("append to shared session failed: %v", err)
				}
				if err := m.AppendTurn(own, RoleUser, "mine"); err != nil {
					t.Errorf("append to own session failed: %v", err)
				}
			}
			if got := len(m.History(own, 0)); got != perGoroutine {
				t.Errorf("own session has %d turns, want %d", got, perGoroutine)
			}
		}()
	}
	wg.Wait()

	if got := len(m.History(shared, 0)); got != goroutines*perGoroutine {
		t.Errorf("shared session has %d turns, want %d", got, goroutines*perGoroutine)
	}
}
