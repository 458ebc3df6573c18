package safety

import (
	"context"
	"sync"
	"time"

	"duel-arena/internal/engine"
)

// DefaultGrace is how long a disconnected player may come back.
const DefaultGrace = 30 * time.Second

// SnapshotKey identifies one player in one match.
type SnapshotKey struct {
	MatchID string
	UserID  string
}

type snapshotEntry struct {
	state   engine.CombatState
	takenAt time.Time
}

// DisconnectStore keeps the last CombatState of disconnected players for a
// bounded grace window.
type DisconnectStore struct {
	mu      sync.Mutex
	entries map[SnapshotKey]snapshotEntry
	grace   time.Duration
	now     func() time.Time
}

// NewDisconnectStore creates a store. A nil clock uses time.Now.
func NewDisconnectStore(grace time.Duration, clock func() time.Time) *DisconnectStore {
	if grace <= 0 {
		grace = DefaultGrace
	}
	if clock == nil {
		clock = time.Now
	}
	return &DisconnectStore{
		entries: make(map[SnapshotKey]snapshotEntry),
		grace:   grace,
		now:     clock,
	}
}

// Grace returns the reconnect window.
func (s *DisconnectStore) Grace() time.Duration {
	return s.grace
}

// Save records state for a player who just disconnected. A newer save
// replaces an older one.
func (s *DisconnectStore) Save(matchID, userID string, state engine.CombatState) {
	s.mu.Lock()
	s.entries[SnapshotKey{matchID, userID}] = snapshotEntry{state: state, takenAt: s.now()}
	s.mu.Unlock()
}

// CanReconnect reports whether a snapshot exists and is within grace.
func (s *DisconnectStore) CanReconnect(matchID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[SnapshotKey{matchID, userID}]
	return ok && s.within(e)
}

// GetSnapshot returns and deletes the snapshot. It succeeds at most once
// per Save and only within the grace window.
func (s *DisconnectStore) GetSnapshot(matchID, userID string) (engine.CombatState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := SnapshotKey{matchID, userID}
	e, ok := s.entries[key]
	if !ok {
		return engine.CombatState{}, false
	}
	delete(s.entries, key)
	if !s.within(e) {
		return engine.CombatState{}, false
	}
	return e.state, true
}

// Remove drops any snapshot for the player.
func (s *DisconnectStore) Remove(matchID, userID string) {
	s.mu.Lock()
	delete(s.entries, SnapshotKey{matchID, userID})
	s.mu.Unlock()
}

// RemoveMatch drops every snapshot belonging to matchID.
func (s *DisconnectStore) RemoveMatch(matchID string) {
	s.mu.Lock()
	for key := range s.entries {
		if key.MatchID == matchID {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}

// Sweep deletes expired snapshots and returns their keys.
func (s *DisconnectStore) Sweep() []SnapshotKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []SnapshotKey
	for key, e := range s.entries {
		if !s.within(e) {
			delete(s.entries, key)
			expired = append(expired, key)
		}
	}
	return expired
}

// Run sweeps every interval until ctx is done.
func (s *DisconnectStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Len returns the number of stored snapshots.
func (s *DisconnectStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *DisconnectStore) within(e snapshotEntry) bool {
	return s.now().Sub(e.takenAt) < s.grace
}
