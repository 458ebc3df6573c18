package match

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"duel-arena/internal/engine"
	"duel-arena/internal/protocol"
	"duel-arena/internal/safety"
	"duel-arena/internal/weapons"
)

// Config configures the Manager.
type Config struct {
	Instance   InstanceConfig
	Retention  time.Duration // how long Complete matches stay queryable
	MaxMatches int           // 0 means unlimited
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Instance:   DefaultInstanceConfig(),
		Retention:  30 * time.Second,
		MaxMatches: 500,
	}
}

// Deps are the collaborators injected into a Manager.
type Deps struct {
	Sink        BroadcastSink
	Results     ResultSink
	Catalog     *weapons.Catalog
	Limiter     *safety.RateLimiter
	Disconnects *safety.DisconnectStore
	Metrics     Metrics
	Clock       func() time.Time
}

type connInfo struct {
	userID  string
	matchID string
}

// Manager is the registry of running matches. It owns the routing maps;
// it never reaches into an instance's engine.
type Manager struct {
	cfg  Config
	deps Deps

	mu         sync.RWMutex
	matches    map[string]*Instance
	matchConns map[string]map[string]struct{} // matchID -> conn ids
	userMatch  map[string]string              // userID -> matchID
	conns      map[string]connInfo            // connID -> user and match

	closing bool
}

// NewManager creates a manager. Sink is required; every other dependency
// has a default.
func NewManager(cfg Config, deps Deps) *Manager {
	if deps.Catalog == nil {
		deps.Catalog = weapons.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Limiter == nil {
		deps.Limiter = safety.NewRateLimiter(safety.DefaultLimiterConfig, deps.Clock)
	}
	if deps.Disconnects == nil {
		deps.Disconnects = safety.NewDisconnectStore(cfg.Instance.Grace, deps.Clock)
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	return &Manager{
		cfg:        cfg,
		deps:       deps,
		matches:    make(map[string]*Instance),
		matchConns: make(map[string]map[string]struct{}),
		userMatch:  make(map[string]string),
		conns:      make(map[string]connInfo),
	}
}

// Catalog returns the weapon catalog matches are created with.
func (m *Manager) Catalog() *weapons.Catalog {
	return m.deps.Catalog
}

// CreateMatch validates the request and starts a new instance. Failures
// are *RejectError with a reason string.
func (m *Manager) CreateMatch(req CreateRequest) (*Instance, error) {
	parts, err := m.validateRequest(req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil, &RejectError{Reason: RejectServerFull}
	}
	if m.cfg.MaxMatches > 0 && m.activeCountLocked() >= m.cfg.MaxMatches {
		m.mu.Unlock()
		return nil, &RejectError{Reason: RejectServerFull}
	}
	for _, p := range parts {
		if p.IsCPU {
			continue
		}
		if id, busy := m.userMatch[p.ActorID]; busy {
			if inst, ok := m.matches[id]; ok {
				if st, _ := inst.Status(); st != StatusComplete {
					m.mu.Unlock()
					return nil, &RejectError{Reason: RejectAlreadyInMatch}
				}
			}
		}
	}

	id := uuid.NewString()
	inst, err := newInstance(id, parts, m.cfg.Instance, m.deps.Catalog, m, m.deps.Results, m.deps.Metrics, m.deps.Clock)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("create match: %w", err)
	}
	inst.onComplete = m.scheduleEviction
	m.matches[id] = inst
	m.matchConns[id] = make(map[string]struct{})
	for _, p := range parts {
		if !p.IsCPU {
			m.userMatch[p.ActorID] = id
		}
	}
	m.mu.Unlock()

	go inst.Run()
	log.Printf("🆕 Match %s created: %s vs %s", id, parts[0].ActorID, parts[1].ActorID)
	return inst, nil
}

func (m *Manager) validateRequest(req CreateRequest) ([2]Participant, error) {
	var parts [2]Participant
	if len(req.Participants) != 2 {
		return parts, &RejectError{Reason: RejectParticipantCount}
	}
	for k, p := range req.Participants {
		p.ActorID = strings.TrimSpace(p.ActorID)
		if p.ActorID == "" {
			if !p.IsCPU {
				return parts, &RejectError{Reason: RejectMissingActor}
			}
			p.ActorID = "cpu-" + uuid.NewString()[:8]
		}
		if p.WeaponID == "" {
			p.WeaponID = weapons.DefaultWeaponID
		}
		if !m.deps.Catalog.Has(p.WeaponID) {
			return parts, &RejectError{Reason: RejectUnknownWeapon}
		}
		p.Attributes = p.Attributes.Sanitized()
		parts[k] = p
	}
	if parts[0].ActorID == parts[1].ActorID {
		return parts, &RejectError{Reason: RejectSameActor}
	}
	if req.Creator != "" && !isHuman(parts, req.Creator) {
		return parts, &RejectError{Reason: RejectNotParticipant}
	}
	return parts, nil
}

func isHuman(parts [2]Participant, actorID string) bool {
	for _, p := range parts {
		if !p.IsCPU && p.ActorID == actorID {
			return true
		}
	}
	return false
}

func (m *Manager) activeCountLocked() int {
	n := 0
	for _, inst := range m.matches {
		if st, _ := inst.Status(); st != StatusComplete {
			n++
		}
	}
	return n
}

// Get returns a match by id.
func (m *Manager) Get(id string) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.matches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return inst, nil
}

// Summary is the list view of a match.
type Summary struct {
	ID                 string        `json:"id"`
	Status             string        `json:"status"`
	CountdownRemaining float64       `json:"countdownRemaining"`
	Participants       []Participant `json:"participants"`
	Tick               uint64        `json:"tick"`
	Winner             string        `json:"winner,omitempty"`
	Draw               bool          `json:"draw"`
	Connections        int           `json:"connections"`
	CreatedAt          time.Time     `json:"createdAt"`
}

// Summarize builds the list view of one instance.
func (m *Manager) Summarize(inst *Instance) Summary {
	st, remaining := inst.Status()
	snap := inst.Snapshot()
	created, _, _ := inst.Times()
	parts := inst.Participants()

	m.mu.RLock()
	conns := len(m.matchConns[inst.ID])
	m.mu.RUnlock()

	return Summary{
		ID:                 inst.ID,
		Status:             st.String(),
		CountdownRemaining: remaining,
		Participants:       parts[:],
		Tick:               snap.Tick,
		Winner:             snap.Winner,
		Draw:               snap.Draw,
		Connections:        conns,
		CreatedAt:          created,
	}
}

// List returns every registered match, newest first.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	insts := make([]*Instance, 0, len(m.matches))
	for _, inst := range m.matches {
		insts = append(insts, inst)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(insts))
	for _, inst := range insts {
		out = append(out, m.Summarize(inst))
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out
}

// Join attaches a connection to a match and acknowledges it with
// EventJoined. Participants become ready; everyone else spectates. A
// participant returning within the grace window gets the stored snapshot.
func (m *Manager) Join(connID, userID, matchID string) (protocol.JoinedPayload, error) {
	inst, err := m.Get(matchID)
	if err != nil {
		return protocol.JoinedPayload{}, err
	}
	st, _ := inst.Status()
	if st == StatusComplete {
		return protocol.JoinedPayload{}, fmt.Errorf("%w: %s", ErrMatchComplete, matchID)
	}

	m.mu.Lock()
	if prev, ok := m.conns[connID]; ok && prev.matchID != matchID {
		m.detachLocked(connID, prev.matchID)
	}
	m.conns[connID] = connInfo{userID: userID, matchID: matchID}
	if set, ok := m.matchConns[matchID]; ok {
		set[connID] = struct{}{}
	}
	m.mu.Unlock()

	joined := protocol.JoinedPayload{MatchID: matchID, Status: st.String()}
	if !inst.IsParticipant(userID) {
		joined.Spectator = true
		m.deps.Sink.Send([]string{connID}, protocol.EventJoined, joined)
		return joined, nil
	}

	joined.ActorID = userID
	snap, resumed := m.deps.Disconnects.GetSnapshot(matchID, userID)
	joined.Resumed = resumed
	// The ack goes out before any state so clients know their role first
	m.deps.Sink.Send([]string{connID}, protocol.EventJoined, joined)
	if resumed {
		inst.Reconnect(userID)
		m.deps.Sink.Send([]string{connID}, protocol.EventState, snap)
		log.Printf("🔌 %s rejoined match %s", userID, matchID)
	}
	inst.MarkReady(userID)
	return joined, nil
}

// HandleInput rate-limits, validates and buffers one input. Rate
// violations are dropped silently; rejections go back to connID only.
func (m *Manager) HandleInput(connID, userID string, p protocol.InputPayload) error {
	if !m.deps.Limiter.Allow(connID) {
		m.deps.Metrics.InputRateLimited()
		return nil
	}

	err := m.submit(userID, p)
	if err == nil {
		return nil
	}
	reason, ok := safety.ReasonOf(err)
	if !ok {
		reason = safety.ReasonMatchNotActive
	}
	m.deps.Metrics.InputRejected(string(reason))
	m.deps.Sink.Send([]string{connID}, protocol.EventError, protocol.ErrorPayload{
		MatchID: p.MatchID,
		Reason:  string(reason),
		Detail:  err.Error(),
	})
	return err
}

func (m *Manager) submit(userID string, p protocol.InputPayload) error {
	// An actor may only drive itself
	if p.ActorID != "" && p.ActorID != userID {
		return safety.Reject(safety.ReasonNotParticipant, "cannot act as %s", p.ActorID)
	}
	inst, err := m.Get(p.MatchID)
	if err != nil {
		return safety.Reject(safety.ReasonMatchNotActive, "%v", err)
	}
	return inst.SubmitInput(userID, p.Input.ToEngine())
}

// Leave detaches a connection; a participant leaving forfeits.
func (m *Manager) Leave(connID, userID, matchID string) {
	m.mu.Lock()
	m.detachLocked(connID, matchID)
	delete(m.conns, connID)
	m.mu.Unlock()

	inst, err := m.Get(matchID)
	if err != nil || !inst.IsParticipant(userID) {
		return
	}
	m.deps.Disconnects.Remove(matchID, userID)
	inst.Leave(userID)
}

// Disconnect handles transport loss. A participant's last connection
// dropping stores a snapshot and starts the grace window.
func (m *Manager) Disconnect(connID string) {
	m.deps.Limiter.Forget(connID)

	m.mu.Lock()
	info, ok := m.conns[connID]
	delete(m.conns, connID)
	if !ok {
		m.mu.Unlock()
		return
	}
	m.detachLocked(connID, info.matchID)
	stillConnected := false
	for _, other := range m.conns {
		if other.userID == info.userID && other.matchID == info.matchID {
			stillConnected = true
			break
		}
	}
	inst := m.matches[info.matchID]
	m.mu.Unlock()

	if inst == nil || stillConnected || !inst.IsParticipant(info.userID) {
		return
	}
	if st, _ := inst.Status(); st == StatusComplete {
		return
	}
	m.deps.Disconnects.Save(info.matchID, info.userID, inst.Snapshot())
	inst.Disconnect(info.userID)
	log.Printf("📴 %s disconnected from match %s, grace %s", info.userID, info.matchID, m.deps.Disconnects.Grace())
}

func (m *Manager) detachLocked(connID, matchID string) {
	if set, ok := m.matchConns[matchID]; ok {
		delete(set, connID)
	}
}

// Broadcast sends an event to every connection attached to matchID.
func (m *Manager) Broadcast(matchID, event string, payload interface{}) {
	m.mu.RLock()
	set := m.matchConns[matchID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	if len(ids) == 0 {
		return
	}
	sort.Strings(ids)
	m.deps.Sink.Send(ids, event, payload)
}

// MatchOf returns the match a user is currently registered in.
func (m *Manager) MatchOf(userID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.userMatch[userID]
	return id, ok
}

func (m *Manager) scheduleEviction(id string) {
	time.AfterFunc(m.cfg.Retention, func() { m.evict(id) })
}

func (m *Manager) evict(id string) {
	m.mu.Lock()
	inst, ok := m.matches[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.matches, id)
	for connID := range m.matchConns[id] {
		delete(m.conns, connID)
	}
	delete(m.matchConns, id)
	for user, matchID := range m.userMatch {
		if matchID == id {
			delete(m.userMatch, user)
		}
	}
	m.mu.Unlock()

	inst.Stop()
	m.deps.Disconnects.RemoveMatch(id)
	log.Printf("🧹 Match %s evicted", id)
}

// ActiveCount returns the number of matches not yet complete.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeCountLocked()
}

// Shutdown stops every instance and refuses new matches.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closing = true
	insts := make([]*Instance, 0, len(m.matches))
	for _, inst := range m.matches {
		insts = append(insts, inst)
	}
	m.mu.Unlock()

	for _, inst := range insts {
		inst.Stop()
	}
	log.Printf("🛑 Match manager stopped (%d matches)", len(insts))
}

// Snapshot returns the latest state of a match.
func (m *Manager) Snapshot(matchID string) (engine.CombatState, error) {
	inst, err := m.Get(matchID)
	if err != nil {
		return engine.CombatState{}, err
	}
	return inst.Snapshot(), nil
}
