package match

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"duel-arena/internal/engine"
	"duel-arena/internal/physics"
	"duel-arena/internal/protocol"
	"duel-arena/internal/safety"
	"duel-arena/internal/weapons"
)

type published struct {
	conns   []string
	event   string
	payload interface{}
}

// recorder implements both publisher and BroadcastSink.
type recorder struct {
	mu   sync.Mutex
	sent []published
}

func (r *recorder) Broadcast(matchID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, published{conns: []string{matchID}, event: event, payload: payload})
}

func (r *recorder) Send(conns []string, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, published{conns: append([]string(nil), conns...), event: event, payload: payload})
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.sent {
		if p.event == event {
			n++
		}
	}
	return n
}

func (r *recorder) sentTo(conn, event string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, p := range r.sent {
		if p.event != event {
			continue
		}
		for _, c := range p.conns {
			if c == conn {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

type chanResults struct {
	ch    chan Result
	calls atomic.Int32
}

func newChanResults() *chanResults {
	return &chanResults{ch: make(chan Result, 4)}
}

func (c *chanResults) RecordResult(ctx context.Context, r Result) error {
	c.calls.Add(1)
	c.ch <- r
	return nil
}

func (c *chanResults) wait(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-c.ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for result")
		return Result{}
	}
}

type countingMetrics struct {
	noopMetrics
	rejected    atomic.Int32
	rateLimited atomic.Int32
}

func (m *countingMetrics) InputRejected(string) { m.rejected.Add(1) }
func (m *countingMetrics) InputRateLimited()    { m.rateLimited.Add(1) }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func humans() [2]Participant {
	return [2]Participant{
		{ActorID: "p1", WeaponID: "sword"},
		{ActorID: "p2", WeaponID: "sword"},
	}
}

func instantConfig() InstanceConfig {
	cfg := DefaultInstanceConfig()
	cfg.Countdown = 0
	return cfg
}

func newTestInstance(t *testing.T, parts [2]Participant, cfg InstanceConfig, clock func() time.Time) (*Instance, *recorder, *chanResults) {
	t.Helper()
	rec := &recorder{}
	res := newChanResults()
	inst, err := newInstance("m1", parts, cfg, weapons.Default(), rec, res, nil, clock)
	if err != nil {
		t.Fatalf("newInstance failed: %v", err)
	}
	return inst, rec, res
}

// activate readies both humans and runs the zero-length countdown.
func activate(t *testing.T, inst *Instance) {
	t.Helper()
	for _, p := range inst.Participants() {
		inst.handleCommand(readyCmd{p.ActorID})
	}
	inst.tick()
	if st, _ := inst.Status(); st != StatusActive {
		t.Fatalf("Expected active after countdown, got %v", st)
	}
}

// TestCountdownStartsWhenBothReady verifies pending to active transition
func TestCountdownStartsWhenBothReady(t *testing.T) {
	cfg := DefaultInstanceConfig()
	cfg.Countdown = 100 * time.Millisecond // 6 ticks at 60 Hz
	inst, rec, _ := newTestInstance(t, humans(), cfg, nil)

	for k := 0; k < 10; k++ {
		inst.tick()
	}
	if st, _ := inst.Status(); st != StatusPending {
		t.Fatalf("Expected pending without ready players, got %v", st)
	}

	inst.handleCommand(readyCmd{"p1"})
	inst.handleCommand(readyCmd{"stranger"})
	inst.tick()
	if st, _ := inst.Status(); st != StatusPending {
		t.Fatalf("Expected pending with one ready player, got %v", st)
	}

	inst.handleCommand(readyCmd{"p2"})
	for k := 0; k < 5; k++ {
		inst.tick()
	}
	st, remaining := inst.Status()
	if st != StatusPending || remaining <= 0 {
		t.Fatalf("Expected countdown in progress, got %v with %.3fs", st, remaining)
	}
	inst.tick()
	if st, _ := inst.Status(); st != StatusActive {
		t.Errorf("Expected active, got %v", st)
	}
	if rec.count(protocol.EventStatus) == 0 {
		t.Error("Expected status broadcasts during countdown")
	}
}

// TestSubmitInputRejections checks the reasons returned to a sender
func TestSubmitInputRejections(t *testing.T) {
	inst, _, _ := newTestInstance(t, humans(), instantConfig(), nil)

	err := inst.SubmitInput("p1", engine.Input{})
	if r, _ := safety.ReasonOf(err); r != safety.ReasonMatchNotActive {
		t.Errorf("Expected match_not_active while pending, got %v", err)
	}

	activate(t, inst)

	tests := []struct {
		name   string
		actor  string
		input  engine.Input
		reason safety.Reason
	}{
		{"stranger", "p3", engine.Input{}, safety.ReasonNotParticipant},
		{"speed hack", "p1", engine.Input{Move: physics.V(3, 0)}, safety.ReasonInvalidDirection},
		{"unknown weapon", "p1", engine.Input{Actions: []engine.Action{engine.Attack("laser")}}, safety.ReasonUnknownWeapon},
		{"weapon not carried", "p1", engine.Input{Actions: []engine.Action{engine.Attack("bow")}}, safety.ReasonWeaponNotEquipped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := inst.SubmitInput(tt.actor, tt.input)
			r, ok := safety.ReasonOf(err)
			if !ok || r != tt.reason {
				t.Errorf("Expected %s, got %v", tt.reason, err)
			}
		})
	}

	if err := inst.SubmitInput("p1", engine.Input{Move: physics.V(1, 0)}); err != nil {
		t.Errorf("Expected valid input accepted, got %v", err)
	}
}

// TestHeldInputPersistsAcrossTicks verifies movement continues until replaced
func TestHeldInputPersistsAcrossTicks(t *testing.T) {
	inst, _, _ := newTestInstance(t, humans(), instantConfig(), nil)
	activate(t, inst)

	before, _ := inst.Snapshot().Combatant("p1")
	if err := inst.SubmitInput("p1", engine.Input{Move: physics.V(1, 0)}); err != nil {
		t.Fatalf("SubmitInput failed: %v", err)
	}
	inst.tick()
	mid, _ := inst.Snapshot().Combatant("p1")
	inst.tick()
	after, _ := inst.Snapshot().Combatant("p1")

	if !(mid.Pos.X > before.Pos.X && after.Pos.X > mid.Pos.X) {
		t.Errorf("Expected steady movement, got %.2f -> %.2f -> %.2f", before.Pos.X, mid.Pos.X, after.Pos.X)
	}

	other, _ := inst.Snapshot().Combatant("p2")
	if other.Facing != 3.141592653589793 {
		t.Errorf("Expected silent player to keep facing, got %v", other.Facing)
	}
}

// TestStateBroadcastCadence verifies 20 Hz snapshots from a 60 Hz loop
func TestStateBroadcastCadence(t *testing.T) {
	inst, rec, _ := newTestInstance(t, humans(), instantConfig(), nil)
	activate(t, inst)

	for k := 0; k < 6; k++ {
		inst.tick()
	}
	if got := rec.count(protocol.EventState); got != 2 {
		t.Errorf("Expected 2 state broadcasts in 6 ticks, got %d", got)
	}
}

// TestLeaveForfeits verifies an explicit leave ends the match
func TestLeaveForfeits(t *testing.T) {
	inst, rec, res := newTestInstance(t, humans(), instantConfig(), nil)
	activate(t, inst)

	inst.handleCommand(forfeitCmd{"p1"})

	if st, _ := inst.Status(); st != StatusComplete {
		t.Fatalf("Expected complete, got %v", st)
	}
	r := res.wait(t)
	if r.WinnerID != "p2" || r.Reason != engine.ReasonForfeit || r.Draw {
		t.Errorf("Expected p2 to win by forfeit, got %+v", r)
	}
	if rec.count(protocol.EventComplete) != 1 {
		t.Errorf("Expected one complete broadcast, got %d", rec.count(protocol.EventComplete))
	}
}

// TestResultRecordedOnce ignores further terminal triggers
func TestResultRecordedOnce(t *testing.T) {
	inst, rec, res := newTestInstance(t, humans(), instantConfig(), nil)
	activate(t, inst)

	inst.handleCommand(forfeitCmd{"p1"})
	inst.handleCommand(forfeitCmd{"p2"})
	inst.tick()
	inst.complete()

	res.wait(t)
	select {
	case r := <-res.ch:
		t.Errorf("Expected a single result, got another: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
	if n := res.calls.Load(); n != 1 {
		t.Errorf("Expected 1 sink call, got %d", n)
	}
	if rec.count(protocol.EventComplete) != 1 {
		t.Errorf("Expected one complete broadcast, got %d", rec.count(protocol.EventComplete))
	}
}

// TestGraceWindow checks reconnect cancels and expiry forfeits
func TestGraceWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}

	t.Run("expiry forfeits", func(t *testing.T) {
		inst, _, res := newTestInstance(t, humans(), instantConfig(), clock.Now)
		activate(t, inst)

		inst.handleCommand(disconnCmd{"p1"})
		clock.Advance(29 * time.Second)
		inst.tick()
		if st, _ := inst.Status(); st != StatusActive {
			t.Fatalf("Expected active inside grace, got %v", st)
		}
		clock.Advance(2 * time.Second)
		inst.tick()
		if st, _ := inst.Status(); st != StatusComplete {
			t.Fatalf("Expected complete after grace, got %v", st)
		}
		if r := res.wait(t); r.WinnerID != "p2" || r.Reason != engine.ReasonForfeit {
			t.Errorf("Expected p2 to win by forfeit, got %+v", r)
		}
	})

	t.Run("reconnect cancels", func(t *testing.T) {
		inst, _, _ := newTestInstance(t, humans(), instantConfig(), clock.Now)
		activate(t, inst)

		inst.handleCommand(disconnCmd{"p1"})
		clock.Advance(10 * time.Second)
		inst.handleCommand(reconnectCmd{"p1"})
		clock.Advance(time.Minute)
		inst.tick()
		if st, _ := inst.Status(); st != StatusActive {
			t.Errorf("Expected active after reconnect, got %v", st)
		}
	})
}

// TestCPUMatchTimesOut runs two CPUs too far apart to trade blows
func TestCPUMatchTimesOut(t *testing.T) {
	cfg := instantConfig()
	cfg.MaxDuration = 500 * time.Millisecond
	parts := [2]Participant{
		{ActorID: "cpu-a", IsCPU: true, WeaponID: "fists"},
		{ActorID: "cpu-b", IsCPU: true, WeaponID: "fists"},
	}
	inst, _, res := newTestInstance(t, parts, cfg, nil)

	for k := 0; k < 120; k++ {
		inst.tick()
		if st, _ := inst.Status(); st == StatusComplete {
			break
		}
	}
	if st, _ := inst.Status(); st != StatusComplete {
		t.Fatalf("Expected CPU match to complete, got %v", st)
	}
	r := res.wait(t)
	if r.Reason != engine.ReasonTimeout || !r.Draw {
		t.Errorf("Expected timeout draw, got %+v", r)
	}
	if len(r.Participants) != 2 {
		t.Errorf("Expected 2 participants in result, got %d", len(r.Participants))
	}
}

// TestRunLoopCompletes drives the real loop to completion
func TestRunLoopCompletes(t *testing.T) {
	cfg := instantConfig()
	cfg.MaxDuration = 100 * time.Millisecond
	parts := [2]Participant{
		{ActorID: "cpu-a", IsCPU: true},
		{ActorID: "cpu-b", IsCPU: true},
	}
	inst, _, res := newTestInstance(t, parts, cfg, nil)
	go inst.Run()

	select {
	case <-inst.Done():
	case <-time.After(3 * time.Second):
		inst.Stop()
		t.Fatal("Run did not exit")
	}
	res.wait(t)
}

func newTestManager(t *testing.T, cfg Config, deps Deps) (*Manager, *recorder) {
	t.Helper()
	rec := &recorder{}
	deps.Sink = rec
	m := NewManager(cfg, deps)
	t.Cleanup(m.Shutdown)
	return m, rec
}

// TestCreateMatchRejections covers synchronous create failures
func TestCreateMatchRejections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMatches = 2
	m, _ := newTestManager(t, cfg, Deps{})

	tests := []struct {
		name   string
		parts  []Participant
		reason string
	}{
		{"one participant", []Participant{{ActorID: "a"}}, RejectParticipantCount},
		{"missing id", []Participant{{ActorID: "a"}, {ActorID: " "}}, RejectMissingActor},
		{"same actor", []Participant{{ActorID: "a"}, {ActorID: "a"}}, RejectSameActor},
		{"unknown weapon", []Participant{{ActorID: "a", WeaponID: "laser"}, {ActorID: "b"}}, RejectUnknownWeapon},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateMatch(CreateRequest{Participants: tt.parts})
			var rej *RejectError
			if !errors.As(err, &rej) || rej.Reason != tt.reason {
				t.Errorf("Expected %s, got %v", tt.reason, err)
			}
		})
	}

	inst, err := m.CreateMatch(CreateRequest{Participants: []Participant{{ActorID: "a"}, {IsCPU: true}}})
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}
	cpu := inst.Participants()[1]
	if cpu.ActorID == "" || cpu.WeaponID != weapons.DefaultWeaponID {
		t.Errorf("Expected generated CPU id and default weapon, got %+v", cpu)
	}

	_, err = m.CreateMatch(CreateRequest{Participants: []Participant{{ActorID: "a"}, {ActorID: "c"}}})
	var rej *RejectError
	if !errors.As(err, &rej) || rej.Reason != RejectAlreadyInMatch {
		t.Errorf("Expected already_in_match, got %v", err)
	}

	if _, err := m.CreateMatch(CreateRequest{Participants: []Participant{{ActorID: "d"}, {ActorID: "e"}}}); err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}
	_, err = m.CreateMatch(CreateRequest{Participants: []Participant{{ActorID: "f"}, {ActorID: "g"}}})
	if !errors.As(err, &rej) || rej.Reason != RejectServerFull {
		t.Errorf("Expected server_full, got %v", err)
	}

	if _, err := m.Get("nope"); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("Expected ErrMatchNotFound, got %v", err)
	}
	if got := len(m.List()); got != 2 {
		t.Errorf("Expected 2 listed matches, got %d", got)
	}
}

// TestJoinRoutesConnections verifies participants, spectators and broadcast routing
func TestJoinRoutesConnections(t *testing.T) {
	m, rec := newTestManager(t, DefaultConfig(), Deps{})
	inst, err := m.CreateMatch(CreateRequest{Participants: []Participant{{ActorID: "p1"}, {ActorID: "p2"}}})
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}

	joined, err := m.Join("c1", "p1", inst.ID)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if joined.Spectator || joined.ActorID != "p1" {
		t.Errorf("Expected participant join, got %+v", joined)
	}
	watch, err := m.Join("c3", "viewer", inst.ID)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if !watch.Spectator {
		t.Errorf("Expected spectator join, got %+v", watch)
	}
	if len(rec.sentTo("c1", protocol.EventJoined)) != 1 || len(rec.sentTo("c3", protocol.EventJoined)) != 1 {
		t.Error("Expected a joined ack on each connection")
	}

	m.Broadcast(inst.ID, "ping", nil)
	if len(rec.sentTo("c1", "ping")) != 1 || len(rec.sentTo("c3", "ping")) != 1 {
		t.Error("Expected broadcast to reach both connections")
	}

	if _, err := m.Join("c9", "p1", "missing"); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("Expected ErrMatchNotFound, got %v", err)
	}
}

// TestHandleInputRejectsToSenderOnly verifies errors never reach other connections
func TestHandleInputRejectsToSenderOnly(t *testing.T) {
	metrics := &countingMetrics{}
	m, rec := newTestManager(t, DefaultConfig(), Deps{Metrics: metrics})
	inst, err := m.CreateMatch(CreateRequest{Participants: []Participant{{ActorID: "p1"}, {ActorID: "p2"}}})
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}
	m.Join("c1", "p1", inst.ID)
	m.Join("c2", "p2", inst.ID)

	err = m.HandleInput("c1", "p1", protocol.InputPayload{MatchID: inst.ID, ActorID: "p2"})
	if r, _ := safety.ReasonOf(err); r != safety.ReasonNotParticipant {
		t.Errorf("Expected not_participant when acting for another, got %v", err)
	}
	if len(rec.sentTo("c1", protocol.EventError)) != 1 {
		t.Error("Expected error sent to c1")
	}
	if len(rec.sentTo("c2", protocol.EventError)) != 0 {
		t.Error("Expected no error sent to c2")
	}
	if metrics.rejected.Load() != 1 {
		t.Errorf("Expected 1 rejection counted, got %d", metrics.rejected.Load())
	}
}

// TestHandleInputRateLimited drops floods silently
func TestHandleInputRateLimited(t *testing.T) {
	metrics := &countingMetrics{}
	limiter := safety.NewRateLimiter(safety.LimiterConfig{Capacity: 1, Window: time.Hour, StaleAge: time.Hour}, nil)
	m, rec := newTestManager(t, DefaultConfig(), Deps{Metrics: metrics, Limiter: limiter})

	in := protocol.InputPayload{MatchID: "missing"}
	m.HandleInput("c1", "p1", in)
	if err := m.HandleInput("c1", "p1", in); err != nil {
		t.Errorf("Expected silent drop, got %v", err)
	}
	if metrics.rateLimited.Load() != 1 {
		t.Errorf("Expected 1 rate-limited input, got %d", metrics.rateLimited.Load())
	}
	if got := len(rec.sentTo("c1", protocol.EventError)); got != 1 {
		t.Errorf("Expected only the first input to be answered, got %d errors", got)
	}
}

// TestDisconnectAndResume stores a snapshot and hands it back on rejoin
func TestDisconnectAndResume(t *testing.T) {
	store := safety.NewDisconnectStore(time.Minute, nil)
	m, rec := newTestManager(t, DefaultConfig(), Deps{Disconnects: store})
	inst, err := m.CreateMatch(CreateRequest{Participants: []Participant{{ActorID: "p1"}, {ActorID: "p2"}}})
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}
	m.Join("c1", "p1", inst.ID)
	m.Disconnect("c1")

	if !store.CanReconnect(inst.ID, "p1") {
		t.Fatal("Expected snapshot saved on disconnect")
	}

	joined, err := m.Join("c2", "p1", inst.ID)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if !joined.Resumed {
		t.Error("Expected resumed join")
	}
	if len(rec.sentTo("c2", protocol.EventState)) == 0 {
		t.Error("Expected stored state sent to the new connection")
	}
	if store.CanReconnect(inst.ID, "p1") {
		t.Error("Expected snapshot consumed")
	}
}

// TestCompletedMatchEvicted verifies retention cleanup
func TestCompletedMatchEvicted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retention = 20 * time.Millisecond
	cfg.Instance.Countdown = 0
	cfg.Instance.MaxDuration = 50 * time.Millisecond
	m, _ := newTestManager(t, cfg, Deps{})

	inst, err := m.CreateMatch(CreateRequest{Participants: []Participant{{IsCPU: true}, {IsCPU: true}}})
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		if _, err := m.Get(inst.ID); errors.Is(err, ErrMatchNotFound) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Match was not evicted")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if m.ActiveCount() != 0 {
		t.Errorf("Expected no active matches, got %d", m.ActiveCount())
	}
}

// TestPendingJoinTimeout verifies a match nobody fully joined does not stay pending
func TestPendingJoinTimeout(t *testing.T) {
	tests := []struct {
		name   string
		ready  []string
		winner string
		draw   bool
		reason engine.EndReason
	}{
		{"absent side forfeits", []string{"p1"}, "p1", false, engine.ReasonForfeit},
		{"nobody joined", nil, "", true, engine.ReasonAbandoned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
			cfg := instantConfig()
			cfg.JoinTimeout = time.Minute
			inst, _, res := newTestInstance(t, humans(), cfg, clock.Now)

			for _, id := range tt.ready {
				inst.handleCommand(readyCmd{id})
			}
			clock.Advance(59 * time.Second)
			inst.tick()
			if st, _ := inst.Status(); st != StatusPending {
				t.Fatalf("Expected pending inside join window, got %v", st)
			}

			clock.Advance(2 * time.Second)
			inst.tick()
			if st, _ := inst.Status(); st != StatusComplete {
				t.Fatalf("Expected complete after join window, got %v", st)
			}
			r := res.wait(t)
			if r.WinnerID != tt.winner || r.Draw != tt.draw || r.Reason != tt.reason {
				t.Errorf("Expected winner %q draw %v reason %s, got %+v", tt.winner, tt.draw, tt.reason, r)
			}
		})
	}
}

// TestJoinTimeoutReleasesActor verifies an abandoned match frees its humans
func TestJoinTimeoutReleasesActor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMatches = 1
	cfg.Instance.JoinTimeout = 30 * time.Millisecond
	m, _ := newTestManager(t, cfg, Deps{})

	inst, err := m.CreateMatch(CreateRequest{Participants: []Participant{{ActorID: "a"}, {IsCPU: true}}})
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		if st, _ := inst.Status(); st == StatusComplete {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Match never left pending")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if _, err := m.CreateMatch(CreateRequest{Participants: []Participant{{ActorID: "a"}, {IsCPU: true}}}); err != nil {
		t.Errorf("Expected actor free after join timeout, got %v", err)
	}
}

// TestCreateMatchCreator verifies the creator must be a human participant
func TestCreateMatchCreator(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig(), Deps{})

	tests := []struct {
		name    string
		creator string
		parts   []Participant
		ok      bool
	}{
		{"participant", "a", []Participant{{ActorID: "a"}, {ActorID: "b"}}, true},
		{"unchecked", "", []Participant{{ActorID: "c"}, {ActorID: "d"}}, true},
		{"outsider", "z", []Participant{{ActorID: "e"}, {ActorID: "f"}}, false},
		{"named cpu", "cpu-1", []Participant{{ActorID: "g"}, {ActorID: "cpu-1", IsCPU: true}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateMatch(CreateRequest{Participants: tt.parts, Creator: tt.creator})
			if tt.ok && err != nil {
				t.Errorf("Expected match created, got %v", err)
			}
			var rej *RejectError
			if !tt.ok && (!errors.As(err, &rej) || rej.Reason != RejectNotParticipant) {
				t.Errorf("Expected not_participant, got %v", err)
			}
		})
	}
}
