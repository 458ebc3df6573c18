package match

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"duel-arena/internal/ai"
	"duel-arena/internal/engine"
	"duel-arena/internal/physics"
	"duel-arena/internal/protocol"
	"duel-arena/internal/safety"
	"duel-arena/internal/weapons"
)

// InstanceConfig holds per-match timing.
type InstanceConfig struct {
	TickHz      int
	BroadcastHz int
	Countdown   time.Duration
	MaxDuration time.Duration // simulated time before a timeout result
	Grace       time.Duration // disconnect window before forfeit
	JoinTimeout time.Duration // how long Pending waits for humans to join
	Arena       physics.Rect
	Radius      float64
	ResultWait  time.Duration // bound on one result sink call
}

// DefaultJoinTimeout bounds how long a created match waits for its humans.
const DefaultJoinTimeout = time.Minute

// DefaultInstanceConfig returns 60 Hz simulation with 20 Hz broadcast.
func DefaultInstanceConfig() InstanceConfig {
	return InstanceConfig{
		TickHz:      engine.DefaultTickHz,
		BroadcastHz: 20,
		Countdown:   3 * time.Second,
		MaxDuration: 3 * time.Minute,
		Grace:       safety.DefaultGrace,
		JoinTimeout: DefaultJoinTimeout,
		Arena:       physics.NewRect(0, 0, engine.DefaultArenaW, engine.DefaultArenaH),
		Radius:      engine.DefaultRadius,
		ResultWait:  5 * time.Second,
	}
}

// lifecycle commands handled on the loop goroutine
type (
	readyCmd     struct{ actorID string }
	forfeitCmd   struct{ actorID string }
	disconnCmd   struct{ actorID string }
	reconnectCmd struct{ actorID string }
)

// Instance owns one engine and drives its tick loop. The engine is only
// touched from the loop goroutine; other goroutines talk to it through the
// single-slot input buffers and the Inbox.
type Instance struct {
	ID           string
	participants [2]Participant
	cfg          InstanceConfig

	engine    *engine.Engine
	validator *safety.Validator
	cpus      []*ai.Controller
	pub       publisher
	results   ResultSink
	metrics   Metrics
	now       func() time.Time

	// Latest input per human actor, overwritten on every submission.
	inputs map[string]*atomic.Pointer[engine.Input]
	held   map[string]engine.Input // loop-only: last applied input per actor

	Inbox chan any

	broadcastEvery uint64
	countdownTicks int
	loopTick       uint64
	pending        []engine.Event // events since the last broadcast
	deadlines      map[string]time.Time

	mu        sync.RWMutex
	status    Status
	ready     map[string]bool
	remaining float64 // countdown seconds left
	latest    engine.CombatState
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time

	onComplete func(id string)
	resultOnce sync.Once
	quit       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

func newInstance(id string, parts [2]Participant, cfg InstanceConfig, catalog *weapons.Catalog,
	pub publisher, results ResultSink, metrics Metrics, clock func() time.Time) (*Instance, error) {

	if cfg.TickHz <= 0 {
		cfg.TickHz = engine.DefaultTickHz
	}
	if cfg.BroadcastHz <= 0 {
		cfg.BroadcastHz = cfg.TickHz
	}
	if cfg.Grace <= 0 {
		cfg.Grace = safety.DefaultGrace
	}
	if cfg.ResultWait <= 0 {
		cfg.ResultWait = 5 * time.Second
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if clock == nil {
		clock = time.Now
	}

	eng, err := engine.New(engine.Config{
		MatchID: id,
		TickHz:  cfg.TickHz,
		Arena:   cfg.Arena,
		Radius:  cfg.Radius,
	}, catalog, setupOf(parts[0]), setupOf(parts[1]))
	if err != nil {
		return nil, err
	}

	broadcastEvery := cfg.TickHz / cfg.BroadcastHz
	if broadcastEvery <= 0 {
		broadcastEvery = 1
	}

	inst := &Instance{
		ID:             id,
		participants:   parts,
		cfg:            cfg,
		engine:         eng,
		validator:      safety.NewValidator(catalog),
		pub:            pub,
		results:        results,
		metrics:        metrics,
		now:            clock,
		inputs:         make(map[string]*atomic.Pointer[engine.Input], 2),
		held:           make(map[string]engine.Input, 2),
		Inbox:          make(chan any, 64),
		broadcastEvery: uint64(broadcastEvery),
		countdownTicks: int(cfg.Countdown.Seconds() * float64(cfg.TickHz)),
		deadlines:      make(map[string]time.Time),
		status:         StatusPending,
		ready:          make(map[string]bool, 2),
		remaining:      cfg.Countdown.Seconds(),
		createdAt:      clock(),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, p := range parts {
		if p.IsCPU {
			inst.cpus = append(inst.cpus, ai.NewController(p.ActorID, catalog))
			inst.ready[p.ActorID] = true
			continue
		}
		inst.inputs[p.ActorID] = &atomic.Pointer[engine.Input]{}
		inst.ready[p.ActorID] = false
	}
	inst.latest = eng.State(nil)
	return inst, nil
}

func setupOf(p Participant) engine.Setup {
	return engine.Setup{
		ID:         p.ActorID,
		IsCPU:      p.IsCPU,
		WeaponID:   p.WeaponID,
		Attributes: p.Attributes,
	}
}

// Participants returns both sides.
func (i *Instance) Participants() [2]Participant {
	return i.participants
}

// IsParticipant reports whether actorID is one of the two sides.
func (i *Instance) IsParticipant(actorID string) bool {
	return i.participant(actorID) != nil
}

func (i *Instance) participant(actorID string) *Participant {
	for k := range i.participants {
		if i.participants[k].ActorID == actorID {
			return &i.participants[k]
		}
	}
	return nil
}

// Status returns the lifecycle state and the countdown seconds left.
func (i *Instance) Status() (Status, float64) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.status, i.remaining
}

// Snapshot returns the latest authoritative state.
func (i *Instance) Snapshot() engine.CombatState {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.latest
}

// Times returns creation, start and end wall-clock times (zero if unset).
func (i *Instance) Times() (created, started, ended time.Time) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.createdAt, i.startedAt, i.endedAt
}

// Done is closed when the loop exits.
func (i *Instance) Done() <-chan struct{} {
	return i.done
}

// SubmitInput validates and buffers input for a human actor. Only the
// latest input per actor is kept. Rejections are *safety.Rejection.
func (i *Instance) SubmitInput(actorID string, in engine.Input) error {
	slot, ok := i.inputs[actorID]
	if !ok {
		return safety.Reject(safety.ReasonNotParticipant, "%s", actorID)
	}

	i.mu.RLock()
	status := i.status
	state := i.latest
	i.mu.RUnlock()

	if status != StatusActive {
		return safety.Reject(safety.ReasonMatchNotActive, "match is %s", status)
	}
	self, ok := state.Combatant(actorID)
	if !ok {
		return safety.Reject(safety.ReasonNotParticipant, "%s", actorID)
	}
	if err := i.validator.Validate(in, self, state.Time); err != nil {
		return err
	}

	slot.Store(&in)
	return nil
}

// MarkReady flags a human as present. Non-blocking; dropped if the loop
// has already exited.
func (i *Instance) MarkReady(actorID string) { i.send(readyCmd{actorID}) }

// Leave forfeits for actorID unless the match is already over.
func (i *Instance) Leave(actorID string) { i.send(forfeitCmd{actorID}) }

// Disconnect starts the grace window for actorID.
func (i *Instance) Disconnect(actorID string) { i.send(disconnCmd{actorID}) }

// Reconnect cancels a running grace window.
func (i *Instance) Reconnect(actorID string) { i.send(reconnectCmd{actorID}) }

func (i *Instance) send(cmd any) {
	select {
	case i.Inbox <- cmd:
	case <-i.done:
	}
}

// Stop ends the loop without a result. Used on server shutdown only;
// matches normally end by reaching Complete.
func (i *Instance) Stop() {
	i.stopOnce.Do(func() { close(i.quit) })
}

// Run drives the tick loop until the match completes or Stop is called.
func (i *Instance) Run() {
	defer close(i.done)

	ticker := time.NewTicker(time.Second / time.Duration(i.cfg.TickHz))
	defer ticker.Stop()

	for {
		select {
		case <-i.quit:
			return
		case cmd := <-i.Inbox:
			i.handleCommand(cmd)
		case <-ticker.C:
			i.tick()
		}
		if st, _ := i.Status(); st == StatusComplete {
			return
		}
	}
}

func (i *Instance) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case readyCmd:
		i.mu.Lock()
		wasReady, known := i.ready[c.actorID]
		changed := known && !wasReady && i.status == StatusPending
		if known {
			i.ready[c.actorID] = true
		}
		i.mu.Unlock()
		if changed {
			i.publishStatus()
		}
	case forfeitCmd:
		if i.IsParticipant(c.actorID) {
			i.forfeit(c.actorID)
		}
	case disconnCmd:
		if i.IsParticipant(c.actorID) {
			i.deadlines[c.actorID] = i.now().Add(i.cfg.Grace)
		}
	case reconnectCmd:
		delete(i.deadlines, c.actorID)
	}
}

// tick runs one loop iteration: countdown, grace checks, engine step and
// broadcast cadence.
func (i *Instance) tick() {
	start := time.Now()
	i.loopTick++

	i.checkDeadlines()

	st, _ := i.Status()
	switch st {
	case StatusPending:
		i.tickPending()
	case StatusActive:
		i.tickActive()
	}

	i.metrics.ObserveTick(time.Since(start))
}

func (i *Instance) tickPending() {
	i.mu.Lock()
	var absent []string
	for _, p := range i.participants {
		if !i.ready[p.ActorID] {
			absent = append(absent, p.ActorID)
		}
	}
	if len(absent) > 0 {
		expired := !i.now().Before(i.createdAt.Add(i.cfg.JoinTimeout))
		i.mu.Unlock()
		if expired {
			i.abandonPending(absent)
		}
		return
	}
	i.countdownTicks--
	i.remaining = float64(max(0, i.countdownTicks)) / float64(i.cfg.TickHz)
	starting := i.countdownTicks <= 0
	if starting {
		i.status = StatusActive
		i.startedAt = i.now()
	}
	i.mu.Unlock()

	if starting {
		i.metrics.MatchStarted()
		log.Printf("⚔️  Match %s started: %s vs %s", i.ID, i.participants[0].ActorID, i.participants[1].ActorID)
		i.publishStatus()
		return
	}
	if i.loopTick%i.broadcastEvery == 0 {
		i.publishStatus()
	}
}

func (i *Instance) tickActive() {
	latest := i.Snapshot()
	inputs := make(map[string]engine.Input, 2)

	for id, slot := range i.inputs {
		if in := slot.Swap(nil); in != nil {
			i.held[id] = *in
		}
		h, ok := i.held[id]
		if !ok {
			continue
		}
		inputs[id] = h
		// Actions fire once; move and facing persist
		h.Actions = nil
		i.held[id] = h
	}
	for _, cpu := range i.cpus {
		inputs[cpu.ID] = cpu.NextInput(&latest)
	}

	events := i.engine.Step(inputs)
	i.pending = append(i.pending, events...)

	if !i.engine.Over() && i.cfg.MaxDuration > 0 && i.engine.Now() >= i.cfg.MaxDuration.Seconds() {
		i.engine.Timeout()
	}

	if i.engine.Over() {
		i.complete()
		return
	}

	i.mu.Lock()
	i.latest = i.engine.State(nil)
	i.mu.Unlock()

	if i.engine.Tick()%i.broadcastEvery == 0 {
		state := i.engine.State(i.pending)
		i.pending = nil
		i.pub.Broadcast(i.ID, protocol.EventState, state)
	}
}

func (i *Instance) checkDeadlines() {
	if len(i.deadlines) == 0 {
		return
	}
	now := i.now()
	// Participant order keeps simultaneous expiries deterministic
	for _, p := range i.participants {
		deadline, ok := i.deadlines[p.ActorID]
		if !ok || now.Before(deadline) {
			continue
		}
		delete(i.deadlines, p.ActorID)
		log.Printf("⏱️  Match %s: %s exceeded reconnect grace", i.ID, p.ActorID)
		i.forfeit(p.ActorID)
		return
	}
}

// abandonPending ends a match whose humans did not all join in time. A
// single absent side forfeits; if nobody joined it is a no-contest.
func (i *Instance) abandonPending(absent []string) {
	log.Printf("⏱️  Match %s: %v did not join within %s", i.ID, absent, i.cfg.JoinTimeout)
	if len(absent) == 1 {
		i.forfeit(absent[0])
		return
	}
	i.engine.Abandon()
	i.complete()
}

func (i *Instance) forfeit(actorID string) {
	if st, _ := i.Status(); st == StatusComplete {
		return
	}
	if err := i.engine.Forfeit(actorID); err != nil {
		log.Printf("⚠️  Match %s: forfeit %s: %v", i.ID, actorID, err)
		return
	}
	i.complete()
}

// complete publishes the final state and the result, then hands the
// result to the sink exactly once.
func (i *Instance) complete() {
	final := i.engine.State(i.pending)
	i.pending = nil
	winner, draw, reason := i.engine.Result()

	i.mu.Lock()
	if i.status == StatusComplete {
		i.mu.Unlock()
		return
	}
	wasActive := i.status == StatusActive
	i.status = StatusComplete
	i.remaining = 0
	i.latest = final
	i.endedAt = i.now()
	started := i.startedAt
	ended := i.endedAt
	i.mu.Unlock()

	i.metrics.MatchCompleted(string(reason), wasActive)
	if draw {
		log.Printf("🤝 Match %s ended in a draw (%s) at tick %d", i.ID, reason, final.Tick)
	} else {
		log.Printf("🏆 Match %s won by %s (%s) at tick %d", i.ID, winner, reason, final.Tick)
	}

	i.pub.Broadcast(i.ID, protocol.EventState, final)
	i.pub.Broadcast(i.ID, protocol.EventComplete, protocol.CompletePayload{
		MatchID:    i.ID,
		WinnerID:   winner,
		Draw:       draw,
		Reason:     string(reason),
		FinalState: final,
	})

	result := Result{
		MatchID:      i.ID,
		WinnerID:     winner,
		Draw:         draw,
		Reason:       reason,
		Participants: append([]Participant(nil), i.participants[:]...),
		Ticks:        final.Tick,
		StartedAt:    started,
		EndedAt:      ended,
		FinalState:   final,
	}
	i.resultOnce.Do(func() {
		if i.results == nil {
			return
		}
		// Sink I/O stays off the tick loop
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), i.cfg.ResultWait)
			defer cancel()
			if err := i.results.RecordResult(ctx, result); err != nil {
				log.Printf("❌ Match %s: result sink failed: %v", i.ID, err)
			}
		}()
	})

	if i.onComplete != nil {
		i.onComplete(i.ID)
	}
}

func (i *Instance) publishStatus() {
	st, remaining := i.Status()
	i.pub.Broadcast(i.ID, protocol.EventStatus, protocol.StatusPayload{
		MatchID:            i.ID,
		Status:             st.String(),
		CountdownRemaining: remaining,
	})
}
