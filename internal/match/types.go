// Package match runs duels: one Instance per match, each with its own
// fixed-rate tick loop, and a Manager that routes connections and input to
// the right instance.
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duel-arena/internal/engine"
	"duel-arena/internal/stats"
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrMatchComplete  = errors.New("match is complete")
	ErrNotParticipant = errors.New("not a participant")
)

// Status is a match lifecycle state.
type Status int

const (
	StatusPending  Status = iota // waiting for both sides, then counting down
	StatusActive                 // ticking
	StatusComplete               // terminal
)

var statusNames = [...]string{"pending", "active", "complete"}

func (s Status) String() string {
	if int(s) >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Participant is one side of a match as requested at creation.
type Participant struct {
	ActorID    string           `json:"actorId"`
	Name       string           `json:"name,omitempty"`
	IsCPU      bool             `json:"isCpu"`
	WeaponID   string           `json:"weaponId,omitempty"`
	Attributes stats.Attributes `json:"attributes"`
}

// CreateRequest asks for a new match between exactly two participants.
// A non-empty Creator must be one of the human participants.
type CreateRequest struct {
	Participants []Participant `json:"participants"`
	Creator      string        `json:"-"`
}

// RejectError is a synchronous refusal to create a match.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return "match rejected: " + e.Reason
}

// Reject reasons for CreateMatch.
const (
	RejectParticipantCount = "participant_count"
	RejectMissingActor     = "missing_actor_id"
	RejectSameActor        = "same_actor"
	RejectUnknownWeapon    = "unknown_weapon"
	RejectAlreadyInMatch   = "already_in_match"
	RejectServerFull       = "server_full"
	RejectNotParticipant   = "not_participant"
)

// Result is the terminal outcome handed to the result sink exactly once.
type Result struct {
	MatchID      string             `json:"matchId"`
	WinnerID     string             `json:"winnerId"`
	Draw         bool               `json:"draw"`
	Reason       engine.EndReason   `json:"reason"`
	Participants []Participant      `json:"participants"`
	Ticks        uint64             `json:"ticks"`
	StartedAt    time.Time          `json:"startedAt"`
	EndedAt      time.Time          `json:"endedAt"`
	FinalState   engine.CombatState `json:"finalState"`
}

// BroadcastSink delivers outbound events to connections. The transport
// owns connections; the match layer only knows their ids.
type BroadcastSink interface {
	Send(connIDs []string, event string, payload interface{})
}

// ResultSink receives each finished match once.
type ResultSink interface {
	RecordResult(ctx context.Context, r Result) error
}

// Metrics observes the simulation. Implementations must be cheap; they are
// called from tick loops.
type Metrics interface {
	ObserveTick(d time.Duration)
	MatchStarted()
	MatchCompleted(reason string, started bool) // started is false for matches that never left Pending
	InputRejected(reason string)
	InputRateLimited()
}

type noopMetrics struct{}

func (noopMetrics) ObserveTick(time.Duration)   {}
func (noopMetrics) MatchStarted()               {}
func (noopMetrics) MatchCompleted(string, bool) {}
func (noopMetrics) InputRejected(string)        {}
func (noopMetrics) InputRateLimited()           {}

// publisher is what an Instance needs from its Manager.
type publisher interface {
	Broadcast(matchID, event string, payload interface{})
}
