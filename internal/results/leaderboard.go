package results

import (
	"context"
	"sync"
	"time"

	"duel-arena/internal/engine"
	"duel-arena/internal/match"
)

// Points per outcome. Forfeits count as losses.
const (
	WinPoints  = 3
	DrawPoints = 1
	LossPoints = 0
)

// Standing is one actor's record and position.
type Standing struct {
	ActorID string  `json:"actorId"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Draws   int     `json:"draws"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// Leaderboard ranks human actors by points from finished matches.
//
// Operations:
//   - RecordResult: O(log n)
//   - Rank: O(log n)
//   - Top: O(log n + k)
//   - Around: O(log n + k)
type Leaderboard struct {
	mu      sync.RWMutex
	list    *skipList
	records map[string]*Standing
}

// NewLeaderboard creates an empty leaderboard.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{
		list:    newSkipList(time.Now().UnixNano()),
		records: make(map[string]*Standing),
	}
}

// RecordResult implements match.ResultSink. CPU participants and abandoned
// matches are not ranked.
func (lb *Leaderboard) RecordResult(ctx context.Context, r match.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Reason == engine.ReasonAbandoned {
		return nil
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	for _, p := range r.Participants {
		if p.IsCPU || p.ActorID == "" {
			continue
		}
		s, ok := lb.records[p.ActorID]
		if !ok {
			s = &Standing{ActorID: p.ActorID}
			lb.records[p.ActorID] = s
		}
		switch {
		case r.Draw:
			s.Draws++
		case r.WinnerID == p.ActorID:
			s.Wins++
		default:
			s.Losses++
		}
		s.Score = float64(s.Wins*WinPoints + s.Draws*DrawPoints + s.Losses*LossPoints)
		lb.list.Insert(p.ActorID, s.Score)
	}
	return nil
}

// Rank returns the standing of actorID.
func (lb *Leaderboard) Rank(actorID string) (Standing, bool) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	s, ok := lb.records[actorID]
	if !ok {
		return Standing{}, false
	}
	out := *s
	out.Rank = lb.list.Rank(actorID)
	return out, true
}

// Top returns the n best actors.
func (lb *Leaderboard) Top(n int) []Standing {
	return lb.Range(1, n)
}

// Around returns up to above actors ranked higher than actorID, the actor
// itself, and up to below actors ranked lower.
func (lb *Leaderboard) Around(actorID string, above, below int) []Standing {
	lb.mu.RLock()
	rank := lb.list.Rank(actorID)
	lb.mu.RUnlock()
	if rank == 0 {
		return nil
	}
	return lb.Range(max(1, rank-above), rank+below)
}

// Range returns ranks start..end inclusive (1-indexed).
func (lb *Leaderboard) Range(start, end int) []Standing {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	start = max(1, start)
	entries := lb.list.Range(start, end)
	out := make([]Standing, len(entries))
	for k, e := range entries {
		out[k] = *lb.records[e.Key]
		out[k].Rank = start + k
	}
	return out
}

// Len returns the number of ranked actors.
func (lb *Leaderboard) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.list.Len()
}
