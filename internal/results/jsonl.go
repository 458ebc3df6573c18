// Package results holds match-result sinks: an append-only JSONL audit log,
// an in-memory leaderboard, and a fan-out that feeds several sinks at once.
// The SQLite store lives in the sqlite subpackage.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"duel-arena/internal/engine"
	"duel-arena/internal/match"
)

const (
	RecordVersion      uint8 = 1
	RecordBufferSize         = 256                    // Pending records before backpressure
	MaxRecordsPerSec         = 200                    // Global write rate limit
	BatchFlushSize           = 32                     // Records per batch write
	BatchFlushInterval       = 250 * time.Millisecond // How often to flush
)

var (
	ErrWriterStopped = errors.New("result writer is not running")
	ErrRateLimited   = errors.New("result writer rate limited")
	ErrBufferFull    = errors.New("result writer buffer full")
)

// Record is one line of the audit log.
type Record struct {
	Version      uint8               `json:"version"`
	Sequence     uint64              `json:"sequence"`
	Timestamp    int64               `json:"timestamp"` // Unix nano at enqueue
	MatchID      string              `json:"matchId"`
	WinnerID     string              `json:"winnerId,omitempty"`
	Draw         bool                `json:"draw"`
	Reason       engine.EndReason    `json:"reason"`
	Participants []match.Participant `json:"participants"`
	Ticks        uint64              `json:"ticks"`
	DurationMs   int64               `json:"durationMs"`
	FinalHP      map[string]int      `json:"finalHp"`
	Events       []engine.Event      `json:"events,omitempty"` // final tick only
}

// NewRecord flattens a result into an audit record.
func NewRecord(r match.Result) Record {
	rec := Record{
		Version:      RecordVersion,
		Timestamp:    time.Now().UnixNano(),
		MatchID:      r.MatchID,
		WinnerID:     r.WinnerID,
		Draw:         r.Draw,
		Reason:       r.Reason,
		Participants: r.Participants,
		Ticks:        r.Ticks,
		FinalHP:      make(map[string]int, len(r.FinalState.Combatants)),
		Events:       r.FinalState.Events,
	}
	if !r.StartedAt.IsZero() && r.EndedAt.After(r.StartedAt) {
		rec.DurationMs = r.EndedAt.Sub(r.StartedAt).Milliseconds()
	}
	for _, c := range r.FinalState.Combatants {
		rec.FinalHP[c.ID] = c.HP
	}
	return rec
}

// JSONLWriter appends one JSON line per finished match. Writes are batched
// on a background goroutine; RecordResult never blocks on disk.
type JSONLWriter struct {
	records chan Record
	limiter *rate.Limiter

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	out   io.Writer
	file  *os.File
	outMu sync.Mutex

	sequence     uint64 // atomic
	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
}

// NewJSONLWriter creates a writer. Call Start or StartWriter before use.
func NewJSONLWriter() *JSONLWriter {
	return &JSONLWriter{
		records:  make(chan Record, RecordBufferSize),
		limiter:  rate.NewLimiter(MaxRecordsPerSec, MaxRecordsPerSec/10),
		stopChan: make(chan struct{}),
	}
}

// Start opens path for append and begins the writer goroutine.
func (w *JSONLWriter) Start(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open result log: %w", err)
	}
	w.file = file
	return w.StartWriter(file)
}

// StartWriter begins writing to out.
func (w *JSONLWriter) StartWriter(out io.Writer) error {
	if w.running.Load() {
		return nil
	}
	w.out = out
	w.running.Store(true)
	w.writerWg.Add(1)
	go w.writerLoop()
	return nil
}

// Stop flushes pending records and closes the file.
func (w *JSONLWriter) Stop() {
	w.stopOnce.Do(func() {
		w.running.Store(false)
		close(w.stopChan)
		w.writerWg.Wait()

		w.outMu.Lock()
		if w.file != nil {
			w.file.Close()
		}
		w.outMu.Unlock()
	})
}

// RecordResult enqueues r. It fails fast rather than block a match.
func (w *JSONLWriter) RecordResult(ctx context.Context, r match.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !w.running.Load() {
		return ErrWriterStopped
	}
	if !w.limiter.Allow() {
		atomic.AddUint64(&w.droppedCount, 1)
		return ErrRateLimited
	}

	rec := NewRecord(r)
	rec.Sequence = atomic.AddUint64(&w.sequence, 1)
	select {
	case w.records <- rec:
		atomic.AddUint64(&w.totalCount, 1)
		return nil
	default:
		atomic.AddUint64(&w.droppedCount, 1)
		return ErrBufferFull
	}
}

func (w *JSONLWriter) writerLoop() {
	defer w.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, BatchFlushSize)

	for {
		select {
		case <-w.stopChan:
			// Final flush
			for {
				batch = w.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				w.flushBatch(batch)
			}

		case <-ticker.C:
			batch = w.collectBatch(batch[:0])
			if len(batch) > 0 {
				w.flushBatch(batch)
			}
		}
	}
}

func (w *JSONLWriter) collectBatch(batch []Record) []Record {
	for len(batch) < BatchFlushSize {
		select {
		case rec := <-w.records:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
	return batch
}

// flushBatch writes records as newline-delimited JSON
func (w *JSONLWriter) flushBatch(batch []Record) {
	w.outMu.Lock()
	defer w.outMu.Unlock()

	if w.out == nil {
		return
	}

	for _, rec := range batch {
		data, err := json.Marshal(rec)
		if err != nil {
			log.Printf("⚠️ Result log: skipping %s: %v", rec.MatchID, err)
			continue
		}
		data = append(data, '\n')
		if _, err := w.out.Write(data); err != nil {
			log.Printf("❌ Result log write failed: %v", err)
			return
		}
	}
}

// Stats returns counters for monitoring.
func (w *JSONLWriter) Stats() map[string]interface{} {
	return map[string]interface{}{
		"total":   atomic.LoadUint64(&w.totalCount),
		"dropped": atomic.LoadUint64(&w.droppedCount),
		"pending": len(w.records),
		"running": w.running.Load(),
	}
}
