// Package sqlite persists finished matches in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"duel-arena/internal/engine"
	"duel-arena/internal/match"
	"duel-arena/internal/results/sqlite/migrations"
)

var (
	ErrNotFound        = errors.New("match result not found")
	ErrAlreadyRecorded = errors.New("match result already recorded")
)

const migrationTable = "schema_migrations"

// Outcome of one participant.
const (
	OutcomeWin  = "win"
	OutcomeLoss = "loss"
	OutcomeDraw = "draw"
)

// Summary is one stored match without its final snapshot.
type Summary struct {
	MatchID      string              `json:"matchId"`
	WinnerID     string              `json:"winnerId,omitempty"`
	Draw         bool                `json:"draw"`
	Reason       engine.EndReason    `json:"reason"`
	Ticks        uint64              `json:"ticks"`
	StartedAt    time.Time           `json:"startedAt"`
	EndedAt      time.Time           `json:"endedAt"`
	Participants []match.Participant `json:"participants"`
}

// Store persists match results in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite result store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordResult implements match.ResultSink.
func (s *Store) RecordResult(ctx context.Context, r match.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	matchID := strings.TrimSpace(r.MatchID)
	if matchID == "" {
		return fmt.Errorf("match id is required")
	}
	finalState, err := json.Marshal(r.FinalState)
	if err != nil {
		return fmt.Errorf("encode final state: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin result transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO match_results (
		   match_id,
		   winner_id,
		   draw,
		   reason,
		   ticks,
		   started_at,
		   ended_at,
		   final_state,
		   recorded_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		matchID,
		r.WinnerID,
		boolToInt(r.Draw),
		string(r.Reason),
		int64(r.Ticks),
		toMillis(r.StartedAt),
		toMillis(r.EndedAt),
		string(finalState),
		toMillis(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyRecorded, matchID)
		}
		return fmt.Errorf("insert match result: %w", err)
	}

	for slot, p := range r.Participants {
		attrs, err := json.Marshal(p.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes: %w", err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO match_participants (
			   match_id, slot, actor_id, name, is_cpu, weapon_id, attributes, outcome
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			matchID,
			slot,
			p.ActorID,
			p.Name,
			boolToInt(p.IsCPU),
			p.WeaponID,
			string(attrs),
			outcomeFor(r, p.ActorID),
		); err != nil {
			return fmt.Errorf("insert participant %s: %w", p.ActorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit match result: %w", err)
	}
	return nil
}

// Get returns one stored result including its final snapshot.
func (s *Store) Get(ctx context.Context, matchID string) (match.Result, error) {
	if err := ctx.Err(); err != nil {
		return match.Result{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT match_id, winner_id, draw, reason, ticks, started_at, ended_at, final_state
		 FROM match_results WHERE match_id = ?`,
		strings.TrimSpace(matchID),
	)

	var (
		sum        Summary
		finalState string
	)
	if err := scanSummary(row, &sum, &finalState); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return match.Result{}, fmt.Errorf("%w: %s", ErrNotFound, matchID)
		}
		return match.Result{}, fmt.Errorf("get match result: %w", err)
	}
	parts, err := s.participants(ctx, sum.MatchID)
	if err != nil {
		return match.Result{}, err
	}

	out := match.Result{
		MatchID:      sum.MatchID,
		WinnerID:     sum.WinnerID,
		Draw:         sum.Draw,
		Reason:       sum.Reason,
		Participants: parts,
		Ticks:        sum.Ticks,
		StartedAt:    sum.StartedAt,
		EndedAt:      sum.EndedAt,
	}
	if err := json.Unmarshal([]byte(finalState), &out.FinalState); err != nil {
		return match.Result{}, fmt.Errorf("decode final state: %w", err)
	}
	return out, nil
}

// Recent returns the latest results, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Summary, error) {
	return s.list(ctx,
		`SELECT match_id, winner_id, draw, reason, ticks, started_at, ended_at, ''
		 FROM match_results ORDER BY ended_at DESC, match_id LIMIT ?`,
		clampLimit(limit))
}

// ForActor returns the latest results actorID took part in, newest first.
func (s *Store) ForActor(ctx context.Context, actorID string, limit int) ([]Summary, error) {
	return s.list(ctx,
		`SELECT r.match_id, r.winner_id, r.draw, r.reason, r.ticks, r.started_at, r.ended_at, ''
		 FROM match_results r
		 JOIN match_participants p ON p.match_id = r.match_id
		 WHERE p.actor_id = ?
		 ORDER BY r.ended_at DESC, r.match_id LIMIT ?`,
		strings.TrimSpace(actorID), clampLimit(limit))
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list match results: %w", err)
	}
	var out []Summary
	for rows.Next() {
		var (
			sum    Summary
			unused string
		)
		if err := scanSummary(rows, &sum, &unused); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan match result: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate match results: %w", err)
	}
	rows.Close()

	for k := range out {
		parts, err := s.participants(ctx, out[k].MatchID)
		if err != nil {
			return nil, err
		}
		out[k].Participants = parts
	}
	return out, nil
}

func (s *Store) participants(ctx context.Context, matchID string) ([]match.Participant, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT actor_id, name, is_cpu, weapon_id, attributes
		 FROM match_participants WHERE match_id = ? ORDER BY slot`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []match.Participant
	for rows.Next() {
		var (
			p     match.Participant
			isCPU int
			attrs string
		)
		if err := rows.Scan(&p.ActorID, &p.Name, &isCPU, &p.WeaponID, &attrs); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.IsCPU = isCPU != 0
		if err := json.Unmarshal([]byte(attrs), &p.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSummary(row scanner, sum *Summary, finalState *string) error {
	var (
		draw           int
		reason         string
		ticks          int64
		started, ended int64
	)
	if err := row.Scan(&sum.MatchID, &sum.WinnerID, &draw, &reason, &ticks, &started, &ended, finalState); err != nil {
		return err
	}
	sum.Draw = draw != 0
	sum.Reason = engine.EndReason(reason)
	sum.Ticks = uint64(ticks)
	sum.StartedAt = fromMillis(started)
	sum.EndedAt = fromMillis(ended)
	return nil
}

func outcomeFor(r match.Result, actorID string) string {
	switch {
	case r.Draw:
		return OutcomeDraw
	case r.WinnerID == actorID:
		return OutcomeWin
	default:
		return OutcomeLoss
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// applyMigrations executes each embedded migration at most once.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
	    name TEXT PRIMARY KEY,
	    applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := sqlDB.QueryRow(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`, file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		upSQL := extractUp(string(content))

		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upSQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
			file, time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func extractUp(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, up)
	if start == -1 {
		return content
	}
	rest := content[start+len(up):]
	if end := strings.Index(rest, down); end != -1 {
		return rest[:end]
	}
	return rest
}

var _ match.ResultSink = (*Store)(nil)
