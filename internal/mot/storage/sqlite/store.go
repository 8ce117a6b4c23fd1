// Package sqlite stores tracking results for later analysis.
//
// The store is an export: runs and the boxes reported on every frame are
// written as they are produced and read back only by reporting code
// (charts, plots, the SQL console). A tracker never restores state from it.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/motrack/internal/monitoring"
	"github.com/banshee-data/motrack/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var logf = monitoring.Prefixed("store")

// Store wraps the tracking results database.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	s := &Store{db: db, clock: timeutil.RealClock{}}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the handle for read-only consumers such as the SQL console.
func (s *Store) DB() *sql.DB { return s.db }

// SetClock replaces the clock used for run timestamps.
func (s *Store) SetClock(c timeutil.Clock) { s.clock = c }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// MigrateUp applies all embedded migrations.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close s.db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied schema version and dirty flag.
func (s *Store) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy retries fn with exponential backoff (10ms, 20ms, ...) while
// SQLite reports the database as locked, at most five attempts.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	delay := 10 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !isSQLiteBusy(err) {
			return err
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("database busy after %d attempts: %w", attempts, err)
}

// Run is one tracking run over one sequence.
type Run struct {
	RunID      string          `json:"run_id"`
	Sequence   string          `json:"sequence"`
	ParamsJSON json.RawMessage `json:"params_json,omitempty"`
	StatsJSON  json.RawMessage `json:"stats_json,omitempty"`
	StartedAt  int64           `json:"started_at"`
	FinishedAt int64           `json:"finished_at,omitempty"`
}

// StartRun inserts a run and returns its generated ID. params is stored as
// JSON; nil is allowed.
func (s *Store) StartRun(ctx context.Context, sequence string, params any) (string, error) {
	var paramsStr any
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return "", fmt.Errorf("failed to encode run params: %w", err)
		}
		paramsStr = string(b)
	}
	id := uuid.New().String()
	err := retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO tracking_runs (run_id, sequence, params_json, started_at) VALUES (?, ?, ?, ?)`,
			id, sequence, paramsStr, s.clock.Now().UnixNano())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	logf("started run %s for %s", id, sequence)
	return id, nil
}

// FinishRun records the run's summary statistics.
func (s *Store) FinishRun(ctx context.Context, runID string, stats any) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode run stats: %w", err)
	}
	return retryOnBusy(func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE tracking_runs SET stats_json = ?, finished_at = ? WHERE run_id = ?`,
			string(b), s.clock.Now().UnixNano(), runID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("run %s not found", runID)
		}
		return nil
	})
}

// Observation is one reported box of one track on one frame.
type Observation struct {
	Frame   int
	TrackID int64
	X, Y    float64
	W, H    float64
	Score   float64
	Class   int
}

// InsertObservations writes one frame's boxes in a single transaction.
func (s *Store) InsertObservations(ctx context.Context, runID string, obs []Observation) error {
	if len(obs) == 0 {
		return nil
	}
	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO track_observations (run_id, frame, track_id, x, y, w, h, score, class)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, o := range obs {
			if _, err := stmt.ExecContext(ctx, runID, o.Frame, o.TrackID, o.X, o.Y, o.W, o.H, o.Score, o.Class); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, sequence, params_json, stats_json, started_at, finished_at
		FROM tracking_runs
		ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r             Run
			params, stats sql.NullString
			finished      sql.NullInt64
		)
		if err := rows.Scan(&r.RunID, &r.Sequence, &params, &stats, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		if params.Valid {
			r.ParamsJSON = json.RawMessage(params.String)
		}
		if stats.Valid {
			r.StatsJSON = json.RawMessage(stats.String)
		}
		r.FinishedAt = finished.Int64
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Observations returns a run's boxes ordered by track then frame.
func (s *Store) Observations(ctx context.Context, runID string) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame, track_id, x, y, w, h, score, class
		FROM track_observations
		WHERE run_id = ?
		ORDER BY track_id, frame`, runID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.Frame, &o.TrackID, &o.X, &o.Y, &o.W, &o.H, &o.Score, &o.Class); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// TrackSummary aggregates one track over a run.
type TrackSummary struct {
	TrackID      int64
	FirstFrame   int
	LastFrame    int
	Observations int
	MeanScore    float64
}

// TrackSummaries returns per-track aggregates for a run, ordered by ID.
func (s *Store) TrackSummaries(ctx context.Context, runID string) ([]TrackSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, first_frame, last_frame, observations, mean_score
		FROM track_summaries
		WHERE run_id = ?
		ORDER BY track_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query track summaries: %w", err)
	}
	defer rows.Close()

	var out []TrackSummary
	for rows.Next() {
		var t TrackSummary
		if err := rows.Scan(&t.TrackID, &t.FirstFrame, &t.LastFrame, &t.Observations, &t.MeanScore); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
