package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"spider/internal/domain"
	"spider/internal/store"

	_ "modernc.org/sqlite"
)

// Store implements store.Store using SQLite
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Generations for one host are written serially; a single connection
	// keeps the in-memory database usable as well.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		host_id TEXT NOT NULL,
		generation INTEGER NOT NULL,
		captured_at DATETIME NOT NULL,
		data JSON NOT NULL,
		PRIMARY KEY (host_id, generation)
	);

	CREATE TABLE IF NOT EXISTS graphs (
		host_id TEXT NOT NULL,
		generation INTEGER NOT NULL,
		built_at DATETIME NOT NULL,
		entity_count INTEGER NOT NULL,
		edge_count INTEGER NOT NULL,
		data JSON NOT NULL,
		PRIMARY KEY (host_id, generation)
	);

	CREATE TABLE IF NOT EXISTS deltas (
		host_id TEXT NOT NULL,
		generation INTEGER NOT NULL,
		data JSON NOT NULL,
		PRIMARY KEY (host_id, generation),
		FOREIGN KEY (host_id, generation) REFERENCES graphs(host_id, generation) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS solution_outcomes (
		pattern_id TEXT NOT NULL,
		solution_id TEXT NOT NULL,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (pattern_id, solution_id)
	);

	CREATE INDEX IF NOT EXISTS idx_graphs_host ON graphs(host_id, generation DESC);
	CREATE INDEX IF NOT EXISTS idx_snapshots_host ON snapshots(host_id, generation DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSnapshot appends one snapshot. A second write for the same
// (host, generation) is rejected; history is never rewritten.
func (s *Store) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (host_id, generation, captured_at, data)
		VALUES (?, ?, ?, ?)
	`, snap.HostID, snap.Generation, snap.CapturedAt.UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot %s/%d: %w", snap.HostID, snap.Generation, err)
	}
	return nil
}

// SaveGraph stores one published generation and, when non-nil, the delta
// from its predecessor in the same transaction.
func (s *Store) SaveGraph(ctx context.Context, g *domain.Graph, delta *domain.GraphDelta) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO graphs (host_id, generation, built_at, entity_count, edge_count, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, g.HostID, g.Generation, g.BuiltAt.UTC().Format(time.RFC3339Nano), len(g.Entities), len(g.Edges), data)
	if err != nil {
		return fmt.Errorf("failed to insert graph %s/%d: %w", g.HostID, g.Generation, err)
	}

	if delta != nil {
		deltaData, err := json.Marshal(delta)
		if err != nil {
			return fmt.Errorf("failed to marshal delta: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO deltas (host_id, generation, data) VALUES (?, ?, ?)
		`, g.HostID, g.Generation, deltaData); err != nil {
			return fmt.Errorf("failed to insert delta %s/%d: %w", g.HostID, g.Generation, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Graph loads one stored generation. Returns nil without error if the
// generation does not exist.
func (s *Store) Graph(ctx context.Context, hostID string, generation uint64) (*domain.Graph, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM graphs WHERE host_id = ? AND generation = ?
	`, hostID, generation).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query graph: %w", err)
	}
	return unmarshalGraph(data)
}

// LatestGraph loads the newest stored generation for a host, or nil if the
// host has none.
func (s *Store) LatestGraph(ctx context.Context, hostID string) (*domain.Graph, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM graphs WHERE host_id = ?
		ORDER BY generation DESC LIMIT 1
	`, hostID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest graph: %w", err)
	}
	return unmarshalGraph(data)
}

// LatestGraphs loads the newest generation of every host.
func (s *Store) LatestGraphs(ctx context.Context) (map[string]*domain.Graph, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.data FROM graphs g
		JOIN (SELECT host_id, MAX(generation) AS generation FROM graphs GROUP BY host_id) latest
		ON g.host_id = latest.host_id AND g.generation = latest.generation
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest graphs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.Graph)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan graph: %w", err)
		}
		g, err := unmarshalGraph(data)
		if err != nil {
			return nil, err
		}
		out[g.HostID] = g
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating graphs: %w", err)
	}
	return out, nil
}

// RecentDeltas returns up to limit deltas for a host, newest first.
func (s *Store) RecentDeltas(ctx context.Context, hostID string, limit int) ([]*domain.GraphDelta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM deltas WHERE host_id = ?
		ORDER BY generation DESC LIMIT ?
	`, hostID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deltas: %w", err)
	}
	defer rows.Close()

	var out []*domain.GraphDelta
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan delta: %w", err)
		}
		delta := &domain.GraphDelta{}
		if err := json.Unmarshal(data, delta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal delta: %w", err)
		}
		out = append(out, delta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deltas: %w", err)
	}
	return out, nil
}

// Hosts lists every host with at least one published generation, sorted.
func (s *Store) Hosts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT host_id FROM graphs ORDER BY host_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query hosts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var hostID string
		if err := rows.Scan(&hostID); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		out = append(out, hostID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hosts: %w", err)
	}
	return out, nil
}

// PruneGenerations drops all but the newest keep generations for a host.
// Deltas go with their graphs via CASCADE; matching snapshots are pruned in
// the same pass.
func (s *Store) PruneGenerations(ctx context.Context, hostID string, keep int) error {
	if keep < 1 {
		keep = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var cutoff sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT MIN(generation) FROM (
			SELECT generation FROM graphs WHERE host_id = ?
			ORDER BY generation DESC LIMIT ?
		)
	`, hostID, keep).Scan(&cutoff)
	if err != nil {
		return fmt.Errorf("failed to find retention cutoff: %w", err)
	}
	if !cutoff.Valid {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM graphs WHERE host_id = ? AND generation < ?
	`, hostID, cutoff.Int64); err != nil {
		return fmt.Errorf("failed to prune graphs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM snapshots WHERE host_id = ? AND generation < ?
	`, hostID, cutoff.Int64); err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordOutcome increments the success or failure counter for one solution
func (s *Store) RecordOutcome(ctx context.Context, patternID, solutionID string, success bool) error {
	successInc, failureInc := 0, 1
	if success {
		successInc, failureInc = 1, 0
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO solution_outcomes (pattern_id, solution_id, success_count, failure_count, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(pattern_id, solution_id) DO UPDATE SET
			success_count = success_count + excluded.success_count,
			failure_count = failure_count + excluded.failure_count,
			updated_at = CURRENT_TIMESTAMP
	`, patternID, solutionID, successInc, failureInc)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// Outcomes returns recorded history for a pattern, keyed by solution ID
func (s *Store) Outcomes(ctx context.Context, patternID string) (map[string]store.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT solution_id, success_count, failure_count
		FROM solution_outcomes WHERE pattern_id = ?
	`, patternID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]store.Outcome)
	for rows.Next() {
		var solutionID string
		var outcome store.Outcome
		if err := rows.Scan(&solutionID, &outcome.SuccessCount, &outcome.FailureCount); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		out[solutionID] = outcome
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}
	return out, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func unmarshalGraph(data []byte) (*domain.Graph, error) {
	g := &domain.Graph{}
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}
	if g.Entities == nil {
		g.Entities = make(map[string]domain.Entity)
	}
	if g.Edges == nil {
		g.Edges = make(map[string]domain.Relationship)
	}
	return g, nil
}
