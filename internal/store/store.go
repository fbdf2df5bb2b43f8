package store

import (
	"context"

	"spider/internal/domain"
)

// Outcome aggregates recorded results for one solution of one pattern.
type Outcome struct {
	SuccessCount int
	FailureCount int
}

// Store defines persistence for snapshots, graph generations, and solution
// history. Snapshots and graphs are append-only: a (host, generation) pair is
// written once and never updated.
type Store interface {
	// Snapshot history
	SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error

	// Graph generations. SaveGraph stores the generation together with the
	// delta from its predecessor in one transaction; delta may be nil for a
	// host's first generation.
	SaveGraph(ctx context.Context, g *domain.Graph, delta *domain.GraphDelta) error
	Graph(ctx context.Context, hostID string, generation uint64) (*domain.Graph, error)
	LatestGraph(ctx context.Context, hostID string) (*domain.Graph, error)
	LatestGraphs(ctx context.Context) (map[string]*domain.Graph, error)

	// RecentDeltas returns up to limit deltas for the host, newest first.
	RecentDeltas(ctx context.Context, hostID string, limit int) ([]*domain.GraphDelta, error)

	// Hosts lists every host that has at least one published generation.
	Hosts(ctx context.Context) ([]string, error)

	// PruneGenerations drops all but the newest keep generations per host,
	// snapshots included.
	PruneGenerations(ctx context.Context, hostID string, keep int) error

	// Solution history
	RecordOutcome(ctx context.Context, patternID, solutionID string, success bool) error
	Outcomes(ctx context.Context, patternID string) (map[string]Outcome, error)

	// Close releases resources
	Close() error
}
