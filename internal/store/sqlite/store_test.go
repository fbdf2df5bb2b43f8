package sqlite

import (
	"context"
	"testing"
	"time"

	"spider/internal/domain"
)

// newTestStore creates an in-memory SQLite store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func testGraph(hostID string, generation uint64) *domain.Graph {
	g := domain.NewGraph(hostID)
	g.Generation = generation
	g.BuiltAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(generation) * time.Minute)
	g.Entities["ent-1"] = domain.Entity{
		ID: "ent-1", Kind: domain.KindContainer, HostID: hostID, NaturalKey: "pihole@img",
		Attributes: map[string]any{"name": "pihole", "status": "Up 5 days"},
		FirstSeen:  g.BuiltAt, LastSeen: g.BuiltAt,
	}
	g.Entities["ent-2"] = domain.Entity{
		ID: "ent-2", Kind: domain.KindHost, HostID: hostID, NaturalKey: hostID,
		Attributes: map[string]any{"hostname": hostID},
		FirstSeen:  g.BuiltAt, LastSeen: g.BuiltAt,
	}
	g.Edges["edge-1"] = domain.Relationship{
		ID: "edge-1", SourceID: "ent-1", TargetID: "ent-2",
		Type: domain.EdgeRunsOn, Confidence: 1.0, ObservedAt: g.BuiltAt,
	}
	return g
}

func TestSaveAndLoadGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := testGraph("fathom", 1)
	assertNoError(t, s.SaveGraph(ctx, g, nil))

	loaded, err := s.Graph(ctx, "fathom", 1)
	assertNoError(t, err)
	if loaded == nil {
		t.Fatal("expected stored graph")
	}
	if loaded.HostID != "fathom" || loaded.Generation != 1 {
		t.Errorf("unexpected identity %s/%d", loaded.HostID, loaded.Generation)
	}
	if len(loaded.Entities) != 2 || len(loaded.Edges) != 1 {
		t.Errorf("expected 2 entities and 1 edge, got %d/%d", len(loaded.Entities), len(loaded.Edges))
	}
	ent := loaded.Entities["ent-1"]
	if ent.Kind != domain.KindContainer || ent.GetAttributeString("status") != "Up 5 days" {
		t.Errorf("entity did not round-trip: %+v", ent)
	}
	edge := loaded.Edges["edge-1"]
	if edge.Type != domain.EdgeRunsOn || edge.Confidence != 1.0 {
		t.Errorf("edge did not round-trip: %+v", edge)
	}
	if !loaded.BuiltAt.Equal(g.BuiltAt) {
		t.Errorf("built_at drifted: %v vs %v", loaded.BuiltAt, g.BuiltAt)
	}
}

func TestGraphMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g, err := s.Graph(ctx, "fathom", 99)
	assertNoError(t, err)
	if g != nil {
		t.Error("expected nil for unknown generation")
	}

	latest, err := s.LatestGraph(ctx, "nope")
	assertNoError(t, err)
	if latest != nil {
		t.Error("expected nil for unknown host")
	}
}

func TestGenerationsAreAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := testGraph("fathom", 1)
	assertNoError(t, s.SaveGraph(ctx, g, nil))
	if err := s.SaveGraph(ctx, g, nil); err == nil {
		t.Error("expected rewrite of an existing generation to fail")
	}

	snap := &domain.Snapshot{HostID: "fathom", Generation: 1, CapturedAt: time.Now().UTC()}
	assertNoError(t, s.SaveSnapshot(ctx, snap))
	if err := s.SaveSnapshot(ctx, snap); err == nil {
		t.Error("expected rewrite of an existing snapshot to fail")
	}
}

func TestLatestGraphPicksNewestGeneration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for gen := uint64(1); gen <= 3; gen++ {
		assertNoError(t, s.SaveGraph(ctx, testGraph("fathom", gen), nil))
	}

	latest, err := s.LatestGraph(ctx, "fathom")
	assertNoError(t, err)
	if latest == nil || latest.Generation != 3 {
		t.Fatalf("expected generation 3, got %+v", latest)
	}
}

func TestLatestGraphsAcrossHosts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assertNoError(t, s.SaveGraph(ctx, testGraph("fathom", 1), nil))
	assertNoError(t, s.SaveGraph(ctx, testGraph("fathom", 2), nil))
	assertNoError(t, s.SaveGraph(ctx, testGraph("sanctum", 7), nil))

	graphs, err := s.LatestGraphs(ctx)
	assertNoError(t, err)
	if len(graphs) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(graphs))
	}
	if graphs["fathom"].Generation != 2 || graphs["sanctum"].Generation != 7 {
		t.Errorf("wrong generations: fathom=%d sanctum=%d",
			graphs["fathom"].Generation, graphs["sanctum"].Generation)
	}

	hosts, err := s.Hosts(ctx)
	assertNoError(t, err)
	if len(hosts) != 2 || hosts[0] != "fathom" || hosts[1] != "sanctum" {
		t.Errorf("expected sorted host list, got %v", hosts)
	}
}

func TestDeltasNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assertNoError(t, s.SaveGraph(ctx, testGraph("fathom", 1), nil))
	for gen := uint64(2); gen <= 4; gen++ {
		delta := &domain.GraphDelta{
			ChangedEntities: []domain.AttributeChange{
				{EntityID: "ent-1", Field: "status", Old: int64(gen - 1), New: int64(gen)},
			},
		}
		assertNoError(t, s.SaveGraph(ctx, testGraph("fathom", gen), delta))
	}

	deltas, err := s.RecentDeltas(ctx, "fathom", 2)
	assertNoError(t, err)
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(deltas))
	}
	// Index 0 is the newest transition (generation 3 -> 4)
	if !domain.ScalarEqual(deltas[0].ChangedEntities[0].New, int64(4)) {
		t.Errorf("expected newest delta first, got %v", deltas[0].ChangedEntities[0].New)
	}
	if !domain.ScalarEqual(deltas[1].ChangedEntities[0].New, int64(3)) {
		t.Errorf("expected second-newest delta next, got %v", deltas[1].ChangedEntities[0].New)
	}
}

func TestPruneGenerations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for gen := uint64(1); gen <= 5; gen++ {
		snap := &domain.Snapshot{HostID: "fathom", Generation: gen, CapturedAt: time.Now().UTC()}
		assertNoError(t, s.SaveSnapshot(ctx, snap))
		var delta *domain.GraphDelta
		if gen > 1 {
			delta = &domain.GraphDelta{
				ChangedEntities: []domain.AttributeChange{{EntityID: "ent-1", Field: "status"}},
			}
		}
		assertNoError(t, s.SaveGraph(ctx, testGraph("fathom", gen), delta))
	}
	assertNoError(t, s.SaveGraph(ctx, testGraph("sanctum", 1), nil))

	assertNoError(t, s.PruneGenerations(ctx, "fathom", 2))

	if g, _ := s.Graph(ctx, "fathom", 3); g != nil {
		t.Error("expected generation 3 pruned")
	}
	if g, _ := s.Graph(ctx, "fathom", 4); g == nil {
		t.Error("expected generation 4 retained")
	}
	latest, _ := s.LatestGraph(ctx, "fathom")
	if latest == nil || latest.Generation != 5 {
		t.Error("expected newest generation retained")
	}
	// Other hosts are untouched
	if g, _ := s.Graph(ctx, "sanctum", 1); g == nil {
		t.Error("expected sanctum untouched by fathom prune")
	}
	// Deltas follow their graphs
	deltas, err := s.RecentDeltas(ctx, "fathom", 10)
	assertNoError(t, err)
	if len(deltas) != 2 {
		t.Errorf("expected 2 surviving deltas, got %d", len(deltas))
	}
}

func TestPruneEmptyHostIsNoop(t *testing.T) {
	s := newTestStore(t)
	assertNoError(t, s.PruneGenerations(context.Background(), "ghost", 3))
}

func TestSolutionOutcomes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assertNoError(t, s.RecordOutcome(ctx, "restart-loop", "check-logs", true))
	assertNoError(t, s.RecordOutcome(ctx, "restart-loop", "check-logs", true))
	assertNoError(t, s.RecordOutcome(ctx, "restart-loop", "check-logs", false))
	assertNoError(t, s.RecordOutcome(ctx, "restart-loop", "recreate", false))
	assertNoError(t, s.RecordOutcome(ctx, "other-pattern", "check-logs", true))

	outcomes, err := s.Outcomes(ctx, "restart-loop")
	assertNoError(t, err)
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 solutions, got %d", len(outcomes))
	}
	logs := outcomes["check-logs"]
	if logs.SuccessCount != 2 || logs.FailureCount != 1 {
		t.Errorf("unexpected check-logs history %+v", logs)
	}
	recreate := outcomes["recreate"]
	if recreate.SuccessCount != 0 || recreate.FailureCount != 1 {
		t.Errorf("unexpected recreate history %+v", recreate)
	}

	empty, err := s.Outcomes(ctx, "unknown")
	assertNoError(t, err)
	if len(empty) != 0 {
		t.Errorf("expected no history for unknown pattern, got %v", empty)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	captured := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &domain.Snapshot{
		HostID: "fathom", Generation: 2, CapturedAt: captured,
		Entities: []domain.Entity{
			{ID: "ent-1", Kind: domain.KindFile, HostID: "fathom", NaturalKey: "/etc/hosts",
				Attributes: map[string]any{"path": "/etc/hosts"}},
		},
		Raw: map[string]any{"docker": map[string]any{"containers": "1"}},
	}
	assertNoError(t, s.SaveSnapshot(ctx, snap))

	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM snapshots WHERE host_id = ? AND generation = ?
	`, "fathom", 2).Scan(&data)
	assertNoError(t, err)
	if len(data) == 0 {
		t.Fatal("expected stored snapshot payload")
	}
}
