package graph

import (
	"reflect"
	"testing"
	"time"

	"spider/internal/domain"
)

var captureTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func entity(id string, kind domain.EntityKind, hostID, naturalKey string, attrs map[string]any) domain.Entity {
	return domain.Entity{
		ID:         id,
		Kind:       kind,
		HostID:     hostID,
		NaturalKey: naturalKey,
		Attributes: attrs,
		FirstSeen:  captureTime,
		LastSeen:   captureTime,
	}
}

func fathomSnapshot(gen uint64) *domain.Snapshot {
	return &domain.Snapshot{
		HostID:     "fathom",
		Generation: gen,
		CapturedAt: captureTime.Add(time.Duration(gen) * time.Hour),
		Entities: []domain.Entity{
			entity("host-1", domain.KindHost, "fathom", "fathom", map[string]any{"hostname": "fathom"}),
			entity("ctr-1", domain.KindContainer, "fathom", "ollama@ollama/ollama:latest", map[string]any{
				"name": "ollama", "image": "ollama/ollama:latest", "status": "Up 2 hours",
			}),
			entity("cfg-1", domain.KindFile, "fathom", "/etc/nginx/nginx.conf", map[string]any{
				"path":       "/etc/nginx/nginx.conf",
				"references": "/etc/nginx/conf.d/ollama.conf\n/var/log/nginx/error.log",
			}),
			entity("cfg-2", domain.KindFile, "fathom", "/etc/nginx/conf.d/ollama.conf", map[string]any{
				"path": "/etc/nginx/conf.d/ollama.conf",
			}),
		},
	}
}

func TestBuildDerivesEdges(t *testing.T) {
	b := NewBuilder()
	g, err := b.Build(nil, fathomSnapshot(1))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if g.Generation != 1 {
		t.Errorf("expected generation 1, got %d", g.Generation)
	}
	if len(g.Entities) != 4 {
		t.Errorf("expected 4 live entities, got %d", len(g.Entities))
	}

	t.Run("config reference edge", func(t *testing.T) {
		id := domain.EdgeID("cfg-1", "cfg-2", domain.EdgeConfigReferences)
		edge, ok := g.Edges[id]
		if !ok {
			t.Fatal("expected config reference edge")
		}
		if edge.Confidence != 0.9 {
			t.Errorf("expected exact-match confidence 0.9, got %v", edge.Confidence)
		}
	})

	t.Run("runs_on containment edge", func(t *testing.T) {
		id := domain.EdgeID("ctr-1", "host-1", domain.EdgeRunsOn)
		edge, ok := g.Edges[id]
		if !ok {
			t.Fatal("expected runs_on edge from container to host")
		}
		if edge.Confidence != 1.0 {
			t.Errorf("expected containment confidence 1.0, got %v", edge.Confidence)
		}
	})

	t.Run("all confidences bounded", func(t *testing.T) {
		for _, edge := range g.Edges {
			if edge.Confidence < 0 || edge.Confidence > 1 {
				t.Errorf("edge %s confidence %v outside [0,1]", edge.ID, edge.Confidence)
			}
		}
	})
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder()
	snap := fathomSnapshot(1)

	first, err := b.Build(nil, snap)
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	second, err := b.Build(nil, snap)
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}

	if !reflect.DeepEqual(first.Entities, second.Entities) {
		t.Error("expected identical entity sets")
	}
	if !reflect.DeepEqual(first.Edges, second.Edges) {
		t.Error("expected identical edge sets and confidences")
	}
	if !first.BuiltAt.Equal(second.BuiltAt) {
		t.Error("expected identical build timestamps")
	}
}

func TestBuildGenerationOrder(t *testing.T) {
	b := NewBuilder()
	g1, err := b.Build(nil, fathomSnapshot(2))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	t.Run("rejects stale snapshot", func(t *testing.T) {
		if _, err := b.Build(g1, fathomSnapshot(2)); err == nil {
			t.Error("expected error for non-advancing generation")
		}
	})

	t.Run("rejects wrong host", func(t *testing.T) {
		snap := fathomSnapshot(3)
		snap.HostID = "sanctum"
		if _, err := b.Build(g1, snap); err == nil {
			t.Error("expected error for host mismatch")
		}
	})
}

func TestBuildEdgeToPreviousGenerationEntity(t *testing.T) {
	b := NewBuilder()
	g1, err := b.Build(nil, fathomSnapshot(1))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// Generation 2 re-observes only a log file whose tail mentions the
	// container, which vanished from the snapshot. The edge may still land
	// on the adjacent generation's entity.
	snap2 := &domain.Snapshot{
		HostID:     "fathom",
		Generation: 2,
		CapturedAt: captureTime.Add(2 * time.Hour),
		Entities: []domain.Entity{
			entity("log-1", domain.KindFile, "fathom", "/var/log/syslog", map[string]any{
				"path": "/var/log/syslog",
				"tail": "jun 01 12:05:01 fathom dockerd: container ollama exited",
			}),
		},
	}

	g2, err := b.Build(g1, snap2)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	id := domain.EdgeID("log-1", "ctr-1", domain.EdgeLogMentions)
	edge, ok := g2.Edges[id]
	if !ok {
		t.Fatal("expected log mention edge to previous-generation container")
	}
	if edge.Confidence != 0.4 {
		t.Errorf("expected fuzzy mention confidence 0.4, got %v", edge.Confidence)
	}

	if _, ok := g2.Entities["ctr-1"]; ok {
		t.Error("expected container omitted from the new live set")
	}
}

// sameTypeRule always claims the same edge type so duplicate detections fold
type sameTypeRule struct {
	name       string
	confidence float64
}

func (r sameTypeRule) Name() string { return r.name }

func (r sameTypeRule) Match(source, target *domain.Entity) (Detection, bool) {
	if source.Kind != domain.KindFile || target.Kind != domain.KindFile {
		return Detection{}, false
	}
	return Detection{Type: domain.EdgeConfigReferences, Confidence: r.confidence, Evidence: r.name}, true
}

func TestBuildFoldsDuplicateDetections(t *testing.T) {
	b := NewBuilder(sameTypeRule{"weak", 0.5}, sameTypeRule{"also-weak", 0.5})

	snap := &domain.Snapshot{
		HostID:     "fathom",
		Generation: 1,
		CapturedAt: captureTime,
		Entities: []domain.Entity{
			entity("f-1", domain.KindFile, "fathom", "/a", map[string]any{"path": "/a"}),
			entity("f-2", domain.KindFile, "fathom", "/b", map[string]any{"path": "/b"}),
		},
	}

	g, err := b.Build(nil, snap)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	edge, ok := g.Edges[domain.EdgeID("f-1", "f-2", domain.EdgeConfigReferences)]
	if !ok {
		t.Fatal("expected folded edge")
	}
	if edge.Confidence != 0.75 {
		t.Errorf("expected probabilistic OR 0.75, got %v", edge.Confidence)
	}
}

func TestValidateDanglingEdge(t *testing.T) {
	g := domain.NewGraph("fathom")
	g.Entities["a"] = entity("a", domain.KindFile, "fathom", "/a", nil)
	g.Edges["bad"] = domain.Relationship{ID: "bad", SourceID: "a", TargetID: "ghost", Type: domain.EdgeImports}

	err := g.Validate(nil)
	if err == nil {
		t.Fatal("expected consistency error")
	}
	consistency, ok := err.(*domain.GraphConsistencyError)
	if !ok {
		t.Fatalf("expected GraphConsistencyError, got %T", err)
	}
	if consistency.EntityID != "ghost" {
		t.Errorf("expected offending entity ghost, got %s", consistency.EntityID)
	}
}

func TestNetworkConnectRuleNumericPort(t *testing.T) {
	// Resolved endpoints carry their port as int64, not as a string
	endpoint := entity("ep-1", domain.KindNetEndpoint, "fathom", "10.0.0.9:11434/tcp", map[string]any{
		"address": "10.0.0.9", "port": int64(11434), "protocol": "tcp",
	})
	container := entity("ctr-1", domain.KindContainer, "fathom", "ollama@ollama/ollama:latest", map[string]any{
		"name": "ollama", "connects_to": "10.0.0.9:11434",
	})

	det, ok := NetworkConnectRule{}.Match(&container, &endpoint)
	if !ok {
		t.Fatal("expected network connect edge for a numeric port")
	}
	if det.Type != domain.EdgeNetworkConnects {
		t.Errorf("edge type = %s, want %s", det.Type, domain.EdgeNetworkConnects)
	}

	t.Run("natural key fallback", func(t *testing.T) {
		byKey := container
		byKey.Attributes = map[string]any{"connects_to": "10.0.0.9:11434/tcp"}
		if _, ok := (NetworkConnectRule{}).Match(&byKey, &endpoint); !ok {
			t.Error("expected match via the endpoint natural key")
		}
	})
}

func TestLogMentionRuleNumericPort(t *testing.T) {
	endpoint := entity("ep-1", domain.KindNetEndpoint, "fathom", "10.0.0.9:11434/tcp", map[string]any{
		"address": "10.0.0.9", "port": int64(11434), "protocol": "tcp",
	})
	logFile := entity("log-1", domain.KindFile, "fathom", "/var/log/app/app.log", map[string]any{
		"path": "/var/log/app/app.log",
		"tail": "connecting upstream 10.0.0.9:11434 timed out",
	})

	det, ok := LogMentionRule{}.Match(&logFile, &endpoint)
	if !ok {
		t.Fatal("expected log mention edge for a numeric port")
	}
	if det.Type != domain.EdgeLogMentions {
		t.Errorf("edge type = %s, want %s", det.Type, domain.EdgeLogMentions)
	}
}
