package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"spider/internal/diff"
	"spider/internal/domain"
	"spider/internal/graph"
	"spider/internal/resolver"
	"spider/internal/scanner"
	"spider/internal/store"
)

// HostReport summarizes one host's part of a scan cycle
type HostReport struct {
	HostID     string `json:"host_id"`
	Generation uint64 `json:"generation"`
	Entities   int    `json:"entities"`
	Edges      int    `json:"edges"`
	// Skipped counts malformed records the resolver dropped
	Skipped int `json:"skipped"`
	// Minted counts identities observed for the first time
	Minted int `json:"minted"`
	// FailedScanners lists scanners that errored this cycle
	FailedScanners []string `json:"failed_scanners,omitempty"`
	// Stale marks a host that timed out; its previous generation stays live
	Stale bool  `json:"stale"`
	Error error `json:"-"`
}

// CycleSummary aggregates one full scan cycle across all hosts
type CycleSummary struct {
	StartedAt time.Time    `json:"started_at"`
	Duration  string       `json:"duration"`
	Hosts     []HostReport `json:"hosts"`
}

// Ingestor drives the scan-resolve-build-publish pipeline. Each host's
// pipeline is serialized; distinct hosts run in parallel. A new generation
// becomes visible to readers in one atomic swap, and only after it has been
// persisted; readers in between still see the previous generation.
type Ingestor struct {
	registry *scanner.Registry
	resolver *resolver.Resolver
	builder  *graph.Builder
	store    store.Store
	bus      *EventBus

	// now is the clock; replaceable in tests
	now func() time.Time

	mu        sync.RWMutex
	published map[string]*domain.Graph
	stale     map[string]bool
	hostLocks map[string]*sync.Mutex
}

// NewIngestor wires the ingestion pipeline together
func NewIngestor(reg *scanner.Registry, res *resolver.Resolver, b *graph.Builder, st store.Store, bus *EventBus) *Ingestor {
	return &Ingestor{
		registry:  reg,
		resolver:  res,
		builder:   b,
		store:     st,
		bus:       bus,
		now:       time.Now,
		published: make(map[string]*domain.Graph),
		stale:     make(map[string]bool),
		hostLocks: make(map[string]*sync.Mutex),
	}
}

// Bootstrap loads each host's newest persisted generation, replays its
// entities into the identity index, and publishes it. Identity assignment
// survives restarts this way: an entity reappearing after downtime keeps
// the ID it was first minted.
func (in *Ingestor) Bootstrap(ctx context.Context) error {
	graphs, err := in.store.LatestGraphs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load persisted graphs: %w", err)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	for hostID, g := range graphs {
		for id := range g.Entities {
			e := g.Entities[id]
			in.resolver.Index().Register(&e)
		}
		in.published[hostID] = g
		log.Printf("Restored host %s at generation %d (%d entities, %d edges)",
			hostID, g.Generation, len(g.Entities), len(g.Edges))
	}
	return nil
}

// RunCycle scans every registered host in parallel and publishes the
// resulting generations. Host failures never abort the cycle; they surface
// in the summary and as stale flags.
func (in *Ingestor) RunCycle(ctx context.Context) CycleSummary {
	started := in.now()
	hosts := in.registry.Hosts()

	reports := make([]HostReport, len(hosts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, hostID := range hosts {
		i, hostID := i, hostID
		g.Go(func() error {
			reports[i] = in.IngestHost(gctx, hostID)
			return nil
		})
	}
	g.Wait()

	summary := CycleSummary{
		StartedAt: started,
		Duration:  in.now().Sub(started).Round(time.Millisecond).String(),
		Hosts:     reports,
	}
	in.bus.Publish(Event{Type: EventCycleComplete, Payload: summary})
	return summary
}

// IngestHost runs one host's pipeline: scan, resolve, build, persist,
// publish. On timeout the host is marked stale and its last published
// generation stays live; on a consistency failure nothing is published.
func (in *Ingestor) IngestHost(ctx context.Context, hostID string) HostReport {
	lock := in.lockFor(hostID)
	lock.Lock()
	defer lock.Unlock()

	report := HostReport{HostID: hostID}

	scanned, err := in.registry.ScanHost(ctx, hostID)
	if err != nil {
		var timeoutErr *domain.HostTimeoutError
		if errors.As(err, &timeoutErr) {
			log.Printf("Host %s timed out; keeping last known generation", hostID)
			in.markStale(hostID, true)
			report.Stale = true
			if prev := in.Published(hostID); prev != nil {
				report.Generation = prev.Generation
			}
			return report
		}
		log.Printf("Scan failed for host %s: %v", hostID, err)
		report.Error = err
		return report
	}
	report.FailedScanners = scanned.Failed

	prev := in.Published(hostID)
	if prev == nil {
		// A host can have persisted history without a published generation
		// (Bootstrap failed, or the host rejoined the fleet). Continuing
		// its generation sequence keeps the store append-only.
		stored, err := in.store.LatestGraph(ctx, hostID)
		if err != nil {
			log.Printf("Failed to load last generation for host %s: %v", hostID, err)
			report.Error = err
			return report
		}
		if stored != nil {
			for id := range stored.Entities {
				e := stored.Entities[id]
				in.resolver.Index().Register(&e)
			}
			prev = stored
		}
	}
	capturedAt := in.now().UTC()

	resolved := in.resolver.Resolve(prev, hostID, capturedAt, scanned.Records)
	report.Skipped = resolved.Skipped
	report.Minted = resolved.Minted

	snap := &domain.Snapshot{
		HostID:     hostID,
		Generation: nextGeneration(prev),
		CapturedAt: capturedAt,
		Entities:   resolved.Entities,
	}

	built, err := in.builder.Build(prev, snap)
	if err != nil {
		// The previous generation stays live; nothing is published
		log.Printf("Graph build failed for host %s: %v", hostID, err)
		report.Error = err
		return report
	}

	if err := in.store.SaveSnapshot(ctx, snap); err != nil {
		log.Printf("Failed to persist snapshot for host %s: %v", hostID, err)
		report.Error = err
		return report
	}
	delta := diff.Compute(prev, built)
	if err := in.store.SaveGraph(ctx, built, delta); err != nil {
		log.Printf("Failed to persist graph for host %s: %v", hostID, err)
		report.Error = err
		return report
	}

	in.publish(hostID, built)
	report.Generation = built.Generation
	report.Entities = len(built.Entities)
	report.Edges = len(built.Edges)

	in.bus.Publish(Event{Type: EventGraphPublished, Payload: map[string]any{
		"host_id":    hostID,
		"generation": built.Generation,
		"entities":   len(built.Entities),
		"edges":      len(built.Edges),
		"changed":    !delta.IsEmpty(),
	}})

	return report
}

// Published returns the live generation for a host, or nil
func (in *Ingestor) Published(hostID string) *domain.Graph {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.published[hostID]
}

// GraphAt loads a specific persisted generation, or nil if unknown
func (in *Ingestor) GraphAt(ctx context.Context, hostID string, generation uint64) (*domain.Graph, error) {
	return in.store.Graph(ctx, hostID, generation)
}

// DeltaBetween computes the transition between two persisted generations
func (in *Ingestor) DeltaBetween(ctx context.Context, hostID string, from, to uint64) (*domain.GraphDelta, error) {
	a, err := in.store.Graph(ctx, hostID, from)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("host %s has no generation %d", hostID, from)
	}
	b, err := in.store.Graph(ctx, hostID, to)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("host %s has no generation %d", hostID, to)
	}
	return diff.Compute(a, b), nil
}

// CompareHosts diffs the live generations of two hosts over the
// naturally-keyed entities they share. Both hosts must be published.
func (in *Ingestor) CompareHosts(hostA, hostB string) (*domain.GraphDelta, error) {
	a := in.Published(hostA)
	if a == nil {
		return nil, fmt.Errorf("host %s has no published generation", hostA)
	}
	b := in.Published(hostB)
	if b == nil {
		return nil, fmt.Errorf("host %s has no published generation", hostB)
	}
	return diff.CrossHost(a, b), nil
}

// PublishedAll returns every host's live generation and stale flag
func (in *Ingestor) PublishedAll() (map[string]*domain.Graph, map[string]bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	graphs := make(map[string]*domain.Graph, len(in.published))
	stale := make(map[string]bool, len(in.stale))
	for hostID, g := range in.published {
		graphs[hostID] = g
		stale[hostID] = in.stale[hostID]
	}
	return graphs, stale
}

// Hosts lists hosts with a live generation, sorted
func (in *Ingestor) Hosts() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]string, 0, len(in.published))
	for hostID := range in.published {
		out = append(out, hostID)
	}
	sort.Strings(out)
	return out
}

func (in *Ingestor) publish(hostID string, g *domain.Graph) {
	in.mu.Lock()
	wasStale := in.stale[hostID]
	in.published[hostID] = g
	in.stale[hostID] = false
	in.mu.Unlock()

	if wasStale {
		in.bus.Publish(Event{Type: EventHostRecovered, Payload: map[string]string{"host_id": hostID}})
	}
}

func (in *Ingestor) markStale(hostID string, stale bool) {
	in.mu.Lock()
	already := in.stale[hostID]
	in.stale[hostID] = stale
	in.mu.Unlock()

	if stale && !already {
		in.bus.Publish(Event{Type: EventHostStale, Payload: map[string]string{"host_id": hostID}})
	}
}

func (in *Ingestor) lockFor(hostID string) *sync.Mutex {
	in.mu.Lock()
	defer in.mu.Unlock()
	lock, ok := in.hostLocks[hostID]
	if !ok {
		lock = &sync.Mutex{}
		in.hostLocks[hostID] = lock
	}
	return lock
}

func nextGeneration(prev *domain.Graph) uint64 {
	if prev == nil {
		return 1
	}
	return prev.Generation + 1
}
