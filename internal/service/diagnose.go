package service

import (
	"context"
	"fmt"
	"log"

	"spider/internal/correlate"
	"spider/internal/domain"
	"spider/internal/pattern"
	"spider/internal/store"
)

// deltaLookback is how many recent transitions per host feed temporal
// predicates
const deltaLookback = 5

// Diagnoser runs correlation over the live graphs and ranks what it finds.
// Solution history recorded in the store is overlaid onto the library's
// static counts before ranking, so operator feedback shifts the ordering
// without editing pattern files.
type Diagnoser struct {
	ingestor *Ingestor
	library  *pattern.Library
	engine   *correlate.Engine
	store    store.Store
	bus      *EventBus
}

// NewDiagnoser wires the correlation pipeline together
func NewDiagnoser(in *Ingestor, lib *pattern.Library, st store.Store, bus *EventBus) *Diagnoser {
	return &Diagnoser{
		ingestor: in,
		library:  lib,
		engine:   correlate.New(),
		store:    st,
		bus:      bus,
	}
}

// Diagnose evaluates the full pattern library against every host's live
// generation and recent deltas
func (d *Diagnoser) Diagnose(ctx context.Context) ([]domain.DiagnosisResult, error) {
	graphs, stale := d.ingestor.PublishedAll()

	hosts := make(map[string]correlate.HostState, len(graphs))
	for hostID, g := range graphs {
		deltas, err := d.store.RecentDeltas(ctx, hostID, deltaLookback)
		if err != nil {
			// Temporal predicates degrade to current-state only
			log.Printf("Failed to load deltas for host %s: %v", hostID, err)
		}
		hosts[hostID] = correlate.HostState{
			Graph:  g,
			Deltas: deltas,
			Stale:  stale[hostID],
		}
	}

	patterns := d.withHistory(ctx, d.library.Patterns())
	results := d.engine.Correlate(hosts, patterns)

	d.bus.Publish(Event{Type: EventDiagnosisComplete, Payload: map[string]any{
		"hosts":   len(hosts),
		"matches": len(results),
	}})
	return results, nil
}

// RecentDeltas returns a host's recent transitions, newest first
func (d *Diagnoser) RecentDeltas(ctx context.Context, hostID string) ([]*domain.GraphDelta, error) {
	return d.store.RecentDeltas(ctx, hostID, deltaLookback)
}

// RecordOutcome stores operator feedback for a suggested solution
func (d *Diagnoser) RecordOutcome(ctx context.Context, patternID, solutionID string, success bool) error {
	if !d.knownSolution(patternID, solutionID) {
		return fmt.Errorf("unknown solution %s/%s", patternID, solutionID)
	}
	return d.store.RecordOutcome(ctx, patternID, solutionID, success)
}

// ReloadPatterns re-reads the pattern library from disk
func (d *Diagnoser) ReloadPatterns() error {
	if err := d.library.Reload(); err != nil {
		return err
	}
	d.bus.Publish(Event{Type: EventPatternsReloaded, Payload: map[string]any{
		"patterns": len(d.library.Patterns()),
		"rejected": d.library.Rejected(),
	}})
	return nil
}

// withHistory merges stored outcome counts into each pattern's solutions.
// Stored counts add to the counts shipped in the library file.
func (d *Diagnoser) withHistory(ctx context.Context, patterns []domain.DiagnosticPattern) []domain.DiagnosticPattern {
	out := make([]domain.DiagnosticPattern, len(patterns))
	for i, p := range patterns {
		out[i] = p
		if len(p.Solutions) == 0 {
			continue
		}
		outcomes, err := d.store.Outcomes(ctx, p.ID)
		if err != nil {
			log.Printf("Failed to load outcomes for pattern %s: %v", p.ID, err)
			continue
		}
		if len(outcomes) == 0 {
			continue
		}
		solutions := make([]domain.Solution, len(p.Solutions))
		copy(solutions, p.Solutions)
		for j := range solutions {
			if o, ok := outcomes[solutions[j].ID]; ok {
				solutions[j].SuccessCount += o.SuccessCount
				solutions[j].FailureCount += o.FailureCount
			}
		}
		out[i].Solutions = solutions
	}
	return out
}

func (d *Diagnoser) knownSolution(patternID, solutionID string) bool {
	for _, p := range d.library.Patterns() {
		if p.ID != patternID {
			continue
		}
		for _, s := range p.Solutions {
			if s.ID == solutionID {
				return true
			}
		}
	}
	return false
}
