// Package correlate matches graph state against the pattern library and
// ranks candidate diagnoses.
//
// Correlation is the cross-host fan-in of the system: each host contributes
// its latest published graph generation and recent deltas, the engine merges
// them into one evaluation context, and a symptom reproduced on two hosts
// outranks the same symptom seen on one. Hosts whose data is stale (an
// unreachable host still contributing its last known generation) degrade the
// confidence of any result built on their evidence instead of blocking the
// run.
package correlate

import (
	"sort"

	"spider/internal/domain"
	"spider/internal/pattern"
)

// HostState is one host's contribution to a correlation run: a consistent
// read snapshot (one published generation), the recent deltas leading up to
// it (newest first), and whether the data is stale.
type HostState struct {
	Graph  *domain.Graph
	Deltas []*domain.GraphDelta
	Stale  bool
}

// Engine scores and ranks pattern matches
type Engine struct {
	// CrossHostBonus multiplies match confidence when matched entities
	// span more than one host
	CrossHostBonus float64
	// StalePenalty multiplies match confidence once per stale host whose
	// entities back the match
	StalePenalty float64
}

// New creates an engine with the default scoring factors
func New() *Engine {
	return &Engine{
		CrossHostBonus: 1.25,
		StalePenalty:   0.8,
	}
}

// Correlate evaluates every pattern against the merged host states and
// returns matches ranked best-first. It never mutates its inputs and holds
// no state between runs; callers decide which generations participate.
func (e *Engine) Correlate(hosts map[string]HostState, patterns []domain.DiagnosticPattern) []domain.DiagnosisResult {
	ctx, owner := mergeHosts(hosts)

	var results []domain.DiagnosisResult
	for i := range patterns {
		p := &patterns[i]
		result, ok := e.match(p, ctx, owner, hosts)
		if !ok {
			continue
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		// Broader evidence wins ties
		if len(results[i].MatchedEntities) != len(results[j].MatchedEntities) {
			return len(results[i].MatchedEntities) > len(results[j].MatchedEntities)
		}
		// Then specificity: more required predicates
		si, sj := requiredCount(patterns, results[i].PatternID), requiredCount(patterns, results[j].PatternID)
		if si != sj {
			return si > sj
		}
		return results[i].PatternID < results[j].PatternID
	})

	return results
}

// match evaluates a single pattern. A pattern matches only when every
// required predicate finds at least one satisfying entity and no excluded
// predicate matches.
func (e *Engine) match(p *domain.DiagnosticPattern, ctx *pattern.EvalContext, owner map[string]string, hosts map[string]HostState) (domain.DiagnosisResult, bool) {
	confidence := 1.0
	matched := make(map[string]struct{})

	for i := range p.RequiredSymptoms {
		m, ok := pattern.Evaluate(&p.RequiredSymptoms[i], ctx)
		if !ok {
			return domain.DiagnosisResult{}, false
		}
		confidence *= m.Confidence
		for _, id := range m.EntityIDs {
			matched[id] = struct{}{}
		}
	}

	for i := range p.ExcludedSymptoms {
		if _, ok := pattern.Evaluate(&p.ExcludedSymptoms[i], ctx); ok {
			return domain.DiagnosisResult{}, false
		}
	}

	matchedIDs := make([]string, 0, len(matched))
	for id := range matched {
		matchedIDs = append(matchedIDs, id)
	}
	sort.Strings(matchedIDs)

	involvedHosts := make(map[string]struct{})
	staleHosts := make(map[string]struct{})
	for _, id := range matchedIDs {
		hostID, ok := owner[id]
		if !ok {
			continue
		}
		involvedHosts[hostID] = struct{}{}
		if hosts[hostID].Stale {
			staleHosts[hostID] = struct{}{}
		}
	}

	// Cross-host correlation is the point of the merge step: the same
	// symptom reproduced on multiple hosts is stronger evidence.
	if len(involvedHosts) > 1 {
		confidence *= e.CrossHostBonus
	}
	for range staleHosts {
		confidence *= e.StalePenalty
	}
	confidence = domain.ClampConfidence(confidence)

	result := domain.DiagnosisResult{
		PatternID:       p.ID,
		PatternName:     p.Name,
		Diagnosis:       p.Diagnosis,
		MatchedEntities: matchedIDs,
		Confidence:      confidence,
		RankedSolutions: domain.RankSolutions(p.Solutions),
		Degraded:        len(staleHosts) > 0,
	}
	for hostID := range staleHosts {
		result.StaleHosts = append(result.StaleHosts, hostID)
	}
	sort.Strings(result.StaleHosts)

	return result, true
}

// mergeHosts flattens per-host states into one evaluation context and an
// entity-to-host ownership map. Deltas align by recency: index 0 aggregates
// every host's most recent transition.
func mergeHosts(hosts map[string]HostState) (*pattern.EvalContext, map[string]string) {
	ctx := &pattern.EvalContext{}
	owner := make(map[string]string)

	hostIDs := make([]string, 0, len(hosts))
	maxDeltas := 0
	for id, state := range hosts {
		hostIDs = append(hostIDs, id)
		if len(state.Deltas) > maxDeltas {
			maxDeltas = len(state.Deltas)
		}
	}
	sort.Strings(hostIDs)

	for _, hostID := range hostIDs {
		state := hosts[hostID]
		if state.Graph == nil {
			continue
		}
		entityIDs := make([]string, 0, len(state.Graph.Entities))
		for id := range state.Graph.Entities {
			entityIDs = append(entityIDs, id)
		}
		sort.Strings(entityIDs)
		for _, id := range entityIDs {
			ctx.Entities = append(ctx.Entities, state.Graph.Entities[id])
			owner[id] = hostID
		}

		edgeIDs := make([]string, 0, len(state.Graph.Edges))
		for id := range state.Graph.Edges {
			edgeIDs = append(edgeIDs, id)
		}
		sort.Strings(edgeIDs)
		for _, id := range edgeIDs {
			ctx.Edges = append(ctx.Edges, state.Graph.Edges[id])
		}
	}

	ctx.RecentChanges = make([][]domain.AttributeChange, maxDeltas)
	for i := 0; i < maxDeltas; i++ {
		for _, hostID := range hostIDs {
			state := hosts[hostID]
			if i < len(state.Deltas) && state.Deltas[i] != nil {
				ctx.RecentChanges[i] = append(ctx.RecentChanges[i], state.Deltas[i].ChangedEntities...)
			}
		}
	}

	return ctx, owner
}

func requiredCount(patterns []domain.DiagnosticPattern, id string) int {
	for i := range patterns {
		if patterns[i].ID == id {
			return len(patterns[i].RequiredSymptoms)
		}
	}
	return 0
}
