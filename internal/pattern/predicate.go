package pattern

import (
	"math"
	"regexp"
	"strings"

	"spider/internal/domain"
)

// EvalContext is the material a predicate evaluates against: the live
// entities and edges under consideration (possibly merged across hosts) and
// recent attribute changes, newest transition first, for temporal predicates.
type EvalContext struct {
	Entities []domain.Entity
	Edges    []domain.Relationship
	// RecentChanges[0] holds the changes of the most recent generation
	// transition, RecentChanges[1] the one before, and so on.
	RecentChanges [][]domain.AttributeChange
}

// Match is the outcome of evaluating one predicate: the satisfying entities
// and the predicate's match confidence. Exact comparisons score 1.0;
// threshold and fuzzy comparisons are scaled by their margin.
type Match struct {
	EntityIDs  []string
	Confidence float64
}

// Evaluate runs a single predicate against the context. A predicate that
// references an attribute no entity carries simply does not match; only a
// structurally invalid predicate (caught at load time) is ever an error.
func Evaluate(p *domain.SymptomPredicate, ctx *EvalContext) (Match, bool) {
	switch p.Op {
	case domain.OpEquals, domain.OpContains, domain.OpRegex, domain.OpGreaterThan, domain.OpLessThan:
		return evalAttribute(p, ctx)
	case domain.OpAbsent:
		return evalAbsent(p, ctx)
	case domain.OpChanged:
		return evalChanged(p, ctx)
	case domain.OpEdgeExists:
		return evalEdgeExists(p, ctx)
	default:
		// Unknown ops are rejected at load time; treat as non-match here
		return Match{}, false
	}
}

func evalAttribute(p *domain.SymptomPredicate, ctx *EvalContext) (Match, bool) {
	var match Match
	var re *regexp.Regexp
	if p.Op == domain.OpRegex {
		var err error
		re, err = regexp.Compile(p.Value)
		if err != nil {
			// Validated at load; a hand-built predicate with a bad regex
			// just never matches
			return Match{}, false
		}
	}

	for i := range ctx.Entities {
		e := &ctx.Entities[i]
		if !kindMatches(p, e) {
			continue
		}
		val, ok := e.GetAttribute(p.Attribute)
		if !ok {
			continue
		}

		var conf float64
		switch p.Op {
		case domain.OpEquals:
			if !domain.ScalarEqual(val, p.Value) {
				continue
			}
			conf = 1.0
		case domain.OpContains:
			if !strings.Contains(domain.FormatScalar(val), p.Value) {
				continue
			}
			conf = 0.8
		case domain.OpRegex:
			if !re.MatchString(domain.FormatScalar(val)) {
				continue
			}
			conf = 0.7
		case domain.OpGreaterThan:
			num, numeric := domain.ScalarFloat(val)
			if !numeric || num <= p.Threshold {
				continue
			}
			conf = marginConfidence(num-p.Threshold, p.Threshold)
		case domain.OpLessThan:
			num, numeric := domain.ScalarFloat(val)
			if !numeric || num >= p.Threshold {
				continue
			}
			conf = marginConfidence(p.Threshold-num, p.Threshold)
		}

		match.EntityIDs = append(match.EntityIDs, e.ID)
		if conf > match.Confidence {
			match.Confidence = conf
		}
	}

	return match, len(match.EntityIDs) > 0
}

func evalAbsent(p *domain.SymptomPredicate, ctx *EvalContext) (Match, bool) {
	var match Match
	for i := range ctx.Entities {
		e := &ctx.Entities[i]
		if !kindMatches(p, e) {
			continue
		}
		if _, ok := e.GetAttribute(p.Attribute); ok {
			continue
		}
		match.EntityIDs = append(match.EntityIDs, e.ID)
	}
	match.Confidence = 1.0
	return match, len(match.EntityIDs) > 0
}

func evalChanged(p *domain.SymptomPredicate, ctx *EvalContext) (Match, bool) {
	lookback := p.WithinGenerations
	if lookback <= 0 {
		lookback = 1
	}
	if lookback > len(ctx.RecentChanges) {
		lookback = len(ctx.RecentChanges)
	}

	byID := entityIndex(ctx)
	seen := make(map[string]struct{})
	var match Match

	for i := 0; i < lookback; i++ {
		for _, ch := range ctx.RecentChanges[i] {
			if p.Attribute != "" && ch.Field != p.Attribute {
				continue
			}
			e, ok := byID[ch.EntityID]
			if !ok || !kindMatches(p, e) {
				continue
			}
			if p.Value != "" && !strings.Contains(domain.FormatScalar(ch.New), p.Value) {
				continue
			}
			if _, dup := seen[ch.EntityID]; dup {
				continue
			}
			seen[ch.EntityID] = struct{}{}
			match.EntityIDs = append(match.EntityIDs, ch.EntityID)
		}
	}

	match.Confidence = 1.0
	return match, len(match.EntityIDs) > 0
}

func evalEdgeExists(p *domain.SymptomPredicate, ctx *EvalContext) (Match, bool) {
	byID := entityIndex(ctx)
	seen := make(map[string]struct{})
	var match Match

	for _, edge := range ctx.Edges {
		if p.EdgeType != "" && edge.Type != p.EdgeType {
			continue
		}
		if edge.Confidence < p.MinConfidence {
			continue
		}
		source, ok := byID[edge.SourceID]
		if !ok || !kindMatches(p, source) {
			continue
		}
		if _, dup := seen[source.ID]; !dup {
			seen[source.ID] = struct{}{}
			match.EntityIDs = append(match.EntityIDs, source.ID)
		}
		if edge.Confidence > match.Confidence {
			match.Confidence = edge.Confidence
		}
	}

	return match, len(match.EntityIDs) > 0
}

func kindMatches(p *domain.SymptomPredicate, e *domain.Entity) bool {
	return p.Kind == "" || p.Kind == e.Kind
}

func entityIndex(ctx *EvalContext) map[string]*domain.Entity {
	byID := make(map[string]*domain.Entity, len(ctx.Entities))
	for i := range ctx.Entities {
		byID[ctx.Entities[i].ID] = &ctx.Entities[i]
	}
	return byID
}

// marginConfidence scales a threshold predicate's confidence by how far the
// value cleared the threshold: a bare pass scores 0.5, a pass by the full
// threshold magnitude or more scores 1.0.
func marginConfidence(margin, threshold float64) float64 {
	scale := math.Abs(threshold)
	if scale == 0 {
		scale = 1
	}
	ratio := margin / scale
	if ratio > 1 {
		ratio = 1
	}
	return 0.5 + 0.5*ratio
}
