package domain

import "sort"

// PredicateOp selects how a symptom predicate compares an attribute
type PredicateOp string

const (
	// OpEquals matches on exact attribute equality (confidence 1.0)
	OpEquals PredicateOp = "equals"
	// OpContains matches when the attribute contains a substring
	OpContains PredicateOp = "contains"
	// OpRegex matches the attribute against a regular expression
	OpRegex PredicateOp = "regex"
	// OpGreaterThan matches numeric attributes above a threshold, with
	// confidence scaled by the margin
	OpGreaterThan PredicateOp = "gt"
	// OpLessThan matches numeric attributes below a threshold
	OpLessThan PredicateOp = "lt"
	// OpAbsent matches entities lacking the attribute entirely
	OpAbsent PredicateOp = "absent"
	// OpChanged matches entities whose attribute changed within the last
	// N generations (evaluated against recent deltas)
	OpChanged PredicateOp = "changed"
	// OpEdgeExists matches entities with an edge of the given type
	OpEdgeExists PredicateOp = "edge_exists"
)

// SymptomPredicate is a declarative condition over entity or edge
// attributes. A predicate referencing an attribute no entity carries simply
// fails to match; it is never an error, so correlation stays resilient to
// partial scan data.
type SymptomPredicate struct {
	// Kind restricts evaluation to entities of this kind; empty matches any
	Kind EntityKind `yaml:"kind,omitempty" json:"kind,omitempty"`
	// Attribute names the entity attribute under test
	Attribute string `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	// Op selects the comparison
	Op PredicateOp `yaml:"op" json:"op"`
	// Value is the comparison operand for equals/contains/regex
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
	// Threshold is the comparison operand for gt/lt
	Threshold float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	// WithinGenerations bounds the lookback for the changed op (default 1)
	WithinGenerations int `yaml:"within_generations,omitempty" json:"within_generations,omitempty"`
	// EdgeType is the edge type operand for edge_exists
	EdgeType EdgeType `yaml:"edge_type,omitempty" json:"edge_type,omitempty"`
	// MinConfidence filters edge_exists matches below this edge confidence
	MinConfidence float64 `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty"`
}

// RiskLevel grades how invasive a suggested fix is
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Solution is an advisory fix attached to a pattern. Commands are never
// executed by this core; the counts are maintained by the external feedback
// collaborator.
type Solution struct {
	ID           string    `yaml:"id" json:"id"`
	Description  string    `yaml:"description" json:"description"`
	Commands     []string  `yaml:"commands,omitempty" json:"commands,omitempty"`
	RiskLevel    RiskLevel `yaml:"risk_level,omitempty" json:"risk_level,omitempty"`
	SuccessCount int       `yaml:"success_count,omitempty" json:"success_count"`
	FailureCount int       `yaml:"failure_count,omitempty" json:"failure_count"`
}

// Score returns the Laplace-smoothed success rate used for ranking
func (s *Solution) Score() float64 {
	return float64(s.SuccessCount) / float64(s.SuccessCount+s.FailureCount+1)
}

// historyTier orders solutions by track record: proven first, unknown next,
// net-negative last.
func (s *Solution) historyTier() int {
	switch {
	case s.FailureCount > s.SuccessCount:
		return 2
	case s.SuccessCount == 0 && s.FailureCount == 0:
		return 1
	default:
		return 0
	}
}

// RankSolutions orders solutions best-first: by history tier, then by
// Laplace-smoothed score descending, then by ID for determinism.
func RankSolutions(solutions []Solution) []Solution {
	out := append([]Solution(nil), solutions...)
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].historyTier(), out[j].historyTier()
		if ti != tj {
			return ti < tj
		}
		si, sj := out[i].Score(), out[j].Score()
		if si != sj {
			return si > sj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DiagnosticPattern maps observed symptoms to a diagnosis and candidate
// fixes. A pattern matches only when every required predicate finds at least
// one satisfying entity and no excluded predicate matches.
type DiagnosticPattern struct {
	ID               string             `yaml:"id" json:"id"`
	Name             string             `yaml:"name" json:"name"`
	RequiredSymptoms []SymptomPredicate `yaml:"required_symptoms" json:"required_symptoms"`
	ExcludedSymptoms []SymptomPredicate `yaml:"excluded_symptoms,omitempty" json:"excluded_symptoms,omitempty"`
	Diagnosis        string             `yaml:"diagnosis" json:"diagnosis"`
	Solutions        []Solution         `yaml:"solutions,omitempty" json:"solutions,omitempty"`
	DomainTags       []string           `yaml:"domain_tags,omitempty" json:"domain_tags,omitempty"`
}

// DiagnosisResult is one ranked match produced by a correlation run.
// Ephemeral: persistence, formatting, and model prompts are collaborator
// concerns.
type DiagnosisResult struct {
	PatternID       string     `json:"pattern_id"`
	PatternName     string     `json:"pattern_name"`
	Diagnosis       string     `json:"diagnosis"`
	MatchedEntities []string   `json:"matched_entities"`
	Confidence      float64    `json:"confidence"`
	RankedSolutions []Solution `json:"ranked_solutions,omitempty"`

	// Degraded marks results derived from stale cross-host evidence
	Degraded   bool     `json:"degraded,omitempty"`
	StaleHosts []string `json:"stale_hosts,omitempty"`
}
