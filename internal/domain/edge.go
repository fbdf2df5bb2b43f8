package domain

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// EdgeType represents the type of an inferred relationship
type EdgeType string

const (
	EdgeImports          EdgeType = "imports"
	EdgeConfigReferences EdgeType = "config_references"
	EdgeLogMentions      EdgeType = "log_mentions"
	EdgeProcessHandle    EdgeType = "process_handle"
	EdgeNetworkConnects  EdgeType = "network_connects"
	EdgeRunsOn           EdgeType = "runs_on"
)

// Relationship is a directed, confidence-scored edge between two entities.
// Multiple edges of different types may exist between the same pair; the
// same (source, target, type) triple always folds into a single edge.
type Relationship struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	TargetID   string    `json:"target_id"`
	Type       EdgeType  `json:"type"`
	Confidence float64   `json:"confidence"`
	Evidence   string    `json:"evidence,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// NewRelationship creates a directed edge with a deterministic ID
func NewRelationship(sourceID, targetID string, edgeType EdgeType, confidence float64, evidence string) Relationship {
	return Relationship{
		ID:         EdgeID(sourceID, targetID, edgeType),
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       edgeType,
		Confidence: ClampConfidence(confidence),
		Evidence:   evidence,
	}
}

// EdgeID derives a deterministic edge ID from the directed endpoints and
// type. Direction matters: A imports B is not B imports A.
func EdgeID(sourceID, targetID string, edgeType EdgeType) string {
	key := fmt.Sprintf("%s-%s-%s", sourceID, targetID, edgeType)
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", hash[:8])
}

// CombineConfidence merges two confidence scores for the same edge derived
// from independent evidence using probabilistic OR: 1 - (1-a)(1-b).
// The result stays in [0,1]; combining 0.5 and 0.5 yields 0.75, never 1.0.
func CombineConfidence(a, b float64) float64 {
	a = ClampConfidence(a)
	b = ClampConfidence(b)
	return 1 - (1-a)*(1-b)
}

// ClampConfidence bounds a confidence score to [0,1]
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
