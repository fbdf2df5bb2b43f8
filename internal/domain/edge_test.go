package domain

import (
	"math"
	"testing"
)

func TestCombineConfidence(t *testing.T) {
	t.Run("probabilistic OR of two half confidences", func(t *testing.T) {
		got := CombineConfidence(0.5, 0.5)
		if math.Abs(got-0.75) > 1e-9 {
			t.Errorf("expected 0.75, got %v", got)
		}
	})

	t.Run("never reaches 1.0 from partial evidence", func(t *testing.T) {
		got := CombineConfidence(0.9, 0.9)
		if got >= 1.0 {
			t.Errorf("expected result below 1.0, got %v", got)
		}
		if got <= 0.9 {
			t.Errorf("expected combined confidence to exceed either input, got %v", got)
		}
	})

	t.Run("stays bounded for out-of-range inputs", func(t *testing.T) {
		got := CombineConfidence(1.5, -0.3)
		if got < 0 || got > 1 {
			t.Errorf("expected result in [0,1], got %v", got)
		}
	})

	t.Run("is commutative", func(t *testing.T) {
		if CombineConfidence(0.4, 0.9) != CombineConfidence(0.9, 0.4) {
			t.Error("expected commutative combination")
		}
	})
}

func TestEdgeID(t *testing.T) {
	t.Run("deterministic for identical inputs", func(t *testing.T) {
		a := EdgeID("src", "dst", EdgeConfigReferences)
		b := EdgeID("src", "dst", EdgeConfigReferences)
		if a != b {
			t.Errorf("expected stable ID, got %s and %s", a, b)
		}
	})

	t.Run("direction-sensitive", func(t *testing.T) {
		forward := EdgeID("a", "b", EdgeImports)
		backward := EdgeID("b", "a", EdgeImports)
		if forward == backward {
			t.Error("expected different IDs for reversed endpoints")
		}
	})

	t.Run("type-sensitive", func(t *testing.T) {
		if EdgeID("a", "b", EdgeImports) == EdgeID("a", "b", EdgeLogMentions) {
			t.Error("expected different IDs for different edge types")
		}
	})
}

func TestNewRelationship(t *testing.T) {
	edge := NewRelationship("a", "b", EdgeRunsOn, 1.2, "containment")
	if edge.Confidence != 1.0 {
		t.Errorf("expected confidence clamped to 1.0, got %v", edge.Confidence)
	}
	if edge.ID != EdgeID("a", "b", EdgeRunsOn) {
		t.Error("expected deterministic edge ID")
	}
}
