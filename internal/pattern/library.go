// Package pattern loads and evaluates the diagnostic pattern library.
//
// Patterns are declarative YAML: each maps required and excluded symptom
// predicates to a diagnosis and an ordered list of advisory solutions.
// Malformed patterns are rejected individually at load time; the rest of the
// library still loads, and rejects are counted so callers can spot a broken
// file. The library supports hot reload between correlation cycles.
package pattern

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"spider/internal/domain"
)

// File is the on-disk pattern library schema
type File struct {
	Patterns []domain.DiagnosticPattern `yaml:"patterns"`
}

// Library holds the validated pattern set. Safe for concurrent use; Reload
// swaps the set atomically so a correlation cycle in flight keeps the
// library it started with.
type Library struct {
	mu       sync.RWMutex
	path     string
	patterns []domain.DiagnosticPattern
	rejected int
}

// Open loads the pattern library from a YAML file. Individual invalid
// patterns are logged and skipped; the error is non-nil only when the file
// itself cannot be read or parsed.
func Open(path string) (*Library, error) {
	lib := &Library{path: path}
	if err := lib.Reload(); err != nil {
		return nil, err
	}
	return lib, nil
}

// Reload re-reads the backing file and swaps in the new pattern set
func (l *Library) Reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read pattern library: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse pattern library: %w", err)
	}

	var valid []domain.DiagnosticPattern
	rejected := 0
	for i := range file.Patterns {
		p := file.Patterns[i]
		if err := ValidatePattern(&p); err != nil {
			log.Printf("Pattern library: rejecting pattern: %v", err)
			rejected++
			continue
		}
		valid = append(valid, p)
	}

	l.mu.Lock()
	l.patterns = valid
	l.rejected = rejected
	l.mu.Unlock()

	log.Printf("Pattern library loaded: %d patterns (%d rejected) from %s", len(valid), rejected, l.path)
	return nil
}

// Patterns returns the current pattern set. The returned slice is shared
// and must not be mutated.
func (l *Library) Patterns() []domain.DiagnosticPattern {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.patterns
}

// Rejected returns how many patterns the last load refused
func (l *Library) Rejected() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rejected
}

// ValidatePattern checks one pattern definition at load time
func ValidatePattern(p *domain.DiagnosticPattern) error {
	if p.ID == "" {
		return &domain.PatternValidationError{PatternID: p.Name, Reason: "missing id"}
	}
	if len(p.RequiredSymptoms) == 0 {
		return &domain.PatternValidationError{PatternID: p.ID, Reason: "empty required_symptoms"}
	}
	for i := range p.RequiredSymptoms {
		if err := validatePredicate(p.ID, &p.RequiredSymptoms[i]); err != nil {
			return err
		}
	}
	for i := range p.ExcludedSymptoms {
		if err := validatePredicate(p.ID, &p.ExcludedSymptoms[i]); err != nil {
			return err
		}
	}
	return nil
}

func validatePredicate(patternID string, pred *domain.SymptomPredicate) error {
	if pred.Kind != "" && !domain.IsKnownKind(pred.Kind) {
		return &domain.PatternValidationError{PatternID: patternID, Reason: fmt.Sprintf("unknown kind %q", pred.Kind)}
	}
	switch pred.Op {
	case domain.OpEquals, domain.OpContains:
		if pred.Attribute == "" {
			return &domain.PatternValidationError{PatternID: patternID, Reason: fmt.Sprintf("%s predicate missing attribute", pred.Op)}
		}
		if pred.Value == "" {
			return &domain.PatternValidationError{PatternID: patternID, Reason: fmt.Sprintf("%s predicate missing value", pred.Op)}
		}
	case domain.OpRegex:
		if pred.Attribute == "" {
			return &domain.PatternValidationError{PatternID: patternID, Reason: "regex predicate missing attribute"}
		}
		if _, err := regexp.Compile(pred.Value); err != nil {
			return &domain.PatternValidationError{PatternID: patternID, Reason: fmt.Sprintf("bad regex %q: %v", pred.Value, err)}
		}
	case domain.OpGreaterThan, domain.OpLessThan, domain.OpAbsent:
		if pred.Attribute == "" {
			return &domain.PatternValidationError{PatternID: patternID, Reason: fmt.Sprintf("%s predicate missing attribute", pred.Op)}
		}
	case domain.OpChanged:
		if pred.WithinGenerations < 0 {
			return &domain.PatternValidationError{PatternID: patternID, Reason: "negative within_generations"}
		}
	case domain.OpEdgeExists:
		if pred.EdgeType == "" {
			return &domain.PatternValidationError{PatternID: patternID, Reason: "edge_exists predicate missing edge_type"}
		}
	case "":
		return &domain.PatternValidationError{PatternID: patternID, Reason: "predicate missing op"}
	default:
		return &domain.PatternValidationError{PatternID: patternID, Reason: fmt.Sprintf("unknown op %q", pred.Op)}
	}
	return nil
}
