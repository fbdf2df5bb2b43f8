package service

import (
	"context"
	"log"
	"sync"
	"time"

	"spider/internal/domain"
)

// Service drives the periodic observe-diagnose loop and caches the latest
// results for the HTTP layer
type Service struct {
	Ingestor  *Ingestor
	Diagnoser *Diagnoser

	interval time.Duration

	mu          sync.RWMutex
	lastSummary CycleSummary
	lastResults []domain.DiagnosisResult
}

// New creates the top-level service
func New(in *Ingestor, d *Diagnoser, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Service{
		Ingestor:  in,
		Diagnoser: d,
		interval:  interval,
	}
}

// Run restores persisted state, then scans and diagnoses on the configured
// interval until the context is cancelled
func (s *Service) Run(ctx context.Context) error {
	if err := s.Ingestor.Bootstrap(ctx); err != nil {
		return err
	}

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// RunOnce performs one scan cycle followed by a diagnosis pass, outside the
// periodic schedule. Used by the manual trigger endpoint.
func (s *Service) RunOnce(ctx context.Context) (CycleSummary, []domain.DiagnosisResult) {
	s.runOnce(ctx)
	return s.Latest()
}

func (s *Service) runOnce(ctx context.Context) {
	summary := s.Ingestor.RunCycle(ctx)

	results, err := s.Diagnoser.Diagnose(ctx)
	if err != nil {
		log.Printf("Diagnosis pass failed: %v", err)
	}

	s.mu.Lock()
	s.lastSummary = summary
	if err == nil {
		s.lastResults = results
	}
	s.mu.Unlock()
}

// Latest returns the most recent cycle summary and diagnosis results
func (s *Service) Latest() (CycleSummary, []domain.DiagnosisResult) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSummary, s.lastResults
}
