package scanner

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"spider/internal/domain"
)

// Scanner collects raw records for one host. Implementations must be safe
// for concurrent use; the registry runs every scanner for a host in parallel.
type Scanner interface {
	// Name returns the unique identifier for this scanner
	Name() string

	// Scan observes the host and returns loosely typed records. A scanner
	// reports what it saw; validation and identity are the resolver's job.
	Scan(ctx context.Context, hostID string) ([]domain.RawRecord, error)
}

// CommandRunner executes a shell command on a host and returns its combined
// output. The local runner uses os/exec; the remote runner runs the same
// commands over SSH, so one scanner implementation serves both.
type CommandRunner interface {
	Run(ctx context.Context, cmd string) (string, error)
	Close() error
}

// HostResult is the outcome of one host's scan cycle
type HostResult struct {
	HostID  string
	Records []domain.RawRecord
	// Failed lists scanners that errored; their records are absent but the
	// cycle still proceeds with what the rest observed.
	Failed []string
}

// Registry manages the scanners for a set of hosts
type Registry struct {
	mu       sync.RWMutex
	scanners map[string][]Scanner // hostID -> scanners
	timeout  time.Duration
}

// NewRegistry creates a registry with the given per-host scan timeout
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Registry{
		scanners: make(map[string][]Scanner),
		timeout:  timeout,
	}
}

// Register adds a scanner for a host
func (r *Registry) Register(hostID string, s Scanner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanners[hostID] = append(r.scanners[hostID], s)
	log.Printf("Registered scanner %s for host %s", s.Name(), hostID)
}

// Hosts returns the registered host IDs, sorted
func (r *Registry) Hosts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.scanners))
	for hostID := range r.scanners {
		out = append(out, hostID)
	}
	sort.Strings(out)
	return out
}

// ScanHost runs every scanner registered for a host in parallel, bounded by
// the registry timeout. Individual scanner failures are logged and recorded
// in the result; only a host-level timeout aborts the cycle, and then the
// error is a HostTimeoutError so callers can fall back to stale data.
func (r *Registry) ScanHost(ctx context.Context, hostID string) (*HostResult, error) {
	r.mu.RLock()
	scanners := r.scanners[hostID]
	timeout := r.timeout
	r.mu.RUnlock()

	if len(scanners) == 0 {
		return nil, fmt.Errorf("no scanners registered for host %s", hostID)
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := &HostResult{HostID: hostID}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(scanCtx)
	for _, s := range scanners {
		s := s
		g.Go(func() error {
			records, err := s.Scan(gctx, hostID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// A broken scanner must not sink the whole host
				log.Printf("Scanner %s failed for host %s: %v", s.Name(), hostID, err)
				result.Failed = append(result.Failed, s.Name())
				return nil
			}
			result.Records = append(result.Records, records...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if scanCtx.Err() == context.DeadlineExceeded {
		return nil, &domain.HostTimeoutError{HostID: hostID, Timeout: timeout}
	}

	sort.Strings(result.Failed)
	return result, nil
}
