package scanner

import (
	"context"
	"strings"

	"spider/internal/domain"
)

// ProcessScanner lists running processes. Kernel threads and the ps
// invocation itself are filtered out.
type ProcessScanner struct {
	runner CommandRunner
	// Filter keeps only processes whose command contains one of these
	// substrings; empty keeps everything.
	Filter []string
}

// NewProcessScanner creates a process scanner backed by the given runner
func NewProcessScanner(runner CommandRunner) *ProcessScanner {
	return &ProcessScanner{runner: runner}
}

// Name returns the scanner identifier
func (p *ProcessScanner) Name() string { return "process" }

// Scan lists processes via ps
func (p *ProcessScanner) Scan(ctx context.Context, hostID string) ([]domain.RawRecord, error) {
	out, err := p.runner.Run(ctx, "ps -eo pid=,comm=,args= 2>/dev/null")
	if err != nil {
		return nil, err
	}
	return parsePS(out, hostID, p.Filter), nil
}

func parsePS(out, hostID string, filter []string) []domain.RawRecord {
	var records []domain.RawRecord
	seen := make(map[string]struct{})

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid, comm := fields[0], fields[1]
		args := strings.Join(fields[2:], " ")

		if strings.HasPrefix(comm, "[") {
			continue
		}
		if !matchesFilter(args, filter) {
			continue
		}
		// One record per command line; identity is the command, not the pid
		if _, dup := seen[args]; dup {
			continue
		}
		seen[args] = struct{}{}

		records = append(records, domain.RawRecord{
			Kind:   domain.KindProcess,
			HostID: hostID,
			Attributes: map[string]any{
				"command": args,
				"comm":    comm,
				"pid":     pid,
			},
		})
	}
	return records
}

func matchesFilter(args string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if strings.Contains(args, f) {
			return true
		}
	}
	return false
}
