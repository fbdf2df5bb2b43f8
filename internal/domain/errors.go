package domain

import (
	"fmt"
	"time"
)

// ResolutionError reports a raw record missing required fields for its
// declared kind. The record is skipped and counted; the batch continues.
type ResolutionError struct {
	Kind    EntityKind
	HostID  string
	Missing string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s record for host %s: missing %s", e.Kind, e.HostID, e.Missing)
}

// PatternValidationError reports a malformed pattern definition. The pattern
// is rejected at load time; the rest of the library still loads.
type PatternValidationError struct {
	PatternID string
	Reason    string
}

func (e *PatternValidationError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.PatternID, e.Reason)
}

// HostTimeoutError reports an unreachable remote host. Callers proceed with
// the host's last known generation and mark derived results as degraded.
type HostTimeoutError struct {
	HostID  string
	Timeout time.Duration
}

func (e *HostTimeoutError) Error() string {
	return fmt.Sprintf("host %s unreachable after %s", e.HostID, e.Timeout)
}

// GraphConsistencyError reports an edge referencing a non-existent entity.
// Fatal to that single build: the generation is not published and the
// previous generation stays live.
type GraphConsistencyError struct {
	EdgeID   string
	EntityID string
}

func (e *GraphConsistencyError) Error() string {
	return fmt.Sprintf("edge %s references unknown entity %s", e.EdgeID, e.EntityID)
}
