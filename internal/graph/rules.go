package graph

import (
	"fmt"
	"path"
	"strings"

	"spider/internal/domain"
)

// Detection is one rule's claim about a pair of entities
type Detection struct {
	Type       domain.EdgeType
	Confidence float64
	Evidence   string
}

// Rule is a pluggable extraction predicate over an ordered entity pair.
// Rules must be pure: the same pair always yields the same detection.
type Rule interface {
	// Name identifies the rule in evidence strings and logs
	Name() string
	// Match reports whether the rule derives an edge from source to target
	Match(source, target *domain.Entity) (Detection, bool)
}

// DefaultRules returns the built-in extraction catalogue. The core defines
// the rule interface and confidence algebra; callers may extend or replace
// this set.
func DefaultRules() []Rule {
	return []Rule{
		ConfigReferenceRule{},
		ImportRule{},
		ProcessHandleRule{},
		NetworkConnectRule{},
		LogMentionRule{},
		RunsOnRule{},
	}
}

// ConfigReferenceRule links a config file to a file whose absolute path
// appears verbatim in the config's extracted references.
type ConfigReferenceRule struct{}

func (ConfigReferenceRule) Name() string { return "config_reference" }

func (ConfigReferenceRule) Match(source, target *domain.Entity) (Detection, bool) {
	if source.Kind != domain.KindFile || target.Kind != domain.KindFile {
		return Detection{}, false
	}
	refs := source.GetAttributeString("references")
	if refs == "" || !containsLine(refs, target.NaturalKey) {
		return Detection{}, false
	}
	return Detection{
		Type:       domain.EdgeConfigReferences,
		Confidence: 0.9, // exact path match inside the file
		Evidence:   fmt.Sprintf("config_reference: %s names %s", source.NaturalKey, target.NaturalKey),
	}, true
}

// ImportRule links a source file to another file it imports by module name.
// Matching is by basename without extension, so confidence is lower than an
// exact path reference.
type ImportRule struct{}

func (ImportRule) Name() string { return "import" }

func (ImportRule) Match(source, target *domain.Entity) (Detection, bool) {
	if source.Kind != domain.KindFile || target.Kind != domain.KindFile {
		return Detection{}, false
	}
	imports := source.GetAttributeString("imports")
	if imports == "" {
		return Detection{}, false
	}
	base := strings.TrimSuffix(path.Base(target.NaturalKey), path.Ext(target.NaturalKey))
	if base == "" || !containsLine(imports, base) {
		return Detection{}, false
	}
	return Detection{
		Type:       domain.EdgeImports,
		Confidence: 0.6,
		Evidence:   fmt.Sprintf("import: %s imports module %s", source.NaturalKey, base),
	}, true
}

// ProcessHandleRule links a process to a file listed among its open files
type ProcessHandleRule struct{}

func (ProcessHandleRule) Name() string { return "process_handle" }

func (ProcessHandleRule) Match(source, target *domain.Entity) (Detection, bool) {
	if source.Kind != domain.KindProcess || target.Kind != domain.KindFile {
		return Detection{}, false
	}
	open := source.GetAttributeString("open_files")
	if open == "" || !containsLine(open, target.NaturalKey) {
		return Detection{}, false
	}
	return Detection{
		Type:       domain.EdgeProcessHandle,
		Confidence: 0.8,
		Evidence:   fmt.Sprintf("process_handle: %s holds %s", source.NaturalKey, target.NaturalKey),
	}, true
}

// NetworkConnectRule links a workload to a network endpoint it is configured
// to reach ("host:port" found in the workload's connect targets).
type NetworkConnectRule struct{}

func (NetworkConnectRule) Name() string { return "network_connect" }

func (NetworkConnectRule) Match(source, target *domain.Entity) (Detection, bool) {
	if target.Kind != domain.KindNetEndpoint {
		return Detection{}, false
	}
	switch source.Kind {
	case domain.KindContainer, domain.KindService, domain.KindProcess:
	default:
		return Detection{}, false
	}
	connects := source.GetAttributeString("connects_to")
	if connects == "" {
		return Detection{}, false
	}
	addr := target.GetAttributeString("address")
	port := target.GetAttributeString("port")
	if addr == "" || port == "" {
		return Detection{}, false
	}
	hostPort := addr + ":" + port
	if !containsLine(connects, hostPort) && !containsLine(connects, target.NaturalKey) {
		return Detection{}, false
	}
	return Detection{
		Type:       domain.EdgeNetworkConnects,
		Confidence: 0.7,
		Evidence:   fmt.Sprintf("network_connect: %s targets %s", source.NaturalKey, hostPort),
	}, true
}

// LogMentionRule links a log file to an entity whose name appears in the
// log's recent tail. Substring matching over free text, so the confidence is
// deliberately low.
type LogMentionRule struct{}

func (LogMentionRule) Name() string { return "log_mention" }

func (LogMentionRule) Match(source, target *domain.Entity) (Detection, bool) {
	if source.Kind != domain.KindFile {
		return Detection{}, false
	}
	tail := source.GetAttributeString("tail")
	if tail == "" {
		return Detection{}, false
	}
	name := mentionName(target)
	if name == "" || !strings.Contains(tail, name) {
		return Detection{}, false
	}
	return Detection{
		Type:       domain.EdgeLogMentions,
		Confidence: 0.4, // fuzzy free-text mention
		Evidence:   fmt.Sprintf("log_mention: %s mentions %q", source.NaturalKey, name),
	}, true
}

// RunsOnRule links containers, services, and processes to their host entity
type RunsOnRule struct{}

func (RunsOnRule) Name() string { return "runs_on" }

func (RunsOnRule) Match(source, target *domain.Entity) (Detection, bool) {
	if target.Kind != domain.KindHost || source.HostID != target.HostID {
		return Detection{}, false
	}
	switch source.Kind {
	case domain.KindContainer, domain.KindService, domain.KindProcess:
	default:
		return Detection{}, false
	}
	return Detection{
		Type:       domain.EdgeRunsOn,
		Confidence: 1.0, // direct containment from the scan itself
		Evidence:   fmt.Sprintf("runs_on: %s observed on host %s", source.NaturalKey, target.NaturalKey),
	}, true
}

// mentionName picks the string a log line would plausibly contain for an
// entity: container/service name, file basename, endpoint host:port.
func mentionName(e *domain.Entity) string {
	switch e.Kind {
	case domain.KindContainer, domain.KindService:
		return e.GetAttributeString("name")
	case domain.KindFile:
		return path.Base(e.NaturalKey)
	case domain.KindNetEndpoint:
		addr := e.GetAttributeString("address")
		port := e.GetAttributeString("port")
		if addr == "" || port == "" {
			return ""
		}
		return addr + ":" + port
	default:
		return ""
	}
}

// containsLine reports whether needle appears as one of the newline- or
// comma-separated items in haystack.
func containsLine(haystack, needle string) bool {
	for _, line := range strings.FieldsFunc(haystack, func(r rune) bool {
		return r == '\n' || r == ','
	}) {
		if strings.TrimSpace(line) == needle {
			return true
		}
	}
	return false
}
