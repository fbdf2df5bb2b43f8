package domain

import "time"

// RawRecord is the scanner input contract: one observed object, loosely
// typed. Scanners declare the kind and host and dump whatever key/value
// attributes they collected; the resolver owns validation and natural-key
// derivation.
type RawRecord struct {
	Kind       EntityKind     `json:"kind"`
	HostID     string         `json:"host_id"`
	Attributes map[string]any `json:"attributes"`

	// Tombstones lists attribute keys the scanner positively observed as
	// gone. Keys merely absent from Attributes are retained from history.
	Tombstones []string `json:"tombstones,omitempty"`
}

// GetAttribute gets a raw attribute value
func (r *RawRecord) GetAttribute(key string) (any, bool) {
	if r.Attributes == nil {
		return nil, false
	}
	val, ok := r.Attributes[key]
	return val, ok
}

// GetAttributeString gets a raw attribute as a string, or "" if absent
func (r *RawRecord) GetAttributeString(key string) string {
	val, ok := r.GetAttribute(key)
	if !ok {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return FormatScalar(val)
}

// Snapshot is one host's scan result at a point in time. Immutable once
// stored; Generation increases monotonically per host.
type Snapshot struct {
	HostID     string    `json:"host_id"`
	Generation uint64    `json:"generation"`
	CapturedAt time.Time `json:"captured_at"`
	Entities   []Entity  `json:"entities"`

	// Raw preserves scanner outputs verbatim for later inspection. Opaque
	// to the core; keyed by scanner name.
	Raw map[string]any `json:"raw,omitempty"`
}
