package domain

import "time"

// EntityKind represents the type of a scanned object
type EntityKind string

const (
	KindFile        EntityKind = "file"
	KindService     EntityKind = "service"
	KindContainer   EntityKind = "container"
	KindProcess     EntityKind = "process"
	KindNetEndpoint EntityKind = "net_endpoint"
	KindHost        EntityKind = "host"
)

// KnownKinds lists every entity kind the resolver accepts
var KnownKinds = []EntityKind{
	KindFile, KindService, KindContainer, KindProcess, KindNetEndpoint, KindHost,
}

// IsKnownKind returns true if the kind is one the resolver can handle
func IsKnownKind(k EntityKind) bool {
	for _, known := range KnownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Entity represents an identity-stable scanned object (file, service,
// container, process, network endpoint, or host).
//
// Identity is carried by (Kind, HostID, NaturalKey): ephemeral scanner
// identifiers like PIDs or container hashes live in Attributes, never in the
// key. ID is assigned once on first observation and never reused.
type Entity struct {
	ID         string         `json:"id"`
	Kind       EntityKind     `json:"kind"`
	HostID     string         `json:"host_id"`
	NaturalKey string         `json:"natural_key"`
	Attributes map[string]any `json:"attributes,omitempty"`
	FirstSeen  time.Time      `json:"first_seen"`
	LastSeen   time.Time      `json:"last_seen"`
}

// IdentityKey returns the (kind, host, naturalKey) tuple as a single string,
// suitable as a map key for identity lookups across generations.
func (e *Entity) IdentityKey() string {
	return string(e.Kind) + "\x00" + e.HostID + "\x00" + e.NaturalKey
}

// SetAttribute sets an attribute value
func (e *Entity) SetAttribute(key string, value any) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = value
}

// GetAttribute gets an attribute value
func (e *Entity) GetAttribute(key string) (any, bool) {
	if e.Attributes == nil {
		return nil, false
	}
	val, ok := e.Attributes[key]
	return val, ok
}

// GetAttributeString gets an attribute as a string, or "" if absent.
// Non-string scalars are formatted, so a numeric port reads the same as
// its textual form.
func (e *Entity) GetAttributeString(key string) string {
	val, ok := e.GetAttribute(key)
	if !ok {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return FormatScalar(val)
}

// Clone returns a deep copy of the entity. Attribute values are scalars, so
// copying the map is sufficient.
func (e *Entity) Clone() Entity {
	out := *e
	if e.Attributes != nil {
		out.Attributes = make(map[string]any, len(e.Attributes))
		for k, v := range e.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
