package domain

import "time"

// Graph is one host's knowledge graph at a specific generation. A graph is
// never mutated after publication: the builder derives generation N+1 as a
// fresh value from generation N plus a snapshot, and readers always work
// against one addressable generation.
//
// Entities holds the live set for this generation. An entity absent from a
// newer generation is not deleted anywhere; it simply stops appearing in
// live sets while older generations remain queryable in the store.
type Graph struct {
	HostID     string                  `json:"host_id"`
	Generation uint64                  `json:"generation"`
	BuiltAt    time.Time               `json:"built_at"`
	Entities   map[string]Entity       `json:"entities"`
	Edges      map[string]Relationship `json:"edges"`
}

// NewGraph creates an empty generation-zero graph for a host
func NewGraph(hostID string) *Graph {
	return &Graph{
		HostID:   hostID,
		Entities: make(map[string]Entity),
		Edges:    make(map[string]Relationship),
	}
}

// EntityByIdentity finds an entity by its (kind, naturalKey) identity within
// this graph. Returns nil if no live entity matches.
func (g *Graph) EntityByIdentity(kind EntityKind, naturalKey string) *Entity {
	for id := range g.Entities {
		e := g.Entities[id]
		if e.Kind == kind && e.NaturalKey == naturalKey {
			return &e
		}
	}
	return nil
}

// EntitiesOfKind returns all live entities of the given kind
func (g *Graph) EntitiesOfKind(kind EntityKind) []Entity {
	var out []Entity
	for _, e := range g.Entities {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// EdgesFrom returns all edges originating at the given entity
func (g *Graph) EdgesFrom(entityID string) []Relationship {
	var out []Relationship
	for _, edge := range g.Edges {
		if edge.SourceID == entityID {
			out = append(out, edge)
		}
	}
	return out
}

// EdgesTo returns all edges terminating at the given entity
func (g *Graph) EdgesTo(entityID string) []Relationship {
	var out []Relationship
	for _, edge := range g.Edges {
		if edge.TargetID == entityID {
			out = append(out, edge)
		}
	}
	return out
}

// Validate checks referential integrity: every edge endpoint must exist in
// this generation or, when adjacent is non-nil, in the adjacent generation.
// Returns a GraphConsistencyError for the first dangling edge.
func (g *Graph) Validate(adjacent *Graph) error {
	known := func(id string) bool {
		if _, ok := g.Entities[id]; ok {
			return true
		}
		if adjacent != nil {
			if _, ok := adjacent.Entities[id]; ok {
				return true
			}
		}
		return false
	}
	for id, edge := range g.Edges {
		if !known(edge.SourceID) {
			return &GraphConsistencyError{EdgeID: id, EntityID: edge.SourceID}
		}
		if !known(edge.TargetID) {
			return &GraphConsistencyError{EdgeID: id, EntityID: edge.TargetID}
		}
	}
	return nil
}
