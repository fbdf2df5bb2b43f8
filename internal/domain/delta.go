package domain

// AttributeChange records one attribute-level difference on an entity.
// Changes are tracked per attribute, not per object, so consumers can react
// to a single field crossing a threshold without re-deriving anything.
type AttributeChange struct {
	EntityID string `json:"entity_id"`
	Field    string `json:"field"`
	Old      any    `json:"old"`
	New      any    `json:"new"`
}

// GraphDelta is the structural difference between two graphs
type GraphDelta struct {
	AddedEntities   []Entity          `json:"added_entities,omitempty"`
	RemovedEntities []Entity          `json:"removed_entities,omitempty"`
	ChangedEntities []AttributeChange `json:"changed_entities,omitempty"`
	AddedEdges      []Relationship    `json:"added_edges,omitempty"`
	RemovedEdges    []Relationship    `json:"removed_edges,omitempty"`
}

// IsEmpty returns true when nothing differs
func (d *GraphDelta) IsEmpty() bool {
	return len(d.AddedEntities) == 0 &&
		len(d.RemovedEntities) == 0 &&
		len(d.ChangedEntities) == 0 &&
		len(d.AddedEdges) == 0 &&
		len(d.RemovedEdges) == 0
}

// Reverse returns the inverse delta: added and removed swap, attribute
// changes flip old/new. Reverse(diff(A,B)) reconstructs diff(B,A).
func (d *GraphDelta) Reverse() *GraphDelta {
	out := &GraphDelta{
		AddedEntities:   append([]Entity(nil), d.RemovedEntities...),
		RemovedEntities: append([]Entity(nil), d.AddedEntities...),
		AddedEdges:      append([]Relationship(nil), d.RemovedEdges...),
		RemovedEdges:    append([]Relationship(nil), d.AddedEdges...),
	}
	for _, ch := range d.ChangedEntities {
		out.ChangedEntities = append(out.ChangedEntities, AttributeChange{
			EntityID: ch.EntityID,
			Field:    ch.Field,
			Old:      ch.New,
			New:      ch.Old,
		})
	}
	return out
}
