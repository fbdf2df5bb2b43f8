// Package diff computes structural deltas between graph generations.
//
// Entity change is tracked per attribute, not per object, so a consumer can
// react to a single field crossing a threshold without re-deriving the
// comparison. Deltas are exactly reversible: Compute(a, b).Reverse() equals
// Compute(b, a), which the tests rely on.
package diff

import (
	"sort"

	"spider/internal/domain"
)

// Compute returns the delta from graph a to graph b for one host:
// entities and edges present in b but not a are added, present in a but not
// b are removed, and entities present in both are compared attribute by
// attribute. Either argument may be nil (treated as empty).
func Compute(a, b *domain.Graph) *domain.GraphDelta {
	delta := &domain.GraphDelta{}

	aEntities := entitiesOrEmpty(a)
	bEntities := entitiesOrEmpty(b)

	for id, after := range bEntities {
		before, ok := aEntities[id]
		if !ok {
			delta.AddedEntities = append(delta.AddedEntities, after)
			continue
		}
		delta.ChangedEntities = append(delta.ChangedEntities, compareAttributes(id, before.Attributes, after.Attributes)...)
	}
	for id, before := range aEntities {
		if _, ok := bEntities[id]; !ok {
			delta.RemovedEntities = append(delta.RemovedEntities, before)
		}
	}

	aEdges := edgesOrEmpty(a)
	bEdges := edgesOrEmpty(b)
	for id, edge := range bEdges {
		if _, ok := aEdges[id]; !ok {
			delta.AddedEdges = append(delta.AddedEdges, edge)
		}
	}
	for id, edge := range aEdges {
		if _, ok := bEdges[id]; !ok {
			delta.RemovedEdges = append(delta.RemovedEdges, edge)
		}
	}

	sortDelta(delta)
	return delta
}

// CrossHost compares two hosts' graphs by (kind, naturalKey) identity,
// restricted to attribute keys present on both sides. Host-local noise
// (differing values for keys only one host reports) is excluded so the
// result reads as a catalog comparison: which services, containers, and
// endpoints exist here but not there, and where shared attributes disagree.
// Edges are host-local and not compared.
func CrossHost(a, b *domain.Graph) *domain.GraphDelta {
	delta := &domain.GraphDelta{}

	aByKey := byIdentity(a)
	bByKey := byIdentity(b)

	for key, after := range bByKey {
		before, ok := aByKey[key]
		if !ok {
			delta.AddedEntities = append(delta.AddedEntities, after)
			continue
		}
		for _, field := range sharedKeys(before.Attributes, after.Attributes) {
			oldVal := before.Attributes[field]
			newVal := after.Attributes[field]
			if !domain.ScalarEqual(oldVal, newVal) {
				delta.ChangedEntities = append(delta.ChangedEntities, domain.AttributeChange{
					EntityID: after.ID,
					Field:    field,
					Old:      oldVal,
					New:      newVal,
				})
			}
		}
	}
	for key, before := range aByKey {
		if _, ok := bByKey[key]; !ok {
			delta.RemovedEntities = append(delta.RemovedEntities, before)
		}
	}

	sortDelta(delta)
	return delta
}

func compareAttributes(entityID string, before, after map[string]any) []domain.AttributeChange {
	var changes []domain.AttributeChange

	for field, newVal := range after {
		oldVal, ok := before[field]
		if !ok {
			changes = append(changes, domain.AttributeChange{EntityID: entityID, Field: field, Old: nil, New: newVal})
			continue
		}
		if !domain.ScalarEqual(oldVal, newVal) {
			changes = append(changes, domain.AttributeChange{EntityID: entityID, Field: field, Old: oldVal, New: newVal})
		}
	}
	for field, oldVal := range before {
		if _, ok := after[field]; !ok {
			changes = append(changes, domain.AttributeChange{EntityID: entityID, Field: field, Old: oldVal, New: nil})
		}
	}

	return changes
}

func sharedKeys(a, b map[string]any) []string {
	var keys []string
	for k := range a {
		if _, ok := b[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func byIdentity(g *domain.Graph) map[string]domain.Entity {
	out := make(map[string]domain.Entity)
	if g == nil {
		return out
	}
	for _, e := range g.Entities {
		out[string(e.Kind)+"\x00"+e.NaturalKey] = e
	}
	return out
}

func entitiesOrEmpty(g *domain.Graph) map[string]domain.Entity {
	if g == nil {
		return nil
	}
	return g.Entities
}

func edgesOrEmpty(g *domain.Graph) map[string]domain.Relationship {
	if g == nil {
		return nil
	}
	return g.Edges
}

// sortDelta puts every slice in a canonical order so identical comparisons
// yield identical deltas regardless of map iteration order.
func sortDelta(d *domain.GraphDelta) {
	sort.Slice(d.AddedEntities, func(i, j int) bool { return d.AddedEntities[i].ID < d.AddedEntities[j].ID })
	sort.Slice(d.RemovedEntities, func(i, j int) bool { return d.RemovedEntities[i].ID < d.RemovedEntities[j].ID })
	sort.Slice(d.AddedEdges, func(i, j int) bool { return d.AddedEdges[i].ID < d.AddedEdges[j].ID })
	sort.Slice(d.RemovedEdges, func(i, j int) bool { return d.RemovedEdges[i].ID < d.RemovedEdges[j].ID })
	sort.Slice(d.ChangedEntities, func(i, j int) bool {
		if d.ChangedEntities[i].EntityID != d.ChangedEntities[j].EntityID {
			return d.ChangedEntities[i].EntityID < d.ChangedEntities[j].EntityID
		}
		return d.ChangedEntities[i].Field < d.ChangedEntities[j].Field
	})
}
