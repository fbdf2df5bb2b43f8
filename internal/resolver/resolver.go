// Package resolver maps raw scanner records to identity-stable entities.
//
// The resolver owns the boundary between loosely-typed scanner output and the
// fixed entity model: it derives kind-specific natural keys, validates
// required fields, merges attributes against the previous generation, and
// mints stable IDs for never-before-seen identities via the Index.
//
// Malformed records are skipped and counted, never fatal to a batch.
package resolver

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"spider/internal/domain"
)

// Index remembers every (kind, host, naturalKey) identity ever assigned an
// ID, across all generations and hosts. IDs are handed out once and never
// reused, so an entity absent for a few generations resolves back to its
// original ID when it reappears.
//
// Safe for concurrent use; host ingestion pipelines share one index.
type Index struct {
	mu    sync.RWMutex
	byKey map[string]indexEntry
}

type indexEntry struct {
	id        string
	firstSeen time.Time
}

// NewIndex creates an empty identity index
func NewIndex() *Index {
	return &Index{byKey: make(map[string]indexEntry)}
}

// Register records an existing entity's identity, typically while replaying
// persisted generations at startup. The first registration for a key wins.
func (ix *Index) Register(e *domain.Entity) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	key := e.IdentityKey()
	if _, ok := ix.byKey[key]; !ok {
		ix.byKey[key] = indexEntry{id: e.ID, firstSeen: e.FirstSeen}
	}
}

// Len returns the number of known identities
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byKey)
}

// assign returns the stable ID and first-seen time for an identity, minting
// a new ID if the identity has never been observed.
func (ix *Index) assign(key string, observedAt time.Time) (string, time.Time, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if entry, ok := ix.byKey[key]; ok {
		return entry.id, entry.firstSeen, false
	}
	entry := indexEntry{id: uuid.NewString(), firstSeen: observedAt}
	ix.byKey[key] = entry
	return entry.id, entry.firstSeen, true
}

// Result summarizes one resolve batch
type Result struct {
	Entities []domain.Entity
	// Skipped counts malformed records dropped from the batch
	Skipped int
	// Minted counts identities observed for the first time
	Minted int
}

// Resolver turns raw scanner records into resolved entities
type Resolver struct {
	index *Index
}

// New creates a resolver backed by the given identity index
func New(index *Index) *Resolver {
	return &Resolver{index: index}
}

// Index returns the backing identity index
func (r *Resolver) Index() *Index {
	return r.index
}

// Resolve maps a batch of raw records for one host to entities at the given
// capture time. prev is the host's previously published graph (nil for the
// first generation) and supplies historical attributes for the merge.
//
// Merge policy: newly observed attribute values overwrite, keys absent from
// the record are retained from history, and keys listed in the record's
// Tombstones are dropped. Duplicate identities within one batch fold into a
// single entity.
func (r *Resolver) Resolve(prev *domain.Graph, hostID string, capturedAt time.Time, records []domain.RawRecord) Result {
	var result Result
	resolved := make(map[string]int) // identity key -> index into result.Entities

	for i := range records {
		rec := records[i]
		if rec.HostID == "" {
			rec.HostID = hostID
		}

		key, err := NaturalKey(&rec)
		if err != nil {
			log.Printf("Resolver: skipping record: %v", err)
			result.Skipped++
			continue
		}

		entity := domain.Entity{Kind: rec.Kind, HostID: hostID, NaturalKey: key}
		identityKey := entity.IdentityKey()

		if pos, ok := resolved[identityKey]; ok {
			// Same identity reported twice in one batch: merge in place
			mergeAttributes(&result.Entities[pos], &rec)
			continue
		}

		id, firstSeen, minted := r.index.assign(identityKey, capturedAt)
		entity.ID = id
		entity.FirstSeen = firstSeen
		entity.LastSeen = capturedAt
		if minted {
			result.Minted++
		}

		if prev != nil {
			if existing, ok := prev.Entities[id]; ok {
				entity.Attributes = make(map[string]any, len(existing.Attributes))
				for k, v := range existing.Attributes {
					entity.Attributes[k] = v
				}
				entity.FirstSeen = existing.FirstSeen
			}
		}

		mergeAttributes(&entity, &rec)
		resolved[identityKey] = len(result.Entities)
		result.Entities = append(result.Entities, entity)
	}

	return result
}

// mergeAttributes overlays a record's attributes onto an entity and applies
// tombstones. Values are normalized to the scalar types the graph stores.
func mergeAttributes(entity *domain.Entity, rec *domain.RawRecord) {
	for k, v := range rec.Attributes {
		entity.SetAttribute(k, domain.NormalizeScalar(v))
	}
	for _, k := range rec.Tombstones {
		delete(entity.Attributes, k)
	}
}
