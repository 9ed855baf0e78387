package endpoints

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of the loaded endpoints at a point in
// time. Readers hold a snapshot reference for the duration of a request;
// old snapshots stay alive until the last referencing request completes
// and are then collected normally.
type Snapshot struct {
	Endpoints  map[string]*Endpoint
	SchemaHash string
	LoadTime   time.Time
}

// NewSnapshot builds a snapshot from loaded endpoints.
func NewSnapshot(loaded []*Endpoint) *Snapshot {
	m := make(map[string]*Endpoint, len(loaded))
	for _, ep := range loaded {
		m[ep.ID] = ep
	}
	return &Snapshot{
		Endpoints:  m,
		SchemaHash: hashEndpoints(loaded),
		LoadTime:   time.Now(),
	}
}

// Get returns the endpoint with the given id, or nil.
func (s *Snapshot) Get(id string) *Endpoint {
	return s.Endpoints[id]
}

// ByKind returns the endpoints of one kind, sorted by name.
func (s *Snapshot) ByKind(kind Kind) []*Endpoint {
	var out []*Endpoint
	for _, ep := range s.Endpoints {
		if ep.Kind == kind {
			out = append(out, ep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Counts returns per-kind endpoint counts for the status surface.
func (s *Snapshot) Counts() (tools, resources, prompts int) {
	for _, ep := range s.Endpoints {
		switch ep.Kind {
		case KindTool:
			tools++
		case KindResource:
			resources++
		case KindPrompt:
			prompts++
		}
	}
	return
}

// Registry is an atomic-swap container for the current snapshot.
// Replacement is O(1); no lock is held by readers.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// NewRegistry creates a registry holding an empty snapshot.
func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(NewSnapshot(nil))
	return r
}

// Current returns the snapshot in effect. The caller must retain the
// returned pointer for the duration of its request rather than calling
// Current repeatedly.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Swap publishes a new snapshot and returns the previous one.
func (r *Registry) Swap(s *Snapshot) *Snapshot {
	return r.current.Swap(s)
}

// hashEndpoints derives a stable hash over endpoint identities and source
// bodies, exposed via /status so operators can tell whether two processes
// serve the same definitions.
func hashEndpoints(loaded []*Endpoint) string {
	ids := make([]string, 0, len(loaded))
	byID := make(map[string]*Endpoint, len(loaded))
	for _, ep := range loaded {
		ids = append(ids, ep.ID)
		byID[ep.ID] = ep
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		ep := byID[id]
		h.Write([]byte(id))
		h.Write([]byte{0})
		h.Write([]byte(ep.Source.ResolvedCode))
		h.Write([]byte{0})
		h.Write([]byte(ep.URITemplate))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
