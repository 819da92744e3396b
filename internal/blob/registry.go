package blob

import (
	"sync"

	"github.com/google/uuid"
)

// Kind distinguishes the resources an item may own.
type Kind string

const (
	KindPreview Kind = "preview"
	KindOutput  Kind = "output"
)

// Handle references a registered resource. The zero Handle is "no resource".
type Handle struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Kind  Kind   `json:"kind"`
}

// Valid reports whether h references something.
func (h Handle) Valid() bool { return h.ID != "" }

// URL renders the handle in the form served by the HTTP API.
func (h Handle) URL() string {
	if !h.Valid() {
		return ""
	}
	return "/api/blobs/" + h.ID
}

type resource struct {
	data []byte
	mime string
}

// Registry tracks live handles.
type Registry struct {
	mu       sync.Mutex
	live     map[string]resource
	acquired int
	released int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]resource)}
}

// Acquire registers data for owner and returns its handle.
func (r *Registry) Acquire(owner string, kind Kind, mime string, data []byte) Handle {
	h := Handle{ID: uuid.NewString(), Owner: owner, Kind: kind}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[h.ID] = resource{data: data, mime: mime}
	r.acquired++
	return h
}

// Open resolves a live handle id to its content and MIME type.
func (r *Registry) Open(id string) ([]byte, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.live[id]
	if !ok {
		return nil, "", false
	}
	return res.data, res.mime, true
}

// Release drops a single handle. Releasing an unknown or already released
// handle is a no-op and returns false.
func (r *Registry) Release(h Handle) bool {
	if !h.Valid() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[h.ID]; !ok {
		return false
	}
	delete(r.live, h.ID)
	r.released++
	return true
}

// Live returns the number of unreleased handles.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Stats returns lifetime acquire/release counts.
func (r *Registry) Stats() (acquired, released int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquired, r.released
}
