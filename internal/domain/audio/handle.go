// Package audio provides revocable handles to in-memory audio data.
package audio

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// URLPrefix is the scheme prefix of handle URLs.
const URLPrefix = "blob:mobiletts/"

// Handle is a playable reference to audio bytes, the analogue of an object URL.
// A handle is owned by exactly one holder and must be released exactly once.
type Handle struct {
	url      string
	data     []byte
	registry *Registry
	once     sync.Once
	released atomic.Bool
}

// URL returns the handle's unique URL.
func (h *Handle) URL() string {
	return h.url
}

// Data returns the audio bytes. It returns nil after release.
func (h *Handle) Data() []byte {
	if h.released.Load() {
		return nil
	}
	return h.data
}

// Size returns the audio size in bytes.
func (h *Handle) Size() int {
	return len(h.data)
}

// Released reports whether the handle has been revoked.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// Release revokes the handle. Only the first call has an effect; it returns
// true when this call performed the release.
func (h *Handle) Release() bool {
	released := false
	h.once.Do(func() {
		h.released.Store(true)
		if h.registry != nil {
			h.registry.revoke(h.url)
		}
		released = true
	})
	return released
}

// Registry mints handles and tracks the live ones.
type Registry struct {
	mu       sync.Mutex
	live     map[string]*Handle
	created  uint64
	released uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		live: make(map[string]*Handle),
	}
}

// Create mints a new handle for data.
func (r *Registry) Create(data []byte) *Handle {
	h := &Handle{
		url:      URLPrefix + uuid.New().String(),
		data:     data,
		registry: r,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[h.url] = h
	r.created++
	return h
}

// Live returns the number of handles not yet released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Created returns the number of handles minted so far.
func (r *Registry) Created() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created
}

// ReleasedCount returns the number of handles released so far.
func (r *Registry) ReleasedCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// ReleaseAll releases every live handle and returns how many were released.
func (r *Registry) ReleaseAll() int {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.live))
	for _, h := range r.live {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	count := 0
	for _, h := range handles {
		if h.Release() {
			count++
		}
	}
	return count
}

func (r *Registry) revoke(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[url]; ok {
		delete(r.live, url)
		r.released++
	}
}
