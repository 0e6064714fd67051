// Package render provides the renderers that produce export artifacts.
package render

import (
	"sort"
	"strings"
	"sync"

	"github.com/framecut/framecut-backend/internal/exports"
)

// Registry maps export presets to renderers.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]exports.Renderer
}

func NewRegistry() *Registry {
	return &Registry{renderers: make(map[string]exports.Renderer)}
}

func (r *Registry) Register(preset string, renderer exports.Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[strings.ToLower(preset)] = renderer
}

func (r *Registry) Lookup(preset string) (exports.Renderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	renderer, ok := r.renderers[strings.ToLower(preset)]
	return renderer, ok
}

// Presets lists registered presets in sorted order.
func (r *Registry) Presets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.renderers))
	for p := range r.renderers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Container returns the file extension for a preset: the part before the
// first underscore, e.g. mp4_h264 -> mp4.
func Container(preset string) string {
	preset = strings.ToLower(preset)
	if i := strings.IndexByte(preset, '_'); i > 0 {
		return preset[:i]
	}
	if preset == "" {
		return "bin"
	}
	return preset
}

// OutputURI is the artifact location for a job, relative to the data dir.
func OutputURI(jobID, ext string) string {
	return "exports/" + jobID + "." + ext
}
