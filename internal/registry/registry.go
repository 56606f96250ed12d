// Package registry holds the candidate server pools of each backend family,
// the YouTube Data API key rotation and remotely refreshed server lists.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/famomatic/ytmirror/internal/types"
)

// Pool is an ordered list of candidate hosts for one backend family.
type Pool struct {
	name  string
	mu    sync.RWMutex
	hosts []string
}

// NewPool returns a pool with trailing slashes trimmed and duplicates removed.
func NewPool(name string, hosts []string) *Pool {
	p := &Pool{name: name}
	p.Replace(hosts)
	return p
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Hosts returns a copy of the current host order.
func (p *Pool) Hosts() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.hosts...)
}

// Replace swaps the host list. An empty list leaves the pool unchanged.
func (p *Pool) Replace(hosts []string) bool {
	clean := normalizeHosts(hosts)
	if len(clean) == 0 {
		return false
	}
	p.mu.Lock()
	p.hosts = clean
	p.mu.Unlock()
	return true
}

// Endpoints expands the pool into endpoints sharing a path template.
func (p *Pool) Endpoints(backend, pathTemplate string) []types.BackendEndpoint {
	hosts := p.Hosts()
	out := make([]types.BackendEndpoint, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, types.BackendEndpoint{Backend: backend, Host: h, PathTemplate: pathTemplate})
	}
	return out
}

func normalizeHosts(hosts []string) []string {
	seen := make(map[string]struct{}, len(hosts))
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimRight(strings.TrimSpace(h), "/")
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// Registry maps pool names to pools.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

// New builds a registry from Defaults, replacing any pool named in overrides
// with a non-empty list.
func New(overrides map[string][]string) *Registry {
	r := &Registry{pools: make(map[string]*Pool, len(Defaults))}
	for name, hosts := range Defaults {
		r.pools[name] = NewPool(name, hosts)
	}
	for name, hosts := range overrides {
		if p, ok := r.pools[name]; ok {
			p.Replace(hosts)
			continue
		}
		if len(normalizeHosts(hosts)) > 0 {
			r.pools[name] = NewPool(name, hosts)
		}
	}
	return r
}

// Get returns the named pool.
func (r *Registry) Get(name string) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[name]
	return p, ok
}

// Hosts returns the hosts of the named pool, or nil.
func (r *Registry) Hosts(name string) []string {
	if p, ok := r.Get(name); ok {
		return p.Hosts()
	}
	return nil
}

// Names lists pool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
