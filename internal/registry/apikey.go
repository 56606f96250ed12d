package registry

import (
	"strings"
	"sync"
)

// KeyPool rotates over a configured list of API keys. The cursor is owned by
// the pool, so every resolver instance keeps its own rotation.
type KeyPool struct {
	mu     sync.Mutex
	keys   []string
	cursor int
}

// NewKeyPool drops blank and duplicate keys.
func NewKeyPool(keys []string) *KeyPool {
	seen := make(map[string]struct{}, len(keys))
	clean := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		clean = append(clean, k)
	}
	return &KeyPool{keys: clean}
}

// Next returns the key under the cursor and advances it, wrapping around.
func (p *KeyPool) Next() (string, bool) {
	if p == nil {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", false
	}
	k := p.keys[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.keys)
	return k, true
}

// Cursor returns the index the next call to Next will use.
func (p *KeyPool) Cursor() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Len returns the number of usable keys.
func (p *KeyPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}
