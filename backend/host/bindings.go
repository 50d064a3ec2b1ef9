package host

import (
	"sort"
	"sync"
)

// bindings is a member scope shared between the embedder and guest code.
// It is exposed as a proxy so host access policies do not hide it.
type bindings struct {
	mu sync.RWMutex
	m  map[string]any
}

func newBindings() *bindings {
	return &bindings{m: make(map[string]any)}
}

func (b *bindings) Member(key string) any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.m[key]
}

func (b *bindings) MemberKeys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.m))
	for k := range b.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *bindings) HasMember(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.m[key]
	return ok
}

func (b *bindings) PutMember(key string, v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[key] = v
}

func (b *bindings) RemoveMember(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.m[key]
	delete(b.m, key)
	return ok
}
