package build

import (
	"slices"
	"sync"
)

// EntryPoints maps a bundle entry point to the HTML files that reference it.
// Keys keep their insertion order and so do the HTML files under each key.
// It is safe for concurrent use.
type EntryPoints struct {
	mu    sync.RWMutex
	order []string
	deps  map[string][]string
}

func NewEntryPoints() *EntryPoints {
	return &EntryPoints{deps: make(map[string][]string)}
}

// Add records that html references entry. It reports whether entry was new.
func (e *EntryPoints) Add(entry, html string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, ok := e.deps[entry]
	if !ok {
		e.order = append(e.order, entry)
	}
	if !slices.Contains(existing, html) {
		e.deps[entry] = append(existing, html)
	}
	return !ok
}

func (e *EntryPoints) Has(entry string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.deps[entry]
	return ok
}

// Keys returns the entry points in first-seen order.
func (e *EntryPoints) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.order)
}

// Dependents returns the HTML files referencing entry.
func (e *EntryPoints) Dependents(entry string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.deps[entry])
}

// AllDependents returns every HTML file referencing any entry point, without
// duplicates, ordered by first appearance.
func (e *EntryPoints) AllDependents() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, entry := range e.order {
		for _, html := range e.deps[entry] {
			if _, ok := seen[html]; ok {
				continue
			}
			seen[html] = struct{}{}
			out = append(out, html)
		}
	}
	return out
}

func (e *EntryPoints) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.order)
}
