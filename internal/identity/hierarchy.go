package identity

import (
	"errors"
	"sync"
)

// ErrCycleDetected is returned when a parent link would create a cycle in
// the company forest.
var ErrCycleDetected = errors.New("company hierarchy cycle detected")

// ErrUnknownCompany is returned when an operation references a company the
// index has never seen.
var ErrUnknownCompany = errors.New("unknown company")

// Index holds the in-memory company forest: parents maps each company to
// its parent ("" for roots) and children is the derived reverse mapping.
// Writers rebuild or mutate under the write lock; readers take the read
// lock and see a consistent snapshot.
type Index struct {
	mu       sync.RWMutex
	parents  map[string]string   // child id -> parent id ("" for roots)
	children map[string][]string // parent id -> child ids
}

// NewIndex creates an empty hierarchy index.
func NewIndex() *Index {
	return &Index{
		parents:  make(map[string]string),
		children: make(map[string][]string),
	}
}

// Rebuild replaces the whole topology from the given company set. Readers
// blocked during the swap observe either the old or the new forest, never a
// mix.
func (ix *Index) Rebuild(companies []*Company) {
	parents := make(map[string]string, len(companies))
	children := make(map[string][]string)
	for _, c := range companies {
		parents[c.ID] = c.ParentID
		if c.ParentID != "" {
			children[c.ParentID] = append(children[c.ParentID], c.ID)
		}
	}

	ix.mu.Lock()
	ix.parents = parents
	ix.children = children
	ix.mu.Unlock()
}

// Add registers a company, optionally under a parent. Adding a node that
// already exists overwrites its parent link after the same cycle check as
// AttachParent.
func (ix *Index) Add(id, parentID string) error {
	if parentID == "" {
		ix.mu.Lock()
		ix.detachLocked(id)
		ix.parents[id] = ""
		ix.mu.Unlock()
		return nil
	}
	return ix.AttachParent(id, parentID)
}

// Has reports whether the index knows the company.
func (ix *Index) Has(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.parents[id]
	return ok
}

// AttachParent links child under parent. It fails with ErrCycleDetected if
// parent is child itself or already one of child's descendants, leaving the
// forest unchanged.
func (ix *Index) AttachParent(child, parent string) error {
	if child == parent {
		return ErrCycleDetected
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.parents[parent]; !ok {
		return ErrUnknownCompany
	}
	// Walking up from the proposed parent must never reach the child.
	for cur := parent; cur != ""; cur = ix.parents[cur] {
		if cur == child {
			return ErrCycleDetected
		}
	}

	ix.detachLocked(child)
	ix.parents[child] = parent
	ix.children[parent] = append(ix.children[parent], child)
	return nil
}

// detachLocked removes child from its current parent's children list.
// Callers hold the write lock.
func (ix *Index) detachLocked(child string) {
	old, ok := ix.parents[child]
	if !ok || old == "" {
		return
	}
	siblings := ix.children[old]
	for i, id := range siblings {
		if id == child {
			ix.children[old] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
}

// Ancestors returns the chain from the immediate parent up to the root, in
// that order. An unknown or root company yields an empty slice.
func (ix *Index) Ancestors(id string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []string
	for cur := ix.parents[id]; cur != ""; cur = ix.parents[cur] {
		out = append(out, cur)
	}
	return out
}

// Descendants returns every company reachable by following child links from
// id, breadth first. id itself is not included.
func (ix *Index) Descendants(id string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []string
	queue := append([]string(nil), ix.children[id]...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		queue = append(queue, ix.children[cur]...)
	}
	return out
}
