package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yairfalse/sweeper/pkg/resource"
)

// MemoryDirectory is an in-process Directory. Deletes are recorded and, when
// RemoveOnDelete is set, remove the group from later listings.
type MemoryDirectory struct {
	RemoveOnDelete bool

	mu        sync.Mutex
	groups    map[string]resource.ResourceGroup
	deletes   []string
	listErr   error
	deleteErr map[string]error
}

// NewMemoryDirectory creates a directory seeded with groups.
func NewMemoryDirectory(groups ...resource.ResourceGroup) *MemoryDirectory {
	m := &MemoryDirectory{
		groups:    make(map[string]resource.ResourceGroup),
		deleteErr: make(map[string]error),
	}
	for _, g := range groups {
		m.groups[g.Name] = g
	}
	return m
}

// Name returns the directory identifier.
func (m *MemoryDirectory) Name() string {
	return "memory"
}

// Put adds or replaces a group.
func (m *MemoryDirectory) Put(g resource.ResourceGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.Name] = g
}

// Remove drops a group as if it finished deleting.
func (m *MemoryDirectory) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, name)
}

// FailList makes ListGroups return err until cleared with nil.
func (m *MemoryDirectory) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// FailDelete makes DeleteGroup reject name with err.
func (m *MemoryDirectory) FailDelete(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.deleteErr, name)
		return
	}
	m.deleteErr[name] = err
}

// Deletes returns the names DeleteGroup accepted, in call order.
func (m *MemoryDirectory) Deletes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deletes))
	copy(out, m.deletes)
	return out
}

// ListGroups returns matching groups sorted by name.
func (m *MemoryDirectory) ListGroups(_ context.Context, pred Predicate) ([]resource.ResourceGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, m.listErr)
	}

	groups := make([]resource.ResourceGroup, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	return Filter(groups, pred), nil
}

// DeleteGroup records the delete and returns a completed handle.
func (m *MemoryDirectory) DeleteGroup(_ context.Context, name string) (*Deletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.deleteErr[name]; ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeleteFailed, name, err)
	}

	m.deletes = append(m.deletes, name)
	if m.RemoveOnDelete {
		delete(m.groups, name)
	}
	return CompletedDeletion(name, nil), nil
}
