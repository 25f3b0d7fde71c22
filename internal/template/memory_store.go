package template

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory template store for demo/development mode.
type MemoryStore struct {
	templates map[string]*Template // keyed by tenantID+"/"+type
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory template store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[string]*Template)}
}

func key(tenantID, notificationType string) string {
	return tenantID + "/" + notificationType
}

func (m *MemoryStore) Upsert(ctx context.Context, t *Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(t.TenantID, t.Type)
	if existing, ok := m.templates[k]; ok {
		t.ID = existing.ID
		t.CreatedAt = existing.CreatedAt
	}
	t.UpdatedAt = time.Now()
	cp := *t
	m.templates[k] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, tenantID, notificationType string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[key(tenantID, notificationType)]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ListByTenant(ctx context.Context, tenantID string) ([]*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Template
	for _, t := range m.templates {
		if t.TenantID == tenantID {
			cp := *t
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result, nil
}
