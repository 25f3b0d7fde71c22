package tenant

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory tenant store for demo/development mode.
type MemoryStore struct {
	tenants  map[string]*Tenant // by ID
	byAPIKey map[string]string  // apiKey → ID
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory tenant store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:  make(map[string]*Tenant),
		byAPIKey: make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.tenants {
		if existing.Status == StatusActive && existing.WhatsAppNumber == t.WhatsAppNumber {
			return ErrNumberInUse
		}
	}

	cp := *t
	m.tenants[t.ID] = &cp
	if t.APIKey != "" {
		m.byAPIKey[t.APIKey] = t.ID
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) GetByAPIKey(ctx context.Context, apiKey string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byAPIKey[apiKey]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *m.tenants[id]
	return &cp, nil
}

func (m *MemoryStore) GetActiveByNumber(ctx context.Context, number string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.tenants {
		if t.Status == StatusActive && t.WhatsAppNumber == number {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTenantNotFound
}

func (m *MemoryStore) Update(ctx context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.tenants[t.ID]
	if !ok {
		return ErrTenantNotFound
	}
	t.UpdatedAt = time.Now()
	if old.APIKey != t.APIKey {
		delete(m.byAPIKey, old.APIKey)
		if t.APIKey != "" {
			m.byAPIKey[t.APIKey] = t.ID
		}
	}
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f Filter, limit, offset int) ([]*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := m.filtered(f)
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]*Tenant, 0, len(matched))
	for _, t := range matched {
		cp := *t
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) Count(ctx context.Context, f Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.filtered(f)), nil
}

func (m *MemoryStore) ListExpiredTrials(ctx context.Context, now time.Time, limit int) ([]*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Tenant
	for _, t := range m.tenants {
		if t.Status == StatusActive && t.TrialExpired(now) {
			cp := *t
			result = append(result, &cp)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) ExpireTrial(ctx context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return false, ErrTenantNotFound
	}
	// Re-check under the write lock: an upgrade may have landed since
	// the sweep's read. Only still-active trials expire.
	if t.Plan != PlanTrial || t.Status != StatusActive {
		return false, nil
	}
	t.Status = StatusInactive
	t.DeactivatedAt = now
	t.UpdatedAt = now
	return true, nil
}

func (m *MemoryStore) Snapshot(ctx context.Context) ([]*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		cp := *t
		result = append(result, &cp)
	}
	return result, nil
}

// filtered returns matching tenants newest-first. Caller must hold a lock.
func (m *MemoryStore) filtered(f Filter) []*Tenant {
	var matched []*Tenant
	for _, t := range m.tenants {
		if f.Matches(t) {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched
}
