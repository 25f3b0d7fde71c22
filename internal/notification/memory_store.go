package notification

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory notification store for demo/development mode.
type MemoryStore struct {
	notifications map[string]*Notification
	mu            sync.RWMutex
}

// NewMemoryStore creates a new in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notifications: make(map[string]*Notification)}
}

func (m *MemoryStore) Create(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notifications[n.ID]; !ok {
		return ErrNotificationNotFound
	}
	n.UpdatedAt = time.Now()
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f Filter, limit, offset int) ([]*Notification, error) {
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

	result := make([]*Notification, 0, len(matched))
	for _, n := range matched {
		cp := *n
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) Count(ctx context.Context, f Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.filtered(f)), nil
}

func (m *MemoryStore) ListDeliverable(ctx context.Context, maxAttempts, limit int) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Notification
	for _, n := range m.notifications {
		if n.Status == StatusPending || (n.Status == StatusFailed && n.AttemptCount < maxAttempts) {
			matched = append(matched, n)
		}
	}
	// Oldest first so retries are not starved by new work.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]*Notification, 0, len(matched))
	for _, n := range matched {
		cp := *n
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) CountByStatus(ctx context.Context, tenantID string) (map[Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[Status]int)
	for _, n := range m.notifications {
		if tenantID != "" && n.TenantID != tenantID {
			continue
		}
		counts[n.Status]++
	}
	return counts, nil
}

// filtered returns matching notifications newest-first. Caller must hold a lock.
func (m *MemoryStore) filtered(f Filter) []*Notification {
	var matched []*Notification
	for _, n := range m.notifications {
		if f.Matches(n) {
			matched = append(matched, n)
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
