package content

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryRepo is an in-memory Repository for service tests.
type memoryRepo struct {
	mu       sync.Mutex
	groups   map[string]*Group
	keys     map[string]IdempotencyRecord
	getCalls int
	failNext error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{groups: map[string]*Group{}, keys: map[string]IdempotencyRecord{}}
}

func (m *memoryRepo) seedGroup(id, name, parent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[id] = &Group{ID: id, Name: name, ParentGroup: parent, Content: []Item{}}
}

func (m *memoryRepo) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memoryRepo) AppendItem(_ context.Context, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	g, ok := m.groups[item.ParentGroup]
	if !ok {
		return ErrGroupNotFound
	}
	g.Content = append(g.Content, item.Clone())
	return nil
}

func (m *memoryRepo) GetItem(_ context.Context, parentGroup, id string) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	g, ok := m.groups[parentGroup]
	if !ok {
		return nil, ErrContentNotFound
	}
	for _, it := range g.Content {
		if it.ID == id {
			out := it.Clone()
			if out.Type == TypeGroup {
				if child, ok := m.groups[out.ID]; ok {
					out.Group = &GroupRef{Name: child.Name}
				}
			}
			return &out, nil
		}
	}
	return nil, ErrContentNotFound
}

func (m *memoryRepo) ReplaceItem(_ context.Context, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	g, ok := m.groups[item.ParentGroup]
	if !ok {
		return ErrContentNotFound
	}
	for i, it := range g.Content {
		if it.ID == item.ID && it.Type == item.Type {
			g.Content[i] = item.Clone()
			return nil
		}
	}
	return ErrContentNotFound
}

func (m *memoryRepo) RemoveItem(_ context.Context, parentGroup, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	g, ok := m.groups[parentGroup]
	if !ok {
		return ErrContentNotFound
	}
	for i, it := range g.Content {
		if it.ID == id {
			g.Content = append(g.Content[:i], g.Content[i+1:]...)
			return nil
		}
	}
	return ErrContentNotFound
}

func (m *memoryRepo) CreateGroup(_ context.Context, group Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if group.ParentGroup != "" {
		if _, ok := m.groups[group.ParentGroup]; !ok {
			return ErrGroupNotFound
		}
	}
	g := group
	g.Content = []Item{}
	m.groups[g.ID] = &g
	return nil
}

func (m *memoryRepo) GetGroup(_ context.Context, id string) (*Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	out := *g
	out.Content = make([]Item, len(g.Content))
	for i, it := range g.Content {
		out.Content[i] = it.Clone()
	}
	sort.SliceStable(out.Content, func(i, j int) bool {
		if out.Content[i].Placement != out.Content[j].Placement {
			return out.Content[i].Placement < out.Content[j].Placement
		}
		return out.Content[i].ID < out.Content[j].ID
	})
	return &out, nil
}

func (m *memoryRepo) ListRootGroups(_ context.Context) ([]Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Group
	for _, g := range m.groups {
		if g.ParentGroup == "" {
			out = append(out, Group{ID: g.ID, Name: g.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) RenameGroup(_ context.Context, id, name string) (*Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	g.Name = name
	out := *g
	out.Content = nil
	return &out, nil
}

func (m *memoryRepo) DeleteGroup(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return ErrGroupNotFound
	}
	if parent, ok := m.groups[g.ParentGroup]; ok {
		for i, it := range parent.Content {
			if it.ID == id {
				parent.Content = append(parent.Content[:i], parent.Content[i+1:]...)
				break
			}
		}
	}
	m.deleteTree(id)
	return nil
}

func (m *memoryRepo) deleteTree(id string) {
	delete(m.groups, id)
	for childID, child := range m.groups {
		if child.ParentGroup == id {
			m.deleteTree(childID)
		}
	}
}

func (m *memoryRepo) GetIdempotencyKey(_ context.Context, key string, now time.Time) (*IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.keys[key]
	if !ok || !rec.ExpiresAt.After(now) {
		return nil, ErrIdempotencyKeyNotFound
	}
	return &rec, nil
}

func (m *memoryRepo) InsertIdempotencyKey(_ context.Context, rec IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.keys[rec.Key]; ok && existing.ExpiresAt.After(rec.CreatedAt) {
		return ErrIdempotencyConflict
	}
	m.keys[rec.Key] = rec
	return nil
}

func (m *memoryRepo) DeleteExpiredIdempotencyKeys(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, rec := range m.keys {
		if !rec.ExpiresAt.After(now) {
			delete(m.keys, key)
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	return fn(ctx, m)
}
