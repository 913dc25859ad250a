package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/speednet-khulna/messenger-bot/internal/model"
)

type convKey struct {
	pageID   string
	senderID string
}

// Memory is a process-local Store. Contents are lost on restart.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	messages map[convKey][]model.Message
	profiles map[convKey]model.Profile
	tenants  map[string]model.Tenant
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		messages: make(map[convKey][]model.Message),
		profiles: make(map[convKey]model.Profile),
		tenants:  make(map[string]model.Tenant),
		now:      time.Now,
	}
}

func (m *Memory) Append(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	msg.ID = m.nextID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	k := convKey{msg.PageID, msg.SenderID}
	m.messages[k] = append(m.messages[k], *msg)
	return nil
}

func (m *Memory) History(_ context.Context, pageID, senderID string, limit int) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.sorted(convKey{pageID, senderID})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *Memory) Count(_ context.Context, pageID, senderID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[convKey{pageID, senderID}]), nil
}

func (m *Memory) Oldest(_ context.Context, pageID, senderID string, n int) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.sorted(convKey{pageID, senderID})
	if n >= 0 && len(msgs) > n {
		msgs = msgs[:n]
	}
	return msgs, nil
}

// sorted returns a copy ordered by (created_at, id). Callers hold the lock.
func (m *Memory) sorted(k convKey) []model.Message {
	src := m.messages[k]
	out := make([]model.Message, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) Profile(_ context.Context, pageID, senderID string) (model.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.profiles[convKey{pageID, senderID}]; ok {
		return p, nil
	}
	return model.Profile{PageID: pageID, SenderID: senderID}, nil
}

func (m *Memory) UpsertSummary(_ context.Context, pageID, senderID, summary string) error {
	m.updateProfile(pageID, senderID, func(p *model.Profile) { p.Summary = summary })
	return nil
}

func (m *Memory) UpsertExternalID(_ context.Context, pageID, senderID, externalID string) error {
	m.updateProfile(pageID, senderID, func(p *model.Profile) { p.ExternalID = externalID })
	return nil
}

func (m *Memory) UpsertDisplayName(_ context.Context, pageID, senderID, name string) error {
	m.updateProfile(pageID, senderID, func(p *model.Profile) { p.DisplayName = name })
	return nil
}

func (m *Memory) updateProfile(pageID, senderID string, fn func(*model.Profile)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateProfileLocked(pageID, senderID, fn)
}

func (m *Memory) updateProfileLocked(pageID, senderID string, fn func(*model.Profile)) {
	k := convKey{pageID, senderID}
	p, ok := m.profiles[k]
	if !ok {
		p = model.Profile{PageID: pageID, SenderID: senderID}
	}
	fn(&p)
	p.UpdatedAt = m.now()
	m.profiles[k] = p
}

func (m *Memory) ReplaceSummaryAndPrune(_ context.Context, pageID, senderID, summary string, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	k := convKey{pageID, senderID}
	kept := m.messages[k][:0:0]
	for _, msg := range m.messages[k] {
		if !drop[msg.ID] {
			kept = append(kept, msg)
		}
	}
	m.messages[k] = kept
	m.updateProfileLocked(pageID, senderID, func(p *model.Profile) { p.Summary = summary })
	return nil
}

func (m *Memory) GetTenant(_ context.Context, pageID string) (model.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[pageID]
	if !ok {
		return model.Tenant{}, ErrTenantNotFound
	}
	return t, nil
}

func (m *Memory) UpsertTenant(_ context.Context, tenant model.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.tenants[tenant.PageID]; ok {
		tenant.CreatedAt = existing.CreatedAt
	} else if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = m.now()
	}
	m.tenants[tenant.PageID] = tenant
	return nil
}

func (m *Memory) DeleteTenant(_ context.Context, pageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tenants[pageID]; !ok {
		return ErrTenantNotFound
	}
	delete(m.tenants, pageID)
	return nil
}

func (m *Memory) ListTenants(_ context.Context) ([]model.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageID < out[j].PageID })
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
