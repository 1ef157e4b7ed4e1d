package slots

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used for local development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]*Slot
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots: make(map[string]*Slot),
		now:   time.Now,
	}
}

func (m *MemoryStore) InsertWindow(ctx context.Context, doctorID string, window Interval, batch []*Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.slots {
		if existing.DoctorID == doctorID && existing.Overlaps(window.Start, window.End) {
			return ErrOverlap
		}
	}
	now := m.now().UTC()
	for _, s := range batch {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.CreatedAt = now
		s.UpdatedAt = now
		m.slots[s.ID] = s.Clone()
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Find(ctx context.Context, q Query) ([]*Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Slot
	for _, s := range m.slots {
		if q.matches(s) {
			out = append(out, s.Clone())
		}
	}
	sortSlots(out)
	return out, nil
}

func (m *MemoryStore) UpdateIf(ctx context.Context, id string, cond Condition, patch Patch) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.slots[id]
	if !ok || !cond.Matches(current) {
		return nil, ErrConditionFailed
	}

	next := current.Clone()
	patch.Apply(next)
	next.UpdatedAt = m.now().UTC()
	m.slots[id] = next
	return next.Clone(), nil
}

func (q Query) matches(s *Slot) bool {
	if q.DoctorID != "" && s.DoctorID != q.DoctorID {
		return false
	}
	if q.Date != "" && s.Date != q.Date {
		return false
	}
	if q.HolderID != "" && s.HolderID != q.HolderID {
		return false
	}
	if len(q.IDs) > 0 && !containsString(q.IDs, s.ID) {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, s.Status) {
		return false
	}
	if q.AppointmentStatus != "" && s.AppointmentStatus != q.AppointmentStatus {
		return false
	}
	if q.StartsAt != nil && !s.StartTime.Equal(*q.StartsAt) {
		return false
	}
	if q.EndsAt != nil && !s.EndTime.Equal(*q.EndsAt) {
		return false
	}
	if q.StartsAfter != nil && !s.StartTime.After(*q.StartsAfter) {
		return false
	}
	if q.ClaimableAt != nil && !s.Claimable(*q.ClaimableAt) {
		return false
	}
	return true
}

func sortSlots(list []*Slot) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartTime.Equal(list[j].StartTime) {
			return list[i].ID < list[j].ID
		}
		return list[i].StartTime.Before(list[j].StartTime)
	})
}

func containsString(list []string, v string) bool {
	for _, candidate := range list {
		if candidate == v {
			return true
		}
	}
	return false
}
