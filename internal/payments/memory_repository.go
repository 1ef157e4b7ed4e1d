package payments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps payments in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	payments map[string]*Payment
	order    []string
	now      func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		payments: make(map[string]*Payment),
		now:      time.Now,
	}
}

func (m *MemoryRepository) Create(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	now := m.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.payments[p.ID] = p.Clone()
	m.order = append(m.order, p.ID)
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryRepository) LatestForSlot(ctx context.Context, slotID string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p := m.latestLocked(slotID); p != nil {
		return p.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) LatestForSlots(ctx context.Context, slotIDs []string) (map[string]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*Payment, len(slotIDs))
	for _, id := range slotIDs {
		if p := m.latestLocked(id); p != nil {
			out[id] = p.Clone()
		}
	}
	return out, nil
}

func (m *MemoryRepository) MarkSucceeded(ctx context.Context, id, paymentIntentID string) (*Payment, error) {
	return m.update(id, func(p *Payment) {
		if p.Status == StatusPending {
			p.Status = StatusSucceeded
		}
		if paymentIntentID != "" {
			p.PaymentIntentID = paymentIntentID
		}
	})
}

func (m *MemoryRepository) RecordRefund(ctx context.Context, id string, status Status, refundedCents int64, refundID string) (*Payment, error) {
	return m.update(id, func(p *Payment) {
		p.Status = status
		p.RefundedCents = refundedCents
		if refundID != "" {
			p.RefundID = refundID
		}
	})
}

func (m *MemoryRepository) Relink(ctx context.Context, fromSlotID, toSlotID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	for _, p := range m.payments {
		if p.SlotID == fromSlotID && p.UserID == userID {
			p.SlotID = toSlotID
			p.UpdatedAt = now
		}
	}
	return nil
}

func (m *MemoryRepository) update(id string, fn func(*Payment)) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	fn(p)
	p.UpdatedAt = m.now().UTC()
	return p.Clone(), nil
}

// latestLocked walks insertion order backwards; callers hold the lock.
func (m *MemoryRepository) latestLocked(slotID string) *Payment {
	for i := len(m.order) - 1; i >= 0; i-- {
		if p := m.payments[m.order[i]]; p.SlotID == slotID {
			return p
		}
	}
	return nil
}
