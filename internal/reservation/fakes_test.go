package reservation_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nekogravitycat/space-reservation-backend/internal/events"
	"github.com/nekogravitycat/space-reservation-backend/internal/payment"
	"github.com/nekogravitycat/space-reservation-backend/internal/reservation"
	"github.com/nekogravitycat/space-reservation-backend/internal/resource"
)

// memRepo keeps reservations in memory. One mutex makes CreateIfAvailable atomic,
// standing in for the advisory lock of the SQL implementation.
type memRepo struct {
	mu       sync.Mutex
	rows     map[string]*reservation.Reservation
	payments map[string]*payment.Payment // by reservation ID
	claims   map[string]time.Time        // refund claims by payment ID
	seq      int
	now      func() time.Time

	failCancelWithRefund error
	failConfirm          error
}

func newMemRepo(now func() time.Time) *memRepo {
	return &memRepo{
		rows:     map[string]*reservation.Reservation{},
		payments: map[string]*payment.Payment{},
		claims:   map[string]time.Time{},
		now:      now,
	}
}

func clone(r *reservation.Reservation) *reservation.Reservation {
	cp := *r
	return &cp
}

func (m *memRepo) ListActive(_ context.Context, resourceID string, date time.Time) ([]*reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(resourceID, date), nil
}

func (m *memRepo) activeLocked(resourceID string, date time.Time) []*reservation.Reservation {
	var out []*reservation.Reservation
	for _, r := range m.rows {
		if r.ResourceID == resourceID && r.Date.Equal(date) && r.Status.IsActive() {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window.Start < out[j].Window.Start })
	return out
}

func (m *memRepo) CreateIfAvailable(_ context.Context, r *reservation.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.activeLocked(r.ResourceID, r.Date) {
		if existing.Window.Overlaps(r.Window) {
			return reservation.ErrTimeConflict
		}
	}
	m.seq++
	r.ID = fmt.Sprintf("rsv-%d", m.seq)
	r.CreatedAt = m.now()
	r.UpdatedAt = r.CreatedAt
	m.rows[r.ID] = clone(r)
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, reservation.ErrNotFound
	}
	out := clone(r)
	if p, ok := m.payments[id]; ok {
		cp := *p
		out.Payment = &cp
	}
	return out, nil
}

func (m *memRepo) List(_ context.Context, f reservation.Filter) ([]*reservation.Reservation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*reservation.Reservation
	for _, r := range m.rows {
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, clone(r))
	}
	return out, len(out), nil
}

func (m *memRepo) updateLocked(id string, from, to reservation.Status, reason string) error {
	r, ok := m.rows[id]
	if !ok || r.Status != from {
		return reservation.ErrStatusChanged
	}
	r.Status = to
	if reason != "" {
		r.CancelReason = &reason
	}
	return nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id string, from, to reservation.Status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(id, from, to, reason)
}

func (m *memRepo) Confirm(_ context.Context, id string, p *payment.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failConfirm != nil {
		return m.failConfirm
	}
	if err := m.updateLocked(id, reservation.StatusPending, reservation.StatusConfirmed, ""); err != nil {
		return err
	}
	p.ID = "pay-" + id
	p.CreatedAt = m.now()
	cp := *p
	m.payments[id] = &cp
	return nil
}

func (m *memRepo) ClaimRefund(_ context.Context, id, paymentID string, lease time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.ID != paymentID || p.Status != payment.StatusCompleted {
		return reservation.ErrStatusChanged
	}
	if at, held := m.claims[paymentID]; held && !at.Before(m.now().Add(-lease)) {
		return reservation.ErrStatusChanged
	}
	m.claims[paymentID] = m.now()
	return nil
}

func (m *memRepo) ReleaseRefundClaim(_ context.Context, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, paymentID)
	return nil
}

func (m *memRepo) CancelWithRefund(_ context.Context, id, paymentID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCancelWithRefund != nil {
		return m.failCancelWithRefund
	}
	p, ok := m.payments[id]
	if !ok || p.ID != paymentID || p.Status != payment.StatusCompleted {
		return reservation.ErrStatusChanged
	}
	if err := m.updateLocked(id, reservation.StatusConfirmed, reservation.StatusCancelled, reason); err != nil {
		return err
	}
	now := m.now()
	p.Status = payment.StatusRefunded
	p.RefundedAt = &now
	return nil
}

func (m *memRepo) ExpirePending(_ context.Context, before time.Time, reason string) ([]*reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []*reservation.Reservation
	for _, r := range m.rows {
		if r.Status == reservation.StatusPending && r.CreatedAt.Before(before) {
			r.Status = reservation.StatusCancelled
			r.CancelReason = &reason
			expired = append(expired, clone(r))
		}
	}
	return expired, nil
}

// recordRefund applies a refund the way another writer would, bypassing the service.
func (m *memRepo) recordRefund(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.rows[id].Status = reservation.StatusCancelled
	m.payments[id].Status = payment.StatusRefunded
	m.payments[id].RefundedAt = &now
}

func (m *memRepo) status(id string) reservation.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

func (m *memRepo) setCreatedAt(id string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].CreatedAt = t
}

type fakeResources map[string]*resource.Resource

func (f fakeResources) GetByID(_ context.Context, id string) (*resource.Resource, error) {
	r, ok := f[id]
	if !ok {
		return nil, resource.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// fakeGateway answers captures and cancels through overridable funcs.
type fakeGateway struct {
	mu       sync.Mutex
	captures int
	cancels  []string

	captureFn func(ctx context.Context, orderRef string, amount int64) (*payment.Outcome, error)
	cancelFn  func(ctx context.Context, transactionRef string) (*payment.Outcome, error)
}

func (g *fakeGateway) Capture(ctx context.Context, orderRef string, amount int64) (*payment.Outcome, error) {
	g.mu.Lock()
	g.captures++
	fn := g.captureFn
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, orderRef, amount)
	}
	return &payment.Outcome{TransactionRef: "tx-" + orderRef, Status: payment.OutcomePaid, Amount: amount}, nil
}

func (g *fakeGateway) Cancel(ctx context.Context, transactionRef, _ string) (*payment.Outcome, error) {
	g.mu.Lock()
	g.cancels = append(g.cancels, transactionRef)
	fn := g.cancelFn
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, transactionRef)
	}
	return &payment.Outcome{TransactionRef: transactionRef, Status: payment.OutcomeCancelled}, nil
}

func (g *fakeGateway) cancelCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cancels)
}

func (g *fakeGateway) captureCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.captures
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
