package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nekogravitycat/space-reservation-backend/internal/events"
	"github.com/nekogravitycat/space-reservation-backend/internal/metrics"
	"github.com/nekogravitycat/space-reservation-backend/internal/payment"
	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/timeslot"
	"github.com/nekogravitycat/space-reservation-backend/internal/resource"
)

const (
	reasonPaymentFailed  = "payment verification failed"
	reasonPaymentTimeout = "payment timeout"
	reasonUserCancelled  = "cancelled by user"
	reasonVoidCapture    = "reservation could not be confirmed"
)

// ResourceGetter is the slice of the resource service the engine needs.
type ResourceGetter interface {
	GetByID(ctx context.Context, id string) (*resource.Resource, error)
}

type Service interface {
	CheckAvailability(ctx context.Context, resourceID string, date time.Time, w timeslot.Window) (bool, error)
	DaySlots(ctx context.Context, resourceID string, date time.Time) ([]Slot, error)
	Create(ctx context.Context, req CreateRequest) (*Reservation, error)
	GetByID(ctx context.Context, id string, actor Actor) (*Reservation, error)
	List(ctx context.Context, filter Filter) ([]*Reservation, int, error)
	Confirm(ctx context.Context, id string, req ConfirmRequest) (*Reservation, error)
	Cancel(ctx context.Context, id string, req CancelRequest) (*CancelResult, error)
	Complete(ctx context.Context, id string) (*Reservation, error)
	ExpirePending(ctx context.Context, olderThan time.Time) (int, error)
}

// Config tunes the engine. Zero values fall back to sensible defaults.
type Config struct {
	// Location is the resources' local timezone, used to reject past bookings.
	Location *time.Location
	// GatewayTimeout bounds every capture and cancel call.
	GatewayTimeout time.Duration
	// Now is overridable in tests.
	Now func() time.Time
}

type service struct {
	repo      Repository
	resources ResourceGetter
	gateway   payment.Gateway
	publisher events.Publisher
	logger    zerolog.Logger

	loc            *time.Location
	gatewayTimeout time.Duration
	refundLease    time.Duration
	now            func() time.Time
}

func NewService(
	repo Repository,
	resources ResourceGetter,
	gateway payment.Gateway,
	publisher events.Publisher,
	logger zerolog.Logger,
	cfg Config,
) Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &service{
		repo:           repo,
		resources:      resources,
		gateway:        gateway,
		publisher:      publisher,
		logger:         logger.With().Str("component", "reservation").Logger(),
		loc:            cfg.Location,
		gatewayTimeout: cfg.GatewayTimeout,
		refundLease:    max(3*cfg.GatewayTimeout, 30*time.Second),
		now:            cfg.Now,
	}
}

func (s *service) getResource(ctx context.Context, id string) (*resource.Resource, error) {
	res, err := s.resources.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return res, nil
}

// CheckAvailability is a read-only check; Create re-checks atomically.
func (s *service) CheckAvailability(ctx context.Context, resourceID string, date time.Time, w timeslot.Window) (bool, error) {
	if err := w.Validate(); err != nil {
		return false, ErrInvalidWindow
	}
	if _, err := s.getResource(ctx, resourceID); err != nil {
		return false, err
	}

	active, err := s.repo.ListActive(ctx, resourceID, dateOnly(date))
	if err != nil {
		return false, err
	}
	return isFree(active, w), nil
}

func isFree(active []*Reservation, w timeslot.Window) bool {
	for _, r := range active {
		if r.Status.IsActive() && r.Window.Overlaps(w) {
			return false
		}
	}
	return true
}

// DaySlots lays the resource's open hours for date out as hourly slots.
func (s *service) DaySlots(ctx context.Context, resourceID string, date time.Time) ([]Slot, error) {
	res, err := s.getResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	date = dateOnly(date)
	active, err := s.repo.ListActive(ctx, resourceID, date)
	if err != nil {
		return nil, err
	}

	now := s.now()
	local := s.localDate(date)

	slots := make([]Slot, 0)
	for _, hours := range res.HoursOn(date.Weekday()) {
		for start := hours.Open; start+timeslot.MinutesPerHour <= hours.Close; start += timeslot.MinutesPerHour {
			w := timeslot.Window{Start: start, End: start + timeslot.MinutesPerHour}
			slots = append(slots, Slot{
				Window:    w,
				Available: res.IsActive && !w.Start.On(local).Before(now) && isFree(active, w),
			})
		}
	}
	return slots, nil
}

func (s *service) localDate(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Reservation, error) {
	// 1. Validate the window
	if err := req.Window.Validate(); err != nil {
		return nil, ErrInvalidWindow
	}
	if !req.Window.IsWholeHours() {
		return nil, ErrNotWholeHour
	}

	// 2. Validate the resource and occupancy
	res, err := s.getResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	if !res.IsActive {
		return nil, ErrResourceInactive
	}
	if req.Occupancy < 1 || req.Occupancy > res.MaxOccupancy {
		return nil, ErrInvalidOccupancy
	}

	// 3. Reject windows that already started
	date := dateOnly(req.Date)
	if req.Window.Start.On(s.localDate(date)).Before(s.now()) {
		return nil, ErrStartTimePast
	}

	// 4. Price server-side; a client total is only compared, never trusted
	total, err := TotalPrice(req.Window, res.PricePerHour)
	if err != nil {
		return nil, err
	}
	if req.ExpectedPrice != nil && *req.ExpectedPrice != total {
		return nil, ErrPriceMismatch
	}

	// 5. Atomic check-and-insert
	r := &Reservation{
		ResourceID: req.ResourceID,
		UserID:     req.UserID,
		Date:       date,
		Window:     req.Window,
		Occupancy:  req.Occupancy,
		TotalPrice: total,
		Status:     StatusPending,
	}
	if err := s.repo.CreateIfAvailable(ctx, r); err != nil {
		if errors.Is(err, ErrTimeConflict) {
			metrics.IncConflict()
		}
		return nil, err
	}

	metrics.IncReservationCreated()
	s.logger.Info().
		Str("reservation_id", r.ID).
		Str("resource_id", r.ResourceID).
		Str("date", r.Date.Format(timeslot.DateLayout)).
		Str("window", r.Window.String()).
		Int64("total_price", r.TotalPrice).
		Msg("reservation created")
	s.publish(ctx, events.ReservationCreated, r, "")

	return r, nil
}

func (s *service) GetByID(ctx context.Context, id string, actor Actor) (*Reservation, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.canAccess(r) {
		// Hide other users' reservations entirely.
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Reservation, int, error) {
	return s.repo.List(ctx, filter)
}

// Confirm captures the payment and moves pending -> confirmed. Any verification
// failure rolls the reservation back to cancelled and frees its window.
func (s *service) Confirm(ctx context.Context, id string, req ConfirmRequest) (*Reservation, error) {
	r, err := s.GetByID(ctx, id, req.Actor)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, ErrNotPending
	}

	log := s.logger.With().Str("reservation_id", r.ID).Str("payment_ref", req.PaymentRef).Logger()

	// 1. The client's amount must match before anything is charged
	if req.Amount != r.TotalPrice {
		cause := fmt.Errorf("%w: expected %d, got %d", payment.ErrAmountMismatch, r.TotalPrice, req.Amount)
		s.rollback(ctx, r, cause)
		return nil, ErrPaymentVerification.WithCause(cause)
	}

	// 2. Capture with a bounded timeout
	captureCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	outcome, err := s.gateway.Capture(captureCtx, req.PaymentRef, r.TotalPrice)
	cancel()
	if err != nil {
		if captureOutcomeUnknown(err) {
			s.reportUnknownCapture(ctx, r, req.PaymentRef, err)
		}
		s.rollback(ctx, r, err)
		return nil, ErrPaymentVerification.WithCause(err)
	}

	// 3. Verify before trusting the outcome
	if err := payment.Verify(outcome, r.TotalPrice); err != nil {
		if outcome != nil && outcome.Status == payment.OutcomePaid {
			s.voidCapture(ctx, r, outcome)
		}
		s.rollback(ctx, r, err)
		return nil, ErrPaymentVerification.WithCause(err)
	}

	// 4. Record the payment and confirm together
	p := &payment.Payment{
		ReservationID:  r.ID,
		OrderRef:       req.PaymentRef,
		TransactionRef: outcome.TransactionRef,
		Amount:         outcome.Amount,
		Status:         payment.StatusCompleted,
	}
	if err := s.repo.Confirm(context.WithoutCancel(ctx), r.ID, p); err != nil {
		log.Warn().Err(err).Str("transaction_ref", outcome.TransactionRef).
			Msg("captured payment could not be recorded, voiding capture")
		s.voidCapture(ctx, r, outcome)
		if errors.Is(err, ErrStatusChanged) {
			return nil, ErrNotPending
		}
		s.rollback(ctx, r, err)
		return nil, err
	}

	r.Status = StatusConfirmed
	r.Payment = p
	metrics.IncTransition(string(StatusPending), string(StatusConfirmed))
	log.Info().Str("transaction_ref", p.TransactionRef).Msg("reservation confirmed")
	s.publish(ctx, events.ReservationConfirmed, r, "")

	return r, nil
}

// captureOutcomeUnknown reports whether the gateway may have charged despite err.
// A gateway answer or an open breaker means no charge happened.
func captureOutcomeUnknown(err error) bool {
	var gwErr *payment.GatewayError
	return !errors.As(err, &gwErr) && !errors.Is(err, payment.ErrBreakerOpen)
}

func (s *service) reportUnknownCapture(ctx context.Context, r *Reservation, orderRef string, cause error) {
	s.logger.Warn().Err(cause).
		Str("reservation_id", r.ID).
		Str("payment_ref", orderRef).
		Int64("amount", r.TotalPrice).
		Msg("capture outcome unknown, reconcile order with the gateway")

	ev := events.New(events.CaptureUnknown, CaptureUnknownPayload{
		ReservationID: r.ID,
		OrderRef:      orderRef,
		Amount:        r.TotalPrice,
		Error:         cause.Error(),
	})
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("publish capture unknown event failed")
	}
}

// rollback cancels a pending reservation after a failed payment. It runs even if
// the request context is gone so the window is never left squatted.
func (s *service) rollback(ctx context.Context, r *Reservation, cause error) {
	ctx = context.WithoutCancel(ctx)

	reason := reasonPaymentFailed
	if errors.Is(cause, context.DeadlineExceeded) {
		reason = reasonPaymentTimeout
	}

	if err := s.repo.UpdateStatus(ctx, r.ID, StatusPending, StatusCancelled, reason); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("rollback to cancelled failed")
		return
	}

	r.Status = StatusCancelled
	r.CancelReason = &reason
	metrics.IncTransition(string(StatusPending), string(StatusCancelled))
	s.logger.Info().Err(cause).Str("reservation_id", r.ID).Msg("payment failed, reservation rolled back")
	s.publish(ctx, events.ReservationCancelled, r, reason)
}

// voidCapture refunds a capture that will not be honoured. Best effort: a failure
// is logged for manual follow-up.
func (s *service) voidCapture(ctx context.Context, r *Reservation, outcome *payment.Outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.gatewayTimeout)
	defer cancel()

	if _, err := s.gateway.Cancel(ctx, outcome.TransactionRef, reasonVoidCapture); err != nil {
		s.logger.Error().Err(err).
			Str("reservation_id", r.ID).
			Str("transaction_ref", outcome.TransactionRef).
			Int64("amount", outcome.Amount).
			Msg("voiding unconfirmed capture failed")
	}
}

// Cancel releases the window. A confirmed reservation with a completed payment is
// refunded at the gateway first; if that fails nothing changes locally.
func (s *service) Cancel(ctx context.Context, id string, req CancelRequest) (*CancelResult, error) {
	r, err := s.GetByID(ctx, id, req.Actor)
	if err != nil {
		return nil, err
	}
	if r.Status.IsTerminal() {
		return nil, ErrAlreadyTerminal
	}

	reason := req.Reason
	if reason == "" {
		reason = reasonUserCancelled
	}
	from := r.Status

	p := r.Payment
	if from == StatusConfirmed && p != nil && p.Status == payment.StatusCompleted {
		// 1. Claim the refund so only one caller reaches the gateway
		if err := s.repo.ClaimRefund(ctx, r.ID, p.ID, s.refundLease); err != nil {
			return nil, s.lostCancelRace(ctx, r.ID, err, ErrRefundInProgress)
		}

		// 2. Refund at the gateway; on failure nothing changes locally
		if err := s.refund(ctx, r, p, reason); err != nil {
			s.releaseRefundClaim(ctx, r, p)
			return nil, err
		}

		// 3. Record refund and cancellation together
		if err := s.repo.CancelWithRefund(context.WithoutCancel(ctx), r.ID, p.ID, reason); err != nil {
			if stored := s.recordedRefund(ctx, r.ID, err); stored != nil {
				return &CancelResult{Reservation: stored, RefundIssued: true}, nil
			}
			s.releaseRefundClaim(ctx, r, p)
			s.reportDivergence(ctx, r, p, err)
			return &CancelResult{Reservation: r, RefundIssued: true}, ErrRefundNotRecorded.WithCause(err)
		}

		now := s.now()
		p.Status = payment.StatusRefunded
		p.RefundedAt = &now
	} else {
		if err := s.repo.UpdateStatus(ctx, r.ID, from, StatusCancelled, reason); err != nil {
			return nil, s.lostCancelRace(ctx, r.ID, err, ErrStatusChanged)
		}
	}

	r.Status = StatusCancelled
	r.CancelReason = &reason
	metrics.IncTransition(string(from), string(StatusCancelled))
	s.logger.Info().Str("reservation_id", r.ID).Str("from", string(from)).Msg("reservation cancelled")
	s.publish(ctx, events.ReservationCancelled, r, reason)

	return &CancelResult{Reservation: r, RefundIssued: p != nil && p.Status == payment.StatusRefunded}, nil
}

// lostCancelRace maps a failed conditional write to what the caller should see:
// the reservation already ended, or fallback while another cancel is in flight.
func (s *service) lostCancelRace(ctx context.Context, id string, err, fallback error) error {
	if !errors.Is(err, ErrStatusChanged) {
		return err
	}
	current, getErr := s.repo.GetByID(ctx, id)
	if getErr == nil && current.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	return fallback
}

// recordedRefund returns the stored reservation when a concurrent writer already
// recorded this refund, so the conflict is not a divergence.
func (s *service) recordedRefund(ctx context.Context, id string, err error) *Reservation {
	if !errors.Is(err, ErrStatusChanged) {
		return nil
	}
	current, getErr := s.repo.GetByID(context.WithoutCancel(ctx), id)
	if getErr != nil {
		return nil
	}
	if current.Status == StatusCancelled && current.Payment != nil && current.Payment.Status == payment.StatusRefunded {
		return current
	}
	return nil
}

func (s *service) releaseRefundClaim(ctx context.Context, r *Reservation, p *payment.Payment) {
	if err := s.repo.ReleaseRefundClaim(context.WithoutCancel(ctx), p.ID); err != nil {
		s.logger.Warn().Err(err).
			Str("reservation_id", r.ID).
			Str("payment_id", p.ID).
			Msg("release refund claim failed, retries wait for the lease to lapse")
	}
}

func (s *service) refund(ctx context.Context, r *Reservation, p *payment.Payment, reason string) error {
	refundCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	outcome, err := s.gateway.Cancel(refundCtx, p.TransactionRef, reason)
	if err == nil && (outcome == nil || outcome.Status != payment.OutcomeCancelled) {
		status := "none"
		if outcome != nil {
			status = string(outcome.Status)
		}
		err = fmt.Errorf("gateway reported %s for refund of %s", status, p.TransactionRef)
	}
	if err != nil {
		s.logger.Warn().Err(err).
			Str("reservation_id", r.ID).
			Str("transaction_ref", p.TransactionRef).
			Msg("refund rejected, reservation left confirmed")
		return ErrRefundGateway.WithCause(err)
	}
	return nil
}

func (s *service) reportDivergence(ctx context.Context, r *Reservation, p *payment.Payment, cause error) {
	metrics.IncRefundDivergence()
	s.logger.Warn().Err(cause).
		Str("reservation_id", r.ID).
		Str("payment_id", p.ID).
		Str("transaction_ref", p.TransactionRef).
		Int64("amount", p.Amount).
		Msg("integrity divergence: refund issued at gateway but not recorded locally")

	ev := events.New(events.RefundDivergence, DivergencePayload{
		ReservationID:  r.ID,
		PaymentID:      p.ID,
		TransactionRef: p.TransactionRef,
		Amount:         p.Amount,
		Error:          cause.Error(),
	})
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("publish divergence event failed")
	}
}

// Complete is an administrative override with no time check.
func (s *service) Complete(ctx context.Context, id string) (*Reservation, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Status.CanTransitionTo(StatusCompleted) {
		return nil, ErrInvalidTransition
	}

	if err := s.repo.UpdateStatus(ctx, r.ID, r.Status, StatusCompleted, ""); err != nil {
		return nil, err
	}

	metrics.IncTransition(string(r.Status), string(StatusCompleted))
	r.Status = StatusCompleted
	s.publish(ctx, events.ReservationCompleted, r, "")
	return r, nil
}

// ExpirePending cancels reservations still awaiting payment after the cutoff.
func (s *service) ExpirePending(ctx context.Context, olderThan time.Time) (int, error) {
	expired, err := s.repo.ExpirePending(ctx, olderThan, reasonPaymentTimeout)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	metrics.AddExpired(len(expired))
	for _, r := range expired {
		s.publish(ctx, events.ReservationExpired, r, reasonPaymentTimeout)
	}
	s.logger.Info().Int("count", len(expired)).Time("cutoff", olderThan).Msg("expired pending reservations")
	return len(expired), nil
}

func (s *service) publish(ctx context.Context, t events.Type, r *Reservation, reason string) {
	ev := events.New(t, EventPayload{
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		UserID:        r.UserID,
		Date:          r.Date.Format(timeslot.DateLayout),
		Start:         r.Window.Start.String(),
		End:           r.Window.End.String(),
		Status:        r.Status,
		TotalPrice:    r.TotalPrice,
		Reason:        reason,
	})
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn().Err(err).Str("reservation_id", r.ID).Str("event", string(t)).Msg("publish event failed")
	}
}
