package reservation

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/space-reservation-backend/internal/payment"
	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/timeslot"
)

var (
	ErrNotFound          = apperror.New(http.StatusNotFound, "reservation not found")
	ErrPermissionDenied  = apperror.New(http.StatusForbidden, "permission denied")
	ErrTimeConflict      = apperror.New(http.StatusConflict, "time slot unavailable")
	ErrStatusChanged     = apperror.New(http.StatusConflict, "reservation status changed concurrently")
	ErrNotPending        = apperror.New(http.StatusConflict, "reservation is not awaiting payment")
	ErrAlreadyTerminal   = apperror.New(http.StatusConflict, "reservation is already cancelled or completed")
	ErrInvalidTransition = apperror.New(http.StatusConflict, "status transition not allowed")
	ErrRefundInProgress  = apperror.New(http.StatusConflict, "a refund for this reservation is already in progress")

	// Validation errors are rejected before any write.
	ErrInvalidWindow    = apperror.New(http.StatusBadRequest, "start must be before end")
	ErrNotWholeHour     = apperror.New(http.StatusBadRequest, "start and end must be whole hours")
	ErrInvalidOccupancy = apperror.New(http.StatusBadRequest, "occupancy must be between 1 and the resource's maximum")
	ErrInvalidPrice     = apperror.New(http.StatusBadRequest, "resource price is invalid")
	ErrPriceMismatch    = apperror.New(http.StatusBadRequest, "expected price does not match the computed total")
	ErrStartTimePast    = apperror.New(http.StatusBadRequest, "cannot reserve a time in the past")
	ErrResourceNotFound = apperror.New(http.StatusNotFound, "resource not found")
	ErrResourceInactive = apperror.New(http.StatusBadRequest, "resource is not accepting reservations")

	// ErrPaymentVerification always leaves the reservation cancelled.
	ErrPaymentVerification = apperror.New(http.StatusPaymentRequired, "payment verification failed")
	// ErrRefundGateway leaves the reservation and payment untouched.
	ErrRefundGateway = apperror.New(http.StatusBadGateway, "refund request failed")
	// ErrRefundNotRecorded means the gateway refunded but the local update failed.
	ErrRefundNotRecorded = apperror.New(http.StatusInternalServerError, "refund issued but not recorded")
)

// Reservation claims a half-open window of one resource on one date.
type Reservation struct {
	ID           string
	ResourceID   string
	UserID       string
	Date         time.Time // midnight UTC; only the calendar date is meaningful
	Window       timeslot.Window
	Occupancy    int
	TotalPrice   int64
	Status       Status
	CancelReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Payment is the most recent payment, nil until confirmed.
	Payment *payment.Payment
}

// Actor is the identity performing an operation.
type Actor struct {
	UserID  string
	IsAdmin bool
}

func (a Actor) canAccess(r *Reservation) bool {
	return a.IsAdmin || (a.UserID != "" && a.UserID == r.UserID)
}

type Filter struct {
	UserID     string
	ResourceID string
	Status     Status
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
}

type CreateRequest struct {
	UserID        string
	ResourceID    string
	Date          time.Time
	Window        timeslot.Window
	Occupancy     int
	ExpectedPrice *int64
}

type ConfirmRequest struct {
	Actor      Actor
	PaymentRef string
	Amount     int64
}

type CancelRequest struct {
	Actor  Actor
	Reason string
}

type CancelResult struct {
	Reservation  *Reservation
	RefundIssued bool
}

// Slot is one bookable hour on a resource's day grid.
type Slot struct {
	Window    timeslot.Window
	Available bool
}

// EventPayload is published with every reservation lifecycle event.
type EventPayload struct {
	ReservationID string `json:"reservation_id"`
	ResourceID    string `json:"resource_id"`
	UserID        string `json:"user_id"`
	Date          string `json:"date"`
	Start         string `json:"start"`
	End           string `json:"end"`
	Status        Status `json:"status"`
	TotalPrice    int64  `json:"total_price"`
	Reason        string `json:"reason,omitempty"`
}

// DivergencePayload describes a refund the gateway accepted but the store did not record.
type DivergencePayload struct {
	ReservationID  string `json:"reservation_id"`
	PaymentID      string `json:"payment_id"`
	TransactionRef string `json:"transaction_ref"`
	Amount         int64  `json:"amount"`
	Error          string `json:"error"`
}

// CaptureUnknownPayload identifies a capture to reconcile by order reference.
type CaptureUnknownPayload struct {
	ReservationID string `json:"reservation_id"`
	OrderRef      string `json:"order_ref"`
	Amount        int64  `json:"amount"`
	Error         string `json:"error"`
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
