package payment

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotPaid        = errors.New("payment was not completed by the gateway")
	ErrAmountMismatch = errors.New("captured amount does not match the reservation total")
	ErrBreakerOpen    = errors.New("payment gateway temporarily unavailable")
)

// Status of a locally recorded payment.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
)

// Payment records a captured charge for a confirmed reservation.
type Payment struct {
	ID             string
	ReservationID  string
	OrderRef       string
	TransactionRef string
	Amount         int64 // smallest currency unit
	Status         Status
	CreatedAt      time.Time
	RefundedAt     *time.Time
}

// OutcomeStatus is what the gateway reports for a capture or cancel call.
type OutcomeStatus string

const (
	OutcomePaid      OutcomeStatus = "PAID"
	OutcomeFailed    OutcomeStatus = "FAILED"
	OutcomeCancelled OutcomeStatus = "CANCELLED"
)

type Outcome struct {
	TransactionRef string
	Status         OutcomeStatus
	Amount         int64
}

// Gateway is the external payment processor.
type Gateway interface {
	Capture(ctx context.Context, orderRef string, amount int64) (*Outcome, error)
	Cancel(ctx context.Context, transactionRef, reason string) (*Outcome, error)
}

// Verify checks a capture outcome before it is trusted locally.
func Verify(o *Outcome, expected int64) error {
	if o == nil || o.Status != OutcomePaid {
		status := "none"
		if o != nil {
			status = string(o.Status)
		}
		return fmt.Errorf("%w: status %s", ErrNotPaid, status)
	}
	if o.Amount != expected {
		return fmt.Errorf("%w: expected %d, got %d", ErrAmountMismatch, expected, o.Amount)
	}
	return nil
}
