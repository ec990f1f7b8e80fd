package http

import (
	"time"

	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/request"
	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/timeslot"
	"github.com/nekogravitycat/space-reservation-backend/internal/reservation"
)

// AvailabilityRequest is the query of GET /resources/:id/availability.
type AvailabilityRequest struct {
	Date  string `form:"date" binding:"required"`
	Start string `form:"start" binding:"required"`
	End   string `form:"end" binding:"required"`
}

type AvailabilityResponse struct {
	ResourceID string         `json:"resource_id"`
	Date       string         `json:"date"`
	Start      timeslot.Clock `json:"start"`
	End        timeslot.Clock `json:"end"`
	Available  bool           `json:"available"`
}

type SlotsRequest struct {
	Date string `form:"date" binding:"required"`
}

type SlotResponse struct {
	Start     timeslot.Clock `json:"start"`
	End       timeslot.Clock `json:"end"`
	Available bool           `json:"available"`
}

type SlotsResponse struct {
	ResourceID string         `json:"resource_id"`
	Date       string         `json:"date"`
	Slots      []SlotResponse `json:"slots"`
}

type CreateReservationRequest struct {
	ResourceID    string `json:"resource_id" binding:"required,uuid"`
	Date          string `json:"date" binding:"required"`
	Start         string `json:"start" binding:"required"`
	End           string `json:"end" binding:"required"`
	Occupancy     int    `json:"occupancy" binding:"required,min=1"`
	ExpectedPrice *int64 `json:"expected_price" binding:"omitempty,min=0"`
}

// ListReservationsRequest defines query parameters for listing reservations.
// UserID is honoured for system admins only.
type ListReservationsRequest struct {
	request.ListParams
	ResourceID string `form:"resource_id" binding:"omitempty,uuid"`
	UserID     string `form:"user_id" binding:"omitempty,uuid"`
	Status     string `form:"status" binding:"omitempty,oneof=pending confirmed cancelled completed"`
	DateFrom   string `form:"date_from"`
	DateTo     string `form:"date_to"`
}

type ConfirmReservationRequest struct {
	PaymentRef string `json:"payment_ref" binding:"required,max=128"`
	Amount     int64  `json:"amount" binding:"required,min=1"`
}

type CancelReservationRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type PaymentResponse struct {
	ID             string     `json:"id"`
	TransactionRef string     `json:"transaction_ref"`
	Amount         int64      `json:"amount"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	RefundedAt     *time.Time `json:"refunded_at"`
}

type ReservationResponse struct {
	ReservationID string           `json:"reservation_id"`
	ResourceID    string           `json:"resource_id"`
	UserID        string           `json:"user_id"`
	Date          string           `json:"date"`
	Start         timeslot.Clock   `json:"start"`
	End           timeslot.Clock   `json:"end"`
	Occupancy     int              `json:"occupancy"`
	TotalPrice    int64            `json:"total_price"`
	Status        string           `json:"status"`
	CancelReason  *string          `json:"cancel_reason"`
	Payment       *PaymentResponse `json:"payment"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func NewReservationResponse(r *reservation.Reservation) ReservationResponse {
	resp := ReservationResponse{
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		UserID:        r.UserID,
		Date:          r.Date.Format(timeslot.DateLayout),
		Start:         r.Window.Start,
		End:           r.Window.End,
		Occupancy:     r.Occupancy,
		TotalPrice:    r.TotalPrice,
		Status:        string(r.Status),
		CancelReason:  r.CancelReason,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if p := r.Payment; p != nil {
		resp.Payment = &PaymentResponse{
			ID:             p.ID,
			TransactionRef: p.TransactionRef,
			Amount:         p.Amount,
			Status:         string(p.Status),
			CreatedAt:      p.CreatedAt,
			RefundedAt:     p.RefundedAt,
		}
	}
	return resp
}

type CancelResponse struct {
	Status       string              `json:"status"`
	RefundIssued bool                `json:"refund_issued"`
	Reservation  ReservationResponse `json:"reservation"`
}

// RefundNotRecordedResponse tells the caller the money moved even though the
// reservation still reads as confirmed.
type RefundNotRecordedResponse struct {
	Error        string `json:"error"`
	Status       string `json:"status"`
	RefundIssued bool   `json:"refund_issued"`
}
