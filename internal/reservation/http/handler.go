package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nekogravitycat/space-reservation-backend/internal/auth"
	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/request"
	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/response"
	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/timeslot"
	"github.com/nekogravitycat/space-reservation-backend/internal/reservation"
)

type Handler struct {
	service reservation.Service
}

func NewHandler(service reservation.Service) *Handler {
	return &Handler{service: service}
}

func actor(c *gin.Context) reservation.Actor {
	return reservation.Actor{
		UserID:  auth.GetUserID(c),
		IsAdmin: auth.IsSystemAdmin(c),
	}
}

func parseDate(s string) (time.Time, error) {
	return timeslot.ParseDate(s, time.UTC)
}

// CheckAvailability answers whether a window on a resource is free.
func (h *Handler) CheckAvailability(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	var req AvailabilityRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "invalid query parameters", err)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		response.BadRequest(c, "invalid date, expected YYYY-MM-DD", err)
		return
	}
	w, err := timeslot.ParseWindow(req.Start, req.End)
	if err != nil {
		response.BadRequest(c, "invalid time window", err)
		return
	}

	available, err := h.service.CheckAvailability(c.Request.Context(), uri.ID, date, w)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, AvailabilityResponse{
		ResourceID: uri.ID,
		Date:       req.Date,
		Start:      w.Start,
		End:        w.End,
		Available:  available,
	})
}

// DaySlots returns the hourly slot grid of a resource for one date.
func (h *Handler) DaySlots(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	var req SlotsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "invalid query parameters", err)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		response.BadRequest(c, "invalid date, expected YYYY-MM-DD", err)
		return
	}

	slots, err := h.service.DaySlots(c.Request.Context(), uri.ID, date)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]SlotResponse, len(slots))
	for i, s := range slots {
		items[i] = SlotResponse{Start: s.Window.Start, End: s.Window.End, Available: s.Available}
	}

	c.JSON(http.StatusOK, SlotsResponse{ResourceID: uri.ID, Date: req.Date, Slots: items})
}

// Create claims a window as a pending reservation for the caller.
func (h *Handler) Create(c *gin.Context) {
	var body CreateReservationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body", err)
		return
	}

	date, err := parseDate(body.Date)
	if err != nil {
		response.BadRequest(c, "invalid date, expected YYYY-MM-DD", err)
		return
	}
	w, err := timeslot.ParseWindow(body.Start, body.End)
	if err != nil {
		response.BadRequest(c, "invalid time window", err)
		return
	}

	r, err := h.service.Create(c.Request.Context(), reservation.CreateRequest{
		UserID:        auth.GetUserID(c),
		ResourceID:    body.ResourceID,
		Date:          date,
		Window:        w,
		Occupancy:     body.Occupancy,
		ExpectedPrice: body.ExpectedPrice,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewReservationResponse(r))
}

// List returns the caller's reservations; system admins may see everyone's.
func (h *Handler) List(c *gin.Context) {
	var req ListReservationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "invalid query parameters", err)
		return
	}

	a := actor(c)
	filter := reservation.Filter{
		UserID:     a.UserID,
		ResourceID: req.ResourceID,
		Status:     reservation.Status(req.Status),
		Page:       req.Page,
		PageSize:   req.PageSize,
	}
	if a.IsAdmin {
		filter.UserID = req.UserID
	}

	if req.DateFrom != "" {
		from, err := parseDate(req.DateFrom)
		if err != nil {
			response.BadRequest(c, "invalid date_from, expected YYYY-MM-DD", err)
			return
		}
		filter.DateFrom = &from
	}
	if req.DateTo != "" {
		to, err := parseDate(req.DateTo)
		if err != nil {
			response.BadRequest(c, "invalid date_to, expected YYYY-MM-DD", err)
			return
		}
		filter.DateTo = &to
	}

	items, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := make([]ReservationResponse, len(items))
	for i, r := range items {
		resp[i] = NewReservationResponse(r)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(resp, req.Page, req.PageSize, total))
}

func (h *Handler) Get(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	r, err := h.service.GetByID(c.Request.Context(), uri.ID, actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewReservationResponse(r))
}

// Confirm verifies the payment and confirms the reservation. On any payment
// failure the reservation is cancelled and 402 is returned.
func (h *Handler) Confirm(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	var body ConfirmReservationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body", err)
		return
	}

	r, err := h.service.Confirm(c.Request.Context(), uri.ID, reservation.ConfirmRequest{
		Actor:      actor(c),
		PaymentRef: body.PaymentRef,
		Amount:     body.Amount,
	})
	if err != nil {
		if errors.Is(err, reservation.ErrPaymentVerification) {
			zerolog.Ctx(c.Request.Context()).Info().Err(err).Str("reservation_id", uri.ID).Msg("payment verification failed")
		}
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewReservationResponse(r))
}

// Cancel releases the reservation, refunding a captured payment first.
func (h *Handler) Cancel(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	var body CancelReservationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "invalid request body", err)
			return
		}
	}

	result, err := h.service.Cancel(c.Request.Context(), uri.ID, reservation.CancelRequest{
		Actor:  actor(c),
		Reason: body.Reason,
	})
	if err != nil {
		if errors.Is(err, reservation.ErrRefundNotRecorded) && result != nil {
			zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("reservation_id", uri.ID).Msg("refund issued but not recorded")
			c.JSON(http.StatusInternalServerError, RefundNotRecordedResponse{
				Error:        reservation.ErrRefundNotRecorded.Message,
				Status:       string(result.Reservation.Status),
				RefundIssued: result.RefundIssued,
			})
			return
		}
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, CancelResponse{
		Status:       string(result.Reservation.Status),
		RefundIssued: result.RefundIssued,
		Reservation:  NewReservationResponse(result.Reservation),
	})
}

// Complete marks a confirmed reservation completed.
// Access Control: System Admin only.
func (h *Handler) Complete(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	r, err := h.service.Complete(c.Request.Context(), uri.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewReservationResponse(r))
}
