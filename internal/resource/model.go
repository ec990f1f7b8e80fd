package resource

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/timeslot"
)

var (
	ErrNotFound           = apperror.New(http.StatusNotFound, "resource not found")
	ErrEmptyName          = apperror.New(http.StatusBadRequest, "name cannot be empty")
	ErrInvalidPrice       = apperror.New(http.StatusBadRequest, "price_per_hour must be positive")
	ErrInvalidOccupancy   = apperror.New(http.StatusBadRequest, "max_occupancy must be positive")
	ErrInvalidSchedule    = apperror.New(http.StatusBadRequest, "invalid schedule")
	ErrAlreadyDeactivated = apperror.New(http.StatusConflict, "resource already deactivated")
)

// OpenHours is one opening interval on a weekday (0 = Sunday).
type OpenHours struct {
	DayOfWeek time.Weekday   `json:"day_of_week"`
	Open      timeslot.Clock `json:"open"`
	Close     timeslot.Clock `json:"close"`
}

func (h OpenHours) Window() timeslot.Window {
	return timeslot.Window{Start: h.Open, End: h.Close}
}

func (h OpenHours) Validate() error {
	if h.DayOfWeek < time.Sunday || h.DayOfWeek > time.Saturday {
		return ErrInvalidSchedule
	}
	w := h.Window()
	if w.Validate() != nil || !w.IsWholeHours() {
		return ErrInvalidSchedule
	}
	return nil
}

// Resource is a bookable space.
type Resource struct {
	ID           string
	Name         string
	Description  string
	PricePerHour int64 // minor currency units
	MaxOccupancy int
	Schedule     []OpenHours
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HoursOn returns the opening intervals for the weekday, in schedule order.
func (r *Resource) HoursOn(day time.Weekday) []OpenHours {
	var out []OpenHours
	for _, h := range r.Schedule {
		if h.DayOfWeek == day {
			out = append(out, h)
		}
	}
	return out
}

// Filter defines parameters for listing resources.
type Filter struct {
	Name     string
	IsActive *bool
	Page     int
	PageSize int
}

func validateSchedule(schedule []OpenHours) error {
	for i, h := range schedule {
		if err := h.Validate(); err != nil {
			return err
		}
		for _, other := range schedule[:i] {
			if other.DayOfWeek == h.DayOfWeek && other.Window().Overlaps(h.Window()) {
				return ErrInvalidSchedule
			}
		}
	}
	return nil
}
