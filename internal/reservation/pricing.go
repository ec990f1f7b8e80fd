package reservation

import (
	"math"

	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/timeslot"
)

// TotalPrice is whole hours times the hourly price, in minor currency units.
func TotalPrice(w timeslot.Window, pricePerHour int64) (int64, error) {
	if err := w.Validate(); err != nil {
		return 0, ErrInvalidWindow
	}
	if !w.IsWholeHours() {
		return 0, ErrNotWholeHour
	}
	if pricePerHour <= 0 {
		return 0, ErrInvalidPrice
	}
	hours := w.Hours()
	if pricePerHour > math.MaxInt64/hours {
		return 0, ErrInvalidPrice
	}
	return hours * pricePerHour, nil
}
