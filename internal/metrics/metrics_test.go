package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(reservationConflicts)
	IncConflict()
	assert.Equal(t, before+1, testutil.ToFloat64(reservationConflicts))

	IncTransition("pending", "confirmed")
	assert.Equal(t, float64(1), testutil.ToFloat64(statusTransitions.WithLabelValues("pending", "confirmed")))

	beforeExpired := testutil.ToFloat64(expiredPending)
	AddExpired(3)
	assert.Equal(t, beforeExpired+3, testutil.ToFloat64(expiredPending))
}
