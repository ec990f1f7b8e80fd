package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStampsEnvelope(t *testing.T) {
	e := New(ReservationConfirmed, map[string]string{"reservation_id": "abc"})

	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationConfirmed, e.Type)
	assert.False(t, e.OccurredAt.IsZero())

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"reservation.confirmed"`)
	assert.Contains(t, string(raw), `"reservation_id":"abc"`)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), New(ReservationCreated, nil)))
}
