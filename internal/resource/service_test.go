package resource_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/timeslot"
	"github.com/nekogravitycat/space-reservation-backend/internal/resource"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[string]*resource.Resource
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]*resource.Resource{}}
}

func (r *memRepo) Create(_ context.Context, res *resource.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res.ID = fmt.Sprintf("res-%d", len(r.rows)+1)
	res.CreatedAt = time.Now()
	res.UpdatedAt = res.CreatedAt
	cp := *res
	r.rows[res.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*resource.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.rows[id]
	if !ok {
		return nil, resource.ErrNotFound
	}
	cp := *res
	return &cp, nil
}

func (r *memRepo) List(_ context.Context, _ resource.Filter) ([]*resource.Resource, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*resource.Resource
	for _, res := range r.rows {
		out = append(out, res)
	}
	return out, len(out), nil
}

func (r *memRepo) Update(_ context.Context, res *resource.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[res.ID]; !ok {
		return resource.ErrNotFound
	}
	cp := *res
	r.rows[res.ID] = &cp
	return nil
}

func (r *memRepo) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.rows[id]
	if !ok {
		return resource.ErrNotFound
	}
	res.IsActive = false
	return nil
}

func hours(day time.Weekday, open, close string) resource.OpenHours {
	return resource.OpenHours{DayOfWeek: day, Open: timeslot.MustClock(open), Close: timeslot.MustClock(close)}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := resource.NewService(newMemRepo())

	valid := resource.CreateRequest{
		Name:         "Studio A",
		PricePerHour: 10000,
		MaxOccupancy: 8,
		Schedule:     []resource.OpenHours{hours(time.Monday, "09:00", "18:00")},
	}

	tests := []struct {
		name    string
		mutate  func(r *resource.CreateRequest)
		wantErr error
	}{
		{"valid", func(r *resource.CreateRequest) {}, nil},
		{"blank name", func(r *resource.CreateRequest) { r.Name = "   " }, resource.ErrEmptyName},
		{"zero price", func(r *resource.CreateRequest) { r.PricePerHour = 0 }, resource.ErrInvalidPrice},
		{"zero occupancy", func(r *resource.CreateRequest) { r.MaxOccupancy = 0 }, resource.ErrInvalidOccupancy},
		{"close before open", func(r *resource.CreateRequest) {
			r.Schedule = []resource.OpenHours{hours(time.Monday, "18:00", "09:00")}
		}, resource.ErrInvalidSchedule},
		{"half hour", func(r *resource.CreateRequest) {
			r.Schedule = []resource.OpenHours{hours(time.Monday, "09:30", "18:00")}
		}, resource.ErrInvalidSchedule},
		{"bad weekday", func(r *resource.CreateRequest) {
			r.Schedule = []resource.OpenHours{hours(time.Weekday(7), "09:00", "18:00")}
		}, resource.ErrInvalidSchedule},
		{"overlapping intervals", func(r *resource.CreateRequest) {
			r.Schedule = []resource.OpenHours{
				hours(time.Monday, "09:00", "12:00"),
				hours(time.Monday, "11:00", "14:00"),
			}
		}, resource.ErrInvalidSchedule},
		{"split day", func(r *resource.CreateRequest) {
			r.Schedule = []resource.OpenHours{
				hours(time.Monday, "09:00", "12:00"),
				hours(time.Monday, "13:00", "24:00"),
			}
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			res, err := svc.Create(ctx, req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, res.IsActive)
			assert.NotEmpty(t, res.ID)
		})
	}
}

func TestUpdateAndDeactivate(t *testing.T) {
	ctx := context.Background()
	svc := resource.NewService(newMemRepo())

	res, err := svc.Create(ctx, resource.CreateRequest{Name: "Room", PricePerHour: 500, MaxOccupancy: 2})
	require.NoError(t, err)

	price := int64(750)
	updated, err := svc.Update(ctx, res.ID, resource.UpdateRequest{PricePerHour: &price})
	require.NoError(t, err)
	assert.Equal(t, int64(750), updated.PricePerHour)
	assert.Equal(t, "Room", updated.Name)

	bad := int64(-1)
	_, err = svc.Update(ctx, res.ID, resource.UpdateRequest{PricePerHour: &bad})
	assert.ErrorIs(t, err, resource.ErrInvalidPrice)

	deactivated, err := svc.Deactivate(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	_, err = svc.Deactivate(ctx, res.ID)
	assert.ErrorIs(t, err, resource.ErrAlreadyDeactivated)

	_, err = svc.Deactivate(ctx, "missing")
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestHoursOn(t *testing.T) {
	res := &resource.Resource{Schedule: []resource.OpenHours{
		hours(time.Monday, "09:00", "12:00"),
		hours(time.Tuesday, "10:00", "20:00"),
		hours(time.Monday, "13:00", "17:00"),
	}}

	monday := res.HoursOn(time.Monday)
	require.Len(t, monday, 2)
	assert.Equal(t, timeslot.MustClock("13:00"), monday[1].Open)
	assert.Empty(t, res.HoursOn(time.Sunday))
}

func TestOpenHoursJSON(t *testing.T) {
	var schedule []resource.OpenHours
	require.NoError(t, json.Unmarshal([]byte(`[{"day_of_week":1,"open":"09:00","close":"18:00"}]`), &schedule))
	require.Len(t, schedule, 1)
	assert.Equal(t, time.Monday, schedule[0].DayOfWeek)
	assert.Equal(t, timeslot.MustClock("18:00"), schedule[0].Close)

	b, err := json.Marshal(schedule)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"day_of_week":1,"open":"09:00","close":"18:00"}]`, string(b))
}
