package http

import (
	"time"

	"github.com/nekogravitycat/space-reservation-backend/internal/pkg/request"
	"github.com/nekogravitycat/space-reservation-backend/internal/resource"
)

// ListResourcesRequest defines query parameters for listing resources.
type ListResourcesRequest struct {
	request.ListParams
	Name     string `form:"name"`
	IsActive *bool  `form:"is_active"`
}

type ResourceResponse struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	PricePerHour int64                `json:"price_per_hour"`
	MaxOccupancy int                  `json:"max_occupancy"`
	Schedule     []resource.OpenHours `json:"schedule"`
	IsActive     bool                 `json:"is_active"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func NewResponse(r *resource.Resource) ResourceResponse {
	schedule := r.Schedule
	if schedule == nil {
		schedule = []resource.OpenHours{}
	}
	return ResourceResponse{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		PricePerHour: r.PricePerHour,
		MaxOccupancy: r.MaxOccupancy,
		Schedule:     schedule,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type CreateRequest struct {
	Name         string               `json:"name" binding:"required"`
	Description  string               `json:"description"`
	PricePerHour int64                `json:"price_per_hour" binding:"required,gt=0"`
	MaxOccupancy int                  `json:"max_occupancy" binding:"required,gt=0"`
	Schedule     []resource.OpenHours `json:"schedule"`
}

type UpdateRequest struct {
	Name         *string              `json:"name"`
	Description  *string              `json:"description"`
	PricePerHour *int64               `json:"price_per_hour" binding:"omitempty,gt=0"`
	MaxOccupancy *int                 `json:"max_occupancy" binding:"omitempty,gt=0"`
	Schedule     []resource.OpenHours `json:"schedule"`
}
