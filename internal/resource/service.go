package resource

import (
	"context"
	"strings"
)

type CreateRequest struct {
	Name         string
	Description  string
	PricePerHour int64
	MaxOccupancy int
	Schedule     []OpenHours
}

type UpdateRequest struct {
	Name         *string
	Description  *string
	PricePerHour *int64
	MaxOccupancy *int
	Schedule     []OpenHours // nil leaves the schedule unchanged
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Resource, error)
	GetByID(ctx context.Context, id string) (*Resource, error)
	List(ctx context.Context, filter Filter) ([]*Resource, int, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Resource, error)
	Deactivate(ctx context.Context, id string) (*Resource, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Resource, error) {
	res := &Resource{
		Name:         strings.TrimSpace(req.Name),
		Description:  strings.TrimSpace(req.Description),
		PricePerHour: req.PricePerHour,
		MaxOccupancy: req.MaxOccupancy,
		Schedule:     req.Schedule,
		IsActive:     true,
	}
	if err := validate(res); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Resource, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Resource, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) Update(ctx context.Context, id string, req UpdateRequest) (*Resource, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		res.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		res.Description = strings.TrimSpace(*req.Description)
	}
	if req.PricePerHour != nil {
		res.PricePerHour = *req.PricePerHour
	}
	if req.MaxOccupancy != nil {
		res.MaxOccupancy = *req.MaxOccupancy
	}
	if req.Schedule != nil {
		res.Schedule = req.Schedule
	}

	if err := validate(res); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *service) Deactivate(ctx context.Context, id string) (*Resource, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !res.IsActive {
		return nil, ErrAlreadyDeactivated
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return nil, err
	}
	res.IsActive = false
	return res, nil
}

func validate(res *Resource) error {
	if res.Name == "" {
		return ErrEmptyName
	}
	if res.PricePerHour <= 0 {
		return ErrInvalidPrice
	}
	if res.MaxOccupancy <= 0 {
		return ErrInvalidOccupancy
	}
	return validateSchedule(res.Schedule)
}
