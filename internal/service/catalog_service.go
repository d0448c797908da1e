package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"schedfy/internal/domain"
	"schedfy/internal/models"

	"github.com/rs/zerolog"
)

// CatalogService manages the entity's bookable services and working hours.
type CatalogService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewCatalogService(repo domain.Repository, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: logger}
}

func (s *CatalogService) ListServices(ctx context.Context, entityID int64) ([]models.Service, error) {
	return s.repo.GetActiveServices(ctx, entityID)
}

func (s *CatalogService) GetService(ctx context.Context, id int64) (*models.Service, error) {
	return s.repo.GetServiceByID(ctx, id)
}

func (s *CatalogService) CreateService(ctx context.Context, svc *models.Service) error {
	if svc.Name == "" {
		return errors.New("service name is required")
	}
	if svc.DurationMinutes <= 0 {
		return errors.New("service duration must be positive")
	}
	return s.repo.CreateService(ctx, svc)
}

func (s *CatalogService) UpdateService(ctx context.Context, svc *models.Service) error {
	if svc.DurationMinutes <= 0 {
		return errors.New("service duration must be positive")
	}
	return s.repo.UpdateService(ctx, svc)
}

func (s *CatalogService) DeactivateService(ctx context.Context, id int64) error {
	return s.repo.DeactivateService(ctx, id)
}

func (s *CatalogService) GetWorkingHours(ctx context.Context, entityID int64) (*models.WorkingHours, error) {
	return s.repo.GetWorkingHours(ctx, entityID)
}

// SetWorkingHours validates and stores the entity schedule. Overrides with
// invalid windows are rejected here rather than silently treated as closed.
func (s *CatalogService) SetWorkingHours(ctx context.Context, hours *models.WorkingHours) error {
	if !hours.Window.Valid() {
		return errors.New("default operating window is invalid")
	}
	if hours.Timezone != "" {
		if _, err := time.LoadLocation(hours.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", hours.Timezone, err)
		}
	}
	return s.repo.UpsertWorkingHours(ctx, hours)
}
