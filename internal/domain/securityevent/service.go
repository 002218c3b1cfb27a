package securityevent

import (
	"context"
	"fmt"

	"crmflow/internal/core/apperror"
)

// Service exposes read access to the event log. There is no update or delete.
type Service struct {
	repo Repository
}

// NewService creates a query service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns events matching filter together with the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Event, int, error) {
	if filter.Severity != "" && !filter.Severity.IsValid() {
		return nil, 0, apperror.NewFieldValidation("severity", "unknown severity")
	}
	filter.Normalize()

	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list security events: %w", err)
	}
	return events, total, nil
}
