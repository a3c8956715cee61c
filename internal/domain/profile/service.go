package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ehr/profileapi/internal/platform/auth"
	"github.com/ehr/profileapi/internal/platform/telemetry"
)

type Service struct {
	repo    Repository
	backend string
	timeout time.Duration
}

// NewService wraps repo. backend labels store metrics; timeout bounds every
// store call.
func NewService(repo Repository, backend string, timeout time.Duration) *Service {
	return &Service{repo: repo, backend: backend, timeout: timeout}
}

// GetForSubject returns the caller's own profile. The lookup key is always
// the authenticated id; any failure is reported as ErrNotFound.
func (s *Service) GetForSubject(ctx context.Context, subject *auth.Subject) (*UserProfile, error) {
	if subject == nil || subject.UserID == "" {
		return nil, fmt.Errorf("%w: no subject", ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	p, err := s.repo.GetByID(ctx, subject.UserID)
	telemetry.ObserveCall(s.backend, "get_by_id", start, err)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if p.ID != subject.UserID {
		return nil, fmt.Errorf("%w: store returned id %q", ErrNotFound, p.ID)
	}
	return NewUserProfile(p, subject.Email), nil
}

// SearchDoctors lists doctors whose name contains query. An empty query
// lists every doctor.
func (s *Service) SearchDoctors(ctx context.Context, query string) ([]*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	rows, err := s.repo.ListByRole(ctx, RoleDoctor, query)
	telemetry.ObserveCall(s.backend, "list_by_role", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	doctors := make([]*Profile, 0, len(rows))
	for _, p := range rows {
		if p != nil && p.Role == RoleDoctor {
			doctors = append(doctors, p)
		}
	}
	return doctors, nil
}
