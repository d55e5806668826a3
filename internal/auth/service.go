package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aquaflow/portal/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Profile, error) {
	p, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Profile{}, shared.ErrInvalidCredentials
		}
		return Profile{}, err
	}
	if !p.IsActive || !p.Role.Valid() {
		return Profile{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return Profile{}, shared.ErrInvalidCredentials
	}
	return p, nil
}

// LookupActor resolves the current role of an active profile. Missing or inactive
// profiles are unauthorized.
func (s *Service) LookupActor(ctx context.Context, profileID uuid.UUID) (shared.Actor, error) {
	p, err := s.Profile(ctx, profileID)
	if err != nil {
		return shared.Actor{}, err
	}
	return p.Actor(), nil
}

// Profile returns an active profile.
func (s *Service) Profile(ctx context.Context, profileID uuid.UUID) (Profile, error) {
	p, err := s.repo.FindByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Profile{}, shared.ErrUnauthorized
		}
		return Profile{}, err
	}
	if !p.IsActive || !p.Role.Valid() {
		return Profile{}, fmt.Errorf("%w: profile is inactive", shared.ErrUnauthorized)
	}
	return p, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, profileID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, profileID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// HashPassword returns the bcrypt hash stored for new profiles.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hashed), nil
}
