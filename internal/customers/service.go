package customers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aquaflow/portal/internal/shared"
)

// RepositoryPort describes the storage used by Service.
type RepositoryPort interface {
	FindByPhone(ctx context.Context, phone string) (Customer, error)
	FindByEmail(ctx context.Context, email string) (Customer, error)
	Get(ctx context.Context, id uuid.UUID) (Customer, error)
	Insert(ctx context.Context, c Customer) error
	UpdateContact(ctx context.Context, c Customer) error
	List(ctx context.Context, filter ListFilter) ([]Customer, error)
}

// Service resolves and registers customers.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Resolve finds the customer by phone, then by email, and creates one when neither
// matches. A reused customer gets its name and email refreshed when new values differ,
// and picks up the phone when it had none.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (Customer, error) {
	name := strings.TrimSpace(in.Name)
	phone := NormalizePhone(in.Phone)
	email := NormalizeEmail(in.Email)
	if name == "" && phone == "" && email == "" {
		return Customer{}, fmt.Errorf("%w: customer needs a name, phone or email", shared.ErrValidation)
	}

	found, err := s.lookup(ctx, phone, email)
	if err == nil {
		return s.refresh(ctx, found, name, phone, email)
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return Customer{}, err
	}

	created, err := s.insert(ctx, name, phone, email, "")
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, shared.ErrDuplicateCustomer) {
		return Customer{}, err
	}
	// Lost a race with a concurrent insert of the same contact.
	if found, lookupErr := s.lookup(ctx, phone, email); lookupErr == nil {
		return found, nil
	}
	return Customer{}, err
}

// Create registers a customer explicitly. Existing phone or email yields ErrDuplicateCustomer.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (Customer, error) {
	if actor.Anonymous() {
		return Customer{}, shared.ErrUnauthorized
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Customer{}, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	return s.insert(ctx, name, NormalizePhone(in.Phone), NormalizeEmail(in.Email), strings.TrimSpace(in.Notes))
}

// Get returns one customer.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Customer, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of customers.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Customer, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.List(ctx, filter)
}

func (s *Service) lookup(ctx context.Context, phone, email string) (Customer, error) {
	if phone != "" {
		c, err := s.repo.FindByPhone(ctx, phone)
		if !errors.Is(err, shared.ErrNotFound) {
			return c, err
		}
	}
	if email != "" {
		return s.repo.FindByEmail(ctx, email)
	}
	return Customer{}, shared.ErrNotFound
}

func (s *Service) insert(ctx context.Context, name, phone, email, notes string) (Customer, error) {
	if name == "" {
		name = firstNonEmpty(phone, email)
	}
	now := s.now().UTC()
	c := Customer{
		ID:        uuid.New(),
		Name:      name,
		Phone:     optional(phone),
		Email:     optional(email),
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return Customer{}, err
	}
	return c, nil
}

func (s *Service) refresh(ctx context.Context, c Customer, name, phone, email string) (Customer, error) {
	updated := c
	if name != "" && name != c.Name {
		updated.Name = name
	}
	if email != "" && email != NormalizeEmail(deref(c.Email)) {
		updated.Email = optional(email)
	}
	claimsPhone := phone != "" && c.Phone == nil
	if claimsPhone {
		updated.Phone = optional(phone)
	}
	if updated.Name == c.Name && deref(updated.Email) == deref(c.Email) && !claimsPhone {
		return c, nil
	}
	updated.UpdatedAt = s.now().UTC()
	err := s.repo.UpdateContact(ctx, updated)
	if err == nil {
		return updated, nil
	}
	if claimsPhone && errors.Is(err, shared.ErrDuplicateCustomer) {
		// Another row took the phone since the lookup; the phone owner wins.
		owner, lookupErr := s.repo.FindByPhone(ctx, phone)
		if lookupErr == nil {
			return owner, nil
		}
		if !errors.Is(lookupErr, shared.ErrNotFound) {
			return Customer{}, lookupErr
		}
	}
	// The customer is still usable with its stored details.
	s.logger.Warn("customer refresh", slog.String("customer", c.ID.String()), slog.Any("error", err))
	return c, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
