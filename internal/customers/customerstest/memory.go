// Package customerstest provides an in-memory customers repository for tests.
package customerstest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aquaflow/portal/internal/customers"
	"github.com/aquaflow/portal/internal/shared"
)

// Store enforces the phone and email uniqueness of the customers table.
type Store struct {
	mu        sync.Mutex
	customers map[uuid.UUID]customers.Customer
	// BeforeInsert runs outside the lock before each insert.
	BeforeInsert func()
	// BeforeUpdate runs outside the lock before each contact update.
	BeforeUpdate func()
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{customers: make(map[uuid.UUID]customers.Customer)}
}

// Len returns the number of stored customers.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.customers)
}

func (s *Store) find(match func(customers.Customer) bool) (customers.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if match(c) {
			return c, nil
		}
	}
	return customers.Customer{}, shared.ErrNotFound
}

func (s *Store) FindByPhone(ctx context.Context, phone string) (customers.Customer, error) {
	return s.find(func(c customers.Customer) bool { return c.Phone != nil && *c.Phone == phone })
}

func (s *Store) FindByEmail(ctx context.Context, email string) (customers.Customer, error) {
	return s.find(func(c customers.Customer) bool { return c.Email != nil && strings.EqualFold(*c.Email, email) })
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (customers.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return customers.Customer{}, fmt.Errorf("%w: customer %s", shared.ErrNotFound, id)
	}
	return c, nil
}

func (s *Store) Insert(ctx context.Context, c customers.Customer) error {
	if s.BeforeInsert != nil {
		s.BeforeInsert()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conflict(c); err != nil {
		return err
	}
	s.customers[c.ID] = c
	return nil
}

func (s *Store) UpdateContact(ctx context.Context, c customers.Customer) error {
	if s.BeforeUpdate != nil {
		s.BeforeUpdate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.customers[c.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if err := s.conflict(c); err != nil {
		return err
	}
	stored.Name = c.Name
	stored.Phone = c.Phone
	stored.Email = c.Email
	stored.UpdatedAt = c.UpdatedAt
	s.customers[c.ID] = stored
	return nil
}

func (s *Store) List(ctx context.Context, filter customers.ListFilter) ([]customers.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []customers.Customer
	needle := strings.ToLower(filter.Search)
	for _, c := range s.customers {
		if needle == "" || strings.Contains(strings.ToLower(c.Name), needle) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b customers.Customer) int { return strings.Compare(a.Name, b.Name) })
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) conflict(c customers.Customer) error {
	for id, other := range s.customers {
		if id == c.ID {
			continue
		}
		if c.Phone != nil && other.Phone != nil && *c.Phone == *other.Phone {
			return fmt.Errorf("%w: customers_phone_key", shared.ErrDuplicateCustomer)
		}
		if c.Email != nil && other.Email != nil && strings.EqualFold(*c.Email, *other.Email) {
			return fmt.Errorf("%w: customers_email_key", shared.ErrDuplicateCustomer)
		}
	}
	return nil
}
