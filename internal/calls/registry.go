package calls

import (
	"context"
	"errors"
	"fmt"

	"telephone-billing/internal/apperr"
	"telephone-billing/internal/phone"
)

var (
	ErrEqualEndpoints = errors.New("calls: source equals destination")
	ErrDuplicateID    = errors.New("calls: duplicate call id")
	ErrInvalidID      = errors.New("calls: invalid call id")
)

// Repository abstracts call persistence.
// Implementations may be a plain store or a transaction scope.
type Repository interface {
	GetCall(ctx context.Context, id int64) (Call, bool, error)
	InsertCall(ctx context.Context, c Call) error
}

// Registry owns Call creation and lookup.
type Registry struct {
	repo Repository
}

func NewRegistry(repo Repository) *Registry { return &Registry{repo: repo} }

// WithRepository returns a registry bound to repo, typically an open transaction.
func (r *Registry) WithRepository(repo Repository) *Registry {
	return &Registry{repo: repo}
}

// Create validates and persists a new call.
//
// Number format and equal endpoints are reported together, then duplicate id.
func (r *Registry) Create(ctx context.Context, id int64, source, destination string) (Call, error) {
	if id <= 0 {
		return Call{}, apperr.New(ErrInvalidID, "call_id", "Ensure this value is greater than or equal to 1.")
	}
	var equal error
	if source == destination {
		equal = apperr.New(ErrEqualEndpoints, "", "Source and Destination cannot be equal")
	}
	if err := errors.Join(
		phone.ValidateField("source", source),
		phone.ValidateField("destination", destination),
		equal,
	); err != nil {
		return Call{}, err
	}

	_, exists, err := r.repo.GetCall(ctx, id)
	if err != nil {
		return Call{}, fmt.Errorf("calls: lookup %d: %w", id, err)
	}
	if exists {
		return Call{}, DuplicateIDError()
	}

	c := Call{ID: id, Source: source, Destination: destination}
	if err := r.repo.InsertCall(ctx, c); err != nil {
		return Call{}, err
	}
	return c, nil
}

func (r *Registry) Get(ctx context.Context, id int64) (Call, bool, error) {
	return r.repo.GetCall(ctx, id)
}

// DuplicateIDError is returned when a call id is reused. Stores also return it
// when a concurrent insert wins the race on the primary key.
func DuplicateIDError() error {
	return apperr.New(ErrDuplicateID, "call_id", "call with this call_id already exists.")
}
