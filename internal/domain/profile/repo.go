package profile

import (
	"context"
	"errors"
)

var (
	// ErrNotFound covers zero rows, several rows, and store failures on a
	// single profile lookup.
	ErrNotFound = errors.New("profile not found")
	// ErrUpstreamUnavailable is returned when a search cannot reach the store.
	ErrUpstreamUnavailable = errors.New("profile store unavailable")
)

// profileColumns is the projection every store reads.
var profileColumns = []string{"id", "name", "role"}

type Repository interface {
	// GetByID returns the only profile with the given id. Zero or several
	// matches yield an error wrapping ErrNotFound.
	GetByID(ctx context.Context, id string) (*Profile, error)
	// ListByRole returns every profile with the given role whose name
	// contains nameQuery, ignoring case. An empty nameQuery matches all.
	ListByRole(ctx context.Context, role, nameQuery string) ([]*Profile, error)
}
