package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/ehr/profileapi/internal/platform/supabase"
)

// Selector runs PostgREST reads. *supabase.Client implements it.
type Selector interface {
	Select(ctx context.Context, table string, q supabase.Query, out any) error
}

type profileRepoREST struct {
	client Selector
	table  string
}

// NewRESTRepo reads profiles through the Supabase REST API.
func NewRESTRepo(client Selector, table string) Repository {
	return &profileRepoREST{client: client, table: table}
}

func (r *profileRepoREST) GetByID(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	err := r.client.Select(ctx, r.table, supabase.Query{
		Columns: profileColumns,
		Filters: []supabase.Filter{supabase.Eq("id", id)},
		Single:  true,
	}, &p)
	if errors.Is(err, supabase.ErrNotSingle) {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("profile get by id: %w", err)
	}
	return &p, nil
}

func (r *profileRepoREST) ListByRole(ctx context.Context, role, nameQuery string) ([]*Profile, error) {
	q := supabase.Query{
		Columns: profileColumns,
		Filters: []supabase.Filter{supabase.Eq("role", role)},
		OrderBy: "name",
	}
	if nameQuery != "" {
		q.Filters = append(q.Filters, supabase.ILike("name", nameQuery))
	}

	var out []*Profile
	if err := r.client.Select(ctx, r.table, q, &out); err != nil {
		return nil, fmt.Errorf("profile list by role: %w", err)
	}
	if out == nil {
		out = []*Profile{}
	}
	return out, nil
}
