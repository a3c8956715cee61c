package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type profileRepoPG struct {
	db    querier
	table string
}

// NewPGRepo reads profiles straight from PostgreSQL. table must already be a
// validated identifier; it is quoted again here.
func NewPGRepo(pool *pgxpool.Pool, table string) Repository {
	return &profileRepoPG{db: pool, table: pgx.Identifier{table}.Sanitize()}
}

const profileSelect = `SELECT id, COALESCE(name, '') AS name, role FROM `

func (r *profileRepoPG) GetByID(ctx context.Context, id string) (*Profile, error) {
	// LIMIT 2 is enough to tell one match from several.
	rows, err := r.db.Query(ctx, profileSelect+r.table+` WHERE id = $1 LIMIT 2`, id)
	if err != nil {
		return nil, fmt.Errorf("profile get by id: %w", err)
	}
	profiles, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[Profile])
	if err != nil {
		return nil, fmt.Errorf("profile get by id: %w", err)
	}
	if len(profiles) != 1 {
		return nil, fmt.Errorf("%w: %d rows for id", ErrNotFound, len(profiles))
	}
	return profiles[0], nil
}

func (r *profileRepoPG) ListByRole(ctx context.Context, role, nameQuery string) ([]*Profile, error) {
	sql := profileSelect + r.table + ` WHERE role = $1`
	args := []any{role}
	if nameQuery != "" {
		sql += ` AND name ILIKE $2`
		args = append(args, "%"+escapeLike(nameQuery)+"%")
	}
	sql += ` ORDER BY name`

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("profile list by role: %w", err)
	}
	profiles, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[Profile])
	if err != nil {
		return nil, fmt.Errorf("profile list by role: %w", err)
	}
	if profiles == nil {
		profiles = []*Profile{}
	}
	return profiles, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
