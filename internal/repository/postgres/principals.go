package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/guyyagil/CineVerse/internal/core/port"
)

// PrincipalRepository answers principal existence checks against the catalog
// users table. The session core never writes to it.
type PrincipalRepository struct {
	pool    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPrincipalRepository constructs a read-only principal directory.
func NewPrincipalRepository(pool pgExecutor) *PrincipalRepository {
	return &PrincipalRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// PrincipalExists reports whether the principal is present and not soft-deleted.
func (r *PrincipalRepository) PrincipalExists(ctx context.Context, principalID string) (bool, error) {
	stmt, args, err := r.builder.
		Select("1").
		From("catalog.users").
		Where(squirrel.Eq{"id": principalID}).
		Where("deleted_at IS NULL").
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build principal exists sql: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("query principal exists: %w", err)
	}

	return exists, nil
}

var _ port.PrincipalDirectory = (*PrincipalRepository)(nil)
