package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/guyyagil/CineVerse/internal/core/domain"
	"github.com/guyyagil/CineVerse/internal/core/port"
	"github.com/guyyagil/CineVerse/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgPool interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// FamilyRepository implements port.SessionStore on PostgreSQL. Advance runs
// inside a transaction that locks the family row, so concurrent advances on
// the same family serialize at the database while unrelated families proceed
// in parallel.
type FamilyRepository struct {
	pool    pgPool
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewFamilyRepository constructs a repository backed by the supplied pool.
func NewFamilyRepository(pool pgPool) *FamilyRepository {
	repo := &FamilyRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	repo.now = func() time.Time { return time.Now().UTC() }
	return repo
}

// WithClock overrides the repository clock for deterministic tests.
func (r *FamilyRepository) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// CreateFamily inserts a family row together with its generation-zero record.
func (r *FamilyRepository) CreateFamily(ctx context.Context, principalID string, record domain.RefreshTokenRecord) (*domain.TokenFamily, error) {
	now := r.now()
	family := domain.TokenFamily{
		ID:                uuid.NewString(),
		PrincipalID:       principalID,
		Status:            domain.FamilyStatusActive,
		CurrentGeneration: 0,
		CreatedAt:         now,
		LastSeen:          now,
	}
	record.FamilyID = family.ID
	record.Generation = 0

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create family: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	familySQL, familyArgs, err := r.builder.Insert("sessions.token_families").
		Columns("id", "principal_id", "status", "current_generation", "created_at", "last_seen").
		Values(family.ID, family.PrincipalID, string(family.Status), family.CurrentGeneration, family.CreatedAt, family.LastSeen).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert family sql: %w", err)
	}
	if _, err := tx.Exec(ctx, familySQL, familyArgs...); err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}

	if err := r.insertRecord(ctx, tx, record); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create family: %w", err)
	}

	return &family, nil
}

// GetFamily returns the family row by id.
func (r *FamilyRepository) GetFamily(ctx context.Context, familyID string) (*domain.TokenFamily, error) {
	stmt, args, err := r.builder.
		Select("id", "principal_id", "status", "current_generation", "created_at", "last_seen", "revoked_at", "revoke_reason").
		From("sessions.token_families").
		Where(squirrel.Eq{"id": familyID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select family sql: %w", err)
	}

	return scanFamily(r.pool.QueryRow(ctx, stmt, args...))
}

// GetLiveRecord returns the family's unconsumed, unexpired record.
func (r *FamilyRepository) GetLiveRecord(ctx context.Context, familyID string) (*domain.RefreshTokenRecord, error) {
	stmt, args, err := r.builder.
		Select("id", "family_id", "generation", "token_hash", "issued_at", "expires_at", "consumed_at", "replaced_by").
		From("sessions.refresh_tokens").
		Where(squirrel.Eq{"family_id": familyID}).
		Where("consumed_at IS NULL").
		Where(squirrel.Gt{"expires_at": r.now()}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select live record sql: %w", err)
	}

	return scanRecord(r.pool.QueryRow(ctx, stmt, args...))
}

// Advance performs the atomic check-live-and-replace. The family row is
// locked FOR UPDATE for the duration of the transaction, which totally orders
// concurrent refresh attempts within one family.
func (r *FamilyRepository) Advance(ctx context.Context, familyID, presentedHash string, next domain.RefreshTokenRecord) (*port.AdvanceResult, error) {
	now := r.now()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin advance: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	family, err := scanFamily(tx.QueryRow(ctx,
		`SELECT id, principal_id, status, current_generation, created_at, last_seen, revoked_at, revoke_reason
		   FROM sessions.token_families
		  WHERE id = $1
		    FOR UPDATE`, familyID))
	if err != nil {
		return nil, err
	}
	if !family.IsActive() {
		return nil, repository.ErrExpired
	}

	presented, err := scanRecord(tx.QueryRow(ctx,
		`SELECT id, family_id, generation, token_hash, issued_at, expires_at, consumed_at, replaced_by
		   FROM sessions.refresh_tokens
		  WHERE family_id = $1 AND token_hash = $2`, familyID, presentedHash))
	if err != nil {
		return nil, err
	}
	if presented.ConsumedAt != nil {
		return nil, repository.ErrStaleToken
	}
	if presented.IsExpired(now) {
		return nil, repository.ErrExpired
	}

	next.FamilyID = family.ID
	next.Generation = presented.Generation + 1

	ct, err := tx.Exec(ctx,
		`UPDATE sessions.refresh_tokens
		    SET consumed_at = $1, replaced_by = $2
		  WHERE id = $3 AND consumed_at IS NULL`, now, next.ID, presented.ID)
	if err != nil {
		return nil, fmt.Errorf("consume presented record: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, repository.ErrStaleToken
	}

	if err := r.insertRecord(ctx, tx, next); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions.token_families
		    SET current_generation = $1, last_seen = $2
		  WHERE id = $3`, next.Generation, now, family.ID); err != nil {
		return nil, fmt.Errorf("bump family generation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit advance: %w", err)
	}

	family.CurrentGeneration = next.Generation
	family.Touch(now)

	return &port.AdvanceResult{Family: *family, NewRecord: next}, nil
}

// RevokeFamily marks the family revoked and consumes every pending record.
// Idempotent; a second invocation reports zero revoked tokens.
func (r *FamilyRepository) RevokeFamily(ctx context.Context, familyID, reason string) (int, error) {
	now := r.now()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin revoke family: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`UPDATE sessions.token_families
		    SET status = 'revoked', revoked_at = COALESCE(revoked_at, $1), revoke_reason = COALESCE(revoke_reason, $2)
		  WHERE id = $3`, now, reason, familyID)
	if err != nil {
		return 0, fmt.Errorf("revoke family: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return 0, repository.ErrNotFound
	}

	var consumed int
	if err := tx.QueryRow(ctx,
		`WITH updated AS (
			UPDATE sessions.refresh_tokens
			   SET consumed_at = $1
			 WHERE family_id = $2
			   AND consumed_at IS NULL
			 RETURNING 1
		)
		SELECT count(*) FROM updated`, now, familyID).Scan(&consumed); err != nil {
		return 0, fmt.Errorf("consume pending records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit revoke family: %w", err)
	}

	return consumed, nil
}

// RevokeAllForPrincipal terminates every active family owned by the principal
// and returns the ids that transitioned to revoked.
func (r *FamilyRepository) RevokeAllForPrincipal(ctx context.Context, principalID, reason string) ([]string, error) {
	now := r.now()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin revoke principal families: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`WITH updated AS (
			UPDATE sessions.token_families
			   SET status = 'revoked', revoked_at = $1, revoke_reason = $2
			 WHERE principal_id = $3
			   AND revoked_at IS NULL
			 RETURNING id
		)
		SELECT id FROM updated`, now, reason, principalID)
	if err != nil {
		return nil, fmt.Errorf("revoke principal families: %w", err)
	}

	var revoked []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan revoked family id: %w", err)
		}
		revoked = append(revoked, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revoked family ids: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions.refresh_tokens
		    SET consumed_at = $1
		  WHERE consumed_at IS NULL
		    AND family_id IN (SELECT id FROM sessions.token_families WHERE principal_id = $2)`, now, principalID); err != nil {
		return nil, fmt.Errorf("consume principal records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit revoke principal families: %w", err)
	}

	return revoked, nil
}

// ListFamiliesByPrincipal returns the principal's families, most recently seen first.
func (r *FamilyRepository) ListFamiliesByPrincipal(ctx context.Context, principalID string) ([]domain.TokenFamily, error) {
	stmt, args, err := r.builder.
		Select("id", "principal_id", "status", "current_generation", "created_at", "last_seen", "revoked_at", "revoke_reason").
		From("sessions.token_families").
		Where(squirrel.Eq{"principal_id": principalID}).
		OrderBy("last_seen DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list families sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query families: %w", err)
	}
	defer rows.Close()

	var families []domain.TokenFamily
	for rows.Next() {
		family, err := scanFamily(rows)
		if err != nil {
			return nil, err
		}
		families = append(families, *family)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate families: %w", err)
	}

	return families, nil
}

// PurgeExpired deletes records past the retention cutoff and tombstoned
// families left with no records.
func (r *FamilyRepository) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	var purged int
	if err := r.pool.QueryRow(ctx,
		`WITH deleted AS (
			DELETE FROM sessions.refresh_tokens
			 WHERE expires_at < $1
			 RETURNING 1
		)
		SELECT count(*) FROM deleted`, before).Scan(&purged); err != nil {
		return 0, fmt.Errorf("purge expired records: %w", err)
	}

	if _, err := r.pool.Exec(ctx,
		`DELETE FROM sessions.token_families f
		  WHERE NOT EXISTS (SELECT 1 FROM sessions.refresh_tokens t WHERE t.family_id = f.id)`); err != nil {
		return 0, fmt.Errorf("purge empty families: %w", err)
	}

	return purged, nil
}

func (r *FamilyRepository) insertRecord(ctx context.Context, exec pgExecutor, record domain.RefreshTokenRecord) error {
	stmt, args, err := r.builder.Insert("sessions.refresh_tokens").
		Columns("id", "family_id", "generation", "token_hash", "issued_at", "expires_at", "consumed_at", "replaced_by").
		Values(record.ID, record.FamilyID, record.Generation, record.TokenHash, record.IssuedAt, record.ExpiresAt, record.ConsumedAt, record.ReplacedBy).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert record sql: %w", err)
	}

	if _, err := exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert refresh record: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFamily(row rowScanner) (*domain.TokenFamily, error) {
	var (
		family domain.TokenFamily
		status string
	)

	if err := row.Scan(
		&family.ID,
		&family.PrincipalID,
		&status,
		&family.CurrentGeneration,
		&family.CreatedAt,
		&family.LastSeen,
		&family.RevokedAt,
		&family.RevokeReason,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan family: %w", err)
	}

	family.Status = domain.FamilyStatus(status)

	return &family, nil
}

func scanRecord(row rowScanner) (*domain.RefreshTokenRecord, error) {
	var record domain.RefreshTokenRecord

	if err := row.Scan(
		&record.ID,
		&record.FamilyID,
		&record.Generation,
		&record.TokenHash,
		&record.IssuedAt,
		&record.ExpiresAt,
		&record.ConsumedAt,
		&record.ReplacedBy,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh record: %w", err)
	}

	return &record, nil
}

var _ port.SessionStore = (*FamilyRepository)(nil)
