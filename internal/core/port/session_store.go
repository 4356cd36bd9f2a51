package port

import (
	"context"
	"time"

	"github.com/guyyagil/CineVerse/internal/core/domain"
)

// AdvanceResult carries the outcome of an atomic chain advance.
type AdvanceResult struct {
	Family    domain.TokenFamily
	NewRecord domain.RefreshTokenRecord
}

// SessionStore is the durable record of refresh-token lineage. Advance is the
// only operation that must serialize concurrent callers, and only per family;
// implementations must not funnel unrelated families through a shared lock.
type SessionStore interface {
	// CreateFamily opens a new lineage for the principal and persists its
	// generation-zero record. The record's TokenHash is supplied by the caller
	// (the raw secret never reaches the store).
	CreateFamily(ctx context.Context, principalID string, record domain.RefreshTokenRecord) (*domain.TokenFamily, error)

	// GetFamily returns the family by id, repository.ErrNotFound when absent.
	GetFamily(ctx context.Context, familyID string) (*domain.TokenFamily, error)

	// GetLiveRecord returns the family's current unconsumed record, or
	// repository.ErrNotFound when the family has no live token.
	GetLiveRecord(ctx context.Context, familyID string) (*domain.RefreshTokenRecord, error)

	// Advance atomically verifies that presentedHash identifies the family's
	// live, unexpired record, marks it consumed, and persists the supplied
	// generation+1 record. Exactly one of several racing callers succeeds;
	// the rest observe repository.ErrStaleToken. repository.ErrExpired is
	// returned when the live record or the family itself has lapsed, and
	// repository.ErrNotFound when the family or hash is unknown.
	Advance(ctx context.Context, familyID, presentedHash string, next domain.RefreshTokenRecord) (*AdvanceResult, error)

	// RevokeFamily terminates the family and consumes every pending record.
	// Idempotent: revoking an already-revoked family reports zero tokens
	// revoked and no error.
	RevokeFamily(ctx context.Context, familyID, reason string) (int, error)

	// RevokeAllForPrincipal terminates every family owned by the principal and
	// returns the ids of the families that changed state. Already-revoked
	// families are not reported again.
	RevokeAllForPrincipal(ctx context.Context, principalID, reason string) ([]string, error)

	// ListFamiliesByPrincipal returns all families owned by the principal,
	// most recently seen first.
	ListFamiliesByPrincipal(ctx context.Context, principalID string) ([]domain.TokenFamily, error)

	// PurgeExpired deletes records (and empty tombstoned families) whose
	// expiry predates the cutoff. Records are retained past expiry for replay
	// detection; callers pass now minus the retention window.
	PurgeExpired(ctx context.Context, before time.Time) (int, error)
}
