package port

import (
	"context"
	"time"
)

// FamilyRevocationCache caches family revocation flags so refresh attempts on
// burned families can be refused without a store round-trip. The cache is
// advisory: a miss or an error falls back to the store.
type FamilyRevocationCache interface {
	MarkFamilyRevoked(ctx context.Context, familyID string, reason string, ttl time.Duration) error
	IsFamilyRevoked(ctx context.Context, familyID string) (bool, string, error)
	ClearFamilyRevocation(ctx context.Context, familyID string) error
}
