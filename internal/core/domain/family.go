package domain

import "time"

// FamilyStatus enumerates the lifecycle states of a token family.
type FamilyStatus string

const (
	// FamilyStatusActive marks a family whose live token may still be rotated.
	FamilyStatusActive FamilyStatus = "active"
	// FamilyStatusRevoked marks a terminated family; every descendant token is dead.
	FamilyStatusRevoked FamilyStatus = "revoked"
)

// TokenFamily represents one continuous login lineage (one device/browser) for a principal.
type TokenFamily struct {
	ID                string
	PrincipalID       string
	Status            FamilyStatus
	CurrentGeneration int64
	CreatedAt         time.Time
	LastSeen          time.Time
	RevokedAt         *time.Time
	RevokeReason      *string
}

// IsActive reports whether the family can still advance its chain.
func (f TokenFamily) IsActive() bool {
	return f.Status == FamilyStatusActive && f.RevokedAt == nil
}

// Revoke transitions the family to the revoked state.
// Returns true when the family changed state.
func (f *TokenFamily) Revoke(at time.Time, reason string) bool {
	if f.RevokedAt != nil || f.Status == FamilyStatusRevoked {
		return false
	}
	f.Status = FamilyStatusRevoked
	f.RevokedAt = &at
	f.RevokeReason = &reason
	return true
}

// Touch records rotation activity on the family.
func (f *TokenFamily) Touch(at time.Time) {
	f.LastSeen = at
}
