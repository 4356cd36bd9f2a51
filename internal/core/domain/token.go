package domain

import "time"

// RefreshTokenRecord is one link in a family's rotation chain.
// The raw refresh secret is handed to the caller exactly once; only its hash
// is persisted here.
type RefreshTokenRecord struct {
	ID         string
	FamilyID   string
	Generation int64
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	ReplacedBy *string
}

// IsExpired reports whether the record has elapsed its validity window.
func (r RefreshTokenRecord) IsExpired(at time.Time) bool {
	return !r.ExpiresAt.After(at)
}

// IsLive reports whether the record is the family's current unconsumed token.
func (r RefreshTokenRecord) IsLive(at time.Time) bool {
	return r.ConsumedAt == nil && !r.IsExpired(at)
}

// Consume marks the record as exchanged and links its successor.
// Returns true if the record transitioned from live to consumed; a second
// attempt is the replay signal.
func (r *RefreshTokenRecord) Consume(at time.Time, replacedBy string) bool {
	if r.ConsumedAt != nil {
		return false
	}
	timeCopy := at
	r.ConsumedAt = &timeCopy
	if replacedBy != "" {
		idCopy := replacedBy
		r.ReplacedBy = &idCopy
	}
	return true
}
