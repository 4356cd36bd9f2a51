package domain

import "time"

// FamilyCreatedEvent is emitted when a login opens a new token family.
type FamilyCreatedEvent struct {
	EventID     string
	FamilyID    string
	PrincipalID string
	CreatedAt   time.Time
	Metadata    map[string]any
}

// FamilyRevokedEvent is emitted when a family reaches its terminal state.
type FamilyRevokedEvent struct {
	EventID       string
	FamilyID      string
	PrincipalID   string
	RevokedAt     time.Time
	Reason        string
	TokensRevoked int
	Metadata      map[string]any
}

// TokenReuseDetectedEvent is emitted when an already-consumed refresh token
// is presented again. The family is burned before this event is published.
type TokenReuseDetectedEvent struct {
	EventID     string
	FamilyID    string
	PrincipalID string
	DetectedAt  time.Time
	Generation  int64
	Metadata    map[string]any
}
