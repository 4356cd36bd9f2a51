package port

import "context"

// PrincipalDirectory answers principal existence questions. The user catalog
// lives elsewhere in the platform; this core only consumes it by id.
type PrincipalDirectory interface {
	PrincipalExists(ctx context.Context, principalID string) (bool, error)
}
