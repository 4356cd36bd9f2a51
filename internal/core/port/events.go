package port

import (
	"context"

	"github.com/guyyagil/CineVerse/internal/core/domain"
)

// EventPublisher broadcasts session lifecycle events to the rest of the platform.
type EventPublisher interface {
	PublishFamilyCreated(ctx context.Context, event domain.FamilyCreatedEvent) error
	PublishFamilyRevoked(ctx context.Context, event domain.FamilyRevokedEvent) error
	PublishTokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent) error
}
