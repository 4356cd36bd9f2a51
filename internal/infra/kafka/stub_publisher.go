package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/guyyagil/CineVerse/internal/core/domain"
	"github.com/guyyagil/CineVerse/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, principalID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("principal_id", principalID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishFamilyCreated logs sessions.family.created events.
func (p *StubPublisher) PublishFamilyCreated(_ context.Context, event domain.FamilyCreatedEvent) error {
	payload := map[string]any{
		"family_id":    event.FamilyID,
		"principal_id": event.PrincipalID,
		"created_at":   event.CreatedAt,
		"metadata":     event.Metadata,
	}
	p.logEvent("sessions.family.created", event.PrincipalID, event.CreatedAt, payload)
	return nil
}

// PublishFamilyRevoked logs sessions.family.revoked events.
func (p *StubPublisher) PublishFamilyRevoked(_ context.Context, event domain.FamilyRevokedEvent) error {
	payload := map[string]any{
		"family_id":      event.FamilyID,
		"principal_id":   event.PrincipalID,
		"revoked_at":     event.RevokedAt,
		"reason":         event.Reason,
		"tokens_revoked": event.TokensRevoked,
		"metadata":       event.Metadata,
	}
	p.logEvent("sessions.family.revoked", event.PrincipalID, event.RevokedAt, payload)
	return nil
}

// PublishTokenReuseDetected logs sessions.token.reuse_detected events.
func (p *StubPublisher) PublishTokenReuseDetected(_ context.Context, event domain.TokenReuseDetectedEvent) error {
	payload := map[string]any{
		"family_id":    event.FamilyID,
		"principal_id": event.PrincipalID,
		"detected_at":  event.DetectedAt,
		"generation":   event.Generation,
		"metadata":     event.Metadata,
	}
	p.logEvent("sessions.token.reuse_detected", event.PrincipalID, event.DetectedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
