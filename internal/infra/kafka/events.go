package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guyyagil/CineVerse/internal/core/domain"
	"github.com/guyyagil/CineVerse/internal/core/port"
	"github.com/guyyagil/CineVerse/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID     string           `json:"event_id"`
	EventType   string           `json:"event_type"`
	PrincipalID string           `json:"principal_id,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Version     string           `json:"version"`
	Payload     any              `json:"payload"`
	Metadata    envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, principalID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	envelope := eventEnvelope{
		EventID:     id,
		EventType:   eventType,
		PrincipalID: principalID,
		Timestamp:   ts.UTC(),
		Version:     schemaVersion,
		Payload:     payload,
		Metadata:    metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishFamilyCreated publishes sessions.family.created events.
func (p *EventPublisher) PublishFamilyCreated(ctx context.Context, event domain.FamilyCreatedEvent) error {
	payload := struct {
		FamilyID    string         `json:"family_id"`
		PrincipalID string         `json:"principal_id"`
		CreatedAt   time.Time      `json:"created_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		FamilyID:    event.FamilyID,
		PrincipalID: event.PrincipalID,
		CreatedAt:   event.CreatedAt.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "sessions.family.created", event.PrincipalID, event.CreatedAt, payload)
}

// PublishFamilyRevoked publishes sessions.family.revoked events.
func (p *EventPublisher) PublishFamilyRevoked(ctx context.Context, event domain.FamilyRevokedEvent) error {
	payload := struct {
		FamilyID      string         `json:"family_id"`
		PrincipalID   string         `json:"principal_id"`
		RevokedAt     time.Time      `json:"revoked_at"`
		Reason        string         `json:"reason"`
		TokensRevoked int            `json:"tokens_revoked"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		FamilyID:      event.FamilyID,
		PrincipalID:   event.PrincipalID,
		RevokedAt:     event.RevokedAt.UTC(),
		Reason:        event.Reason,
		TokensRevoked: event.TokensRevoked,
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, "sessions.family.revoked", event.PrincipalID, event.RevokedAt, payload)
}

// PublishTokenReuseDetected publishes sessions.token.reuse_detected events.
func (p *EventPublisher) PublishTokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent) error {
	payload := struct {
		FamilyID    string         `json:"family_id"`
		PrincipalID string         `json:"principal_id"`
		DetectedAt  time.Time      `json:"detected_at"`
		Generation  int64          `json:"generation"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		FamilyID:    event.FamilyID,
		PrincipalID: event.PrincipalID,
		DetectedAt:  event.DetectedAt.UTC(),
		Generation:  event.Generation,
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "sessions.token.reuse_detected", event.PrincipalID, event.DetectedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
