package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/guyyagil/CineVerse/internal/core/domain"
	"github.com/guyyagil/CineVerse/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()

	asyncProducer := newFakeAsyncProducer()
	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "cineverse",
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "cineverse-sessions",
		Env:  "test",
	}, zaptest.NewLogger(t))

	return publisher, asyncProducer
}

func TestPublishTokenReuseDetected(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	detectedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := domain.TokenReuseDetectedEvent{
		EventID:     "event-123",
		FamilyID:    "family-456",
		PrincipalID: "principal-789",
		DetectedAt:  detectedAt,
		Generation:  3,
		Metadata:    map[string]any{"source": "unit-test"},
	}

	if err := publisher.PublishTokenReuseDetected(context.Background(), event); err != nil {
		t.Fatalf("PublishTokenReuseDetected returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "cineverse.sessions.token.reuse_detected" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_type"]; got != "sessions.token.reuse_detected" {
			t.Fatalf("unexpected event_type: %v", got)
		}
		if got := envelope["event_id"]; got != event.EventID {
			t.Fatalf("unexpected event_id: %v", got)
		}
		if got := envelope["principal_id"]; got != event.PrincipalID {
			t.Fatalf("unexpected principal_id: %v", got)
		}
		if got := envelope["version"]; got != schemaVersion {
			t.Fatalf("unexpected version: %v", got)
		}

		timestamp, ok := envelope["timestamp"].(string)
		if !ok {
			t.Fatalf("timestamp not a string: %T", envelope["timestamp"])
		}
		if timestamp != detectedAt.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected timestamp: %s", timestamp)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}
		if got := payload["family_id"]; got != event.FamilyID {
			t.Fatalf("unexpected family_id: %v", got)
		}
		if got := payload["generation"]; got != float64(3) {
			t.Fatalf("unexpected generation: %v", got)
		}

		metadata, ok := envelope["metadata"].(map[string]any)
		if !ok {
			t.Fatalf("metadata not a map: %T", envelope["metadata"])
		}
		if got := metadata["service"]; got != "cineverse-sessions" {
			t.Fatalf("unexpected service: %v", got)
		}
		if got := metadata["environment"]; got != "test" {
			t.Fatalf("unexpected environment: %v", got)
		}
	default:
		t.Fatalf("expected message on producer input channel")
	}
}

func TestPublishFamilyRevoked(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	revokedAt := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	event := domain.FamilyRevokedEvent{
		EventID:       "event-456",
		FamilyID:      "family-1",
		PrincipalID:   "principal-1",
		RevokedAt:     revokedAt,
		Reason:        "logout_all",
		TokensRevoked: 2,
	}

	if err := publisher.PublishFamilyRevoked(context.Background(), event); err != nil {
		t.Fatalf("PublishFamilyRevoked returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "cineverse.sessions.family.revoked" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}
		if got := payload["reason"]; got != "logout_all" {
			t.Fatalf("unexpected reason: %v", got)
		}
		if got := payload["tokens_revoked"]; got != float64(2) {
			t.Fatalf("unexpected tokens_revoked: %v", got)
		}
	default:
		t.Fatalf("expected message on producer input channel")
	}
}

func TestPublishFamilyCreated_GeneratesEventID(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	event := domain.FamilyCreatedEvent{
		FamilyID:    "family-1",
		PrincipalID: "principal-1",
		CreatedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishFamilyCreated(context.Background(), event); err != nil {
		t.Fatalf("PublishFamilyCreated returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		id, ok := envelope["event_id"].(string)
		if !ok || id == "" {
			t.Fatalf("expected generated event_id, got %v", envelope["event_id"])
		}
	default:
		t.Fatalf("expected message on producer input channel")
	}
}
