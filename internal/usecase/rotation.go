package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guyyagil/CineVerse/internal/core/domain"
	"github.com/guyyagil/CineVerse/internal/core/port"
	"github.com/guyyagil/CineVerse/internal/infra/config"
	"github.com/guyyagil/CineVerse/internal/infra/logger"
	"github.com/guyyagil/CineVerse/internal/infra/security"
	"github.com/guyyagil/CineVerse/internal/infra/telemetry"
	"github.com/guyyagil/CineVerse/internal/repository"
)

// ReasonTokenReuse marks families burned by refresh token replay.
const ReasonTokenReuse = "token_reuse"

// RotationResult carries the outcome of a successful rotation or family creation.
// RefreshToken holds the raw secret; only its hash is persisted.
type RotationResult struct {
	RefreshToken string
	Family       domain.TokenFamily
	Record       domain.RefreshTokenRecord
}

// RotationService opens token families and rotates their refresh tokens.
// Replay of a consumed token burns the whole family before the caller sees
// the failure.
type RotationService struct {
	cfg        *config.AppConfig
	store      port.SessionStore
	cache      port.FamilyRevocationCache
	revocation *RevocationService
	events     port.EventPublisher
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewRotationService constructs a RotationService instance.
func NewRotationService(
	cfg *config.AppConfig,
	store port.SessionStore,
	cache port.FamilyRevocationCache,
	revocation *RevocationService,
	events port.EventPublisher,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *RotationService {
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &RotationService{
		cfg:        cfg,
		store:      store,
		cache:      cache,
		revocation: revocation,
		events:     events,
		metrics:    metrics,
		logger:     logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *RotationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// OpenFamily mints a fresh generation-zero refresh token and opens a family for it.
func (s *RotationService) OpenFamily(ctx context.Context, principalID string) (*RotationResult, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, fmt.Errorf("principal id is required")
	}

	raw, record, err := s.mintRecord()
	if err != nil {
		return nil, err
	}

	family, err := s.store.CreateFamily(ctx, principalID, record)
	if err != nil {
		return nil, fmt.Errorf("create token family: %w", err)
	}
	record.FamilyID = family.ID
	record.Generation = 0

	s.publishFamilyCreated(ctx, *family)

	return &RotationResult{RefreshToken: raw, Family: *family, Record: record}, nil
}

// Rotate consumes the presented refresh secret and issues the family's next
// generation. Presenting an already-consumed secret revokes the family and
// returns ErrSessionEnded.
func (s *RotationService) Rotate(ctx context.Context, familyID, refreshSecret string) (*RotationResult, error) {
	familyID = strings.TrimSpace(familyID)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if familyID == "" {
		return nil, fmt.Errorf("family id is required")
	}
	if refreshSecret == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	// Advisory fast path; a cache miss or failure falls through to the store.
	if s.cache != nil {
		revoked, reason, err := s.cache.IsFamilyRevoked(ctx, familyID)
		if err != nil {
			s.logger.Warn("family revocation cache unavailable",
				zap.String("family_id", familyID),
				zap.Error(err),
			)
		} else if revoked {
			s.logger.Info("refresh refused from revocation cache",
				zap.String("family_id", familyID),
				zap.String("reason", reason),
			)
			return nil, ErrSessionEnded
		}
	}

	raw, next, err := s.mintRecord()
	if err != nil {
		return nil, err
	}

	presentedHash := security.HashToken(refreshSecret)

	result, err := s.store.Advance(ctx, familyID, presentedHash, next)
	if err != nil {
		return nil, s.mapAdvanceError(ctx, familyID, presentedHash, err)
	}

	s.metrics.IncRotation()

	return &RotationResult{RefreshToken: raw, Family: result.Family, Record: result.NewRecord}, nil
}

func (s *RotationService) mapAdvanceError(ctx context.Context, familyID, presentedHash string, err error) error {
	switch {
	case errors.Is(err, repository.ErrStaleToken):
		return s.handleReplay(ctx, familyID, presentedHash)
	case errors.Is(err, repository.ErrExpired):
		// Revoked family and expired record share a repository sentinel.
		family, lookupErr := s.store.GetFamily(ctx, familyID)
		if lookupErr != nil {
			if errors.Is(lookupErr, repository.ErrNotFound) {
				return ErrExpiredRefreshToken
			}
			// Transient failures stay retryable; never report them as terminal.
			return fmt.Errorf("get token family: %w", lookupErr)
		}
		if !family.IsActive() {
			return ErrSessionEnded
		}
		return ErrExpiredRefreshToken
	case errors.Is(err, repository.ErrNotFound):
		// The store reports both an unknown family and an unknown hash as
		// not found. Only the former surfaces as a missing family.
		if _, lookupErr := s.store.GetFamily(ctx, familyID); lookupErr != nil {
			if errors.Is(lookupErr, repository.ErrNotFound) {
				return ErrFamilyNotFound
			}
			return fmt.Errorf("get token family: %w", lookupErr)
		}
		return ErrInvalidRefreshToken
	default:
		return fmt.Errorf("advance token family: %w", err)
	}
}

// handleReplay burns the family, publishes the reuse event, and surfaces
// ErrSessionEnded. The family is revoked before anything else happens; the
// family snapshot only enriches the log and event, and neither its failure
// nor a revocation failure reaches the caller, who must see the session as
// ended either way.
func (s *RotationService) handleReplay(ctx context.Context, familyID, presentedHash string) error {
	s.metrics.IncReplayDetected()

	if s.revocation != nil {
		if _, err := s.revocation.RevokeFamily(ctx, familyID, ReasonTokenReuse); err != nil && !errors.Is(err, ErrFamilyNotFound) {
			s.logger.Error("revoke family after replay",
				zap.String("family_id", familyID),
				zap.Error(err),
			)
		}
	}

	principalID := ""
	var generation int64
	if family, err := s.store.GetFamily(ctx, familyID); err == nil {
		principalID = family.PrincipalID
		generation = family.CurrentGeneration
	} else {
		s.logger.Error("lookup family after replay",
			zap.String("family_id", familyID),
			zap.Error(err),
		)
	}

	s.logger.Warn("refresh token reuse detected",
		zap.String("family_id", familyID),
		zap.String("principal_id", principalID),
		zap.String("token_hash", logger.MaskString(presentedHash)),
		zap.Int64("generation", generation),
	)

	if s.events != nil {
		event := domain.TokenReuseDetectedEvent{
			EventID:     uuid.NewString(),
			FamilyID:    familyID,
			PrincipalID: principalID,
			DetectedAt:  s.now(),
			Generation:  generation,
		}
		if err := s.events.PublishTokenReuseDetected(ctx, event); err != nil {
			s.logger.Error("publish token reuse event",
				zap.String("family_id", familyID),
				zap.Error(err),
			)
		}
	}

	return ErrSessionEnded
}

func (s *RotationService) mintRecord() (string, domain.RefreshTokenRecord, error) {
	raw, err := security.GenerateSecureToken(32)
	if err != nil {
		return "", domain.RefreshTokenRecord{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.now()
	ttl := s.cfg.Tokens.RefreshTokenTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	record := domain.RefreshTokenRecord{
		ID:        uuid.NewString(),
		TokenHash: security.HashToken(raw),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	return raw, record, nil
}

func (s *RotationService) publishFamilyCreated(ctx context.Context, family domain.TokenFamily) {
	if s.events == nil {
		return
	}

	event := domain.FamilyCreatedEvent{
		EventID:     uuid.NewString(),
		FamilyID:    family.ID,
		PrincipalID: family.PrincipalID,
		CreatedAt:   family.CreatedAt,
	}
	if err := s.events.PublishFamilyCreated(ctx, event); err != nil {
		s.logger.Error("publish family created event",
			zap.String("family_id", family.ID),
			zap.Error(err),
		)
	}
}
