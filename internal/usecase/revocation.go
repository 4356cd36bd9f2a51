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
	"github.com/guyyagil/CineVerse/internal/infra/telemetry"
	"github.com/guyyagil/CineVerse/internal/repository"
)

// RevocationService terminates token families and keeps the advisory cache
// and event stream in sync with the store.
type RevocationService struct {
	cfg     *config.AppConfig
	store   port.SessionStore
	cache   port.FamilyRevocationCache
	events  port.EventPublisher
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewRevocationService constructs a RevocationService instance.
func NewRevocationService(
	cfg *config.AppConfig,
	store port.SessionStore,
	cache port.FamilyRevocationCache,
	events port.EventPublisher,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *RevocationService {
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &RevocationService{
		cfg:     cfg,
		store:   store,
		cache:   cache,
		events:  events,
		metrics: metrics,
		logger:  logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *RevocationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// RevokeFamily terminates a single family. Revoking an already-revoked family
// succeeds and reports zero newly revoked tokens. The store revoke runs
// first and unconditionally; whether the family changed state comes from its
// consumed count, not a pre-read, so concurrent revokers cannot both publish.
func (s *RevocationService) RevokeFamily(ctx context.Context, familyID, reason string) (int, error) {
	familyID = strings.TrimSpace(familyID)
	if familyID == "" {
		return 0, fmt.Errorf("family id is required")
	}
	reason = normalizeReason(reason)

	consumed, err := s.store.RevokeFamily(ctx, familyID, reason)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrFamilyNotFound
		}
		return 0, fmt.Errorf("revoke token family: %w", err)
	}

	s.markCacheRevoked(ctx, familyID, reason)

	if consumed > 0 {
		s.metrics.IncRevocation("family")
		s.publishFamilyRevoked(ctx, familyID, s.lookupPrincipal(ctx, familyID), reason, consumed)
	}

	return consumed, nil
}

// lookupPrincipal enriches revocation events. A failed lookup degrades the
// event, never the revocation.
func (s *RevocationService) lookupPrincipal(ctx context.Context, familyID string) string {
	family, err := s.store.GetFamily(ctx, familyID)
	if err != nil {
		s.logger.Warn("lookup family for revocation event",
			zap.String("family_id", familyID),
			zap.Error(err),
		)
		return ""
	}
	return family.PrincipalID
}

// RevokeAllForPrincipal terminates every active family owned by the principal
// and returns the number of families that changed state. The store reports
// exactly which families it transitioned, so events fire once per burned
// family even when revokers race.
func (s *RevocationService) RevokeAllForPrincipal(ctx context.Context, principalID, reason string) (int, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return 0, fmt.Errorf("principal id is required")
	}
	reason = normalizeReason(reason)

	// Live record presence per family, captured before the bulk revoke.
	// Enrichment only; a failed pre-read degrades the event counts.
	liveCounts := make(map[string]int)
	if families, err := s.store.ListFamiliesByPrincipal(ctx, principalID); err == nil {
		for _, family := range families {
			if !family.IsActive() {
				continue
			}
			if _, err := s.store.GetLiveRecord(ctx, family.ID); err == nil {
				liveCounts[family.ID] = 1
			}
		}
	} else {
		s.logger.Warn("list families before bulk revoke",
			zap.String("principal_id", principalID),
			zap.Error(err),
		)
	}

	revokedIDs, err := s.store.RevokeAllForPrincipal(ctx, principalID, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke principal families: %w", err)
	}

	for _, familyID := range revokedIDs {
		s.markCacheRevoked(ctx, familyID, reason)
		s.metrics.IncRevocation("principal")
		s.publishFamilyRevoked(ctx, familyID, principalID, reason, liveCounts[familyID])
	}

	return len(revokedIDs), nil
}

func (s *RevocationService) markCacheRevoked(ctx context.Context, familyID, reason string) {
	if s.cache == nil {
		return
	}

	ttl := s.cfg.Redis.FamilyRevocationTTL
	if ttl <= 0 {
		ttl = s.cfg.Tokens.RefreshTokenTTL
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	if err := s.cache.MarkFamilyRevoked(ctx, familyID, reason, ttl); err != nil {
		s.logger.Warn("mark family revoked in cache",
			zap.String("family_id", familyID),
			zap.Error(err),
		)
	}
}

func (s *RevocationService) publishFamilyRevoked(ctx context.Context, familyID, principalID, reason string, tokensRevoked int) {
	if s.events == nil {
		return
	}

	event := domain.FamilyRevokedEvent{
		EventID:       uuid.NewString(),
		FamilyID:      familyID,
		PrincipalID:   principalID,
		RevokedAt:     s.now(),
		Reason:        reason,
		TokensRevoked: tokensRevoked,
	}
	if err := s.events.PublishFamilyRevoked(ctx, event); err != nil {
		s.logger.Error("publish family revoked event",
			zap.String("family_id", familyID),
			zap.Error(err),
		)
	}
}

func normalizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "revoked"
	}
	return reason
}
