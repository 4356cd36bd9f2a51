package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/guyyagil/CineVerse/internal/core/domain"
	"github.com/guyyagil/CineVerse/internal/core/port"
	"github.com/guyyagil/CineVerse/internal/infra/config"
	"github.com/guyyagil/CineVerse/internal/infra/security"
	"github.com/guyyagil/CineVerse/internal/infra/telemetry"
)

// SessionResult carries the token pair handed back by Login and Refresh.
type SessionResult struct {
	AccessToken      string
	RefreshToken     string
	FamilyID         string
	PrincipalID      string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// SessionService is the facade over login, refresh, logout, and authorize.
type SessionService struct {
	cfg        *config.AppConfig
	codec      *security.Codec
	principals port.PrincipalDirectory
	store      port.SessionStore
	rotation   *RotationService
	revocation *RevocationService
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewSessionService constructs a SessionService instance.
func NewSessionService(
	cfg *config.AppConfig,
	codec *security.Codec,
	principals port.PrincipalDirectory,
	store port.SessionStore,
	rotation *RotationService,
	revocation *RevocationService,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &SessionService{
		cfg:        cfg,
		codec:      codec,
		principals: principals,
		store:      store,
		rotation:   rotation,
		revocation: revocation,
		metrics:    metrics,
		logger:     logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the facade clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Login opens a new token family for the principal and issues the first token pair.
func (s *SessionService) Login(ctx context.Context, principalID string) (*SessionResult, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, fmt.Errorf("principal id is required")
	}

	if s.principals != nil {
		exists, err := s.principals.PrincipalExists(ctx, principalID)
		if err != nil {
			return nil, fmt.Errorf("lookup principal: %w", err)
		}
		if !exists {
			return nil, ErrPrincipalNotFound
		}
	}

	opened, err := s.rotation.OpenFamily(ctx, principalID)
	if err != nil {
		return nil, err
	}

	result, err := s.buildResult(opened)
	if err != nil {
		return nil, err
	}

	s.metrics.IncLogin()
	s.logger.Info("session opened",
		zap.String("principal_id", principalID),
		zap.String("family_id", opened.Family.ID),
	)

	return result, nil
}

// Refresh rotates the family's refresh token and issues a new token pair.
func (s *SessionService) Refresh(ctx context.Context, familyID, refreshSecret string) (*SessionResult, error) {
	rotated, err := s.rotation.Rotate(ctx, familyID, refreshSecret)
	if err != nil {
		return nil, err
	}

	return s.buildResult(rotated)
}

// Logout terminates a single family. Idempotent; logging out twice is not an error.
func (s *SessionService) Logout(ctx context.Context, familyID string) error {
	_, err := s.revocation.RevokeFamily(ctx, familyID, "logout")
	return err
}

// LogoutAll terminates every family the principal owns and returns how many
// were still active.
func (s *SessionService) LogoutAll(ctx context.Context, principalID string) (int, error) {
	return s.revocation.RevokeAllForPrincipal(ctx, principalID, "logout_all")
}

// Authorize validates an access token offline and returns its claims.
// Stateless by construction; a revoked family's access tokens stay valid
// until they expire.
func (s *SessionService) Authorize(_ context.Context, accessToken string) (*security.AccessTokenClaims, error) {
	claims, err := s.codec.Verify(accessToken)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrExpiredToken):
			return nil, ErrExpiredAccessToken
		default:
			return nil, ErrInvalidAccessToken
		}
	}
	return claims, nil
}

// ListSessions returns the principal's token families, most recently seen first.
func (s *SessionService) ListSessions(ctx context.Context, principalID string) ([]domain.TokenFamily, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, fmt.Errorf("principal id is required")
	}
	return s.store.ListFamiliesByPrincipal(ctx, principalID)
}

// PurgeExpired removes refresh records whose expiry fell outside the
// retention window and reports how many were deleted.
func (s *SessionService) PurgeExpired(ctx context.Context) (int, error) {
	retention := s.cfg.Tokens.RetentionWindow
	if retention < 0 {
		retention = 0
	}
	cutoff := s.now().Add(-retention)

	purged, err := s.store.PurgeExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge expired records: %w", err)
	}

	s.metrics.AddPurgedRecords(purged)
	if purged > 0 {
		s.logger.Info("expired refresh records purged",
			zap.Int("purged", purged),
			zap.Time("cutoff", cutoff),
		)
	}

	return purged, nil
}

func (s *SessionService) buildResult(rotated *RotationResult) (*SessionResult, error) {
	accessTTL := s.cfg.Tokens.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}

	accessToken, err := s.codec.Issue(rotated.Family.PrincipalID, rotated.Family.ID, rotated.Record.Generation, accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &SessionResult{
		AccessToken:      accessToken,
		RefreshToken:     rotated.RefreshToken,
		FamilyID:         rotated.Family.ID,
		PrincipalID:      rotated.Family.PrincipalID,
		AccessExpiresAt:  s.now().Add(accessTTL),
		RefreshExpiresAt: rotated.Record.ExpiresAt,
	}, nil
}
