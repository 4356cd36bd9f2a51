package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"
)

const defaultFamilyRevocationPrefix = "sessions:family_revoked"

// FamilyRevocationStore keeps family revocation flags in Redis so validation
// paths can refuse revoked families without a round trip to Postgres. The
// relational store stays authoritative; a cache miss means "ask Postgres",
// never "still active".
type FamilyRevocationStore struct {
	client *red.Client
	prefix string
}

// NewFamilyRevocationStore constructs a Redis-backed family revocation cache.
func NewFamilyRevocationStore(client *red.Client, keyPrefix string) *FamilyRevocationStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultFamilyRevocationPrefix
	}

	return &FamilyRevocationStore{client: client, prefix: prefix}
}

// MarkFamilyRevoked stores the family identifier with the supplied reason and TTL window.
func (s *FamilyRevocationStore) MarkFamilyRevoked(ctx context.Context, familyID string, reason string, ttl time.Duration) error {
	key := s.key(familyID)
	if key == "" {
		return fmt.Errorf("family id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	value := strings.TrimSpace(reason)
	if value == "" {
		value = "family_revoked"
	}

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set family revocation: %w", err)
	}

	return nil
}

// IsFamilyRevoked reports whether a family has been revoked and returns the stored reason when present.
func (s *FamilyRevocationStore) IsFamilyRevoked(ctx context.Context, familyID string) (bool, string, error) {
	key := s.key(familyID)
	if key == "" {
		return false, "", fmt.Errorf("family id is required")
	}

	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("redis get family revocation: %w", err)
	}

	return true, value, nil
}

// ClearFamilyRevocation removes the cached revocation entry, typically for tests.
func (s *FamilyRevocationStore) ClearFamilyRevocation(ctx context.Context, familyID string) error {
	key := s.key(familyID)
	if key == "" {
		return fmt.Errorf("family id is required")
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete family revocation: %w", err)
	}
	return nil
}

func (s *FamilyRevocationStore) key(familyID string) string {
	trimmed := strings.TrimSpace(familyID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", s.prefix, trimmed)
}
