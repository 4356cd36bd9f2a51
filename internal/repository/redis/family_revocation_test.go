package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestFamilyRevocationStore_MarkAndCheck(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewFamilyRevocationStore(client, "sessions:family_revoked:test")

	familyID := "family-123"
	if err := repo.MarkFamilyRevoked(context.Background(), familyID, "token_reuse", time.Minute); err != nil {
		t.Fatalf("MarkFamilyRevoked returned error: %v", err)
	}

	revoked, reason, err := repo.IsFamilyRevoked(context.Background(), familyID)
	if err != nil {
		t.Fatalf("IsFamilyRevoked returned error: %v", err)
	}
	if !revoked {
		t.Fatalf("expected family to be revoked")
	}
	if reason != "token_reuse" {
		t.Fatalf("expected reason token_reuse, got %s", reason)
	}
}

func TestFamilyRevocationStore_CheckMiss(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewFamilyRevocationStore(client, "sessions:family_revoked:test")

	revoked, _, err := repo.IsFamilyRevoked(context.Background(), "missing")
	if err != nil {
		t.Fatalf("IsFamilyRevoked returned error: %v", err)
	}
	if revoked {
		t.Fatalf("expected family to not be revoked")
	}
}

func TestFamilyRevocationStore_Clear(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewFamilyRevocationStore(client, "sessions:family_revoked:test")

	if err := repo.MarkFamilyRevoked(context.Background(), "family-1", "manual", time.Minute); err != nil {
		t.Fatalf("MarkFamilyRevoked returned error: %v", err)
	}
	if err := repo.ClearFamilyRevocation(context.Background(), "family-1"); err != nil {
		t.Fatalf("ClearFamilyRevocation returned error: %v", err)
	}

	revoked, _, err := repo.IsFamilyRevoked(context.Background(), "family-1")
	if err != nil {
		t.Fatalf("IsFamilyRevoked returned error: %v", err)
	}
	if revoked {
		t.Fatalf("expected revocation entry to be cleared")
	}
}

func TestFamilyRevocationStore_InvalidInput(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewFamilyRevocationStore(client, "sessions:family_revoked:test")

	if err := repo.MarkFamilyRevoked(context.Background(), "", "", time.Minute); err == nil {
		t.Fatalf("expected error for empty family id")
	}
	if err := repo.MarkFamilyRevoked(context.Background(), "family-1", "", 0); err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}
	if _, _, err := repo.IsFamilyRevoked(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty family id")
	}
	if err := repo.ClearFamilyRevocation(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty family id")
	}
}
