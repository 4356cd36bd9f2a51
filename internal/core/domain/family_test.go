package domain

import (
	"testing"
	"time"
)

func TestTokenFamily_Revoke(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	family := TokenFamily{
		ID:     "family-1",
		Status: FamilyStatusActive,
	}

	if !family.IsActive() {
		t.Fatalf("expected active family")
	}
	if !family.Revoke(now, "logout") {
		t.Fatalf("expected first revoke to change state")
	}
	if family.IsActive() {
		t.Fatalf("expected family inactive after revoke")
	}
	if family.RevokedAt == nil || !family.RevokedAt.Equal(now) {
		t.Fatalf("expected revoked_at recorded")
	}
	if family.RevokeReason == nil || *family.RevokeReason != "logout" {
		t.Fatalf("expected revoke reason recorded")
	}

	if family.Revoke(now.Add(time.Minute), "again") {
		t.Fatalf("expected second revoke to be a no-op")
	}
	if *family.RevokeReason != "logout" {
		t.Fatalf("expected original reason preserved")
	}
}

func TestRefreshTokenRecord_Consume(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	record := RefreshTokenRecord{
		ID:        "record-1",
		ExpiresAt: now.Add(time.Hour),
	}

	if !record.IsLive(now) {
		t.Fatalf("expected record to be live")
	}
	if !record.Consume(now, "record-2") {
		t.Fatalf("expected first consume to succeed")
	}
	if record.IsLive(now) {
		t.Fatalf("expected record dead after consume")
	}
	if record.ReplacedBy == nil || *record.ReplacedBy != "record-2" {
		t.Fatalf("expected successor link recorded")
	}

	// Second consume is the replay signal.
	if record.Consume(now.Add(time.Second), "record-3") {
		t.Fatalf("expected second consume to fail")
	}
	if *record.ReplacedBy != "record-2" {
		t.Fatalf("expected successor link unchanged")
	}
}

func TestRefreshTokenRecord_IsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	record := RefreshTokenRecord{ExpiresAt: now}

	if !record.IsExpired(now) {
		t.Fatalf("expected expiry boundary to count as expired")
	}
	if record.IsExpired(now.Add(-time.Second)) {
		t.Fatalf("expected record live before expiry")
	}
	if record.IsLive(now) {
		t.Fatalf("expected expired record not to be live")
	}
}
