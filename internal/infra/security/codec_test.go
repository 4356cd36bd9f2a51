package security

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"
)

func newTestCodec(t *testing.T) (*Codec, *StaticKeyProvider, *time.Time) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	keys, err := NewStaticKeyProvider("2026-03", key)
	if err != nil {
		t.Fatalf("NewStaticKeyProvider: %v", err)
	}

	codec, err := NewCodec(keys, "cineverse-sessions")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec.WithClock(func() time.Time { return current })

	return codec, keys, &current
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, _, _ := newTestCodec(t)

	token, err := codec.Issue("principal-1", "family-1", 4, 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.PrincipalID != "principal-1" {
		t.Fatalf("expected principal-1, got %s", claims.PrincipalID)
	}
	if claims.FamilyID != "family-1" {
		t.Fatalf("expected family-1, got %s", claims.FamilyID)
	}
	if claims.Generation != 4 {
		t.Fatalf("expected generation 4, got %d", claims.Generation)
	}
	if claims.Subject != "principal-1" {
		t.Fatalf("expected subject principal-1, got %s", claims.Subject)
	}
	if claims.ID == "" {
		t.Fatalf("expected a jti")
	}
}

func TestCodec_Expiry(t *testing.T) {
	codec, _, clock := newTestCodec(t)

	token, err := codec.Issue("principal-1", "family-1", 0, 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	*clock = clock.Add(16 * time.Minute)

	if _, err := codec.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestCodec_RejectsTamperedToken(t *testing.T) {
	codec, _, _ := newTestCodec(t)

	token, err := codec.Issue("principal-1", "family-1", 0, 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := codec.Verify(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := codec.Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestCodec_RejectsForeignKey(t *testing.T) {
	codec, _, _ := newTestCodec(t)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	otherKeys, err := NewStaticKeyProvider("2026-03", otherKey)
	if err != nil {
		t.Fatalf("NewStaticKeyProvider: %v", err)
	}
	otherCodec, err := NewCodec(otherKeys, "cineverse-sessions")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	token, err := otherCodec.Issue("principal-1", "family-1", 0, 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := codec.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestCodec_RejectsWrongIssuer(t *testing.T) {
	codec, _, _ := newTestCodec(t)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	keys, err := NewStaticKeyProvider("other", key)
	if err != nil {
		t.Fatalf("NewStaticKeyProvider: %v", err)
	}
	otherCodec, err := NewCodec(keys, "someone-else")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	token, err := otherCodec.Issue("principal-1", "family-1", 0, 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := codec.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}
}

func TestCodec_VerifiesPreviousKidDuringOverlap(t *testing.T) {
	// Tokens signed before a key rotation keep verifying while the old
	// public key stays registered.
	oldKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	oldKeys, err := NewStaticKeyProvider("2026-02", oldKey)
	if err != nil {
		t.Fatalf("NewStaticKeyProvider: %v", err)
	}
	oldCodec, err := NewCodec(oldKeys, "cineverse-sessions")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	oldToken, err := oldCodec.Issue("principal-1", "family-1", 2, time.Hour)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	newKeys, err := NewStaticKeyProvider("2026-03", newKey)
	if err != nil {
		t.Fatalf("NewStaticKeyProvider: %v", err)
	}
	if err := newKeys.RegisterVerificationKey("2026-02", &oldKey.PublicKey); err != nil {
		t.Fatalf("RegisterVerificationKey: %v", err)
	}

	codec, err := NewCodec(newKeys, "cineverse-sessions")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	claims, err := codec.Verify(oldToken)
	if err != nil {
		t.Fatalf("expected old-kid token to verify during overlap, got %v", err)
	}
	if claims.Generation != 2 {
		t.Fatalf("expected generation 2, got %d", claims.Generation)
	}

	newToken, err := codec.Issue("principal-1", "family-1", 3, time.Hour)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := codec.Verify(newToken); err != nil {
		t.Fatalf("expected new token to verify: %v", err)
	}
}
