package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateSecureToken(t *testing.T) {
	first, err := GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("GenerateSecureToken returned error: %v", err)
	}
	if first == "" {
		t.Fatalf("expected non-empty token")
	}

	second, err := GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("GenerateSecureToken returned error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct tokens")
	}

	if _, err := GenerateSecureToken(0); err == nil {
		t.Fatalf("expected error for non-positive length")
	}
}

func TestHashToken(t *testing.T) {
	hash := HashToken("secret-value")
	if hash == "" || hash == "secret-value" {
		t.Fatalf("expected hashed output, got %q", hash)
	}
	if HashToken("secret-value") != hash {
		t.Fatalf("expected deterministic hashing")
	}
	if HashToken("other-value") == hash {
		t.Fatalf("expected different inputs to hash differently")
	}
}

func TestFileKeyProvider_LoadsSigningAndVerificationKeys(t *testing.T) {
	dir := t.TempDir()

	signing, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	previous, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	writePEM(t, filepath.Join(dir, "2026-03.pem"), "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(signing))
	writePEM(t, filepath.Join(dir, "2026-02.pem"), "RSA PUBLIC KEY", x509.MarshalPKCS1PublicKey(&previous.PublicKey))

	provider, err := NewFileKeyProvider(dir, "2026-03")
	if err != nil {
		t.Fatalf("NewFileKeyProvider returned error: %v", err)
	}

	if provider.SigningKID() != "2026-03" {
		t.Fatalf("expected signing kid 2026-03, got %s", provider.SigningKID())
	}
	if _, err := provider.GetSigningKey(); err != nil {
		t.Fatalf("GetSigningKey returned error: %v", err)
	}
	if _, err := provider.GetVerificationKey("2026-03"); err != nil {
		t.Fatalf("GetVerificationKey for signing kid returned error: %v", err)
	}
	if _, err := provider.GetVerificationKey("2026-02"); err != nil {
		t.Fatalf("GetVerificationKey for previous kid returned error: %v", err)
	}
	if _, err := provider.GetVerificationKey("unknown"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()

	encoded := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
