package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrKeyNotFound indicates no verification key is registered for a kid.
	ErrKeyNotFound = errors.New("key not found")
	// ErrNoSigningKey indicates the provider holds no private key.
	ErrNoSigningKey = errors.New("no signing key configured")
)

// KeyProvider supplies the active signing key and verification keys by kid.
// The signing key is process-wide immutable state; rotation happens
// out-of-band by constructing a new provider whose verification set still
// contains the previous kid, so tokens signed before the rotation remain
// verifiable for the overlap window.
type KeyProvider interface {
	GetSigningKey() (*rsa.PrivateKey, error)
	SigningKID() string
	GetVerificationKey(kid string) (*rsa.PublicKey, error)
}

// StaticKeyProvider holds an in-memory signing key plus a verification set.
type StaticKeyProvider struct {
	mu         sync.RWMutex
	signingKID string
	signingKey *rsa.PrivateKey
	keys       map[string]*rsa.PublicKey
}

// NewStaticKeyProvider constructs a provider signing with the supplied key
// under the given kid. Previous public keys may be registered afterwards with
// RegisterVerificationKey to honor the rotation overlap window.
func NewStaticKeyProvider(kid string, key *rsa.PrivateKey) (*StaticKeyProvider, error) {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, fmt.Errorf("kid is required")
	}
	if key == nil {
		return nil, ErrNoSigningKey
	}

	return &StaticKeyProvider{
		signingKID: kid,
		signingKey: key,
		keys:       map[string]*rsa.PublicKey{kid: &key.PublicKey},
	}, nil
}

// RegisterVerificationKey adds a public key for an older kid so tokens signed
// before a key rotation keep verifying during the overlap window.
func (p *StaticKeyProvider) RegisterVerificationKey(kid string, key *rsa.PublicKey) error {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return fmt.Errorf("kid is required")
	}
	if key == nil {
		return fmt.Errorf("public key for %s is nil", kid)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[kid] = key
	return nil
}

// GetSigningKey returns the active private key.
func (p *StaticKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	if p.signingKey == nil {
		return nil, ErrNoSigningKey
	}
	return p.signingKey, nil
}

// SigningKID returns the kid stamped into issued tokens.
func (p *StaticKeyProvider) SigningKID() string {
	return p.signingKID
}

// GetVerificationKey returns the public key registered for kid.
func (p *StaticKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	p.mu.RLock()
	key, ok := p.keys[strings.TrimSpace(kid)]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// FileKeyProvider reads PEM keys from a directory. Every file becomes a
// verification key under its basename kid; the file matching signingKID (or
// the first private key found) signs.
type FileKeyProvider struct {
	signingKID string
	signingKey *rsa.PrivateKey
	keys       map[string]*rsa.PublicKey
}

// NewFileKeyProvider loads keys from keyDir. signingKID selects which private
// key signs; when empty the first private key encountered is used.
func NewFileKeyProvider(keyDir, signingKID string) (*FileKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("read key directory: %w", err)
	}

	provider := &FileKeyProvider{
		signingKID: strings.TrimSpace(signingKID),
		keys:       make(map[string]*rsa.PublicKey),
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", path, err)
		}

		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("decode PEM block from %s", path)
		}

		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))

		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			provider.adoptPrivateKey(kid, key)
			continue
		}

		if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			if rsaKey, ok := key.(*rsa.PrivateKey); ok {
				provider.adoptPrivateKey(kid, rsaKey)
				continue
			}
		}

		if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
			provider.keys[kid] = key
			continue
		}

		if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
			if rsaKey, ok := key.(*rsa.PublicKey); ok {
				provider.keys[kid] = rsaKey
				continue
			}
		}

		return nil, fmt.Errorf("parse key from file %s", path)
	}

	if provider.signingKey == nil {
		return nil, ErrNoSigningKey
	}

	return provider, nil
}

func (p *FileKeyProvider) adoptPrivateKey(kid string, key *rsa.PrivateKey) {
	p.keys[kid] = &key.PublicKey
	if p.signingKey == nil && (p.signingKID == "" || p.signingKID == kid) {
		p.signingKey = key
		p.signingKID = kid
	}
}

// GetSigningKey returns the private key selected at load time.
func (p *FileKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	if p.signingKey == nil {
		return nil, ErrNoSigningKey
	}
	return p.signingKey, nil
}

// SigningKID returns the kid of the signing key.
func (p *FileKeyProvider) SigningKID() string {
	return p.signingKID
}

// GetVerificationKey returns the public key for kid.
func (p *FileKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[strings.TrimSpace(kid)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}
