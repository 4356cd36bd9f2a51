package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken indicates the access token is malformed, carries an
	// unknown kid, or its signature does not verify.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrExpiredToken indicates the access token is past its expiry.
	ErrExpiredToken = errors.New("access token expired")
)

// AccessTokenClaims binds an access token to its principal, family, and
// chain generation.
type AccessTokenClaims struct {
	PrincipalID string `json:"pid"`
	FamilyID    string `json:"fam"`
	Generation  int64  `json:"gen"`
	jwt.RegisteredClaims
}

// Codec creates and verifies signed access tokens. It is stateless apart from
// the injected key material and never touches the session store, so
// per-request authorization stays a pure signature check.
type Codec struct {
	keys   KeyProvider
	issuer string
	now    func() time.Time
}

// NewCodec constructs a Codec signing and verifying with the supplied provider.
func NewCodec(keys KeyProvider, issuer string) (*Codec, error) {
	if keys == nil {
		return nil, fmt.Errorf("key provider is required")
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	codec := &Codec{keys: keys, issuer: issuer}
	codec.now = func() time.Time { return time.Now().UTC() }
	return codec, nil
}

// WithClock overrides the codec clock for deterministic tests.
func (c *Codec) WithClock(clock func() time.Time) {
	if clock != nil {
		c.now = clock
	}
}

// Issue mints a signed access token for the principal at the supplied family
// generation.
func (c *Codec) Issue(principalID, familyID string, generation int64, ttl time.Duration) (string, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return "", fmt.Errorf("principal id is required")
	}
	familyID = strings.TrimSpace(familyID)
	if familyID == "" {
		return "", fmt.Errorf("family id is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}

	now := c.now()
	claims := AccessTokenClaims{
		PrincipalID: principalID,
		FamilyID:    familyID,
		Generation:  generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = c.keys.SigningKID()

	signingKey, err := c.keys.GetSigningKey()
	if err != nil {
		return "", fmt.Errorf("get signing key: %w", err)
	}

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Verify validates the token signature and expiry and returns its claims.
func (c *Codec) Verify(token string) (*AccessTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		kid, _ := t.Header["kid"].(string)
		kid = strings.TrimSpace(kid)
		if kid == "" {
			return nil, fmt.Errorf("kid header not found")
		}

		return c.keys.GetVerificationKey(kid)
	}, jwt.WithTimeFunc(c.now), jwt.WithIssuer(c.issuer), jwt.WithAudience(c.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.PrincipalID) == "" || strings.TrimSpace(claims.FamilyID) == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
