// Package token mints and verifies the signed, self-contained bearer tokens used
// for email verification, API access and session refresh.
package token

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind discriminates token categories. Each kind is signed with its own secret
// and carries its kind as a claim, so a token of one kind never verifies as another.
type Kind string

const (
	KindVerifyEmail Kind = "verify-email"
	KindAccess      Kind = "access"
	KindRefresh     Kind = "refresh"
)

const minSecretBytes = 32

// Default lifetimes per kind.
const (
	DefaultVerifyTTL  = 24 * time.Hour
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	ErrExpired          = errors.New("token: expired")
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrMalformed        = errors.New("token: malformed")
	ErrInvalidKind      = errors.New("token: invalid kind")
)

// Config carries the secrets and lifetimes supplied at process start.
type Config struct {
	Issuer        string
	VerifySecret  []byte
	AccessSecret  []byte
	RefreshSecret []byte
	VerifyTTL     time.Duration
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Claims is the payload embedded in every token.
type Claims struct {
	Kind    Kind   `json:"kind"`
	Role    string `json:"role,omitempty"`
	Version int    `json:"ver,omitempty"`
	jwt.RegisteredClaims
}

// Issued is a freshly minted token with its expiry.
type Issued struct {
	Value     string
	ExpiresAt time.Time
}

// Signer issues and verifies HS256 tokens. It holds no mutable state and is
// safe for concurrent use.
type Signer struct {
	issuer  string
	secrets map[Kind][]byte
	ttls    map[Kind]time.Duration
	leeway  time.Duration
	now     func() time.Time
}

// NewSigner validates cfg and constructs a Signer.
func NewSigner(cfg Config) (*Signer, error) {
	secrets := map[Kind][]byte{
		KindVerifyEmail: cfg.VerifySecret,
		KindAccess:      cfg.AccessSecret,
		KindRefresh:     cfg.RefreshSecret,
	}
	for kind, secret := range secrets {
		if len(secret) < minSecretBytes {
			return nil, fmt.Errorf("token: %s secret must be at least %d bytes", kind, minSecretBytes)
		}
	}
	if bytes.Equal(cfg.VerifySecret, cfg.AccessSecret) ||
		bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) ||
		bytes.Equal(cfg.VerifySecret, cfg.RefreshSecret) {
		return nil, errors.New("token: secrets must differ per kind")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: invalid leeway configuration")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errors.New("token: issuer must be provided")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Signer{
		issuer:  issuer,
		secrets: secrets,
		ttls: map[Kind]time.Duration{
			KindVerifyEmail: orDefault(cfg.VerifyTTL, DefaultVerifyTTL),
			KindAccess:      orDefault(cfg.AccessTTL, DefaultAccessTTL),
			KindRefresh:     orDefault(cfg.RefreshTTL, DefaultRefreshTTL),
		},
		leeway: cfg.Leeway,
		now:    now,
	}, nil
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// TTL returns the configured lifetime for kind.
func (s *Signer) TTL(kind Kind) time.Duration {
	return s.ttls[kind]
}

// Issue signs claims as a token of claims.Kind valid for ttl.
func (s *Signer) Issue(claims Claims, ttl time.Duration) (Issued, error) {
	secret, ok := s.secrets[claims.Kind]
	if !ok {
		return Issued{}, fmt.Errorf("%w: %q", ErrInvalidKind, claims.Kind)
	}
	if claims.Subject == "" {
		return Issued{}, errors.New("token: subject must be provided")
	}
	if ttl <= 0 {
		return Issued{}, errors.New("token: ttl must be positive")
	}
	now := s.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl)
	claims.Issuer = s.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = nil
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	claims.ID = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Issued{}, fmt.Errorf("token: sign: %w", err)
	}
	return Issued{Value: signed, ExpiresAt: expiresAt}, nil
}

// IssueVerifyEmail mints an email-verification token for userID.
func (s *Signer) IssueVerifyEmail(userID string) (Issued, error) {
	return s.Issue(Claims{Kind: KindVerifyEmail, RegisteredClaims: jwt.RegisteredClaims{Subject: userID}}, s.ttls[KindVerifyEmail])
}

// IssueAccess mints an access token binding role and tokenVersion.
func (s *Signer) IssueAccess(userID, role string, tokenVersion int) (Issued, error) {
	return s.Issue(Claims{Kind: KindAccess, Role: role, Version: tokenVersion, RegisteredClaims: jwt.RegisteredClaims{Subject: userID}}, s.ttls[KindAccess])
}

// IssueRefresh mints a refresh token binding tokenVersion.
func (s *Signer) IssueRefresh(userID string, tokenVersion int) (Issued, error) {
	return s.Issue(Claims{Kind: KindRefresh, Version: tokenVersion, RegisteredClaims: jwt.RegisteredClaims{Subject: userID}}, s.ttls[KindRefresh])
}

// Verify parses raw as a token of the expected kind. It fails with ErrExpired,
// ErrInvalidSignature, ErrInvalidKind or ErrMalformed.
func (s *Signer) Verify(expected Kind, raw string) (*Claims, error) {
	secret, ok := s.secrets[expected]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, expected)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.leeway > 0 {
		options = append(options, jwt.WithLeeway(s.leeway))
	}

	claims := &Claims{}
	parsed, err := jwt.NewParser(options...).ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		c, ok := t.Claims.(*Claims)
		if !ok || c.Kind != expected {
			return nil, ErrInvalidKind
		}
		return secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrInvalidKind):
		return ErrInvalidKind
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
