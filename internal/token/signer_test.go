package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Issuer:        "odyssey-auth-test",
		VerifySecret:  []byte(strings.Repeat("v", 32)),
		AccessSecret:  []byte(strings.Repeat("a", 32)),
		RefreshSecret: []byte(strings.Repeat("r", 32)),
	}
}

func newTestSigner(t *testing.T, mutate func(*Config)) *Signer {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSigner(cfg)
	require.NoError(t, err)
	return s
}

func TestIssueAndVerifyPerKind(t *testing.T) {
	s := newTestSigner(t, nil)

	verify, err := s.IssueVerifyEmail("user-1")
	require.NoError(t, err)
	claims, err := s.Verify(KindVerifyEmail, verify.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, KindVerifyEmail, claims.Kind)
	assert.NotEmpty(t, claims.ID)

	access, err := s.IssueAccess("user-1", "admin", 3)
	require.NoError(t, err)
	claims, err = s.Verify(KindAccess, access.Value)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, 3, claims.Version)

	refresh, err := s.IssueRefresh("user-1", 7)
	require.NoError(t, err)
	claims, err = s.Verify(KindRefresh, refresh.Value)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.Version)
	assert.Empty(t, claims.Role)
}

func TestDefaultTTLs(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestSigner(t, func(c *Config) { c.Now = func() time.Time { return fixed } })

	verify, err := s.IssueVerifyEmail("u")
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(24*time.Hour), verify.ExpiresAt)

	access, err := s.IssueAccess("u", "user", 0)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(15*time.Minute), access.ExpiresAt)

	refresh, err := s.IssueRefresh("u", 0)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(7*24*time.Hour), refresh.ExpiresAt)
}

func TestCrossKindReplayFails(t *testing.T) {
	s := newTestSigner(t, nil)
	verify, err := s.IssueVerifyEmail("user-1")
	require.NoError(t, err)
	refresh, err := s.IssueRefresh("user-1", 0)
	require.NoError(t, err)

	_, err = s.Verify(KindAccess, verify.Value)
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = s.Verify(KindAccess, refresh.Value)
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = s.Verify(KindVerifyEmail, refresh.Value)
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestVerifyExpired(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	old := newTestSigner(t, func(c *Config) { c.Now = func() time.Time { return past } })
	issued, err := old.IssueVerifyEmail("user-1")
	require.NoError(t, err)

	current := newTestSigner(t, nil)
	_, err = current.Verify(KindVerifyEmail, issued.Value)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyTamperedSignature(t *testing.T) {
	s := newTestSigner(t, nil)
	issued, err := s.IssueAccess("user-1", "user", 0)
	require.NoError(t, err)

	parts := strings.Split(issued.Value, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = s.Verify(KindAccess, tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyForeignSecret(t *testing.T) {
	s := newTestSigner(t, nil)
	claims := Claims{Kind: KindAccess, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "odyssey-auth-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.Repeat("x", 32)))
	require.NoError(t, err)

	_, err = s.Verify(KindAccess, forged)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsUnsignedAlgorithm(t *testing.T) {
	s := newTestSigner(t, nil)
	claims := Claims{Kind: KindAccess, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "odyssey-auth-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = s.Verify(KindAccess, unsigned)
	assert.Error(t, err)
}

func TestVerifyMalformed(t *testing.T) {
	s := newTestSigner(t, nil)
	for _, raw := range []string{"", "   ", "abc", "a.b.c"} {
		_, err := s.Verify(KindVerifyEmail, raw)
		assert.ErrorIs(t, err, ErrMalformed, "input %q", raw)
	}
}

func TestVerifyWrongIssuer(t *testing.T) {
	other := newTestSigner(t, func(c *Config) { c.Issuer = "someone-else" })
	issued, err := other.IssueAccess("user-1", "user", 0)
	require.NoError(t, err)

	s := newTestSigner(t, nil)
	_, err = s.Verify(KindAccess, issued.Value)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewSignerValidation(t *testing.T) {
	_, err := NewSigner(Config{Issuer: "x"})
	assert.Error(t, err)

	cfg := testConfig()
	cfg.RefreshSecret = cfg.AccessSecret
	_, err = NewSigner(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Issuer = " "
	_, err = NewSigner(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Leeway = time.Hour
	_, err = NewSigner(cfg)
	assert.Error(t, err)
}

func TestIssueRejectsMissingSubject(t *testing.T) {
	s := newTestSigner(t, nil)
	_, err := s.IssueAccess("", "user", 0)
	assert.Error(t, err)

	_, err = s.Issue(Claims{Kind: "session", RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}}, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidKind)
}
