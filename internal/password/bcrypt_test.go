package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func TestHashRoundTrip(t *testing.T) {
	h := newTestHasher(t)
	for _, plaintext := range []string{"Secret123", "correct horse battery staple", "pässwörd", " "} {
		digest, err := h.Hash(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, digest)

		ok, err := h.Verify(plaintext, digest)
		require.NoError(t, err)
		assert.True(t, ok, "plaintext %q should verify", plaintext)
	}
}

func TestVerifyMismatchIsNotAnError(t *testing.T) {
	h := newTestHasher(t)
	digest, err := h.Hash("Secret123")
	require.NoError(t, err)

	ok, err := h.Verify("WrongPass", digest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashSaltsEachCall(t *testing.T) {
	h := newTestHasher(t)
	first, err := h.Hash("Secret123")
	require.NoError(t, err)
	second, err := h.Hash("Secret123")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestVerifyMalformedDigest(t *testing.T) {
	h := newTestHasher(t)
	ok, err := h.Verify("Secret123", "not-a-bcrypt-digest")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrMalformedHash)
}

func TestHashRejectsLongPassword(t *testing.T) {
	h := newTestHasher(t)
	_, err := h.Hash(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestNewHasherCost(t *testing.T) {
	h, err := NewHasher(0)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, h.cost)

	_, err = NewHasher(bcrypt.MaxCost + 1)
	assert.Error(t, err)
}
