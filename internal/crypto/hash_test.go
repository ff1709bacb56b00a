package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("longpass1")
	require.NoError(t, err)
	assert.NotEqual(t, "longpass1", hash)

	require.NoError(t, h.Verify("longpass1", hash))
	assert.ErrorIs(t, h.Verify("wrongpass", hash), ErrMismatch)
}

func TestHasher_Hash_Empty(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret cannot be empty")
	assert.Empty(t, hash)
}

func TestHasher_Verify_BadHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	err := h.Verify("1234", "")
	require.Error(t, err)

	err = h.Verify("1234", "not-a-bcrypt-hash")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMismatch)
}

func TestNewHasher_InvalidCost(t *testing.T) {
	assert.Equal(t, DefaultCost, NewHasher(0).cost)
	assert.Equal(t, DefaultCost, NewHasher(bcrypt.MaxCost+1).cost)
	assert.Equal(t, 12, NewHasher(12).cost)
}

func TestHasher_SaltedHashes(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash1, err := h.Hash("1234")
	require.NoError(t, err)
	hash2, err := h.Hash("1234")
	require.NoError(t, err)

	// bcrypt солит каждый хеш
	assert.NotEqual(t, hash1, hash2)
}
