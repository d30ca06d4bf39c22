package solana

import (
	"encoding/json"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeed(offset byte) []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i) + offset
	}
	return seed
}

func TestParsePublicKey(t *testing.T) {
	pk, err := ParsePublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	require.NoError(t, err)
	assert.Equal(t, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", pk.String())

	_, err = ParsePublicKey("not-base58-0OIl")
	assert.Error(t, err)
	_, err = ParsePublicKey("abc")
	assert.Error(t, err, "too short")

	encoded, err := json.Marshal(pk)
	require.NoError(t, err)
	assert.JSONEq(t, `"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"`, string(encoded))
}

func TestAssociatedTokenAddress(t *testing.T) {
	owner := MustPublicKey("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	mint := MustPublicKey("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	ata, err := AssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, "FGETo8T8wMcN2wCjav8VK6eh3dLk63evNDPxzLSJra8B", ata.String())
	assert.False(t, ata.IsOnCurve())
	assert.True(t, owner.IsOnCurve())

	_, bump, err := FindProgramAddress([][]byte{owner[:], TokenProgramID[:], mint[:]}, AssociatedTokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, uint8(254), bump)
}

func TestCreateProgramAddressRejectsLongSeeds(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{make([]byte, 33)}, TokenProgramID)
	assert.Error(t, err)
}

func TestParseKeypairFormats(t *testing.T) {
	kp, err := KeypairFromSeed(testSeed(1))
	require.NoError(t, err)

	ints := make([]int, len(kp.private))
	for i, b := range kp.private {
		ints[i] = int(b)
	}
	array, err := json.Marshal(ints)
	require.NoError(t, err)

	for name, encoded := range map[string]string{
		"base64": kp.Base64(),
		"base58": base58.Encode(kp.private),
		"json":   string(array),
	} {
		parsed, err := ParseKeypair("  " + encoded + "\n")
		require.NoError(t, err, name)
		assert.Equal(t, kp.PublicKey(), parsed.PublicKey(), name)
	}
}

func TestParseKeypairRejectsMismatchedPublicHalf(t *testing.T) {
	kp, err := KeypairFromSeed(testSeed(1))
	require.NoError(t, err)
	raw := append([]byte(nil), kp.private...)
	raw[40] ^= 0xff
	_, err = ParseKeypair(base58.Encode(raw))
	assert.Error(t, err)

	_, err = ParseKeypair("")
	assert.Error(t, err)
	_, err = ParseKeypair("[1,2,300]")
	assert.Error(t, err)
}
