package solana

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactU16(t *testing.T) {
	cases := map[int][]byte{
		0:      {0x00},
		0x7f:   {0x7f},
		0x80:   {0x80, 0x01},
		0x3fff: {0xff, 0x7f},
		0x4000: {0x80, 0x80, 0x01},
	}
	for n, want := range cases {
		assert.Equal(t, want, appendCompactU16(nil, n), "n=%d", n)
	}
}

func tokenCreationMessage(t *testing.T, payer, mint Keypair) (*Message, PublicKey) {
	t.Helper()
	authority := payer.PublicKey()
	ata, err := AssociatedTokenAddress(authority, mint.PublicKey())
	require.NoError(t, err)
	blockhash, err := ParseHash(TokenProgramID.String())
	require.NoError(t, err)

	msg, err := NewMessage(authority, blockhash,
		CreateAccountInstruction(authority, mint.PublicKey(), 1461600, MintAccountSize, TokenProgramID),
		InitializeMint2Instruction(mint.PublicKey(), 9, authority, &authority),
		CreateAssociatedTokenAccountIdempotentInstruction(authority, ata, authority, mint.PublicKey()),
		MintToInstruction(mint.PublicKey(), ata, authority, 1_000),
	)
	require.NoError(t, err)
	return msg, ata
}

func TestNewMessageOrdersAccounts(t *testing.T) {
	payer, _ := KeypairFromSeed(testSeed(1))
	mint, _ := KeypairFromSeed(testSeed(50))
	msg, ata := tokenCreationMessage(t, payer, mint)

	assert.Equal(t, MessageHeader{NumRequiredSignatures: 2, NumReadonlySignedAccounts: 0, NumReadonlyUnsignedAccounts: 3}, msg.Header)
	assert.Equal(t, []PublicKey{
		payer.PublicKey(), mint.PublicKey(), ata,
		SystemProgramID, TokenProgramID, AssociatedTokenProgramID,
	}, msg.AccountKeys)

	require.Len(t, msg.Instructions, 4)
	assert.Equal(t, CompiledInstruction{ProgramIDIndex: 3, Accounts: []uint8{0, 1}, Data: msg.Instructions[0].Data}, msg.Instructions[0])
	assert.Equal(t, []uint8{0, 2, 0, 1, 3, 4}, msg.Instructions[2].Accounts)
	assert.Equal(t, uint8(5), msg.Instructions[2].ProgramIDIndex)
	assert.Equal(t, []uint8{1, 2, 0}, msg.Instructions[3].Accounts)
}

func TestSignTransaction(t *testing.T) {
	payer, _ := KeypairFromSeed(testSeed(1))
	mint, _ := KeypairFromSeed(testSeed(50))
	msg, _ := tokenCreationMessage(t, payer, mint)

	_, err := SignTransaction(msg, payer)
	assert.Error(t, err, "mint signature is required")

	tx, err := SignTransaction(msg, mint, payer)
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 2)

	raw := tx.Serialize()
	assert.Equal(t, byte(2), raw[0])
	body := raw[1+2*64:]
	assert.Equal(t, msg.Serialize(), body)
	payerKey := payer.PublicKey()
	assert.True(t, ed25519.Verify(payerKey[:], body, tx.Signatures[0][:]))
	mintKey := mint.PublicKey()
	assert.True(t, ed25519.Verify(mintKey[:], body, tx.Signatures[1][:]))
	assert.NotEmpty(t, tx.Signature())
}

func TestNewMessageRequiresInstructions(t *testing.T) {
	_, err := NewMessage(SystemProgramID, Hash{})
	assert.Error(t, err)
}
