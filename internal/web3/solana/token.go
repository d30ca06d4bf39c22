package solana

import (
	"errors"
	"math/bits"
)

// MintAccountSize is the byte size of an SPL token mint account.
const MintAccountSize = 82

// MaxDecimals caps token precision; larger values overflow typical supplies.
const MaxDecimals = 9

// ErrAmountOverflow is returned when supply × 10^decimals exceeds u64.
var ErrAmountOverflow = errors.New("supply multiplied by 10^decimals overflows u64")

// BaseUnits converts a whole-token supply to base units.
func BaseUnits(supply uint64, decimals uint8) (uint64, error) {
	amount := supply
	for range decimals {
		hi, lo := bits.Mul64(amount, 10)
		if hi != 0 {
			return 0, ErrAmountOverflow
		}
		amount = lo
	}
	return amount, nil
}

// CreateAccountInstruction allocates space owned by owner.
func CreateAccountInstruction(from, newAccount PublicKey, lamports, space uint64, owner PublicKey) Instruction {
	data := appendU32(nil, 0)
	data = appendU64(data, lamports)
	data = appendU64(data, space)
	data = append(data, owner[:]...)
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{PublicKey: from, IsSigner: true, IsWritable: true},
			{PublicKey: newAccount, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

// InitializeMint2Instruction initialises a mint without the rent sysvar.
// A nil freeze authority leaves the mint unfreezable.
func InitializeMint2Instruction(mint PublicKey, decimals uint8, mintAuthority PublicKey, freezeAuthority *PublicKey) Instruction {
	data := []byte{20, decimals}
	data = append(data, mintAuthority[:]...)
	if freezeAuthority != nil {
		data = append(data, 1)
		data = append(data, freezeAuthority[:]...)
	} else {
		data = append(data, 0)
		data = append(data, make([]byte, PublicKeyLength)...)
	}
	return Instruction{
		ProgramID: TokenProgramID,
		Accounts:  []AccountMeta{{PublicKey: mint, IsWritable: true}},
		Data:      data,
	}
}

// CreateAssociatedTokenAccountIdempotentInstruction creates owner's token
// account for mint unless it already exists.
func CreateAssociatedTokenAccountIdempotentInstruction(payer, ata, owner, mint PublicKey) Instruction {
	return Instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts: []AccountMeta{
			{PublicKey: payer, IsSigner: true, IsWritable: true},
			{PublicKey: ata, IsWritable: true},
			{PublicKey: owner},
			{PublicKey: mint},
			{PublicKey: SystemProgramID},
			{PublicKey: TokenProgramID},
		},
		Data: []byte{1},
	}
}

// MintToInstruction mints amount base units into destination.
func MintToInstruction(mint, destination, authority PublicKey, amount uint64) Instruction {
	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			{PublicKey: mint, IsWritable: true},
			{PublicKey: destination, IsWritable: true},
			{PublicKey: authority, IsSigner: true},
		},
		Data: appendU64([]byte{7}, amount),
	}
}
