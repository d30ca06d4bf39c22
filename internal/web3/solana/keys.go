package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of an account address.
const PublicKeyLength = 32

var (
	SystemProgramID          = MustPublicKey("11111111111111111111111111111111")
	TokenProgramID           = MustPublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustPublicKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// ErrNoViableBump is returned when no bump seed yields an off-curve address.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// PublicKey is an ed25519 public key or program derived address.
type PublicKey [PublicKeyLength]byte

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(strings.TrimSpace(s))
	if err != nil {
		return pk, fmt.Errorf("invalid public key %q: %w", s, err)
	}
	if len(raw) != PublicKeyLength {
		return pk, fmt.Errorf("invalid public key %q: expected %d bytes, got %d", s, PublicKeyLength, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustPublicKey is ParsePublicKey for constants.
func MustPublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 form.
func (p PublicKey) String() string { return base58.Encode(p[:]) }

// IsOnCurve reports whether p decodes to a point on the ed25519 curve.
func (p PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(p[:])
	return err == nil
}

// MarshalJSON encodes the key as a base58 string.
func (p PublicKey) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

// FindProgramAddress searches bump seeds from 255 downwards for the first
// address that is not a valid curve point.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, err := CreateProgramAddress(append(slices.Clip(seeds), []byte{byte(bump)}), programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}

// CreateProgramAddress hashes seeds with the program id and rejects on-curve results.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > 32 {
			return PublicKey{}, fmt.Errorf("seed longer than 32 bytes")
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte("ProgramDerivedAddress"))

	var addr PublicKey
	copy(addr[:], h.Sum(nil))
	if addr.IsOnCurve() {
		return PublicKey{}, errors.New("derived address is on the ed25519 curve")
	}
	return addr, nil
}

// AssociatedTokenAddress derives the canonical token account of owner for mint.
func AssociatedTokenAddress(owner, mint PublicKey) (PublicKey, error) {
	addr, _, err := FindProgramAddress([][]byte{owner[:], TokenProgramID[:], mint[:]}, AssociatedTokenProgramID)
	return addr, err
}

// Keypair is an ed25519 signing key.
type Keypair struct {
	private ed25519.PrivateKey
}

// NewKeypair generates a random keypair.
func NewKeypair() (Keypair, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{private: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return Keypair{}, fmt.Errorf("seed must be %d bytes", ed25519.SeedSize)
	}
	return Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// ParseKeypair accepts a 64-byte secret key encoded as base64, base58, or a
// JSON byte array (the solana-keygen file format).
func ParseKeypair(encoded string) (Keypair, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return Keypair{}, errors.New("empty secret key")
	}

	var raw []byte
	switch {
	case strings.HasPrefix(encoded, "["):
		var ints []int
		if err := json.Unmarshal([]byte(encoded), &ints); err != nil {
			return Keypair{}, fmt.Errorf("decode secret key array: %w", err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return Keypair{}, fmt.Errorf("secret key byte %d out of range", i)
			}
			raw[i] = byte(v)
		}
	default:
		if b, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(b) == ed25519.PrivateKeySize {
			raw = b
		} else if b, err := base58.Decode(encoded); err == nil && len(b) == ed25519.PrivateKeySize {
			raw = b
		} else {
			return Keypair{}, errors.New("secret key is neither base64 nor base58 of 64 bytes")
		}
	}
	if len(raw) != ed25519.PrivateKeySize {
		return Keypair{}, fmt.Errorf("secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}

	kp := Keypair{private: ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])}
	if !bytes.Equal(kp.private[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return Keypair{}, errors.New("secret key public half does not match its seed")
	}
	return kp, nil
}

// PublicKey returns the address of the keypair.
func (k Keypair) PublicKey() PublicKey {
	var pk PublicKey
	if len(k.private) == ed25519.PrivateKeySize {
		copy(pk[:], k.private[ed25519.SeedSize:])
	}
	return pk
}

// Sign signs message with the private key.
func (k Keypair) Sign(message []byte) [64]byte {
	var sig [64]byte
	copy(sig[:], ed25519.Sign(k.private, message))
	return sig
}

// Base64 encodes the 64-byte secret key the way SOLANA_PRIVATE_KEY expects it.
func (k Keypair) Base64() string { return base64.StdEncoding.EncodeToString(k.private) }
