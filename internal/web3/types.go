package web3

import (
	"context"
	"strings"
)

// Kind identifies the chain family a client speaks to.
type Kind string

const (
	KindSolana Kind = "solana"
	KindEVM    Kind = "evm"
)

// ChainSnapshot represents summarized network metadata for UI/reporting.
// For Solana the chain id is the genesis hash and the block number is the slot.
type ChainSnapshot struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	ChainID     string `json:"chainId"`
	BlockNumber string `json:"blockNumber"`
	Notes       string `json:"notes,omitempty"`
}

// Client defines the read operations every chain implementation provides.
// Balances are returned in whole units (SOL, ETH, or token UI amount).
type Client interface {
	Name() string
	Kind() Kind
	Network() string
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	NativeBalance(ctx context.Context, owner string) (float64, error)
	TokenBalance(ctx context.Context, token, owner string) (float64, error)
	Close()
}

// TokenSpec describes a fungible token to create.
type TokenSpec struct {
	Name     string
	Symbol   string
	Decimals uint8
	Supply   uint64
}

// TokenData is the outcome of a successful token creation.
type TokenData struct {
	Mint         string `json:"mint"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Decimals     uint8  `json:"decimals"`
	Supply       uint64 `json:"supply"`
	Network      string `json:"network"`
	Signature    string `json:"signature,omitempty"`
	TokenAccount string `json:"tokenAccount,omitempty"`
}

// TokenIssuer is implemented by clients holding a funded signer.
type TokenIssuer interface {
	CreateToken(ctx context.Context, spec TokenSpec) (*TokenData, error)
}

// NetworkLabel derives a cluster label from an RPC endpoint.
func NetworkLabel(rpcURL string) string {
	lower := strings.ToLower(rpcURL)
	switch {
	case strings.Contains(lower, "devnet"):
		return "devnet"
	case strings.Contains(lower, "testnet"):
		return "testnet"
	case strings.Contains(lower, "localhost"), strings.Contains(lower, "127.0.0.1"):
		return "localnet"
	default:
		return "mainnet"
	}
}
