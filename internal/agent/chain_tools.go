package agent

import (
	"context"

	"golang.org/x/sync/errgroup"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/web3"
	"KOL-Agent/internal/web3/solana"
)

const (
	defaultDecimals = 9
	defaultSupply   = 1_000_000_000
	maxSupply       = 9e18
)

func (a *Agent) createToken(ctx context.Context, args Arguments) (any, error) {
	name, err := args.requiredString("name")
	if err != nil {
		return nil, err
	}
	symbol, err := args.requiredString("symbol")
	if err != nil {
		return nil, err
	}
	decimals, err := args.integer("decimals", defaultDecimals, 0, solana.MaxDecimals)
	if err != nil {
		return nil, err
	}
	supply, err := args.integer("supply", defaultSupply, 1, maxSupply)
	if err != nil {
		return nil, err
	}
	network, err := args.optionalString("network")
	if err != nil {
		return nil, err
	}

	if !a.caps.TokenCreation {
		return nil, xerrors.New(xerrors.CodeCapabilityDisabled, "token creation is disabled: enable capabilities.token_creation and configure SOLANA_PRIVATE_KEY")
	}
	_, issuer, err := a.deps.Chains.Issuer(network)
	if err != nil {
		return nil, err
	}
	return issuer.CreateToken(ctx, web3.TokenSpec{
		Name:     name,
		Symbol:   symbol,
		Decimals: uint8(decimals),
		Supply:   uint64(supply),
	})
}

type balanceResult struct {
	TokenBalance  float64  `json:"tokenBalance"`
	SolBalance    *float64 `json:"solBalance,omitempty"`
	NativeBalance *float64 `json:"nativeBalance,omitempty"`
	Mint          string   `json:"mint"`
	Owner         string   `json:"owner"`
	Network       string   `json:"network"`
}

func (a *Agent) checkBalance(ctx context.Context, args Arguments) (any, error) {
	mint, err := args.requiredString("mint")
	if err != nil {
		return nil, err
	}
	owner, err := args.requiredString("owner")
	if err != nil {
		return nil, err
	}
	network, err := args.optionalString("network")
	if err != nil {
		return nil, err
	}
	if a.deps.Chains == nil {
		return nil, xerrors.New(xerrors.CodeNotConfigured, "no chain RPC endpoint configured")
	}
	client, err := a.deps.Chains.Resolve(network)
	if err != nil {
		return nil, err
	}

	var tokenBalance, nativeBalance float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tokenBalance, err = client.TokenBalance(gctx, mint, owner)
		return err
	})
	g.Go(func() error {
		var err error
		nativeBalance, err = client.NativeBalance(gctx, owner)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := balanceResult{
		TokenBalance: tokenBalance,
		Mint:         mint,
		Owner:        owner,
		Network:      client.Network(),
	}
	if client.Kind() == web3.KindSolana {
		result.SolBalance = &nativeBalance
	} else {
		result.NativeBalance = &nativeBalance
	}
	return result, nil
}
