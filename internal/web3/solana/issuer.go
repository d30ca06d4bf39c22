package solana

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/web3"
)

// CreateToken creates a mint with the wallet as mint and freeze authority,
// creates the wallet's associated token account and mints the full supply
// into it. All four instructions go out in one transaction signed by the
// wallet and the fresh mint key.
func (c *Client) CreateToken(ctx context.Context, spec web3.TokenSpec) (*web3.TokenData, error) {
	if c.signer == nil {
		return nil, xerrors.New(xerrors.CodeNotConfigured, "SOLANA_PRIVATE_KEY not configured")
	}
	if strings.TrimSpace(spec.Name) == "" || strings.TrimSpace(spec.Symbol) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "token name and symbol are required")
	}
	if spec.Decimals > MaxDecimals {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "decimals must be between 0 and %d", MaxDecimals)
	}
	if spec.Supply == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "supply must be greater than 0")
	}
	amount, err := BaseUnits(spec.Supply, spec.Decimals)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "supply too large")
	}

	payer := *c.signer
	mint, err := NewKeypair()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "generate mint keypair")
	}
	ata, err := AssociatedTokenAddress(payer.PublicKey(), mint.PublicKey())
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "derive token account")
	}

	rent, err := c.minimumBalanceForRentExemption(ctx, MintAccountSize)
	if err != nil {
		return nil, err
	}
	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	authority := payer.PublicKey()
	msg, err := NewMessage(authority, blockhash,
		CreateAccountInstruction(authority, mint.PublicKey(), rent, MintAccountSize, TokenProgramID),
		InitializeMint2Instruction(mint.PublicKey(), spec.Decimals, authority, &authority),
		CreateAssociatedTokenAccountIdempotentInstruction(authority, ata, authority, mint.PublicKey()),
		MintToInstruction(mint.PublicKey(), ata, authority, amount),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "compile transaction")
	}
	tx, err := SignTransaction(msg, payer, mint)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "sign transaction")
	}

	signature, err := c.sendTransaction(ctx, tx)
	if err != nil {
		if rejectedSubmission(err) {
			return nil, err
		}
		return nil, outcomeUnknown(err, tx.Signature(), "transaction "+tx.Signature()+" may have been submitted")
	}
	if signature != tx.Signature() {
		c.log.Warn("节点返回的交易签名与本地不一致", slog.String("expected", tx.Signature()), slog.String("got", signature))
	}

	confirmCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()
	if err := c.Confirm(confirmCtx, signature); err != nil {
		if failedOnChain(err) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, outcomeUnknown(err, signature, "transaction "+signature+" not confirmed in time")
		}
		return nil, outcomeUnknown(err, signature, "transaction "+signature+" confirmation failed")
	}

	c.log.Info("代币创建成功",
		slog.String("mint", mint.PublicKey().String()),
		slog.String("symbol", spec.Symbol),
		slog.String("signature", signature),
		slog.String("network", c.Network()))

	return &web3.TokenData{
		Mint:         mint.PublicKey().String(),
		Name:         spec.Name,
		Symbol:       spec.Symbol,
		Decimals:     spec.Decimals,
		Supply:       spec.Supply,
		Network:      c.Network(),
		Signature:    signature,
		TokenAccount: ata.String(),
	}, nil
}

// rejectedSubmission reports whether the node answered sendTransaction with
// an error, in which case nothing reached the cluster.
func rejectedSubmission(err error) bool {
	var rpcErr gethrpc.Error
	return errors.As(err, &rpcErr) || xerrors.CodeOf(err) == xerrors.CodeRateLimited
}

// outcomeUnknown marks a failure after the transaction left this process. The
// mint may still land, so callers must not resubmit.
func outcomeUnknown(err error, signature, message string) error {
	return xerrors.Wrap(xerrors.CodeOutcomeUnknown, err, message, xerrors.WithMetadata("signature", signature))
}

