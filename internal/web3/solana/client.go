// Package solana implements web3.Client and web3.TokenIssuer for Solana
// clusters over JSON-RPC, including SPL token creation.
package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/web3"
	"KOL-Agent/pkg/logger"
)

const (
	lamportsPerSOL        = 1e9
	defaultCommitment     = "confirmed"
	defaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
)

// Config describes how to reach a cluster and which key pays for writes.
type Config struct {
	Name           string
	RPCURL         string
	WSURL          string
	Commitment     string
	PrivateKey     string
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Notes          string
}

// Client talks to a Solana RPC node.
type Client struct {
	name           string
	rpcURL         string
	wsURL          string
	notes          string
	commitment     string
	confirmTimeout time.Duration
	pollInterval   time.Duration
	signer         *Keypair
	log            *slog.Logger

	mu  sync.Mutex
	rpc *gethrpc.Client
}

var (
	_ web3.Client      = (*Client)(nil)
	_ web3.TokenIssuer = (*Client)(nil)
)

// NewClient dials the RPC endpoint. An invalid private key fails construction;
// an empty one leaves the client read-only.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置 Solana RPC 地址")
	}
	rpc, err := gethrpc.DialOptions(ctx, rpcURL, gethrpc.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}))
	if err != nil {
		return nil, fmt.Errorf("连接 Solana 节点失败: %w", err)
	}

	c := &Client{
		name:           cfg.Name,
		rpcURL:         rpcURL,
		wsURL:          strings.TrimSpace(cfg.WSURL),
		notes:          cfg.Notes,
		commitment:     cfg.Commitment,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		rpc:            rpc,
		log:            logger.Named("solana"),
	}
	if c.name == "" {
		c.name = "solana"
	}
	if c.commitment == "" {
		c.commitment = defaultCommitment
	}
	if commitmentRank(c.commitment) < 0 {
		rpc.Close()
		return nil, fmt.Errorf("未知的 commitment: %s", c.commitment)
	}
	if c.confirmTimeout <= 0 {
		c.confirmTimeout = defaultConfirmTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if key := strings.TrimSpace(cfg.PrivateKey); key != "" {
		kp, err := ParseKeypair(key)
		if err != nil {
			rpc.Close()
			return nil, fmt.Errorf("解析 Solana 私钥失败: %w", err)
		}
		c.signer = &kp
	}
	return c, nil
}

// Name implements web3.Client.
func (c *Client) Name() string { return c.name }

// Kind implements web3.Client.
func (c *Client) Kind() web3.Kind { return web3.KindSolana }

// Network returns devnet, testnet, localnet or mainnet based on the RPC URL.
func (c *Client) Network() string { return web3.NetworkLabel(c.rpcURL) }

// Wallet returns the signer address, if a key is configured.
func (c *Client) Wallet() (PublicKey, bool) {
	if c.signer == nil {
		return PublicKey{}, false
	}
	return c.signer.PublicKey(), true
}

// CanIssueTokens reports whether a signing wallet is configured.
func (c *Client) CanIssueTokens() bool { return c.signer != nil }

// Close releases the RPC connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		c.rpc.Close()
		c.rpc = nil
	}
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	c.mu.Lock()
	rpc := c.rpc
	c.mu.Unlock()
	if rpc == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "solana client closed")
	}
	if err := rpc.CallContext(ctx, result, method, args...); err != nil {
		return classifyRPCError(method, err)
	}
	return nil
}

func classifyRPCError(method string, err error) error {
	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return xerrors.Wrap(xerrors.CodeRateLimited, err, method+" rate limited")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, method+" timed out")
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		// -32602 is JSON-RPC invalid params, e.g. a malformed address.
		if rpcErr.ErrorCode() == -32602 {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, method+" rejected parameters")
		}
	}
	return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, method+" failed")
}

type contextValue[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

// FetchChainSnapshot reports the genesis hash and current slot.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	var genesis string
	if err := c.call(ctx, &genesis, "getGenesisHash"); err != nil {
		return web3.ChainSnapshot{}, err
	}
	var slot uint64
	if err := c.call(ctx, &slot, "getSlot", map[string]string{"commitment": c.commitment}); err != nil {
		return web3.ChainSnapshot{}, err
	}
	return web3.ChainSnapshot{
		Name:        c.name,
		Kind:        web3.KindSolana,
		ChainID:     genesis,
		BlockNumber: strconv.FormatUint(slot, 10),
		Notes:       c.notes,
	}, nil
}

// NativeBalance returns the SOL balance of owner.
func (c *Client) NativeBalance(ctx context.Context, owner string) (float64, error) {
	pk, err := ParsePublicKey(owner)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid owner address")
	}
	var res contextValue[uint64]
	if err := c.call(ctx, &res, "getBalance", pk.String(), map[string]string{"commitment": c.commitment}); err != nil {
		return 0, err
	}
	return float64(res.Value) / lamportsPerSOL, nil
}

// TokenBalance returns the UI amount held by owner's first token account for
// mint, or zero when owner has none.
func (c *Client) TokenBalance(ctx context.Context, mint, owner string) (float64, error) {
	mintKey, err := ParsePublicKey(mint)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid mint address")
	}
	ownerKey, err := ParsePublicKey(owner)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid owner address")
	}

	var accounts contextValue[[]struct {
		Pubkey string `json:"pubkey"`
	}]
	if err := c.call(ctx, &accounts, "getTokenAccountsByOwner",
		ownerKey.String(),
		map[string]string{"mint": mintKey.String()},
		map[string]string{"encoding": "jsonParsed", "commitment": c.commitment},
	); err != nil {
		return 0, err
	}
	if len(accounts.Value) == 0 {
		return 0, nil
	}

	var balance contextValue[struct {
		Amount         string `json:"amount"`
		Decimals       uint8  `json:"decimals"`
		UIAmountString string `json:"uiAmountString"`
	}]
	if err := c.call(ctx, &balance, "getTokenAccountBalance", accounts.Value[0].Pubkey, map[string]string{"commitment": c.commitment}); err != nil {
		return 0, err
	}
	if balance.Value.UIAmountString == "" {
		return 0, nil
	}
	amount, err := strconv.ParseFloat(balance.Value.UIAmountString, 64)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "unexpected token amount")
	}
	return amount, nil
}

func (c *Client) minimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	var lamports uint64
	err := c.call(ctx, &lamports, "getMinimumBalanceForRentExemption", size, map[string]string{"commitment": c.commitment})
	return lamports, err
}

func (c *Client) latestBlockhash(ctx context.Context) (Hash, error) {
	var res contextValue[struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	}]
	if err := c.call(ctx, &res, "getLatestBlockhash", map[string]string{"commitment": c.commitment}); err != nil {
		return Hash{}, err
	}
	hash, err := ParseHash(res.Value.Blockhash)
	if err != nil {
		return Hash{}, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "unexpected blockhash")
	}
	return hash, nil
}

func (c *Client) sendTransaction(ctx context.Context, tx *Transaction) (string, error) {
	var signature string
	err := c.call(ctx, &signature, "sendTransaction", tx.Base64(), map[string]any{
		"encoding":            "base64",
		"preflightCommitment": c.commitment,
	})
	return signature, err
}
