package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/web3"
)

const erc20ABI = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

var parsedERC20 = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

var weiPerEther = new(big.Float).SetInt(big.NewInt(1_000_000_000_000_000_000))

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name   string
	RPCURL string
	Notes  string
}

// chainReader is the subset of ethclient used by Client.
type chainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Client implements web3.Client for EVM compatible chains.
type Client struct {
	name   string
	notes  string
	rpcURL string

	mu  sync.Mutex
	eth chainReader
}

var _ web3.Client = (*Client)(nil)

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}
	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	name := cfg.Name
	if name == "" {
		name = "ethereum"
	}
	return &Client{name: name, notes: cfg.Notes, rpcURL: rpcURL, eth: ethclient.NewClient(rpcClient)}, nil
}

// Name implements web3.Client.
func (c *Client) Name() string { return c.name }

// Kind implements web3.Client.
func (c *Client) Kind() web3.Kind { return web3.KindEVM }

// Network returns the configured chain name.
func (c *Client) Network() string { return c.name }

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
}

func (c *Client) reader() (chainReader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未初始化的以太坊客户端")
	}
	return c.eth, nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	eth, err := c.reader()
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "获取链 ID 失败")
	}
	blockNumber, err := eth.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "获取最新区块高度失败")
	}
	return web3.ChainSnapshot{
		Name:        c.name,
		Kind:        web3.KindEVM,
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, xerrors.Newf(xerrors.CodeInvalidArgument, "invalid %s address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

// NativeBalance returns the ether balance of owner.
func (c *Client) NativeBalance(ctx context.Context, owner string) (float64, error) {
	addr, err := parseAddress("owner", owner)
	if err != nil {
		return 0, err
	}
	eth, err := c.reader()
	if err != nil {
		return 0, err
	}
	wei, err := eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "查询余额失败")
	}
	value, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEther).Float64()
	return value, nil
}

// TokenBalance returns the ERC-20 balance of owner scaled by the token's decimals.
func (c *Client) TokenBalance(ctx context.Context, token, owner string) (float64, error) {
	tokenAddr, err := parseAddress("token", token)
	if err != nil {
		return 0, err
	}
	ownerAddr, err := parseAddress("owner", owner)
	if err != nil {
		return 0, err
	}
	eth, err := c.reader()
	if err != nil {
		return 0, err
	}

	var balance *big.Int
	if err := c.callERC20(ctx, eth, tokenAddr, "balanceOf", &balance, ownerAddr); err != nil {
		return 0, err
	}
	var decimals uint8
	if err := c.callERC20(ctx, eth, tokenAddr, "decimals", &decimals); err != nil {
		return 0, err
	}

	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value, _ := new(big.Float).Quo(new(big.Float).SetInt(balance), scale).Float64()
	return value, nil
}

func (c *Client) callERC20(ctx context.Context, eth chainReader, token common.Address, method string, out any, args ...any) error {
	data, err := parsedERC20.Pack(method, args...)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 "+method+" 调用失败")
	}
	raw, err := eth.CallContract(ctx, gethcore.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, method+" 调用失败")
	}
	if len(raw) == 0 {
		return xerrors.Newf(xerrors.CodeInvalidArgument, "%s 不是 ERC-20 合约", token.Hex())
	}
	if err := parsedERC20.UnpackIntoInterface(out, method, raw); err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析 "+method+" 返回值失败")
	}
	return nil
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}
