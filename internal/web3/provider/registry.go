// Package provider assembles the configured chain clients.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"KOL-Agent/internal/config"
	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/web3"
	"KOL-Agent/internal/web3/ethereum"
	"KOL-Agent/internal/web3/solana"
)

// DefaultSolanaName is the registry key of the client built from the solana
// config section.
const DefaultSolanaName = "solana"

// Registry manages a set of chain clients keyed by human readable names.
type Registry struct {
	defaultChain string
	clients      map[string]web3.Client
}

type walletHolder interface {
	CanIssueTokens() bool
}

// NetworkInfo summarises a registered client for discovery.
type NetworkInfo struct {
	Name          string    `json:"name"`
	Kind          web3.Kind `json:"kind"`
	Network       string    `json:"network"`
	Default       bool      `json:"default"`
	CanIssueToken bool      `json:"canIssueToken"`
}

// NewRegistry builds the Solana client from cfg.Solana plus every chain in
// the optional chain definition file.
func NewRegistry(ctx context.Context, cfg *config.Config) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.Web3.ChainConfig)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]web3.Client)
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	if strings.TrimSpace(cfg.Solana.RPCURL) != "" {
		client, err := solana.NewClient(ctx, solana.Config{
			Name:           DefaultSolanaName,
			RPCURL:         cfg.Solana.RPCURL,
			WSURL:          cfg.Solana.WSURL,
			Commitment:     cfg.Solana.Commitment,
			PrivateKey:     cfg.Solana.PrivateKey,
			ConfirmTimeout: cfg.Solana.ConfirmTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 Solana 客户端失败: %w", err)
		}
		clients[DefaultSolanaName] = client
	}

	for name, chain := range defs.Chains {
		kind, _ := chain.Kind()
		var client web3.Client
		switch kind {
		case web3.KindSolana:
			client, err = solana.NewClient(ctx, solana.Config{
				Name:           name,
				RPCURL:         chain.RPCURL,
				WSURL:          chain.WSURL,
				Commitment:     chain.Commitment,
				ConfirmTimeout: cfg.Solana.ConfirmTimeout,
				Notes:          chain.Description,
			})
		case web3.KindEVM:
			client, err = ethereum.NewClient(ctx, ethereum.Config{
				Name:   name,
				RPCURL: chain.RPCURL,
				Notes:  chain.Description,
			})
		}
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
		}
		if existing, ok := clients[name]; ok {
			existing.Close()
		}
		clients[name] = client
	}

	registry, err := newRegistry(cfg.Web3.DefaultChain, clients)
	if err != nil {
		closeAll()
		return nil, err
	}
	return registry, nil
}

// NewStaticRegistry wraps already constructed clients.
func NewStaticRegistry(defaultChain string, clients ...web3.Client) (*Registry, error) {
	m := make(map[string]web3.Client, len(clients))
	for _, c := range clients {
		m[c.Name()] = c
	}
	return newRegistry(defaultChain, m)
}

func newRegistry(defaultChain string, clients map[string]web3.Client) (*Registry, error) {
	if len(clients) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}
	if defaultChain == "" {
		names := sortedNames(clients)
		defaultChain = names[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}
	return &Registry{defaultChain: defaultChain, clients: clients}, nil
}

// Default returns the client configured as default chain.
func (r *Registry) Default() (web3.Client, error) {
	if r == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未初始化的链客户端注册表")
	}
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeNotFound, "默认链 %s 未在注册表中", r.defaultChain)
	}
	return client, nil
}

// Resolve looks a client up by registry name, then by network label
// ("devnet", "mainnet"). An empty selector yields the default client.
func (r *Registry) Resolve(selector string) (web3.Client, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return r.Default()
	}
	if r == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未初始化的链客户端注册表")
	}
	if client, ok := r.clients[selector]; ok {
		return client, nil
	}
	for _, name := range sortedNames(r.clients) {
		if strings.EqualFold(r.clients[name].Network(), selector) {
			return r.clients[name], nil
		}
	}
	return nil, xerrors.Newf(xerrors.CodeNotFound, "network %s is not configured", selector)
}

// Issuer resolves selector to a client able to create tokens.
func (r *Registry) Issuer(selector string) (web3.Client, web3.TokenIssuer, error) {
	client, err := r.Resolve(selector)
	if err != nil {
		return nil, nil, err
	}
	issuer, ok := client.(web3.TokenIssuer)
	if !ok {
		return nil, nil, xerrors.Newf(xerrors.CodeCapabilityDisabled, "network %s does not support token creation", client.Name())
	}
	return client, issuer, nil
}

// Networks describes every registered client in name order.
func (r *Registry) Networks() []NetworkInfo {
	if r == nil {
		return nil
	}
	out := make([]NetworkInfo, 0, len(r.clients))
	for _, name := range sortedNames(r.clients) {
		c := r.clients[name]
		_, issuer := c.(web3.TokenIssuer)
		if w, ok := c.(walletHolder); ok {
			issuer = issuer && w.CanIssueTokens()
		}
		out = append(out, NetworkInfo{
			Name:          name,
			Kind:          c.Kind(),
			Network:       c.Network(),
			Default:       name == r.defaultChain,
			CanIssueToken: issuer,
		})
	}
	return out
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}

func sortedNames(clients map[string]web3.Client) []string {
	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
