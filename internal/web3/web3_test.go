package web3

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNetworkLabel(t *testing.T) {
	cases := map[string]string{
		"https://api.devnet.solana.com":       "devnet",
		"https://api.testnet.solana.com":      "testnet",
		"https://api.mainnet-beta.solana.com": "mainnet",
		"http://127.0.0.1:8899":               "localnet",
		"https://rpc.helius.xyz/?api-key=x":   "mainnet",
	}
	for url, want := range cases {
		if got := NetworkLabel(url); got != want {
			t.Errorf("NetworkLabel(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestLoadChainDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	content := `chains:
  solana-devnet:
    type: solana
    rpc_url: https://api.devnet.solana.com
    ws_url: wss://api.devnet.solana.com
    commitment: finalized
  sepolia:
    rpc_url: https://rpc.sepolia.org
    description: Ethereum testnet
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs.Chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(defs.Chains))
	}
	if kind, _ := defs.Chains["solana-devnet"].Kind(); kind != KindSolana {
		t.Fatalf("unexpected kind %s", kind)
	}
	if kind, _ := defs.Chains["sepolia"].Kind(); kind != KindEVM {
		t.Fatalf("type should default to evm, got %s", kind)
	}
}

func TestLoadChainDefinitionsRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	if err := os.WriteFile(path, []byte("chains:\n  x:\n    type: cosmos\n    rpc_url: http://x\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadChainDefinitions(path); err == nil {
		t.Fatalf("expected error for unsupported chain type")
	}
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadChainDefinitions("")
	if err != nil || defs.Chains == nil {
		t.Fatalf("empty path should yield empty definitions, got %v %v", defs, err)
	}
}
