package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/web3"
)

const (
	tokenAddr = "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
	ownerAddr = "0x000000000000000000000000000000000000dEaD"
)

func word(v uint64) string {
	return fmt.Sprintf("0x%064x", v)
}

func newNode(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var result any
		switch req.Method {
		case "eth_chainId":
			result = "0xaa36a7"
		case "eth_blockNumber":
			result = "0x10"
		case "eth_getBalance":
			result = "0x1bc16d674ec80000"
		case "eth_call":
			var call struct {
				Data  string `json:"data"`
				Input string `json:"input"`
			}
			_ = json.Unmarshal(req.Params[0], &call)
			data := call.Input
			if data == "" {
				data = call.Data
			}
			switch {
			case strings.HasPrefix(data, "0x70a08231"):
				result = word(1_500_000)
			case strings.HasPrefix(data, "0x313ce567"):
				result = word(6)
			default:
				result = "0x"
			}
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	srv := newNode(t)
	t.Cleanup(srv.Close)
	client, err := NewClient(context.Background(), Config{Name: "sepolia", RPCURL: srv.URL, Notes: "testnet"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestFetchChainSnapshot(t *testing.T) {
	client := newTestClient(t)
	snap, err := client.FetchChainSnapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	want := web3.ChainSnapshot{Name: "sepolia", Kind: web3.KindEVM, ChainID: "0xaa36a7", BlockNumber: "0x10", Notes: "testnet"}
	if snap != want {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestBalances(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	eth, err := client.NativeBalance(ctx, ownerAddr)
	if err != nil {
		t.Fatalf("native balance: %v", err)
	}
	if eth != 2 {
		t.Fatalf("expected 2 ETH, got %v", eth)
	}

	tokens, err := client.TokenBalance(ctx, tokenAddr, ownerAddr)
	if err != nil {
		t.Fatalf("token balance: %v", err)
	}
	if tokens != 1.5 {
		t.Fatalf("expected 1.5 tokens, got %v", tokens)
	}
}

func TestInvalidAddresses(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.NativeBalance(context.Background(), "0x123"); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := client.TokenBalance(context.Background(), "nope", ownerAddr); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestClosedClient(t *testing.T) {
	client := newTestClient(t)
	client.Close()
	if _, err := client.FetchChainSnapshot(context.Background()); xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected initialization failure, got %v", err)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty rpc url")
	}
}
