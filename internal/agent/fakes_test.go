package agent

import (
	"context"
	"sync"
	"time"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/llm"
	"KOL-Agent/internal/social"
	"KOL-Agent/internal/social/twitter"
	"KOL-Agent/internal/web3"
	"KOL-Agent/internal/web3/provider"
)

type fakeSource struct {
	platform social.Platform
	posts    []social.Post
	err      error
	limit    int
}

func (f *fakeSource) Platform() social.Platform { return f.platform }

func (f *fakeSource) Fetch(_ context.Context, limit int) ([]social.Post, error) {
	f.limit = limit
	return f.posts, f.err
}

type fakeTwitter struct {
	fakeSource

	mu          sync.Mutex
	searchQuery string
	searchSince time.Time
	searchPosts []social.Post
	searchErr   error
	posted      []string
	replies     []string
	postErrAt   int
	users       map[string]*twitter.User
	me          *twitter.User
}

func newFakeTwitter() *fakeTwitter {
	return &fakeTwitter{fakeSource: fakeSource{platform: social.PlatformTwitter}, postErrAt: -1, users: map[string]*twitter.User{}}
}

func (f *fakeTwitter) SearchRecent(_ context.Context, query string, _ int, since time.Time) ([]social.Post, error) {
	f.searchQuery, f.searchSince = query, since
	return f.searchPosts, f.searchErr
}

func (f *fakeTwitter) PostTweet(_ context.Context, text string) (*twitter.Tweet, error) {
	return f.create(text, "")
}

func (f *fakeTwitter) ReplyTweet(_ context.Context, text, inReplyTo string) (*twitter.Tweet, error) {
	return f.create(text, inReplyTo)
}

func (f *fakeTwitter) create(text, parent string) (*twitter.Tweet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErrAt == len(f.posted) {
		return nil, xerrors.New(xerrors.CodeRateLimited, "Too Many Requests")
	}
	f.posted = append(f.posted, text)
	f.replies = append(f.replies, parent)
	id := string(rune('a' + len(f.posted) - 1))
	return &twitter.Tweet{ID: id, Text: text}, nil
}

func (f *fakeTwitter) UserByUsername(_ context.Context, username string) (*twitter.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return &twitter.User{ID: u.ID, Username: u.Username}, nil
		}
	}
	return nil, xerrors.New(xerrors.CodeNotFound, "user not found")
}

func (f *fakeTwitter) Me(context.Context) (*twitter.User, error) {
	if f.me == nil {
		return nil, xerrors.New(xerrors.CodeUnauthorized, "Unauthorized")
	}
	return &twitter.User{ID: f.me.ID}, nil
}

func (f *fakeTwitter) User(_ context.Context, id string) (*twitter.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, xerrors.New(xerrors.CodeNotFound, "user not found")
}

type fakeChain struct {
	name     string
	kind     web3.Kind
	network  string
	native   float64
	token    float64
	err      error
	lastSpec web3.TokenSpec
}

func (f *fakeChain) Name() string { return f.name }
func (f *fakeChain) Kind() web3.Kind { return f.kind }
func (f *fakeChain) Network() string { return f.network }
func (f *fakeChain) Close() {}
func (f *fakeChain) FetchChainSnapshot(context.Context) (web3.ChainSnapshot, error) {
	return web3.ChainSnapshot{Name: f.name, Kind: f.kind}, nil
}

func (f *fakeChain) NativeBalance(context.Context, string) (float64, error) { return f.native, f.err }

func (f *fakeChain) TokenBalance(context.Context, string, string) (float64, error) {
	return f.token, f.err
}

func (f *fakeChain) CreateToken(_ context.Context, spec web3.TokenSpec) (*web3.TokenData, error) {
	f.lastSpec = spec
	return &web3.TokenData{
		Mint:      "Mint1111111111111111111111111111111111111",
		Name:      spec.Name,
		Symbol:    spec.Symbol,
		Decimals:  spec.Decimals,
		Supply:    spec.Supply,
		Network:   f.network,
		Signature: "sig",
	}, nil
}

type fakeChains struct {
	clients map[string]*fakeChain
	def     string
}

func (f *fakeChains) Resolve(selector string) (web3.Client, error) {
	if selector == "" {
		selector = f.def
	}
	for name, c := range f.clients {
		if name == selector || c.network == selector {
			return c, nil
		}
	}
	return nil, xerrors.Newf(xerrors.CodeNotFound, "network %s is not configured", selector)
}

func (f *fakeChains) Issuer(selector string) (web3.Client, web3.TokenIssuer, error) {
	c, err := f.Resolve(selector)
	if err != nil {
		return nil, nil, err
	}
	return c, c.(*fakeChain), nil
}

func (f *fakeChains) Networks() []provider.NetworkInfo {
	out := make([]provider.NetworkInfo, 0, len(f.clients))
	for name, c := range f.clients {
		out = append(out, provider.NetworkInfo{Name: name, Kind: c.kind, Network: c.network, Default: name == f.def})
	}
	return out
}

type fakeLLM struct {
	text string
	err  error
	req  llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text, Model: "test-model", Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 20}}, nil
}
