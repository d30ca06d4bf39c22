package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "https://api.devnet.solana.com", cfg.Solana.RPCURL)
	assert.Equal(t, 60*time.Second, cfg.Solana.ConfirmTimeout)
	assert.Equal(t, 20, cfg.Scraper.TopN)
	assert.Equal(t, "running_total", cfg.Scraper.SourceAccounting)
	assert.True(t, cfg.Capabilities.TwitterSearch)
	assert.False(t, cfg.Capabilities.RSS)
}

func TestLoadFileAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kolagent.yaml")
	content := `
server:
  address: ":9090"
runtime:
  data_dir: state
capabilities:
  rss: true
rss:
  feeds:
    - https://nitter.example/alice/rss
scraper:
  top_n: 5
twitter:
  bearer_token: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("KOL_TWITTER__BEARER_TOKEN", "from-env")
	t.Setenv("KOL_TASK_QUEUE__WORKERS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, filepath.Join(dir, "state"), cfg.Runtime.DataDir)
	assert.Equal(t, 5, cfg.Scraper.TopN)
	assert.Equal(t, "from-env", cfg.Twitter.BearerToken)
	assert.Equal(t, 9, cfg.TaskQueue.Workers)
	assert.True(t, cfg.Effective().RSS)
}

func TestLegacyEnvFallback(t *testing.T) {
	t.Setenv("SOLANA_PRIVATE_KEY", "c2VjcmV0")
	t.Setenv("FARCASTER_API_KEY", "neynar")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "c2VjcmV0", cfg.Solana.PrivateKey)
	assert.Equal(t, "neynar", cfg.Farcaster.APIKey)

	caps := cfg.Effective()
	assert.True(t, caps.TokenCreation)
	assert.True(t, caps.Farcaster)
	assert.False(t, caps.TwitterPost, "posting needs all four OAuth credentials")
}

func TestEffectiveRespectsFlags(t *testing.T) {
	cfg := &Config{
		Capabilities: Capabilities{TwitterSearch: false, TwitterPost: true, TokenCreation: true},
		Twitter:      TwitterConfig{BearerToken: "b", APIKey: "k", APISecret: "s", AccessToken: "t", AccessSecret: "ts"},
	}
	caps := cfg.Effective()
	assert.False(t, caps.TwitterSearch, "flag off wins over credentials")
	assert.True(t, caps.TwitterPost)
	assert.False(t, caps.TokenCreation, "no wallet configured")
}

func TestLoadRejectsUnknownAccounting(t *testing.T) {
	t.Setenv("KOL_SCRAPER__SOURCE_ACCOUNTING", "bogus")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadRequiresSecretForJWT(t *testing.T) {
	t.Setenv("KOL_AUTH__MODE", "jwt")
	_, err := Load("")
	require.Error(t, err)
}

func TestLegacyRPCURLOverridesDefault(t *testing.T) {
	t.Setenv("SOLANA_RPC_URL", "https://rpc.example/mainnet")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example/mainnet", cfg.Solana.RPCURL)
}
