package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Chain.ID != 421614 {
		t.Fatalf("expected arbitrum sepolia chain id, got %d", cfg.Chain.ID)
	}
	if !cfg.Chain.Supports(421614) {
		t.Fatalf("expected default chain to be supported")
	}
	if len(cfg.Markets.Allowed) != 2 || cfg.Markets.Allowed[0] != "btc" || cfg.Markets.Allowed[1] != "eth" {
		t.Fatalf("unexpected allowed markets %v", cfg.Markets.Allowed)
	}
	if cfg.Orders.MaxOpenOrders != 100 {
		t.Fatalf("expected max open orders 100, got %d", cfg.Orders.MaxOpenOrders)
	}
	if cfg.Orders.Decimals != 6 {
		t.Fatalf("expected order decimals 6, got %d", cfg.Orders.Decimals)
	}
	if cfg.Wallet.EmbeddedPolicy != EmbeddedPolicyUsersWithoutWallets {
		t.Fatalf("expected embedded policy default, got %q", cfg.Wallet.EmbeddedPolicy)
	}
	if !cfg.PriceFeed.EnabledValue() {
		t.Fatalf("expected price feed enabled default")
	}
	if cfg.PriceFeed.Feeds["eth"] == "" || cfg.PriceFeed.Feeds["btc"] == "" {
		t.Fatalf("expected default pyth feeds, got %v", cfg.PriceFeed.Feeds)
	}
	if !cfg.Metrics.EnabledValue() || cfg.Metrics.Path != "/metrics" {
		t.Fatalf("unexpected metrics defaults %+v", cfg.Metrics)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestPriceFeedDisabledRespected(t *testing.T) {
	enabled := false
	cfg := &Config{PriceFeed: PriceFeedConfig{Enabled: &enabled}}
	applyDefaults(cfg)
	if cfg.PriceFeed.EnabledValue() {
		t.Fatalf("expected price_feed.enabled=false to be preserved")
	}
}

func TestValidateRejectsUnsupportedChain(t *testing.T) {
	cfg := &Config{Chain: ChainConfig{ID: 1, SupportedIDs: []int64{421614}}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for chain id outside supported list")
	}
}

func TestValidateRejectsUnknownEmbeddedPolicy(t *testing.T) {
	cfg := &Config{Wallet: WalletConfig{EmbeddedPolicy: "always"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown embedded policy")
	}
}

func TestValidateRejectsMetricsPathWithoutSlash(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Path: "metrics"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for metrics path without leading slash")
	}
}

func TestValidateRejectsHistoryWithoutDSN(t *testing.T) {
	t.Setenv("PERENNIAL_HISTORY_DSN", "")
	cfg := &Config{History: HistoryConfig{Enabled: true}}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for history without dsn")
	}
}

func TestValidateRejectsNegativeTimeouts(t *testing.T) {
	cfg := &Config{Indexer: IndexerConfig{Timeout: -1 * time.Second}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for negative indexer timeout")
	}
}

func TestTelegramEnvOverridesConfig(t *testing.T) {
	t.Setenv("PERENNIAL_TELEGRAM_TOKEN", "env-token")
	t.Setenv("PERENNIAL_TELEGRAM_CHAT_ID", "123")
	cfg := &Config{Telegram: TelegramConfig{Enabled: true, Token: "config-token", ChatID: "999"}}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("expected env token override, got %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.ChatID != "123" {
		t.Fatalf("expected env chat id override, got %q", cfg.Telegram.ChatID)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected valid config with env overrides, got %v", err)
	}
}

func TestEndpointEnvOverrides(t *testing.T) {
	t.Setenv("PERENNIAL_RPC_URL", "https://rpc.example")
	t.Setenv("PERENNIAL_GRAPH_URL", "https://graph.example")
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if cfg.Chain.RPCURL != "https://rpc.example" {
		t.Fatalf("expected rpc override, got %q", cfg.Chain.RPCURL)
	}
	if cfg.Indexer.URL != "https://graph.example" {
		t.Fatalf("expected graph override, got %q", cfg.Indexer.URL)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("PERENNIAL_RPC_URL", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log:
  level: debug
chain:
  rpc_url: https://rpc.local
markets:
  allowed: [eth]
orders:
  decimals: 18
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Log.Level)
	}
	if cfg.Chain.RPCURL != "https://rpc.local" {
		t.Fatalf("expected rpc from file, got %q", cfg.Chain.RPCURL)
	}
	if len(cfg.Markets.Allowed) != 1 || cfg.Markets.Allowed[0] != "eth" {
		t.Fatalf("unexpected allowed markets %v", cfg.Markets.Allowed)
	}
	if cfg.Orders.Decimals != 18 {
		t.Fatalf("expected decimals 18, got %d", cfg.Orders.Decimals)
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
