package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EmbeddedPolicyUsersWithoutWallets = "users-without-wallets"
	EmbeddedPolicyOff                 = "off"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Chain     ChainConfig     `yaml:"chain"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	PriceFeed PriceFeedConfig `yaml:"price_feed"`
	Markets   MarketsConfig   `yaml:"markets"`
	Orders    OrdersConfig    `yaml:"orders"`
	Wallet    WalletConfig    `yaml:"wallet"`
	State     StateConfig     `yaml:"state"`
	HTTP      HTTPConfig      `yaml:"http"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	History   HistoryConfig   `yaml:"history"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type ChainConfig struct {
	ID           int64         `yaml:"id"`
	Name         string        `yaml:"name"`
	RPCURL       string        `yaml:"rpc_url"`
	Timeout      time.Duration `yaml:"timeout"`
	SupportedIDs []int64       `yaml:"supported_ids"`
}

type IndexerConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type PriceFeedConfig struct {
	Enabled        *bool             `yaml:"enabled"`
	URL            string            `yaml:"url"`
	ReconnectDelay time.Duration     `yaml:"reconnect_delay"`
	PingInterval   time.Duration     `yaml:"ping_interval"`
	Feeds          map[string]string `yaml:"feeds"`
}

func (p PriceFeedConfig) EnabledValue() bool {
	return p.Enabled == nil || *p.Enabled
}

type MarketsConfig struct {
	Allowed []string `yaml:"allowed"`
}

type OrdersConfig struct {
	Decimals      int `yaml:"decimals"`
	MaxOpenOrders int `yaml:"max_open_orders"`
}

type WalletConfig struct {
	PrivateKeyEnv  string `yaml:"private_key_env"`
	EmbeddedPolicy string `yaml:"embedded_policy"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled == nil || *m.Enabled
}

type HistoryConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

// Default returns a config with every default applied, for callers that run
// without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Chain.ID == 0 {
		cfg.Chain.ID = 421614
	}
	if cfg.Chain.Name == "" {
		cfg.Chain.Name = "arbitrum-sepolia"
	}
	if cfg.Chain.RPCURL == "" {
		cfg.Chain.RPCURL = "https://sepolia-rollup.arbitrum.io/rpc"
	}
	if cfg.Chain.Timeout == 0 {
		cfg.Chain.Timeout = 15 * time.Second
	}
	if len(cfg.Chain.SupportedIDs) == 0 {
		cfg.Chain.SupportedIDs = []int64{cfg.Chain.ID}
	}
	if cfg.Indexer.URL == "" {
		cfg.Indexer.URL = "https://api.studio.thegraph.com/query/119174/perennial-gig/version/latest"
	}
	if cfg.Indexer.Timeout == 0 {
		cfg.Indexer.Timeout = 15 * time.Second
	}
	if cfg.PriceFeed.Enabled == nil {
		enabled := true
		cfg.PriceFeed.Enabled = &enabled
	}
	if cfg.PriceFeed.URL == "" {
		cfg.PriceFeed.URL = "wss://hermes.pyth.network/ws"
	}
	if cfg.PriceFeed.ReconnectDelay == 0 {
		cfg.PriceFeed.ReconnectDelay = 3 * time.Second
	}
	if cfg.PriceFeed.PingInterval == 0 {
		cfg.PriceFeed.PingInterval = 30 * time.Second
	}
	if len(cfg.PriceFeed.Feeds) == 0 {
		cfg.PriceFeed.Feeds = map[string]string{
			"eth": "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
			"btc": "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
		}
	}
	if len(cfg.Markets.Allowed) == 0 {
		cfg.Markets.Allowed = []string{"btc", "eth"}
	}
	if cfg.Orders.Decimals == 0 {
		cfg.Orders.Decimals = 6
	}
	if cfg.Orders.MaxOpenOrders == 0 {
		cfg.Orders.MaxOpenOrders = 100
	}
	if cfg.Wallet.PrivateKeyEnv == "" {
		cfg.Wallet.PrivateKeyEnv = "PERENNIAL_PRIVATE_KEY"
	}
	if cfg.Wallet.EmbeddedPolicy == "" {
		cfg.Wallet.EmbeddedPolicy = EmbeddedPolicyUsersWithoutWallets
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/perennial-dash.db"
	}
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = "127.0.0.1:8080"
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.History.Schema == "" {
		cfg.History.Schema = "public"
	}
	if cfg.History.QueueSize == 0 {
		cfg.History.QueueSize = 256
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PERENNIAL_RPC_URL")); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PERENNIAL_GRAPH_URL")); v != "" {
		cfg.Indexer.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("PERENNIAL_HISTORY_DSN")); v != "" {
		cfg.History.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("PERENNIAL_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("PERENNIAL_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
}

func validate(cfg *Config) error {
	if cfg.Chain.ID <= 0 {
		return errors.New("chain.id must be > 0")
	}
	if !cfg.Chain.Supports(cfg.Chain.ID) {
		return fmt.Errorf("chain.supported_ids must include chain.id %d", cfg.Chain.ID)
	}
	if cfg.Chain.Timeout < 0 || cfg.Indexer.Timeout < 0 {
		return errors.New("chain.timeout and indexer.timeout must be >= 0")
	}
	if cfg.Orders.Decimals < 0 || cfg.Orders.Decimals > 36 {
		return errors.New("orders.decimals must be between 0 and 36")
	}
	if cfg.Orders.MaxOpenOrders < 0 {
		return errors.New("orders.max_open_orders must be >= 0")
	}
	switch cfg.Wallet.EmbeddedPolicy {
	case EmbeddedPolicyUsersWithoutWallets, EmbeddedPolicyOff:
	default:
		return fmt.Errorf("wallet.embedded_policy %q is not supported", cfg.Wallet.EmbeddedPolicy)
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.History.Enabled && strings.TrimSpace(cfg.History.DSN) == "" {
		return errors.New("history.dsn is required when history is enabled")
	}
	if cfg.Telegram.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}

func (c ChainConfig) Supports(id int64) bool {
	for _, supported := range c.SupportedIDs {
		if supported == id {
			return true
		}
	}
	return false
}
