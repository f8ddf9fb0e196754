// Package config provides configuration management for the wallet aggregator.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Sources     SourcesConfig
	Cosmos      CosmosConfig
	Price       PriceConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
	Aggregation AggregationConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
	// MigrationsDir holds the postgres/ and clickhouse/ migration sets
	MigrationsDir string
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the libpq-style connection URL used by migrations
func (p PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.User, p.Password, p.Host, p.Port, p.Database)
}

// ClickHouseConfig holds ClickHouse configuration.
// ClickHouse is optional; when disabled balance history is not exported.
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// SourcesConfig holds the upstream data providers
type SourcesConfig struct {
	DeBank   DeBankConfig
	Solana   SolanaConfig
	Sui      SuiConfig
	Aptos    AptosConfig
	Binance  BinanceConfig
	Static   StaticConfig
	Timeout  time.Duration
	MaxRetry int
}

// DeBankConfig configures the EVM aggregation API
type DeBankConfig struct {
	BaseURL string
	APIKey  string
}

// SolanaConfig configures Solana RPC access
type SolanaConfig struct {
	RPCURL       string
	TokenListURL string
	// CallInterval is the minimum spacing between two RPC calls.
	CallInterval time.Duration
}

// SuiConfig configures the Sui JSON-RPC endpoint
type SuiConfig struct {
	RPCURL string
}

// AptosConfig configures the Aptos node and indexer endpoints
type AptosConfig struct {
	NodeURL    string
	IndexerURL string
}

// BinanceConfig configures the Binance fiat history API
type BinanceConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
}

// StaticConfig points at the manually maintained holdings file
type StaticConfig struct {
	HoldingsFile string
}

// CosmosConfig holds the Cosmos-SDK chain family configuration
type CosmosConfig struct {
	Chains []CosmosChain
	// Overrides maps chain symbol to a fixed address for chains that cannot be re-prefixed.
	Overrides map[string]string
}

// CosmosChain describes one Cosmos-SDK chain
type CosmosChain struct {
	Name     string
	Symbol   string
	ChainID  string
	Prefix   string
	RESTURL  string
	Denom    string
	Decimals int32
	PriceID  string
	// Derivable is false for chains with an unrelated key derivation (coin type 60).
	Derivable bool
}

// PriceConfig holds price resolver configuration
type PriceConfig struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
}

// RateLimitConfig holds rate limiting configuration for the HTTP API
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// AggregationConfig controls when aggregation batches run
type AggregationConfig struct {
	RunOnStart bool
	Threshold  float64
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "wallet_aggregator"),
				User:           getEnv("POSTGRES_USER", "aggregator"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "wallet_aggregator"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
			MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		},
		Sources: SourcesConfig{
			DeBank: DeBankConfig{
				BaseURL: getEnv("DEBANK_BASE_URL", "https://pro-openapi.debank.com"),
				APIKey:  getEnv("DEBANK_API_KEY", ""),
			},
			Solana: SolanaConfig{
				RPCURL:       getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
				TokenListURL: getEnv("SOLANA_TOKEN_LIST_URL", "https://tokens.jup.ag/tokens?tags=verified"),
				CallInterval: getEnvAsDuration("SOLANA_CALL_INTERVAL", 500*time.Millisecond),
			},
			Sui: SuiConfig{
				RPCURL: getEnv("SUI_RPC_URL", "https://fullnode.mainnet.sui.io:443"),
			},
			Aptos: AptosConfig{
				NodeURL:    getEnv("APTOS_NODE_URL", "https://fullnode.mainnet.aptoslabs.com/v1"),
				IndexerURL: getEnv("APTOS_INDEXER_URL", "https://indexer.mainnet.aptoslabs.com/v1/graphql"),
			},
			Binance: BinanceConfig{
				BaseURL:   getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
				APIKey:    getEnv("BINANCE_API_KEY", ""),
				APISecret: getEnv("BINANCE_API_SECRET", ""),
			},
			Static: StaticConfig{
				HoldingsFile: getEnv("STATIC_HOLDINGS_FILE", ""),
			},
			Timeout:  getEnvAsDuration("SOURCE_TIMEOUT", 30*time.Second),
			MaxRetry: getEnvAsInt("SOURCE_MAX_RETRY", 3),
		},
		Price: PriceConfig{
			BaseURL:  getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
			APIKey:   getEnv("COINGECKO_API_KEY", ""),
			CacheTTL: getEnvAsDuration("PRICE_CACHE_TTL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 600),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 60),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Aggregation: AggregationConfig{
			RunOnStart: getEnvAsBool("AGGREGATE_ON_START", false),
			Threshold:  getEnvAsFloat("DEFAULT_SMALL_BALANCE_THRESHOLD", 10),
		},
	}

	config.Cosmos = loadCosmosConfig()

	return config, nil
}

// defaultCosmosChains lists the chains sharing the Cosmos Hub key derivation
var defaultCosmosChains = []CosmosChain{
	{Name: "Cosmos Hub", Symbol: "ATOM", ChainID: "cosmoshub-4", Prefix: "cosmos", Denom: "uatom", Decimals: 6, PriceID: "cosmos", Derivable: true},
	{Name: "Osmosis", Symbol: "OSMO", ChainID: "osmosis-1", Prefix: "osmo", Denom: "uosmo", Decimals: 6, PriceID: "osmosis", Derivable: true},
	{Name: "Celestia", Symbol: "TIA", ChainID: "celestia", Prefix: "celestia", Denom: "utia", Decimals: 6, PriceID: "celestia", Derivable: true},
	{Name: "Juno", Symbol: "JUNO", ChainID: "juno-1", Prefix: "juno", Denom: "ujuno", Decimals: 6, PriceID: "juno-network", Derivable: true},
	{Name: "Akash", Symbol: "AKT", ChainID: "akashnet-2", Prefix: "akash", Denom: "uakt", Decimals: 6, PriceID: "akash-network", Derivable: true},
	{Name: "dYdX", Symbol: "DYDX", ChainID: "dydx-mainnet-1", Prefix: "dydx", Denom: "adydx", Decimals: 18, PriceID: "dydx-chain", Derivable: true},
	{Name: "Injective", Symbol: "INJ", ChainID: "injective-1", Prefix: "inj", Denom: "inj", Decimals: 18, PriceID: "injective-protocol", Derivable: false},
	{Name: "Evmos", Symbol: "EVMOS", ChainID: "evmos_9001-2", Prefix: "evmos", Denom: "aevmos", Decimals: 18, PriceID: "evmos", Derivable: false},
}

// loadCosmosConfig loads the chain list and per-chain REST endpoints.
// COSMOS_CHAINS restricts the enabled symbols; <SYMBOL>_REST_URL sets the endpoint.
func loadCosmosConfig() CosmosConfig {
	enabled := map[string]bool{}
	for _, s := range strings.Split(getEnv("COSMOS_CHAINS", ""), ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			enabled[s] = true
		}
	}

	var chains []CosmosChain
	for _, c := range defaultCosmosChains {
		if len(enabled) > 0 && !enabled[c.Symbol] {
			continue
		}
		c.RESTURL = getEnv(c.Symbol+"_REST_URL", "https://rest.cosmos.directory/"+strings.ToLower(c.Prefix))
		chains = append(chains, c)
	}

	return CosmosConfig{
		Chains:    chains,
		Overrides: parseOverrides(getEnv("COSMOS_ADDRESS_OVERRIDES", "")),
	}
}

// parseOverrides parses "SYM=addr,SYM2=addr2"
func parseOverrides(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" || v == "" {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
