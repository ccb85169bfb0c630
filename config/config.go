package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbengine/types"
	"gopkg.in/yaml.v2"
)

// Config is the engine configuration. Durations accept Go duration strings ("2s").
type Config struct {
	TotalCapitalUSD      float64       `yaml:"total_capital_usd" toml:"total_capital_usd"`
	ScanInterval         time.Duration `yaml:"scan_interval" toml:"scan_interval"`
	MaxOpportunities     int           `yaml:"max_opportunities" toml:"max_opportunities"`
	DedupEpsilonUSD      float64       `yaml:"dedup_epsilon_usd" toml:"dedup_epsilon_usd"`
	PersistenceRetention time.Duration `yaml:"persistence_retention" toml:"persistence_retention"`
	GasRefreshInterval   time.Duration `yaml:"gas_refresh_interval" toml:"gas_refresh_interval"`
	GasHistorySize       int           `yaml:"gas_history_size" toml:"gas_history_size"`
	RPCTimeout           time.Duration `yaml:"rpc_timeout" toml:"rpc_timeout"`
	ReceiptPollInterval  time.Duration `yaml:"receipt_poll_interval" toml:"receipt_poll_interval"`
	HealthInterval       time.Duration `yaml:"health_interval" toml:"health_interval"`
	StatsWindow          int           `yaml:"stats_window" toml:"stats_window"`
	MetricsAddr          string        `yaml:"metrics_addr" toml:"metrics_addr"`
	LogFile              string        `yaml:"log_file" toml:"log_file"`

	Sizing         SizingConfig         `yaml:"sizing" toml:"sizing"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" toml:"circuit_breaker"`
	RPCRateLimit   RateLimitConfig      `yaml:"rpc_rate_limit" toml:"rpc_rate_limit"`
	Redis          RedisConfig          `yaml:"redis" toml:"redis"`
	Discord        DiscordConfig        `yaml:"discord" toml:"discord"`

	Networks []NetworkConfig `yaml:"networks" toml:"networks"`

	// Secrets are only ever read from the environment
	PrivateKey string `yaml:"-" toml:"-"`
}

// SizingConfig holds the position sizing heuristics
type SizingConfig struct {
	PersistenceThreshold time.Duration `yaml:"persistence_threshold" toml:"persistence_threshold"`
	PersistenceBoost     float64       `yaml:"persistence_boost" toml:"persistence_boost"`
	DiscrepancyThreshold float64       `yaml:"discrepancy_threshold_pct" toml:"discrepancy_threshold_pct"`
	DiscrepancyBoost     float64       `yaml:"discrepancy_boost" toml:"discrepancy_boost"`
}

type CircuitBreakerConfig struct {
	Enabled        bool          `yaml:"enabled" toml:"enabled"`
	ErrorThreshold int           `yaml:"error_threshold" toml:"error_threshold"`
	ResetInterval  time.Duration `yaml:"reset_interval" toml:"reset_interval"`
	CooldownPeriod time.Duration `yaml:"cooldown_period" toml:"cooldown_period"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second" toml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size" toml:"burst_size"`
	WaitTimeout       time.Duration `yaml:"wait_timeout" toml:"wait_timeout"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" toml:"addr"`
	Password string        `yaml:"password" toml:"password"`
	DB       int           `yaml:"db" toml:"db"`
	TTL      time.Duration `yaml:"ttl" toml:"ttl"`
}

type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url"`
}

// NetworkConfig carries every per-network constant. Zero fields are filled from
// NetworkDefaults during loading.
type NetworkConfig struct {
	Name            types.Network `yaml:"name" toml:"name"`
	Disabled        bool          `yaml:"disabled" toml:"disabled"`
	ChainID         uint64        `yaml:"chain_id" toml:"chain_id"`
	RPCURLs         []string      `yaml:"rpc_urls" toml:"rpc_urls"`
	ContractAddress string        `yaml:"contract_address" toml:"contract_address"`
	NativeUSD       float64       `yaml:"native_usd" toml:"native_usd"`
	LegacyTx        bool          `yaml:"legacy_tx" toml:"legacy_tx"`

	CapitalWeight float64 `yaml:"capital_weight" toml:"capital_weight"`
	RankWeight    float64 `yaml:"rank_weight" toml:"rank_weight"`

	MinProfitUSD           float64 `yaml:"min_profit_usd" toml:"min_profit_usd"`
	MinNetProfitUSD        float64 `yaml:"min_net_profit_usd" toml:"min_net_profit_usd"`
	MinSpreadBps           uint32  `yaml:"min_spread_bps" toml:"min_spread_bps"`
	MinTriangularMarginBps uint32  `yaml:"min_triangular_margin_bps" toml:"min_triangular_margin_bps"`
	SlippageBps            uint32  `yaml:"slippage_bps" toml:"slippage_bps"`

	MaxGasPriceGwei     float64 `yaml:"max_gas_price_gwei" toml:"max_gas_price_gwei"`
	DefaultGasPriceGwei float64 `yaml:"default_gas_price_gwei" toml:"default_gas_price_gwei"`
	BaseGasPerLeg       uint64  `yaml:"base_gas_per_leg" toml:"base_gas_per_leg"`
	GasBufferPct        float64 `yaml:"gas_buffer_pct" toml:"gas_buffer_pct"`
	GasSafetyMultiplier float64 `yaml:"gas_safety_multiplier" toml:"gas_safety_multiplier"`
	RequiredMarginPct   float64 `yaml:"required_margin_pct" toml:"required_margin_pct"`

	ScanInterval        time.Duration `yaml:"scan_interval" toml:"scan_interval"`
	DirectInterval      time.Duration `yaml:"direct_interval" toml:"direct_interval"`
	TriangularInterval  time.Duration `yaml:"triangular_interval" toml:"triangular_interval"`
	ListingInterval     time.Duration `yaml:"listing_interval" toml:"listing_interval"`
	Cooldown            time.Duration `yaml:"cooldown" toml:"cooldown"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout" toml:"confirmation_timeout"`
	DeadlineWindow      time.Duration `yaml:"deadline_window" toml:"deadline_window"`

	MinPositionUSD        float64 `yaml:"min_position_usd" toml:"min_position_usd"`
	MaxPositionUSD        float64 `yaml:"max_position_usd" toml:"max_position_usd"`
	ProbeAmountUSD        float64 `yaml:"probe_amount_usd" toml:"probe_amount_usd"`
	FlashLoanThresholdUSD float64 `yaml:"flash_loan_threshold_usd" toml:"flash_loan_threshold_usd"`

	SuccessRateMinSamples int     `yaml:"success_rate_min_samples" toml:"success_rate_min_samples"`
	LowSuccessRate        float64 `yaml:"low_success_rate" toml:"low_success_rate"`
	ElevatedConfidence    float64 `yaml:"elevated_confidence" toml:"elevated_confidence"`

	DirectConfidence        float64 `yaml:"direct_confidence" toml:"direct_confidence"`
	TriangularConfidence    float64 `yaml:"triangular_confidence" toml:"triangular_confidence"`
	ListingConfidence       float64 `yaml:"listing_confidence" toml:"listing_confidence"`
	ListingLookbackBlocks   uint64  `yaml:"listing_lookback_blocks" toml:"listing_lookback_blocks"`
	ListingMaxAgeBlocks     uint64  `yaml:"listing_max_age_blocks" toml:"listing_max_age_blocks"`
	ListingProfitMultiplier float64 `yaml:"listing_profit_multiplier" toml:"listing_profit_multiplier"`

	FlashLoanProviders []FlashLoanProviderConfig `yaml:"flash_loan_providers" toml:"flash_loan_providers"`
	Tokens             []TokenConfig             `yaml:"tokens" toml:"tokens"`
	Pairs              [][]string                `yaml:"pairs" toml:"pairs"`
	Triangles          [][]string                `yaml:"triangles" toml:"triangles"`
	Dexes              []DexConfig               `yaml:"dexes" toml:"dexes"`
}

// DexKind is the factory shape of a DEX
type DexKind string

const (
	DexV2 DexKind = "v2"
	DexV3 DexKind = "v3"
)

type DexConfig struct {
	Name     string   `yaml:"name" toml:"name"`
	Kind     DexKind  `yaml:"kind" toml:"kind"`
	Factory  string   `yaml:"factory" toml:"factory"`
	Router   string   `yaml:"router" toml:"router"`
	FeeBps   uint32   `yaml:"fee_bps" toml:"fee_bps"`
	FeeTiers []uint32 `yaml:"fee_tiers" toml:"fee_tiers"`
}

type TokenConfig struct {
	Symbol   string  `yaml:"symbol" toml:"symbol"`
	Address  string  `yaml:"address" toml:"address"`
	Decimals uint8   `yaml:"decimals" toml:"decimals"`
	USDPrice float64 `yaml:"usd_price" toml:"usd_price"`
}

type FlashLoanProviderConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Address string `yaml:"address" toml:"address"`
	FeeBps  uint32 `yaml:"fee_bps" toml:"fee_bps"`
}

// Contract returns the arbitrage contract address
func (n *NetworkConfig) Contract() common.Address {
	return common.HexToAddress(n.ContractAddress)
}

// Token looks up a tracked token by symbol
func (n *NetworkConfig) Token(symbol string) (types.Token, bool) {
	for _, t := range n.Tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t.toToken(), true
		}
	}
	return types.Token{}, false
}

// TokenByAddress looks up a tracked token by address
func (n *NetworkConfig) TokenByAddress(addr common.Address) (types.Token, bool) {
	for _, t := range n.Tokens {
		if common.HexToAddress(t.Address) == addr {
			return t.toToken(), true
		}
	}
	return types.Token{}, false
}

func (t TokenConfig) toToken() types.Token {
	return types.Token{
		Symbol:   t.Symbol,
		Address:  common.HexToAddress(t.Address),
		Decimals: t.Decimals,
		USDPrice: t.USDPrice,
	}
}

// Network returns the configuration of one network
func (c *Config) Network(n types.Network) (*NetworkConfig, bool) {
	for i := range c.Networks {
		if c.Networks[i].Name == n {
			return &c.Networks[i], true
		}
	}
	return nil, false
}

// EnabledNetworks returns the names of networks that are not disabled, in config order
func (c *Config) EnabledNetworks() []types.Network {
	var out []types.Network
	for _, n := range c.Networks {
		if !n.Disabled {
			out = append(out, n.Name)
		}
	}
	return out
}

// DefaultConfig returns the global defaults with no networks configured
func DefaultConfig() *Config {
	return &Config{
		TotalCapitalUSD:      10000,
		ScanInterval:         2 * time.Second,
		MaxOpportunities:     20,
		DedupEpsilonUSD:      0.01,
		PersistenceRetention: 10 * time.Minute,
		GasRefreshInterval:   15 * time.Second,
		GasHistorySize:       20,
		RPCTimeout:           10 * time.Second,
		ReceiptPollInterval:  time.Second,
		HealthInterval:       30 * time.Second,
		StatsWindow:          50,
		MetricsAddr:          ":9090",
		LogFile:              "arbengine.log",
		Sizing: SizingConfig{
			PersistenceThreshold: 30 * time.Second,
			PersistenceBoost:     1.1,
			DiscrepancyThreshold: 1.0,
			DiscrepancyBoost:     1.2,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        true,
			ErrorThreshold: 10,
			ResetInterval:  time.Minute,
			CooldownPeriod: 30 * time.Second,
		},
		RPCRateLimit: RateLimitConfig{
			RequestsPerSecond: 25,
			BurstSize:         50,
			WaitTimeout:       5 * time.Second,
		},
		Redis: RedisConfig{
			TTL: 7 * 24 * time.Hour,
		},
	}
}

// LoadConfig loads configuration from path (yaml or toml by extension), the
// environment and the per-network defaults, then validates it. An empty path
// skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to read config file: %v", types.ErrFatal, err)
		}
	}

	// A missing .env file is not an error
	_ = LoadEnv()

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrFatal, err)
	}

	cfg.applyNetworkDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.DecodeFile(path, cfg)
		return err
	case ".yaml", ".yml", "":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func (c *Config) applyNetworkDefaults() {
	for i := range c.Networks {
		n := &c.Networks[i]
		if d, ok := NetworkDefaults(n.Name); ok {
			n.fillFrom(d)
		}
	}
}

// Validate checks the configuration and reports every problem at once
func (c *Config) Validate() error {
	var problems []string

	if c.TotalCapitalUSD <= 0 {
		problems = append(problems, "total_capital_usd must be positive")
	}
	if c.ScanInterval <= 0 {
		problems = append(problems, "scan_interval must be positive")
	}
	if c.MaxOpportunities <= 0 {
		problems = append(problems, "max_opportunities must be positive")
	}
	if c.GasHistorySize <= 0 {
		problems = append(problems, "gas_history_size must be positive")
	}
	if c.GasRefreshInterval <= 0 {
		problems = append(problems, "gas_refresh_interval must be positive")
	}
	if c.PersistenceRetention <= 0 {
		problems = append(problems, "persistence_retention must be positive")
	}
	if err := c.CircuitBreaker.Validate(); err != nil {
		problems = append(problems, fmt.Sprintf("circuit breaker error: %v", err))
	}
	if err := c.RPCRateLimit.Validate(); err != nil {
		problems = append(problems, fmt.Sprintf("RPC rate limit error: %v", err))
	}

	seen := make(map[types.Network]bool)
	enabled := 0
	for i := range c.Networks {
		n := &c.Networks[i]
		if _, err := types.ParseNetwork(string(n.Name)); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if seen[n.Name] {
			problems = append(problems, fmt.Sprintf("network %s configured twice", n.Name))
			continue
		}
		seen[n.Name] = true
		if n.Disabled {
			continue
		}
		enabled++
		if err := n.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", n.Name, err))
		}
	}
	if enabled == 0 {
		problems = append(problems, "at least one network must be enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: configuration validation failed: %s", types.ErrFatal, strings.Join(problems, "; "))
	}

	return nil
}

// Validate checks one enabled network
func (n *NetworkConfig) Validate() error {
	var problems []string

	if len(n.RPCURLs) == 0 {
		problems = append(problems, "rpc_urls must be specified")
	}
	if !common.IsHexAddress(n.ContractAddress) || n.Contract() == (common.Address{}) {
		problems = append(problems, "contract_address must be a valid address")
	}
	if n.NativeUSD <= 0 {
		problems = append(problems, "native_usd must be positive")
	}
	if n.MaxGasPriceGwei <= 0 {
		problems = append(problems, "max_gas_price_gwei must be positive")
	}
	if n.MinPositionUSD <= 0 || n.MaxPositionUSD < n.MinPositionUSD {
		problems = append(problems, "position bounds must satisfy 0 < min_position_usd <= max_position_usd")
	}
	if n.Cooldown <= 0 || n.ConfirmationTimeout <= 0 || n.DeadlineWindow <= 0 {
		problems = append(problems, "cooldown, confirmation_timeout and deadline_window must be positive")
	}
	for _, t := range n.Tokens {
		if !common.IsHexAddress(t.Address) {
			problems = append(problems, fmt.Sprintf("token %s has invalid address", t.Symbol))
		}
		if t.USDPrice <= 0 {
			problems = append(problems, fmt.Sprintf("token %s needs a positive usd_price", t.Symbol))
		}
	}
	for _, p := range n.Pairs {
		problems = append(problems, n.checkSymbols("pair", p, 2)...)
	}
	for _, tri := range n.Triangles {
		problems = append(problems, n.checkSymbols("triangle", tri, 3)...)
	}
	for _, d := range n.Dexes {
		if d.Kind != DexV2 && d.Kind != DexV3 {
			problems = append(problems, fmt.Sprintf("dex %s has unknown kind %q", d.Name, d.Kind))
		}
		if !common.IsHexAddress(d.Factory) || !common.IsHexAddress(d.Router) {
			problems = append(problems, fmt.Sprintf("dex %s needs factory and router addresses", d.Name))
		}
		if d.Kind == DexV3 && len(d.FeeTiers) == 0 {
			problems = append(problems, fmt.Sprintf("dex %s needs fee_tiers", d.Name))
		}
	}
	for _, fp := range n.FlashLoanProviders {
		if !common.IsHexAddress(fp.Address) {
			problems = append(problems, fmt.Sprintf("flash loan provider %s has invalid address", fp.Name))
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, ", "))
	}
	return nil
}

func (n *NetworkConfig) checkSymbols(kind string, symbols []string, want int) []string {
	if len(symbols) != want {
		return []string{fmt.Sprintf("%s %v must list %d tokens", kind, symbols, want)}
	}
	var problems []string
	for _, s := range symbols {
		if _, ok := n.Token(s); !ok {
			problems = append(problems, fmt.Sprintf("%s %v references unknown token %s", kind, symbols, s))
		}
	}
	return problems
}

func (c *CircuitBreakerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.ErrorThreshold <= 0 {
		return fmt.Errorf("error threshold must be positive")
	}
	if c.ResetInterval <= 0 {
		return fmt.Errorf("reset interval must be positive")
	}
	if c.CooldownPeriod <= 0 {
		return fmt.Errorf("cooldown period must be positive")
	}

	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	return nil
}
