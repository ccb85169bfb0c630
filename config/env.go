package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/michaelpento.lv/arbengine/types"
)

// Environment variables
const (
	EnvPrivateKey      = "ARB_PRIVATE_KEY"
	EnvTotalCapital    = "ARB_TOTAL_CAPITAL_USD"
	EnvEnabledNetworks = "ARB_ENABLED_NETWORKS" // comma separated, e.g. "base,arbitrum"
	EnvMinProfitUSD    = "ARB_MIN_PROFIT_USD"
	EnvMaxGasPriceGwei = "ARB_MAX_GAS_PRICE_GWEI"
	EnvScanIntervalMs  = "ARB_SCAN_INTERVAL_MS"
	EnvRedisAddr       = "ARB_REDIS_ADDR"
	EnvDiscordWebhook  = "ARB_DISCORD_WEBHOOK_URL"
	EnvMetricsAddr     = "ARB_METRICS_ADDR"
	EnvLogFile         = "ARB_LOG_FILE"
)

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetRequiredEnv gets a required environment variable
func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%w: required environment variable %s is not set", types.ErrFatal, key)
	}
	return value, nil
}

// NetworkEnv returns the per-network variable name, e.g. ARB_BASE_RPC_URL
func NetworkEnv(n types.Network, suffix string) string {
	return fmt.Sprintf("ARB_%s_%s", strings.ToUpper(string(n)), suffix)
}

func applyEnvOverrides(cfg *Config) error {
	cfg.PrivateKey = os.Getenv(EnvPrivateKey)

	if err := setFloat(&cfg.TotalCapitalUSD, EnvTotalCapital); err != nil {
		return err
	}
	if v := os.Getenv(EnvScanIntervalMs); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvScanIntervalMs, err)
		}
		cfg.ScanInterval = time.Duration(ms) * time.Millisecond
	}
	setString(&cfg.Redis.Addr, EnvRedisAddr)
	setString(&cfg.Discord.WebhookURL, EnvDiscordWebhook)
	setString(&cfg.MetricsAddr, EnvMetricsAddr)
	setString(&cfg.LogFile, EnvLogFile)

	if v := os.Getenv(EnvEnabledNetworks); v != "" {
		enabled := make(map[types.Network]bool)
		for _, name := range strings.Split(v, ",") {
			n, err := types.ParseNetwork(name)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", EnvEnabledNetworks, err)
			}
			enabled[n] = true
			if _, ok := cfg.Network(n); !ok {
				cfg.Networks = append(cfg.Networks, NetworkConfig{Name: n})
			}
		}
		for i := range cfg.Networks {
			cfg.Networks[i].Disabled = !enabled[cfg.Networks[i].Name]
		}
	}

	for i := range cfg.Networks {
		n := &cfg.Networks[i]
		if v := os.Getenv(NetworkEnv(n.Name, "RPC_URL")); v != "" {
			n.RPCURLs = splitList(v)
		}
		setString(&n.ContractAddress, NetworkEnv(n.Name, "CONTRACT"))
		if err := setFloat(&n.MinProfitUSD, EnvMinProfitUSD); err != nil {
			return err
		}
		if err := setFloat(&n.MaxGasPriceGwei, EnvMaxGasPriceGwei); err != nil {
			return err
		}
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
