// Package config loads the ammd daemon configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/defistate/defistate-amm-go/fixedpoint"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	EnvLogLevel   = "AMM_LOG_LEVEL"
	EnvListenAddr = "AMM_LISTEN_ADDR"

	defaultListenAddr  = "127.0.0.1:8545"
	defaultMetricsPath = "/metrics"
)

// Config is the complete daemon configuration.
type Config struct {
	LogLevel   string        `yaml:"log_level"`
	ListenAddr string        `yaml:"listen_addr"`
	RPC        RPCConfig     `yaml:"rpc"`
	Metrics    MetricsConfig `yaml:"metrics"`
	Pool       PoolConfig    `yaml:"pool"`
	Tokens     []TokenConfig `yaml:"tokens"`
}

// RPCConfig holds JSON-RPC server settings.
type RPCConfig struct {
	DevMethods     bool     `yaml:"dev_methods"`
	StreamBuffer   int      `yaml:"stream_buffer"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// PoolConfig describes the single pool served by the daemon. Token1 and Token2
// must name tokens declared under tokens.
type PoolConfig struct {
	Address         string `yaml:"address"`
	Token1          string `yaml:"token1"`
	Token2          string `yaml:"token2"`
	FeeBps          uint16 `yaml:"fee_bps"`
	ZeroFee         bool   `yaml:"zero_fee"`
	BootstrapShares string `yaml:"bootstrap_shares"`
}

// TokenConfig declares a token and its genesis allocations. Allocation amounts
// are decimal token strings, e.g. "1000000" or "0.5".
type TokenConfig struct {
	Address     string            `yaml:"address"`
	Name        string            `yaml:"name"`
	Symbol      string            `yaml:"symbol"`
	Decimals    uint8             `yaml:"decimals"`
	Allocations map[string]string `yaml:"allocations"`
}

// Allocation is one parsed genesis balance.
type Allocation struct {
	Account common.Address
	Amount  *big.Int
}

// LoadConfig reads the YAML file at path, applies environment overrides and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document, applies environment overrides and validates
// the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
	if addr := os.Getenv(EnvListenAddr); addr != "" {
		c.ListenAddr = addr
	}
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if len(c.RPC.AllowedOrigins) == 0 {
		c.RPC.AllowedOrigins = []string{"*"}
	}
	for i := range c.Tokens {
		if c.Tokens[i].Decimals == 0 {
			c.Tokens[i].Decimals = fixedpoint.Decimals
		}
	}
}

func (c *Config) validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.RPC.StreamBuffer < 0 {
		return errors.New("config: rpc.stream_buffer cannot be negative")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("config: metrics.path must start with '/', got %q", c.Metrics.Path)
	}

	declared := make(map[common.Address]bool, len(c.Tokens))
	for i, t := range c.Tokens {
		addr, err := parseAddress(t.Address)
		if err != nil {
			return fmt.Errorf("config: tokens[%d].address: %w", i, err)
		}
		if declared[addr] {
			return fmt.Errorf("config: token %s declared twice", addr.Hex())
		}
		declared[addr] = true
		if t.Symbol == "" {
			return fmt.Errorf("config: tokens[%d].symbol is required", i)
		}
		// allocations are parsed at the fixed 18-decimal scale
		if t.Decimals != fixedpoint.Decimals {
			return fmt.Errorf("config: tokens[%d].decimals must be %d", i, fixedpoint.Decimals)
		}
		if _, err := t.ParseAllocations(); err != nil {
			return fmt.Errorf("config: tokens[%d]: %w", i, err)
		}
	}

	if _, err := parseAddress(c.Pool.Address); err != nil {
		return fmt.Errorf("config: pool.address: %w", err)
	}
	for name, raw := range map[string]string{"token1": c.Pool.Token1, "token2": c.Pool.Token2} {
		addr, err := parseAddress(raw)
		if err != nil {
			return fmt.Errorf("config: pool.%s: %w", name, err)
		}
		if !declared[addr] {
			return fmt.Errorf("config: pool.%s %s is not a declared token", name, addr.Hex())
		}
	}
	if _, err := c.Pool.Bootstrap(); err != nil {
		return fmt.Errorf("config: pool.bootstrap_shares: %w", err)
	}
	return nil
}

// Level parses LogLevel (debug, info, warn or error).
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

// Addresses returns the pool account and its two tokens. Only valid after
// LoadConfig succeeded.
func (p PoolConfig) Addresses() (pool, token1, token2 common.Address) {
	return common.HexToAddress(p.Address), common.HexToAddress(p.Token1), common.HexToAddress(p.Token2)
}

// Bootstrap returns the configured first-deposit share amount, or nil when
// unset.
func (p PoolConfig) Bootstrap() (*big.Int, error) {
	if p.BootstrapShares == "" {
		return nil, nil
	}
	v, err := fixedpoint.ParseTokens(p.BootstrapShares)
	if err != nil {
		return nil, err
	}
	if v.Sign() == 0 {
		return nil, errors.New("must be positive")
	}
	return v, nil
}

func (t TokenConfig) AddressValue() common.Address {
	return common.HexToAddress(t.Address)
}

// ParseAllocations returns the genesis balances sorted by account.
func (t TokenConfig) ParseAllocations() ([]Allocation, error) {
	out := make([]Allocation, 0, len(t.Allocations))
	for rawAccount, rawAmount := range t.Allocations {
		account, err := parseAddress(rawAccount)
		if err != nil {
			return nil, fmt.Errorf("allocation account: %w", err)
		}
		amount, err := fixedpoint.ParseTokens(rawAmount)
		if err != nil {
			return nil, fmt.Errorf("allocation for %s: %w", account.Hex(), err)
		}
		if amount.Sign() <= 0 {
			return nil, fmt.Errorf("allocation for %s: must be positive, got %q", account.Hex(), rawAmount)
		}
		out = append(out, Allocation{Account: account, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Account.Cmp(out[j].Account) < 0
	})
	return out, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, errors.New("zero address")
	}
	return addr, nil
}
