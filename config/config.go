package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/dhedge-rebalancer/internal/codec"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/domain"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/logger"
)

const (
	EnvPrivateKey      = "DHEDGE_PRIVATE_KEY"
	EnvAccountPassword = "DHEDGE_ACCOUNT_PASSWORD"

	defaultTimeout       = 2 * time.Minute
	defaultMinTradeValue = "1"
	shareSumTolerance    = 1e-9
)

type Config struct {
	Endpoint      string
	Pool          common.Address
	Manager       *common.Address
	Password      string
	PrivateKey    *ecdsa.PrivateKey
	TargetWeights domain.ExpectedShares
	MinTradeValue float64
	Batching      bool
	GasLimit      uint64
	DryRun        bool
	AssumeYes     bool
	Interval      time.Duration
	Timeout       time.Duration
	HistoryDir    string
	MetricsFile   string
	Log           logger.Options
}

// ConfigTmp is the YAML layout of the config file. Numbers are kept as
// strings and parsed as decimals.
type ConfigTmp struct {
	Endpoint      string            `yaml:"endpoint"`
	Pool          string            `yaml:"pool"`
	Manager       string            `yaml:"manager,omitempty"`
	Weights       map[string]string `yaml:"weights"`
	MinTradeValue string            `yaml:"min_trade_value,omitempty"`
	Batching      *bool             `yaml:"batching,omitempty"`
	GasLimit      uint64            `yaml:"gas_limit,omitempty"`
	DryRun        bool              `yaml:"dry_run,omitempty"`
	AssumeYes     bool              `yaml:"assume_yes,omitempty"`
	Interval      time.Duration     `yaml:"interval,omitempty"`
	Timeout       time.Duration     `yaml:"timeout,omitempty"`
	HistoryDir    string            `yaml:"history_dir,omitempty"`
	MetricsFile   string            `yaml:"metrics_file,omitempty"`
	LogLevel      string            `yaml:"log_level,omitempty"`
	LogFormat     string            `yaml:"log_format,omitempty"`
	LogFile       string            `yaml:"log_file,omitempty"`
}

// Warnings returns non fatal configuration issues.
func (c Config) Warnings() []string {
	var warnings []string
	if sum := c.TargetWeights.Sum(); sum < 1-shareSumTolerance || sum > 1+shareSumTolerance {
		warnings = append(warnings, fmt.Sprintf("target weights sum to %s, not 1", decimal.NewFromFloat(sum).String()))
	}
	if c.PrivateKey == nil && c.Manager == nil && c.Password != "" {
		warnings = append(warnings, "account password set, the first node account will be unlocked")
	}
	return warnings
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, fmt.Errorf("incorrect yaml config %s, error: %w", path, err)
	}

	return tmp.toConfig()
}

// WriteYaml stores the config file layout at path.
func WriteYaml(path string, tmp ConfigTmp) error {
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (tmp ConfigTmp) toConfig() (Config, error) {
	conf := Config{
		Endpoint:    strings.TrimSpace(tmp.Endpoint),
		Batching:    true,
		GasLimit:    tmp.GasLimit,
		DryRun:      tmp.DryRun,
		AssumeYes:   tmp.AssumeYes,
		Interval:    tmp.Interval,
		Timeout:     tmp.Timeout,
		HistoryDir:  tmp.HistoryDir,
		MetricsFile: tmp.MetricsFile,
		Log: logger.Options{
			Level:  tmp.LogLevel,
			Format: tmp.LogFormat,
			File:   tmp.LogFile,
		},
	}
	if tmp.Batching != nil {
		conf.Batching = *tmp.Batching
	}
	if conf.Timeout == 0 {
		conf.Timeout = defaultTimeout
	}

	pool, err := parseAddress(tmp.Pool)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'pool' param: %w", err)
	}
	conf.Pool = pool

	if tmp.Manager != "" {
		manager, err := parseAddress(tmp.Manager)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'manager' param: %w", err)
		}
		conf.Manager = &manager
	}

	weights, err := parseWeights(tmp.Weights)
	if err != nil {
		return Config{}, err
	}
	conf.TargetWeights = weights

	minTrade := tmp.MinTradeValue
	if minTrade == "" {
		minTrade = defaultMinTradeValue
	}
	minTradeValue, err := decimal.NewFromString(minTrade)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'min_trade_value' param (must be a decimal), error: %w", err)
	}
	if minTradeValue.IsNegative() {
		return Config{}, fmt.Errorf("'min_trade_value' must not be negative, got %s", minTradeValue.String())
	}
	conf.MinTradeValue = minTradeValue.InexactFloat64()

	if err := conf.loadSecrets(); err != nil {
		return Config{}, err
	}
	if err := conf.validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

func (c *Config) loadSecrets() error {
	c.Password = os.Getenv(EnvAccountPassword)

	key := strings.TrimSpace(os.Getenv(EnvPrivateKey))
	if key == "" {
		return nil
	}
	if len(key) >= 2 && (key[:2] == "0x" || key[:2] == "0X") {
		key = key[2:]
	}
	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", EnvPrivateKey, err)
	}
	c.PrivateKey = privateKey
	return nil
}

func (c *Config) validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("'endpoint' is required")
	}
	if c.PrivateKey != nil && c.Manager != nil {
		if derived := crypto.PubkeyToAddress(c.PrivateKey.PublicKey); derived != *c.Manager {
			return fmt.Errorf("'manager' %s does not match the address of %s (%s)", c.Manager.Hex(), EnvPrivateKey, derived.Hex())
		}
	}
	if c.Interval < 0 || c.Timeout < 0 {
		return fmt.Errorf("'interval' and 'timeout' must not be negative")
	}
	return nil
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a hex encoded 20 byte address", s)
	}
	return common.HexToAddress(s), nil
}

func parseWeights(raw map[string]string) (domain.ExpectedShares, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("'weights' must list at least one asset")
	}

	weights := make(domain.ExpectedShares, len(raw))
	for symbol, value := range raw {
		symbol = strings.TrimSpace(symbol)
		if _, err := codec.EncodeSymbol(symbol); err != nil || symbol == "" {
			return nil, fmt.Errorf("incorrect asset symbol %q in 'weights'", symbol)
		}
		w, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("incorrect weight for %s (must be a decimal), error: %w", symbol, err)
		}
		if w.IsNegative() {
			return nil, fmt.Errorf("weight for %s must not be negative, got %s", symbol, w.String())
		}
		weights[symbol] = w.InexactFloat64()
	}
	return weights, nil
}
