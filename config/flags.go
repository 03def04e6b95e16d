package config

import (
	"flag"
	"fmt"
	"strings"
)

// Get builds the config from a yaml file (--config) or from command line flags.
// --dry-run and --yes also apply on top of a yaml config.
func Get(args []string) (Config, error) {
	fs := flag.NewFlagSet("rebalancer", flag.ContinueOnError)

	configPath := fs.String("config", "", "path to yaml config")
	endpoint := fs.String("endpoint", "", "JSON-RPC endpoint of the node, example: http://127.0.0.1:8545")
	pool := fs.String("pool", "", "fund (pool) contract address")
	manager := fs.String("manager", "", "manager account, defaults to the first account of the node")
	weights := fs.String("weights", "", "target weights, example: sUSD=0.3,sBTC=0.35,sETH=0.35")
	minTrade := fs.String("min-trade", defaultMinTradeValue, "minimum swap value in USD")
	batching := fs.Bool("batching", true, "send queued requests as one JSON-RPC batch")
	gasLimit := fs.Uint64("gas-limit", 0, "gas limit for exchange transactions, 0 lets the node estimate")
	dryRun := fs.Bool("dry-run", false, "print the plan without submitting swaps")
	assumeYes := fs.Bool("yes", false, "submit swaps without confirmation")
	interval := fs.Duration("interval", 0, "rebalance every interval, 0 runs once")
	timeout := fs.Duration("timeout", defaultTimeout, "deadline of a single run")
	historyDir := fs.String("history-dir", "", "directory of the run history WAL, empty disables it")
	metricsFile := fs.String("metrics-file", "", "prometheus textfile written after each run")
	logLevel := fs.String("log-level", "info", "log level")
	logFormat := fs.String("log-format", "json", "log format: json or console")
	logFile := fs.String("log-file", "", "also write logs to this file")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *configPath != "" {
		conf, err := getYaml(*configPath)
		if err != nil {
			return Config{}, err
		}
		conf.DryRun = conf.DryRun || *dryRun
		conf.AssumeYes = conf.AssumeYes || *assumeYes
		return conf, nil
	}

	parsedWeights, err := ParseWeights(*weights)
	if err != nil {
		return Config{}, err
	}

	return ConfigTmp{
		Endpoint:      *endpoint,
		Pool:          *pool,
		Manager:       *manager,
		Weights:       parsedWeights,
		MinTradeValue: *minTrade,
		Batching:      batching,
		GasLimit:      *gasLimit,
		DryRun:        *dryRun,
		AssumeYes:     *assumeYes,
		Interval:      *interval,
		Timeout:       *timeout,
		HistoryDir:    *historyDir,
		MetricsFile:   *metricsFile,
		LogLevel:      *logLevel,
		LogFormat:     *logFormat,
		LogFile:       *logFile,
	}.toConfig()
}

// ParseWeights splits "SYMBOL=WEIGHT,..." into the config file layout.
func ParseWeights(s string) (map[string]string, error) {
	weights := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return weights, nil
	}

	for _, item := range strings.Split(s, ",") {
		symbol, weight, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --weights item %q, expected SYMBOL=WEIGHT", item)
		}
		symbol = strings.TrimSpace(symbol)
		if _, dup := weights[symbol]; dup {
			return nil, fmt.Errorf("duplicate asset %s in --weights", symbol)
		}
		weights[symbol] = strings.TrimSpace(weight)
	}
	return weights, nil
}
