package setup

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/dhedge-rebalancer/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

func step(title string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render("DHEDGE REBALANCER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(title))
}

// RunTUI launches the terminal configuration wizard and saves the result to path.
func RunTUI(path string) error {
	var (
		endpoint    = "http://127.0.0.1:8545"
		pool        string
		manager     string
		weights     string
		minTrade    = "1"
		intervalStr = "0s"
		batching    = true
		dryRun      = true
		confirm     bool
	)

	step("STEP 1: NODE")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Where the fund lives and who manages it.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("JSON-RPC endpoint").
				Value(&endpoint).
				Validate(validateEndpoint),
			huh.NewInput().
				Title("Pool address").
				Description("Fund contract, 0x prefixed").
				Value(&pool).
				Validate(validateAddress),
			huh.NewInput().
				Title("Manager account").
				Description("Leave empty to use the first account of the node").
				Value(&manager).
				Validate(validateOptionalAddress),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 2: TARGET WEIGHTS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Target weights").
				Description("SYMBOL=WEIGHT separated by commas (e.g. sUSD=0.3,sBTC=0.35,sETH=0.35)").
				Value(&weights).
				Validate(validateWeights),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 3: TRADING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Minimum trade value (USD)").
				Value(&minTrade).
				Validate(validateDecimal),
			huh.NewInput().
				Title("Rebalance interval").
				Description("Duration string (e.g. 1h), 0s runs once").
				Value(&intervalStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
			huh.NewConfirm().
				Title("Batch JSON-RPC requests?").
				Value(&batching),
			huh.NewConfirm().
				Title("Dry run?").
				Description("Only print the plan, never submit swaps").
				Value(&dryRun),
		),
	).Run()
	if err != nil {
		return err
	}

	step("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Endpoint: %s\nPool: %s\nWeights: %s\nMin trade: %s\nInterval: %s\nDry run: %t\n",
		endpoint, pool, strings.TrimSpace(weights), minTrade, intervalStr, dryRun,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	cfgTmp, err := buildConfig(endpoint, pool, manager, weights, minTrade, intervalStr, batching, dryRun)
	if err != nil {
		return err
	}
	if err := config.WriteYaml(path, cfgTmp); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	return nil
}

func buildConfig(endpoint, pool, manager, weights, minTrade, intervalStr string, batching, dryRun bool) (config.ConfigTmp, error) {
	parsed, err := config.ParseWeights(strings.Join(strings.Fields(weights), ""))
	if err != nil {
		return config.ConfigTmp{}, err
	}
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return config.ConfigTmp{}, err
	}

	return config.ConfigTmp{
		Endpoint:      strings.TrimSpace(endpoint),
		Pool:          strings.TrimSpace(pool),
		Manager:       strings.TrimSpace(manager),
		Weights:       parsed,
		MinTradeValue: strings.TrimSpace(minTrade),
		Batching:      &batching,
		DryRun:        dryRun,
		Interval:      interval,
	}, nil
}

func validateEndpoint(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be a URL (e.g. http://127.0.0.1:8545)")
	}
	return nil
}

func validateAddress(s string) error {
	if !common.IsHexAddress(strings.TrimSpace(s)) {
		return fmt.Errorf("must be a 20 byte hex address")
	}
	return nil
}

func validateOptionalAddress(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return validateAddress(s)
}

func validateWeights(s string) error {
	parsed, err := config.ParseWeights(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return err
	}
	if len(parsed) == 0 {
		return fmt.Errorf("at least one asset is required")
	}
	for symbol, w := range parsed {
		if err := validateDecimal(w); err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}
	}
	return nil
}

func validateDecimal(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative")
	}
	return nil
}
