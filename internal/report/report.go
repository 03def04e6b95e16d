// Package report renders the fund status and the rebalance plan as tables.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vadiminshakov/dhedge-rebalancer/internal/domain"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/services/rebalance"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func amount(v float64) string {
	return fmt.Sprintf("%.5f", v)
}

func usd(v float64) string {
	return fmt.Sprintf("$%.5f", v)
}

// RenderStatus writes the pool status table.
func RenderStatus(w io.Writer, pool *rebalance.Pool) error {
	t := newTable("Asset", "Amount", "Rate", "Value", "Share", "Exp Share", "Exp Value", "Exp Bal Change", "Exp Val Change")
	for _, s := range pool.Status() {
		t.Row(
			s.Symbol,
			amount(s.Balance),
			usd(s.Rate),
			usd(s.Value),
			amount(s.Share),
			amount(s.ExpectedShare),
			usd(s.ExpectedValue),
			amount(s.ExpectedBalanceChange),
			usd(s.ExpectedValueChange),
		)
	}

	_, err := fmt.Fprintf(w, "%s\nTotal Value: %s\n%s\n",
		titleStyle.Render("Pool Status"), usd(pool.TotalValue()), t.Render())
	return err
}

// RenderPlan writes the list of swaps with their value at current rates.
func RenderPlan(w io.Writer, pool *rebalance.Pool, swaps []domain.Swap) error {
	if _, err := fmt.Fprintf(w, "%s\nActions required: %d\n", titleStyle.Render("Rebalance Plan"), len(swaps)); err != nil {
		return err
	}
	if len(swaps) == 0 {
		return nil
	}

	t := newTable("From", "To", "From Amount", "Value")
	for _, swap := range swaps {
		t.Row(swap.From, swap.To, amount(swap.FromAmount), usd(swap.FromAmount*pool.Rate(swap.From)))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// RenderRuns writes stored run records, one row per run.
func RenderRuns(w io.Writer, entries []domain.RunRecordEntry, lastIndex uint64) error {
	if _, err := fmt.Fprintf(w, "%s\nRuns: %d, last index: %d\n", titleStyle.Render("Run History"), len(entries), lastIndex); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	t := newTable("Index", "Run", "Started", "Status", "Swaps", "Accepted", "Error")
	for _, e := range entries {
		accepted := 0
		for _, h := range e.Record.TxHashes {
			if h != "" {
				accepted++
			}
		}
		t.Row(
			fmt.Sprint(e.Index),
			e.Record.ID,
			e.Record.StartedAt.UTC().Format(time.RFC3339),
			string(e.Record.Status),
			fmt.Sprint(len(e.Record.Swaps)),
			fmt.Sprint(accepted),
			e.Record.Error,
		)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
