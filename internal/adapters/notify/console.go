package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polypilot/internal/application/engine"
	"github.com/alejandrodnm/polypilot/internal/domain"
)

// Console renders trade activity and wallet status to stdout.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Follow consumes the activity hub until ctx ends, printing one line per
// entry.
func (c *Console) Follow(ctx context.Context, hub *ActivityHub) {
	ch, cancel := hub.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			c.printEntry(e)
		}
	}
}

// printEntry prints one activity line in a compact fixed layout.
func (c *Console) printEntry(e domain.AutoTradeLogEntry) {
	ts := e.At.Local().Format("15:04:05")
	q := truncate(e.Question, 40)
	if q == "" {
		q = truncate(e.ConditionID, 40)
	}

	switch e.Action {
	case domain.ActionBuy:
		fmt.Fprintf(c.out, "[%s] BUY  %-6s %s @ %.3f $%.2f — %s\n",
			ts, e.WalletID, q, e.Price, e.Price*e.Size, e.Reason)
	case domain.ActionSell:
		fmt.Fprintf(c.out, "[%s] SELL %-6s %s @ %.3f pnl %+.2f — %s\n",
			ts, e.WalletID, q, e.Price, e.RealizedPnL, e.Reason)
	case domain.ActionSuspend:
		fmt.Fprintf(c.out, "[%s] !!! SUSPENDED %s — %s\n", ts, e.WalletID, e.Reason)
	case domain.ActionFail:
		fmt.Fprintf(c.out, "[%s] FAIL %-6s %s — %s\n", ts, e.WalletID, q, e.Reason)
	default:
		// Skips stay in the DB audit trail; too noisy for the console.
	}
}

// PrintStatus renders the per-wallet status table.
func (c *Console) PrintStatus(statuses []engine.WalletStatus) {
	if len(statuses) == 0 {
		fmt.Fprintf(c.out, "[%s] no wallets registered\n", time.Now().Format("15:04:05"))
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Wallet", "Enabled", "AutoBuy", "Open", "Exposure", "Day PnL", "Breaker")
	for _, s := range statuses {
		breaker := ""
		if s.BreakerTripped {
			breaker = "TRIPPED"
		}
		table.Append(
			s.WalletID,
			onOff(s.Enabled),
			onOff(s.AutoBuyEnabled),
			fmt.Sprintf("%d", s.OpenPositions),
			fmt.Sprintf("$%.2f", s.TotalExposure),
			fmt.Sprintf("%+.2f", s.DailyPnL),
			breaker,
		)
	}
	table.Render()
}

// PrintRecent renders the latest trade-log entries as a table.
func (c *Console) PrintRecent(entries []domain.AutoTradeLogEntry) {
	if len(entries) == 0 {
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Wallet", "Action", "Market", "Price", "Size", "PnL", "Reason")
	for _, e := range entries {
		table.Append(
			e.At.Local().Format("01-02 15:04"),
			e.WalletID,
			string(e.Action),
			truncate(e.Question, 30),
			fmt.Sprintf("%.3f", e.Price),
			fmt.Sprintf("%.1f", e.Size),
			fmt.Sprintf("%+.2f", e.RealizedPnL),
			truncate(e.Reason, 40),
		)
	}
	table.Render()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
