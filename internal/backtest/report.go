package backtest

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Report renders the replay result as a text summary with a per-trade
// table, capped at maxTradeRows rows.
func Report(result Result) string {
	const maxTradeRows = 20

	display := &strings.Builder{}
	fmt.Fprintf(display, "Backtest result\n")
	fmt.Fprintf(display, "- rows: %d\n", result.Rows)
	fmt.Fprintf(display, "- signals: %d\n", result.Signals)
	fmt.Fprintf(display, "- trades: %d\n", len(result.Trades))
	fmt.Fprintf(display, "- win_rate: %.2f%%\n", result.WinRate*100)
	fmt.Fprintf(display, "- avg_return: %.2f%%\n", result.AvgReturn*100)
	fmt.Fprintf(display, "- cumulative_return: %.2f%%\n", result.CumulativeReturn*100)

	if len(result.Trades) == 0 {
		return display.String()
	}

	display.WriteString("\nTrades:\n")
	table := tablewriter.NewWriter(display)
	table.SetHeader([]string{"Entry", "Exit", "Spot In", "Spot Out", "Spot 1h", "DVOL 1h", "Return"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for i, trade := range result.Trades {
		if i >= maxTradeRows {
			break
		}
		table.Append([]string{
			fmt.Sprintf("%d", trade.EntryIndex),
			fmt.Sprintf("%d", trade.ExitIndex),
			fmt.Sprintf("%.0f", trade.EntrySpot),
			fmt.Sprintf("%.0f", trade.ExitSpot),
			fmt.Sprintf("%.2f%%", trade.SpotChg1h*100),
			fmt.Sprintf("%.2f%%", trade.DvolChg1h*100),
			fmt.Sprintf("%.2f%%", trade.Return*100),
		})
	}
	table.Render()

	if len(result.Trades) > maxTradeRows {
		fmt.Fprintf(display, "(%d more trades omitted)\n", len(result.Trades)-maxTradeRows)
	}

	return display.String()
}
