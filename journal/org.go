package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a closed leg as an Org-mode block with the facts in
// a PROPERTIES drawer and an empty Review section for notes.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** Leg: %s %s %s (%s)", t.Symbol, t.Side, t.Role, shortID(t.Ticket))
	closed := t.CloseTime.UTC().Format(time.RFC3339)

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TICKET: %s\n", t.Ticket)
	fmt.Fprintf(&b, ":PAIR_ID: %s\n", t.PairID)
	fmt.Fprintf(&b, ":LOTS: %.2f\n", t.Lots)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %.2f\n", t.EntryPrice)
	fmt.Fprintf(&b, ":EXIT_PRICE: %.2f\n", t.ExitPrice)
	fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", closed)
	fmt.Fprintf(&b, ":POINTS: %.2f\n", t.Points)
	fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple legs separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
