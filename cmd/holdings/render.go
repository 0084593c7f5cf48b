package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"holdings/internal/portfolio"
	"holdings/internal/questrade"
)

// summaryMarkdown renders one table per account, in account order, then the totals.
func summaryMarkdown(s portfolio.Summary) string {
	var b strings.Builder
	b.WriteString("# Portfolio\n\n")

	for _, id := range slices.Sorted(maps.Keys(s.Accounts)) {
		fmt.Fprintf(&b, "## Account %d\n\n", id)
		positions := s.Accounts[id]
		if len(positions) == 0 {
			b.WriteString("_No positions._\n\n")
			continue
		}
		b.WriteString("| Symbol | Quantity | Market value | Total cost | Gain |\n")
		b.WriteString("|:--|--:|--:|--:|--:|\n")
		for _, p := range positions {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				p.Symbol,
				p.OpenQuantity.String(),
				p.CurrentMarketValue.StringFixed(2),
				p.TotalCost.StringFixed(2),
				p.CurrentMarketValue.Sub(p.TotalCost.Decimal).StringFixed(2))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "**Market value:** %s  \n", s.TotalMarketValue.StringFixed(2))
	fmt.Fprintf(&b, "**Total cost:** %s  \n", s.TotalCost.StringFixed(2))
	fmt.Fprintf(&b, "**Gain:** %s\n", s.TotalMarketValue.Sub(s.TotalCost).StringFixed(2))
	return b.String()
}

func quotesMarkdown(quotes []questrade.Quote) string {
	var b strings.Builder
	b.WriteString("| Symbol | Bid | Ask | Last | Volume |\n")
	b.WriteString("|:--|--:|--:|--:|--:|\n")
	for _, q := range quotes {
		last := q.LastTradePrice.StringFixed(2)
		if q.IsHalted {
			last += " (halted)"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d |\n",
			q.Symbol, q.BidPrice.StringFixed(2), q.AskPrice.StringFixed(2), last, q.Volume)
	}
	return b.String()
}
