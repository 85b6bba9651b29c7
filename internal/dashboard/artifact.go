package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fintally/tally/internal/models"
)

// renderSVG draws the snapshot as a horizontal bar chart: one bar per
// account balance plus a month-to-date spend bar against the budget. The
// output is a self-contained SVG document.
func renderSVG(snap *models.MonthlySnapshot) string {
	type bar struct {
		label string
		value decimal.Decimal
		max   decimal.Decimal
	}

	names := make([]string, 0, len(snap.AccountBalances))
	for name := range snap.AccountBalances {
		names = append(names, name)
	}
	sort.Strings(names)

	maxBalance := decimal.Zero
	for _, name := range names {
		if bal := snap.AccountBalances[name]; bal.GreaterThan(maxBalance) {
			maxBalance = bal
		}
	}

	bars := make([]bar, 0, len(names)+1)
	for _, name := range names {
		bars = append(bars, bar{label: name, value: snap.AccountBalances[name], max: maxBalance})
	}
	spendMax := snap.Budget
	if snap.TotalSpend.GreaterThan(spendMax) {
		spendMax = snap.TotalSpend
	}
	bars = append(bars, bar{label: "Spend / Budget", value: snap.TotalSpend, max: spendMax})

	const (
		width     = 640
		rowHeight = 28
		labelPad  = 180
		barMax    = width - labelPad - 80
	)
	height := len(bars)*rowHeight + 50

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" font-family="sans-serif" font-size="13">`, width, height)
	fmt.Fprintf(&b, `<text x="10" y="22" font-size="16">%s</text>`, escape(snap.Month.Format("January 2006")))

	for i, bar := range bars {
		y := 40 + i*rowHeight
		w := 0
		if bar.max.IsPositive() {
			frac, _ := bar.value.Div(bar.max).Float64()
			if frac < 0 {
				frac = 0
			}
			if frac > 1 {
				frac = 1
			}
			w = int(frac * barMax)
		}
		fill := "#4c78a8"
		if bar.label == "Spend / Budget" && snap.TotalSpend.GreaterThan(snap.Budget) {
			fill = "#e45756"
		}
		fmt.Fprintf(&b, `<text x="10" y="%d">%s</text>`, y+17, escape(bar.label))
		fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s"/>`, labelPad, y+4, w, rowHeight-10, fill)
		fmt.Fprintf(&b, `<text x="%d" y="%d">%s</text>`, labelPad+w+6, y+17, bar.value.StringFixed(2))
	}

	b.WriteString(`</svg>`)
	return b.String()
}

func escape(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return replacer.Replace(s)
}
