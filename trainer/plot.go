package trainer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PlotLosses draws a crude vertical bar chart of the val losses, one column
// per report, scaled so the largest loss fills the chart.
func PlotLosses(w io.Writer, reports []LossReport) {
	const height = 10 // number of text rows
	n := len(reports)
	if n == 0 {
		fmt.Fprintln(w, "no data to plot")
		return
	}
	top := 0.0
	for _, r := range reports {
		top = max(top, r.Val)
	}
	if top <= 0 {
		top = 1
	}

	var b strings.Builder
	for row := height; row >= 1; row-- {
		threshold := float64(row) / float64(height)
		for _, r := range reports {
			if r.Val/top >= threshold {
				b.WriteString("█")
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
	}
	// x-axis, eval index every 5 columns
	b.WriteString(strings.Repeat("─", n))
	b.WriteByte('\n')
	for i := range reports {
		if i%5 == 0 {
			b.WriteString(strconv.Itoa(i % 10))
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteByte('\n')
	fmt.Fprintf(w, "val loss (max %.4f)\n%s", top, b.String())
}
