package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"ctreader/internal/chart"
	"ctreader/internal/domain"
)

var (
	bullStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#26a641"))
	bearStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e05c5c"))
	wickStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	smaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0b400"))
	axisStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#aaaaaa"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#e05c5c"))
)

const (
	yAxisWidth = 13 // "   43250.00 │"
	minChartH  = 3
)

func renderHeader(st chart.State) string {
	return headerStyle.Render(fmt.Sprintf("%s  %s  %s", st.Selection.Symbol, st.Selection.Interval, st.Status))
}

func renderTicker(s *domain.PriceSnapshot) string {
	if s == nil {
		return axisStyle.Render("24h: waiting for ticker…")
	}
	change := bullStyle
	if s.ChangePercent < 0 {
		change = bearStyle
	}
	line := fmt.Sprintf("%s %s  H:%s  L:%s  Vol:%s  MCap:%s",
		chart.FormatPrice(s.Close),
		change.Render(chart.FormatChange(s.ChangePercent)),
		chart.FormatPrice(s.High),
		chart.FormatPrice(s.Low),
		chart.FormatVolume(s.Volume),
		chart.FormatMarketCap(chart.MarketCap(s.Volume)),
	)
	if s.Synthetic {
		line += axisStyle.Render("  (simulated)")
	}
	return line
}

// renderChart draws the visible tail of the candles, two columns per bar, with the
// SMA overlay dotted into the gap column.
func renderChart(st chart.State, width, chartH int) string {
	if chartH < minChartH {
		chartH = minChartH
	}
	maxCols := (width - yAxisWidth) / 2
	if maxCols < 1 {
		maxCols = 1
	}
	candles := st.Candles
	if len(candles) > maxCols {
		candles = candles[len(candles)-maxCols:]
	}
	if len(candles) == 0 {
		return axisStyle.Render("no data") + "\n"
	}

	hi, lo := priceRange(candles)
	if hi == lo {
		hi = lo + 1
	}

	cols := len(candles) * 2
	grid := make([][]string, chartH)
	for r := range grid {
		grid[r] = make([]string, cols)
		for c := range grid[r] {
			grid[r][c] = " "
		}
	}
	for i, c := range candles {
		renderCandle(grid, c, i*2, chartH, hi, lo)
	}
	if sma, ok := st.Overlays[domain.IndicatorSMA]; ok && sma.Computed {
		renderLine(grid, candles, sma.Points, chartH, hi, lo)
	}

	var b strings.Builder
	for row := 0; row < chartH; row++ {
		b.WriteString(axisStyle.Render(fmt.Sprintf("%11.2f │", rowToPrice(row, chartH, hi, lo))))
		b.WriteString(strings.Join(grid[row], ""))
		b.WriteByte('\n')
	}
	b.WriteString(axisStyle.Render(strings.Repeat("─", yAxisWidth+cols)))
	b.WriteByte('\n')

	first := time.Unix(candles[0].Time, 0).UTC().Format("01-02 15:04")
	last := time.Unix(candles[len(candles)-1].Time, 0).UTC().Format("01-02 15:04")
	b.WriteString(axisStyle.Render(fmt.Sprintf("%s%s … %s", strings.Repeat(" ", yAxisWidth), first, last)))
	b.WriteByte('\n')
	return b.String()
}

func renderCandle(grid [][]string, c domain.Candle, x, chartH int, hi, lo float64) {
	style := bullStyle
	if !c.IsBullish() {
		style = bearStyle
	}

	fH := float64(chartH)
	bodyTop := priceToRow(math.Max(c.Open, c.Close), fH, hi, lo)
	bodyBot := priceToRow(math.Min(c.Open, c.Close), fH, hi, lo)
	wickTop := priceToRow(c.High, fH, hi, lo)
	wickBot := priceToRow(c.Low, fH, hi, lo)

	for row := 0; row < chartH; row++ {
		switch {
		case row >= bodyTop && row <= bodyBot:
			grid[row][x] = style.Render("█")
		case row >= wickTop && row <= wickBot:
			grid[row][x] = wickStyle.Render("│")
		}
	}
}

func renderLine(grid [][]string, candles []domain.Candle, points []domain.LinePoint, chartH int, hi, lo float64) {
	byTime := make(map[int64]float64, len(points))
	for _, p := range points {
		byTime[p.Time] = p.Value
	}
	for i, c := range candles {
		v, ok := byTime[c.Time]
		if !ok {
			continue
		}
		row := priceToRow(v, float64(chartH), hi, lo)
		grid[row][i*2+1] = smaStyle.Render("•")
	}
}

func renderIndicators(st chart.State, enabled map[domain.IndicatorName]bool) string {
	parts := make([]string, 0, len(domain.Indicators))
	for _, name := range domain.Indicators {
		mark := "off"
		if enabled[name] {
			mark = "on"
			if o, ok := st.Overlays[name]; ok && !o.Computed {
				mark = "on (n/a)"
			}
		}
		parts = append(parts, fmt.Sprintf("%s:%s", strings.ToUpper(string(name)), mark))
	}
	return footerStyle.Render(strings.Join(parts, "  "))
}

// priceToRow converts a price to a grid row (0 = top = high).
func priceToRow(price, chartH float64, hi, lo float64) int {
	if hi == lo {
		return int(chartH) / 2
	}
	r := int(math.Round((hi - price) / (hi - lo) * (chartH - 1)))
	if r < 0 {
		r = 0
	}
	if r >= int(chartH) {
		r = int(chartH) - 1
	}
	return r
}

// rowToPrice is the inverse of priceToRow.
func rowToPrice(row, chartH int, hi, lo float64) float64 {
	if chartH <= 1 {
		return hi
	}
	return hi - float64(row)/float64(chartH-1)*(hi-lo)
}

func priceRange(candles []domain.Candle) (hi, lo float64) {
	hi, lo = candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	return hi, lo
}
