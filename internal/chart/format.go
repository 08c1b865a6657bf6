package chart

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MarketCapMultiplier turns 24h volume into the displayed market cap estimate.
const MarketCapMultiplier = 350

// NotAvailable is shown in place of NaN or infinite values.
const NotAvailable = "N/A"

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FormatPrice renders a USD price with thousands separators and two decimals, e.g. "$43,250.00".
func FormatPrice(price float64) string {
	if !finite(price) {
		return NotAvailable
	}
	sign := ""
	if price < 0 {
		sign = "-"
		price = -price
	}
	s := strconv.FormatFloat(price, 'f', 2, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	return sign + "$" + groupThousands(intPart) + "." + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var sb strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}

// FormatChange renders a signed percentage, e.g. "+1.25%".
func FormatChange(pct float64) string {
	if !finite(pct) {
		return NotAvailable
	}
	if pct > 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatVolume abbreviates a volume with K or M.
func FormatVolume(volume float64) string {
	switch {
	case !finite(volume):
		return NotAvailable
	case volume >= 1e6:
		return fmt.Sprintf("$%.1fM", volume/1e6)
	case volume >= 1e3:
		return fmt.Sprintf("$%.1fK", volume/1e3)
	default:
		return fmt.Sprintf("$%.0f", volume)
	}
}

// FormatMarketCap abbreviates a market cap with B or M.
func FormatMarketCap(marketCap float64) string {
	switch {
	case !finite(marketCap):
		return NotAvailable
	case marketCap >= 1e9:
		return fmt.Sprintf("$%.1fB", marketCap/1e9)
	case marketCap >= 1e6:
		return fmt.Sprintf("$%.1fM", marketCap/1e6)
	default:
		return fmt.Sprintf("$%.0f", marketCap)
	}
}

// MarketCap estimates the market cap from 24h volume.
func MarketCap(volume float64) float64 {
	if math.IsNaN(volume) || volume < 0 {
		return 0
	}
	return volume * MarketCapMultiplier
}
