package marketdata

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"ctreader/internal/domain"
	"ctreader/internal/ports"
)

// Normalize converts a wire kline into a chart candle. The open time is rescaled from
// milliseconds to seconds. A field that is not a finite, non-negative decimal yields an
// error wrapping ports.ErrDecode.
func Normalize(raw domain.RawKline) (domain.Candle, error) {
	open, err := parseDecimal("open", raw.Open)
	if err != nil {
		return domain.Candle{}, err
	}
	high, err := parseDecimal("high", raw.High)
	if err != nil {
		return domain.Candle{}, err
	}
	low, err := parseDecimal("low", raw.Low)
	if err != nil {
		return domain.Candle{}, err
	}
	cls, err := parseDecimal("close", raw.Close)
	if err != nil {
		return domain.Candle{}, err
	}
	vol, err := parseDecimal("volume", raw.Volume)
	if err != nil {
		return domain.Candle{}, err
	}

	return domain.Candle{
		Time:   raw.OpenTimeMs / 1000,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  cls,
		Volume: vol,
	}, nil
}

// NormalizeAll normalizes a batch, failing on the first malformed record.
func NormalizeAll(raws []domain.RawKline) ([]domain.Candle, error) {
	out := make([]domain.Candle, 0, len(raws))
	for i, raw := range raws {
		c, err := Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("kline[%d]: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseDecimal(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing %s '%s': %v", ports.ErrDecode, field, s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("%w: %s '%s' is not a non-negative decimal", ports.ErrDecode, field, s)
	}
	return v, nil
}

// ProjectVolume derives the volume bar for a candle.
func ProjectVolume(c domain.Candle) domain.VolumeBar {
	color := domain.Bearish
	if c.IsBullish() {
		color = domain.Bullish
	}
	return domain.VolumeBar{Time: c.Time, Value: c.Volume, Color: color}
}

// ProjectVolumes derives the full volume histogram from a candle history.
func ProjectVolumes(candles []domain.Candle) []domain.VolumeBar {
	out := make([]domain.VolumeBar, len(candles))
	for i, c := range candles {
		out[i] = ProjectVolume(c)
	}
	return out
}

// SortCandles orders candles oldest first and drops repeated timestamps, keeping the
// record that came last in the input. The result has strictly increasing Time.
func SortCandles(candles []domain.Candle) []domain.Candle {
	sorted := make([]domain.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	out := sorted[:0]
	for _, c := range sorted {
		if n := len(out); n > 0 && out[n-1].Time == c.Time {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}
