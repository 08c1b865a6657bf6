package chart

import (
	"sort"

	"ctreader/internal/domain"
)

// UpsertResult tells what an upsert did to a series.
type UpsertResult int

const (
	Dropped  UpsertResult = iota // older than the last bar and not present
	Replaced                     // same Time as an existing bar
	Appended                     // newer than the last bar
)

// UpsertCandle applies a live candle to a history sorted by Time. A candle with the last
// bar's Time replaces it in place and a newer one is appended. An older candle replaces
// its matching bar if there is one and is dropped otherwise, so Time stays strictly
// increasing. history may be modified in place; the returned slice must be used.
func UpsertCandle(history []domain.Candle, c domain.Candle) ([]domain.Candle, UpsertResult) {
	n := len(history)
	switch {
	case n == 0 || c.Time > history[n-1].Time:
		return append(history, c), Appended
	case c.Time == history[n-1].Time:
		history[n-1] = c
		return history, Replaced
	}
	i := sort.Search(n, func(i int) bool { return history[i].Time >= c.Time })
	if i < n && history[i].Time == c.Time {
		history[i] = c
		return history, Replaced
	}
	return history, Dropped
}

// UpsertVolume is UpsertCandle for the volume histogram.
func UpsertVolume(bars []domain.VolumeBar, b domain.VolumeBar) ([]domain.VolumeBar, UpsertResult) {
	n := len(bars)
	switch {
	case n == 0 || b.Time > bars[n-1].Time:
		return append(bars, b), Appended
	case b.Time == bars[n-1].Time:
		bars[n-1] = b
		return bars, Replaced
	}
	i := sort.Search(n, func(i int) bool { return bars[i].Time >= b.Time })
	if i < n && bars[i].Time == b.Time {
		bars[i] = b
		return bars, Replaced
	}
	return bars, Dropped
}
