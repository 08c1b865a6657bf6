package marketdata

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"ctreader/internal/domain"
)

const (
	// DefaultHistoryLimit is the number of candles requested when the caller gives none.
	DefaultHistoryLimit = 500
	// DefaultBasePrice seeds synthetic prices when nothing better is known.
	DefaultBasePrice = 43250.0
)

// Generator produces plausible random-walk market data for demo and fallback use.
// Its output is shaped like exchange data but is not guaranteed to satisfy the
// low <= min(open, close) invariant after rounding.
type Generator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	now       func() time.Time
	basePrice float64
}

// NewGenerator creates a generator seeded from the wall clock.
func NewGenerator() *Generator {
	seed := uint64(time.Now().UnixNano())
	return NewSeededGenerator(seed, time.Now)
}

// NewSeededGenerator creates a deterministic generator. Tests pin both seed and clock.
func NewSeededGenerator(seed uint64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:       now,
		basePrice: DefaultBasePrice,
	}
}

// History returns exactly limit candles spaced one bar apart and ending at the current
// bar, oldest first. A non-positive limit means DefaultHistoryLimit.
func (g *Generator) History(uiInterval string, limit int) []domain.Candle {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	step := IntervalDuration(uiInterval)

	g.mu.Lock()
	defer g.mu.Unlock()

	end := g.now().Truncate(step)
	price := g.basePrice
	out := make([]domain.Candle, 0, limit)
	for i := limit - 1; i >= 0; i-- {
		open := price
		cls := open + (g.rng.Float64()-0.5)*open*0.012
		if cls < 1 {
			cls = 1
		}
		high := math.Max(open, cls) + g.rng.Float64()*open*0.004
		low := math.Min(open, cls) - g.rng.Float64()*open*0.004
		if low < 0 {
			low = 0
		}
		out = append(out, domain.Candle{
			Time:   end.Add(-time.Duration(i) * step).Unix(),
			Open:   round2(open),
			High:   round2(high),
			Low:    round2(low),
			Close:  round2(cls),
			Volume: math.Round(g.rng.Float64()*1_000_000 + 500_000),
		})
		price = cls
	}
	return out
}

// Snapshot returns a synthetic 24h ticker for symbol. When last is known its close is
// used as the anchor so the display does not jump back to the base price.
func (g *Generator) Snapshot(symbol string, last *domain.PriceSnapshot) domain.PriceSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	anchor := g.basePrice
	if last != nil && last.Close > 0 {
		anchor = last.Close
	}
	open := anchor + (g.rng.Float64()-0.5)*anchor*0.01
	cls := anchor + (g.rng.Float64()-0.5)*anchor*0.01
	high := math.Max(open, cls) + g.rng.Float64()*anchor*0.005
	low := math.Min(open, cls) - g.rng.Float64()*anchor*0.005

	return domain.PriceSnapshot{
		Symbol:        symbol,
		Open:          round2(open),
		High:          round2(high),
		Low:           round2(low),
		Close:         round2(cls),
		ChangePercent: round2((cls - open) / open * 100),
		Volume:        math.Round(2_500_000 + g.rng.Float64()*1_000_000),
		Synthetic:     true,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
