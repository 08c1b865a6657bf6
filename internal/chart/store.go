// Package chart holds the rendered chart state that the view adapters read.
package chart

import (
	"sync"
	"time"

	"ctreader/internal/domain"
	"ctreader/internal/ports"
)

// State is a point-in-time copy of everything the chart shows.
type State struct {
	Selection domain.Selection
	Status    string
	Candles   []domain.Candle
	Volume    []domain.VolumeBar
	Overlays  map[domain.IndicatorName]domain.Overlay
	Snapshot  *domain.PriceSnapshot
	Version   uint64 // bumped on every mutation
	UpdatedAt time.Time
}

// Store is an in-memory ports.ChartView. Each call is applied under one lock, so readers
// never see the candle and volume series out of step.
type Store struct {
	mu      sync.RWMutex
	state   State
	now     func() time.Time
	changes chan struct{}
}

var _ ports.ChartView = (*Store)(nil)

// NewStore creates an empty store showing the loading status.
func NewStore() *Store {
	return &Store{
		state: State{
			Selection: domain.Selection{Symbol: domain.DefaultSymbol, Interval: domain.DefaultInterval},
			Status:    domain.StatusLoading,
			Overlays:  make(map[domain.IndicatorName]domain.Overlay),
		},
		now:     time.Now,
		changes: make(chan struct{}, 1),
	}
}

// Changes delivers a signal after mutations. Signals coalesce: one pending signal stands
// for any number of changes.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.state
	out.Candles = append([]domain.Candle(nil), s.state.Candles...)
	out.Volume = append([]domain.VolumeBar(nil), s.state.Volume...)
	out.Overlays = make(map[domain.IndicatorName]domain.Overlay, len(s.state.Overlays))
	for k, v := range s.state.Overlays {
		v.Points = append([]domain.LinePoint(nil), v.Points...)
		out.Overlays[k] = v
	}
	if s.state.Snapshot != nil {
		snap := *s.state.Snapshot
		out.Snapshot = &snap
	}
	return out
}

func (s *Store) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	s.state.Version++
	s.state.UpdatedAt = s.now()
	s.mu.Unlock()

	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Store) ReplaceCandles(candles []domain.Candle) {
	cp := append([]domain.Candle(nil), candles...)
	s.update(func(st *State) { st.Candles = cp })
}

func (s *Store) ReplaceVolume(bars []domain.VolumeBar) {
	cp := append([]domain.VolumeBar(nil), bars...)
	s.update(func(st *State) { st.Volume = cp })
}

// UpsertBar applies the candle and its volume bar in one step.
func (s *Store) UpsertBar(candle domain.Candle, bar domain.VolumeBar) {
	s.update(func(st *State) {
		st.Candles, _ = UpsertCandle(st.Candles, candle)
		st.Volume, _ = UpsertVolume(st.Volume, bar)
	})
}

func (s *Store) SetOverlay(overlay domain.Overlay) {
	overlay.Points = append([]domain.LinePoint(nil), overlay.Points...)
	s.update(func(st *State) { st.Overlays[overlay.Name] = overlay })
}

func (s *Store) RemoveOverlay(name domain.IndicatorName) {
	s.update(func(st *State) { delete(st.Overlays, name) })
}

func (s *Store) SetStatus(text string) {
	s.update(func(st *State) { st.Status = text })
}

func (s *Store) SetSnapshot(snapshot domain.PriceSnapshot) {
	s.update(func(st *State) { st.Snapshot = &snapshot })
}

// SetSelection also clears the ticker when the symbol changes, so the previous symbol's
// prices are never shown under the new name.
func (s *Store) SetSelection(sel domain.Selection) {
	s.update(func(st *State) {
		if st.Snapshot != nil && st.Snapshot.Symbol != sel.Symbol {
			st.Snapshot = nil
		}
		st.Selection = sel
	})
}
