package httpapi

import (
	"time"

	"ctreader/internal/chart"
	"ctreader/internal/domain"
	"ctreader/internal/scheduler"
)

type candleItem struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type volumeItem struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

type pointItem struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

type overlayItem struct {
	Computed bool        `json:"computed"`
	Points   []pointItem `json:"points"`
}

type streamItem struct {
	State string `json:"state"`
	Key   string `json:"key"`
}

type chartResponse struct {
	Symbol   string                 `json:"symbol"`
	Interval string                 `json:"interval"`
	Status   string                 `json:"status"`
	Version  uint64                 `json:"version"`
	Candles  []candleItem           `json:"candles"`
	Volume   []volumeItem           `json:"volume"`
	Overlays map[string]overlayItem `json:"overlays"`
	Stream   streamItem             `json:"stream"`
}

type formattedSnapshot struct {
	Price     string `json:"price"`
	Change    string `json:"change"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Volume    string `json:"volume"`
	MarketCap string `json:"marketCap"`
}

type snapshotResponse struct {
	Symbol        string            `json:"symbol"`
	Open          float64           `json:"open"`
	High          float64           `json:"high"`
	Low           float64           `json:"low"`
	Close         float64           `json:"close"`
	ChangePercent float64           `json:"changePercent"`
	Volume        float64           `json:"volume"`
	Synthetic     bool              `json:"synthetic"`
	Formatted     formattedSnapshot `json:"formatted"`
}

type selectionRequest struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

type selectionResponse struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type toggleResponse struct {
	Indicators map[string]bool `json:"indicators"`
}

func toChartResponse(st chart.State, stream streamItem) chartResponse {
	out := chartResponse{
		Symbol:   st.Selection.Symbol,
		Interval: st.Selection.Interval,
		Status:   st.Status,
		Version:  st.Version,
		Candles:  make([]candleItem, 0, len(st.Candles)),
		Volume:   make([]volumeItem, 0, len(st.Volume)),
		Overlays: make(map[string]overlayItem, len(st.Overlays)),
		Stream:   stream,
	}
	for _, c := range st.Candles {
		out.Candles = append(out.Candles, candleItem{Time: c.Time, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume})
	}
	for _, v := range st.Volume {
		out.Volume = append(out.Volume, volumeItem{Time: v.Time, Value: v.Value, Color: string(v.Color)})
	}
	for name, o := range st.Overlays {
		points := make([]pointItem, 0, len(o.Points))
		for _, p := range o.Points {
			points = append(points, pointItem{Time: p.Time, Value: p.Value})
		}
		out.Overlays[string(name)] = overlayItem{Computed: o.Computed, Points: points}
	}
	return out
}

func toSnapshotResponse(s domain.PriceSnapshot) snapshotResponse {
	return snapshotResponse{
		Symbol:        s.Symbol,
		Open:          s.Open,
		High:          s.High,
		Low:           s.Low,
		Close:         s.Close,
		ChangePercent: s.ChangePercent,
		Volume:        s.Volume,
		Synthetic:     s.Synthetic,
		Formatted: formattedSnapshot{
			Price:     chart.FormatPrice(s.Close),
			Change:    chart.FormatChange(s.ChangePercent),
			High:      chart.FormatPrice(s.High),
			Low:       chart.FormatPrice(s.Low),
			Volume:    chart.FormatVolume(s.Volume),
			MarketCap: chart.FormatMarketCap(chart.MarketCap(s.Volume)),
		},
	}
}

func toToggleResponse(m map[domain.IndicatorName]bool) toggleResponse {
	out := toggleResponse{Indicators: make(map[string]bool, len(m))}
	for k, v := range m {
		out.Indicators[string(k)] = v
	}
	return out
}

type jobItem struct {
	Name      string `json:"name"`
	Once      bool   `json:"once"`
	Interval  string `json:"interval,omitempty"`
	Runs      int    `json:"runs"`
	LastRun   string `json:"lastRun,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

type jobsResponse struct {
	Jobs []jobItem `json:"jobs"`
}

func toJobsResponse(statuses []scheduler.JobStatus) jobsResponse {
	out := jobsResponse{Jobs: make([]jobItem, 0, len(statuses))}
	for _, st := range statuses {
		item := jobItem{Name: st.Name, Once: st.Once, Runs: st.Runs}
		if !st.Once {
			item.Interval = st.Interval.String()
		}
		if !st.LastRun.IsZero() {
			item.LastRun = st.LastRun.UTC().Format(time.RFC3339)
		}
		if st.LastErr != nil {
			item.LastError = st.LastErr.Error()
		}
		out.Jobs = append(out.Jobs, item)
	}
	return out
}
