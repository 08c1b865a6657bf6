// Package tui renders the chart in a terminal and turns key presses into chart intents.
package tui

import (
	"context"
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"

	"ctreader/internal/chart"
	"ctreader/internal/domain"
	"ctreader/internal/marketdata"
)

// DefaultSymbols is the cycle order of the "s" key.
var DefaultSymbols = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT"}

var indicatorKeys = map[string]domain.IndicatorName{
	"m": domain.IndicatorSMA,
	"r": domain.IndicatorRSI,
	"d": domain.IndicatorMACD,
	"b": domain.IndicatorBollinger,
}

// Intents is the part of app.ChartService the terminal drives.
type Intents interface {
	Selection() domain.Selection
	SelectSymbol(ctx context.Context, symbol string) error
	SelectInterval(ctx context.Context, interval string) error
	ToggleIndicator(ctx context.Context, name string, enabled bool) error
	Indicators() map[domain.IndicatorName]bool
}

// Source is the chart model the terminal reads.
type Source interface {
	Snapshot() chart.State
	Changes() <-chan struct{}
}

type changedMsg struct{}

// Model is the bubbletea model of the chart screen.
type Model struct {
	ctx     context.Context
	intents Intents
	source  Source
	symbols []string

	state   chart.State
	lastErr error
	width   int
	height  int
}

// NewModel creates a Model. A nil or empty symbols list uses DefaultSymbols.
func NewModel(ctx context.Context, intents Intents, source Source, symbols []string) Model {
	if len(symbols) == 0 {
		symbols = DefaultSymbols
	}
	return Model{
		ctx:     ctx,
		intents: intents,
		source:  source,
		symbols: symbols,
		state:   source.Snapshot(),
	}
}

// Init starts listening for chart changes.
func (m Model) Init() tea.Cmd {
	return waitForChange(m.ctx, m.source.Changes())
}

// waitForChange blocks until the chart changes or ctx ends.
func waitForChange(ctx context.Context, ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ch:
			return changedMsg{}
		case <-ctx.Done():
			return tea.Quit()
		}
	}
}

// Update handles key presses, resizes and chart changes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case changedMsg:
		m.state = m.source.Snapshot()
		return m, waitForChange(m.ctx, m.source.Changes())

	case tea.KeyMsg:
		return m.handleKey(msg.String())
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "s":
		m.lastErr = m.intents.SelectSymbol(m.ctx, m.nextSymbol())
		return m, nil
	}

	if name, ok := indicatorKeys[key]; ok {
		enabled := m.intents.Indicators()[name]
		m.lastErr = m.intents.ToggleIndicator(m.ctx, string(name), !enabled)
		return m, nil
	}

	if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(marketdata.UIIntervals) {
		m.lastErr = m.intents.SelectInterval(m.ctx, marketdata.UIIntervals[n-1])
		return m, nil
	}
	return m, nil
}

// nextSymbol returns the symbol after the current one, wrapping around.
func (m Model) nextSymbol() string {
	cur := m.intents.Selection().Symbol
	for i, s := range m.symbols {
		if s == cur {
			return m.symbols[(i+1)%len(m.symbols)]
		}
	}
	return m.symbols[0]
}

// View renders the whole screen.
func (m Model) View() string {
	if m.width == 0 {
		return "loading…"
	}
	out := renderHeader(m.state) + "\n" +
		renderTicker(m.state.Snapshot) + "\n" +
		renderChart(m.state, m.width, m.height-6) +
		renderIndicators(m.state, m.intents.Indicators()) + "\n"
	if m.lastErr != nil {
		out += errorStyle.Render(fmt.Sprintf("error: %v", m.lastErr)) + "\n"
	}
	return out + footerStyle.Render("[s] symbol  [1-7] interval  [m] sma  [r] rsi  [d] macd  [b] bb  [q] quit")
}
