// Package httpapi exposes the chart over HTTP for browser or script clients.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ctreader/internal/chart"
	"ctreader/internal/domain"
	"ctreader/internal/ports"
	"ctreader/internal/scheduler"
	"ctreader/internal/stream"
)

// chartService is the part of app.ChartService the handlers use.
type chartService interface {
	Selection() domain.Selection
	Select(ctx context.Context, sel domain.Selection) error
	ToggleIndicator(ctx context.Context, name string, enabled bool) error
	Indicators() map[domain.IndicatorName]bool
	StreamState() (stream.State, domain.StreamKey)
	Jobs() []scheduler.JobStatus
}

// chartState is the rendered chart the handlers read from.
type chartState interface {
	Snapshot() chart.State
}

// Handler serves the chart API.
type Handler struct {
	svc   chartService
	state chartState
}

// NewHandler creates a Handler.
func NewHandler(svc chartService, state chartState) *Handler {
	return &Handler{svc: svc, state: state}
}

// Health answers liveness checks.
func (h *Handler) Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetChart returns candles, volume, overlays and status for the current selection.
func (h *Handler) GetChart(c *gin.Context) {
	state, key := h.svc.StreamState()
	c.JSON(http.StatusOK, toChartResponse(h.state.Snapshot(), streamItem{State: state.String(), Key: key.String()}))
}

// GetSnapshot returns the latest 24h ticker, or 404 before the first poll completes.
func (h *Handler) GetSnapshot(c *gin.Context) {
	st := h.state.Snapshot()
	if st.Snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot yet"})
		return
	}
	c.JSON(http.StatusOK, toSnapshotResponse(*st.Snapshot))
}

// PutSelection changes symbol and/or timeframe. Omitted fields keep their value.
func (h *Handler) PutSelection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sel := h.svc.Selection()
	if req.Symbol != "" {
		sel.Symbol = req.Symbol
	}
	if req.Interval != "" {
		sel.Interval = req.Interval
	}
	if err := h.svc.Select(c.Request.Context(), sel); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	cur := h.svc.Selection()
	c.JSON(http.StatusOK, selectionResponse{Symbol: cur.Symbol, Interval: cur.Interval})
}

// PutIndicator enables or disables one indicator.
func (h *Handler) PutIndicator(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.svc.ToggleIndicator(c.Request.Context(), c.Param("name"), *req.Enabled)
	switch {
	case errors.Is(err, ports.ErrInvalidRequest):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toToggleResponse(h.svc.Indicators()))
}

// GetJobs lists the periodic jobs and their last run.
func (h *Handler) GetJobs(c *gin.Context) {
	c.JSON(http.StatusOK, toJobsResponse(h.svc.Jobs()))
}
