package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	stdlogger "ctreader/internal/adapters/logger"
	"ctreader/internal/ports"
)

// NewRouter wires the chart routes. CORS is open to any origin.
func NewRouter(h *Handler, logger ports.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), cors.Default(), requestLogger(logger))

	r.GET("/healthz", h.Health)
	api := r.Group("/api")
	{
		api.GET("/chart", h.GetChart)
		api.GET("/snapshot", h.GetSnapshot)
		api.GET("/jobs", h.GetJobs)
		api.PUT("/selection", h.PutSelection)
		api.PUT("/indicators/:name", h.PutIndicator)
	}
	return r
}

const requestIDHeader = "X-Request-ID"

// requestLogger tags the request context with a request id, so every log line written
// while serving it carries the id, and logs the outcome.
func requestLogger(logger ports.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)
		c.Request = c.Request.WithContext(stdlogger.ContextWithFields(c.Request.Context(), map[string]interface{}{"requestID": reqID}))

		c.Next()
		logger.Debug(c.Request.Context(), "HTTP request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

// Server runs the router until its context ends.
type Server struct {
	srv    *http.Server
	logger ports.Logger
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, handler http.Handler, logger ports.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": s.srv.Addr})
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info(ctx, "HTTP server stopped")
	return nil
}
