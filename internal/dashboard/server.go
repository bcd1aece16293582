// Package dashboard serves a read-only JSON API over the store.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"logguard/internal/metrics"
	"logguard/internal/state"
	"logguard/internal/types"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit    = 100
	maxLimit        = 1000
	defaultStatDays = 1
	defaultTop      = 10
	shutdownTimeout = 5 * time.Second
)

// Server represents the dashboard HTTP server
type Server struct {
	store  EventStore
	addr   string
	engine *gin.Engine
	now    func() time.Time
}

// NewServer creates a new dashboard server
func NewServer(store EventStore, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		store: store,
		addr:  addr,
		now:   time.Now,
	}
	s.engine = s.routes()
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), countRequests())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/patterns", s.handlePatterns)
		api.GET("/alerts", s.handleAlerts)
		api.GET("/logs", s.handleLogs)
		api.GET("/stats", s.handleStats)
	}
	return r
}

// countRequests increments the API request counter by route template and status
func countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.APIRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("dashboard listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("dashboard stopped")
	return nil
}

// fail writes err with the status its kind maps to
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, state.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, state.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, state.ErrConnectivity):
		status = http.StatusServiceUnavailable
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, state.Invalidf("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}

func queryBool(c *gin.Context, key string, def bool) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, state.Invalidf("%s must be a boolean", key)
	}
	return b, nil
}

// handlePatterns lists patterns, active only unless active=false
func (s *Server) handlePatterns(c *gin.Context) {
	active, err := queryBool(c, "active", true)
	if err != nil {
		fail(c, err)
		return
	}
	patterns, err := s.store.ListPatterns(c.Request.Context(), active)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": patterns})
}

func (s *Server) handleAlerts(c *gin.Context) {
	unack, err := queryBool(c, "unacknowledged", false)
	if err != nil {
		fail(c, err)
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		fail(c, err)
		return
	}
	alerts, err := s.store.ListAlerts(c.Request.Context(), unack, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

func (s *Server) handleLogs(c *gin.Context) {
	ctx := c.Request.Context()
	limit, err := queryLimit(c)
	if err != nil {
		fail(c, err)
		return
	}
	f := state.LogFilter{SourceIP: c.Query("ip"), Limit: limit}
	if raw := c.Query("status"); raw != "" {
		st, err := types.ParseLogStatus(raw)
		if err != nil {
			fail(c, state.Invalidf("%v", err))
			return
		}
		f.Status = st
	}
	if raw := c.Query("attack_type"); raw != "" {
		at, err := s.store.FindAttackType(ctx, raw)
		if err != nil {
			fail(c, err)
			return
		}
		f.AttackTypeID = &at.ID
	}
	logs, err := s.store.SearchLogs(ctx, f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}

// handleStats returns statistics over the last days (default 1)
func (s *Server) handleStats(c *gin.Context) {
	days := defaultStatDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			fail(c, state.Invalidf("days must be a positive integer"))
			return
		}
		days = n
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	stats, err := collectStats(c.Request.Context(), s.store, since, defaultTop)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
