package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/stagehand-run/stagehand/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string         `json:"status"`
	Version  string         `json:"version"`
	Database DatabaseHealth `json:"database"`
}

// DatabaseHealth reports connection-pool statistics the way the teacher's
// pkg/database/health.go does.
type DatabaseHealth struct {
	Status          string `json:"status"`
	ResponseTime    int64  `json:"response_time_ms"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
}

// handleHealth handles GET /health: reports DB reachability and pool
// stats, unauthenticated since orchestration layers poll it.
func (s *Server) handleHealth(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	db := s.store.DB()
	if err := db.PingContext(reqCtx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, &HealthResponse{
			Status:  healthStatusUnhealthy,
			Version: version.Full(),
			Database: DatabaseHealth{
				Status:       healthStatusUnhealthy,
				ResponseTime: time.Since(start).Milliseconds(),
			},
		})
	}

	stats := db.Stats()
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  healthStatusHealthy,
		Version: version.Full(),
		Database: DatabaseHealth{
			Status:          healthStatusHealthy,
			ResponseTime:    time.Since(start).Milliseconds(),
			OpenConnections: stats.OpenConnections,
			InUse:           stats.InUse,
			Idle:            stats.Idle,
		},
	})
}

// handlePing handles GET /ping: the bare liveness check with no dependency
// on the database being reachable.
func (s *Server) handlePing(c *echo.Context) error {
	return c.String(http.StatusOK, "pong")
}
