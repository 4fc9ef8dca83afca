package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meepleai/meepleai/pkg/database"
)

// healthHandler handles GET /health. It pings each dependency under a
// short deadline and degrades the overall status accordingly.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{Status: "healthy"}

	response.Database = database.Health(ctx, s.dbClient.Pool())
	if !response.Database.Reachable {
		response.Status = "unhealthy"
	}

	degrade := func() {
		if response.Status == "healthy" {
			response.Status = "degraded"
		}
	}

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		response.Redis = ComponentHealth{Reachable: false, Error: err.Error()}
		degrade()
	} else {
		response.Redis = ComponentHealth{Reachable: true}
	}

	if err := s.vectors.Health(ctx); err != nil {
		response.VectorStore = ComponentHealth{Reachable: false, Error: err.Error()}
		degrade()
	} else {
		response.VectorStore = ComponentHealth{Reachable: true}
	}

	if s.pool != nil {
		health := s.pool.Health()
		response.IndexerPool = &health
	}

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}
