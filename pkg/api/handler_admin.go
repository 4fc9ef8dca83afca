package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meepleai/meepleai/pkg/cache"
	"github.com/meepleai/meepleai/pkg/models"
)

// topQuestionCount bounds the per-game leaderboard in cache stats.
const topQuestionCount = 10

// cacheStatsHandler handles GET /api/v1/admin/cache/stats?gameId=.
func (s *Server) cacheStatsHandler(c *gin.Context) {
	gameID := c.Query("gameId")

	hits, misses, top, err := s.cacheStats.Aggregate(c.Request.Context(), gameID, topQuestionCount)
	if err != nil {
		respondError(c, err)
		return
	}

	report := models.CacheStatsReport{
		GameID:       gameID,
		Hits:         hits,
		Misses:       misses,
		TopQuestions: top,
	}
	if total := hits + misses; total > 0 {
		report.HitRate = float64(hits) / float64(total)
	}
	report.TotalKeys, report.TotalSizeBytes =
		s.cache.ScanCount(c.Request.Context(), cache.GamePatterns(gameID))

	c.JSON(http.StatusOK, report)
}

// invalidateCacheHandler handles POST /api/v1/admin/cache/invalidate.
// Without an endpoint, pattern deletion runs first, then the game's tag
// set is cleared, in that fixed order; with an endpoint only that
// endpoint's keys are deleted.
func (s *Server) invalidateCacheHandler(c *gin.Context) {
	var req InvalidateCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "VALIDATION")
		return
	}
	if req.GameID == "" {
		abortError(c, http.StatusBadRequest, "gameId is required", "VALIDATION")
		return
	}

	var removed int
	if req.Endpoint != "" {
		removed = s.cache.InvalidateEndpoint(c.Request.Context(), req.GameID, req.Endpoint)
	} else {
		removed = s.cache.InvalidateGame(c.Request.Context(), req.GameID)
		removed += s.cache.InvalidateByTag(c.Request.Context(), cache.GameTag(req.GameID))
	}

	c.JSON(http.StatusOK, InvalidateCacheResponse{RemovedKeys: removed})
}

// requestLogsHandler handles GET /api/v1/admin/requests?gameId=&limit=.
func (s *Server) requestLogsHandler(c *gin.Context) {
	gameID := c.Query("gameId")
	if gameID == "" {
		abortError(c, http.StatusBadRequest, "gameId is required", "VALIDATION")
		return
	}
	limit := 50
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 && n <= 500 {
		limit = n
	}

	logs, err := s.requestLog.Recent(c.Request.Context(), gameID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": logs})
}

// createGameHandler handles POST /api/v1/games.
func (s *Server) createGameHandler(c *gin.Context) {
	var req CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "VALIDATION")
		return
	}

	game, err := s.games.CreateGame(c.Request.Context(), req.ID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, game)
}

// listGamesHandler handles GET /api/v1/games.
func (s *Server) listGamesHandler(c *gin.Context) {
	games, err := s.games.ListGames(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}
