package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/meepleai/meepleai/pkg/models"
)

// qaHandler handles POST /api/v1/agents/qa.
func (s *Server) qaHandler(c *gin.Context) {
	var req QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "VALIDATION")
		return
	}

	response, err := s.qa.Answer(c.Request.Context(), req.GameID, req.Query, callerIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// qaStreamHandler handles POST /api/v1/agents/qa/stream as an SSE
// response. An empty game id is rejected before the stream opens; all
// other failures surface as error events inside the stream.
func (s *Server) qaStreamHandler(c *gin.Context) {
	var req QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "VALIDATION")
		return
	}
	if strings.TrimSpace(req.GameID) == "" {
		abortError(c, http.StatusBadRequest, "gameId is required", "VALIDATION")
		return
	}

	events := s.qaStream.Stream(c.Request.Context(), req.GameID, req.Query, callerIdentity(c))
	serveSSE(c, events)
}

// explainHandler handles POST /api/v1/agents/explain.
func (s *Server) explainHandler(c *gin.Context) {
	var req ExplainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "VALIDATION")
		return
	}

	response, err := s.explain.Explain(c.Request.Context(), req.GameID, req.Topic, callerIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// setupHandler handles POST /api/v1/setup/generate.
func (s *Server) setupHandler(c *gin.Context) {
	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "VALIDATION")
		return
	}

	response, err := s.explain.Setup(c.Request.Context(), req.GameID, callerIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// feedbackHandler handles POST /api/v1/agents/feedback.
func (s *Server) feedbackHandler(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "VALIDATION")
		return
	}

	identity := callerIdentity(c)
	err := s.feedback.Record(c.Request.Context(), models.AgentFeedback{
		MessageID: req.MessageID,
		Endpoint:  req.Endpoint,
		UserID:    identity.UserID,
		GameID:    req.GameID,
		Outcome:   req.Outcome,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": req.Outcome != ""})
}

// feedbackStatsHandler handles GET /api/v1/agents/feedback/stats.
func (s *Server) feedbackStatsHandler(c *gin.Context) {
	stats, err := s.feedback.Stats(c.Request.Context(), c.Query("gameId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
