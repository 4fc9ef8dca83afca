package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meepleai/meepleai/pkg/services"
)

// listTemplatesHandler handles GET /api/v1/prompts?category=.
func (s *Server) listTemplatesHandler(c *gin.Context) {
	templates, err := s.registry.ListTemplates(c.Request.Context(), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// createTemplateHandler handles POST /api/v1/prompts.
func (s *Server) createTemplateHandler(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "VALIDATION")
		return
	}

	tmpl, err := s.registry.CreateTemplate(c.Request.Context(), services.CreateTemplateRequest{
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		InitialContent: req.InitialContent,
		Actor:          callerIdentity(c).UserID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tmpl)
}

// getTemplateHandler handles GET /api/v1/prompts/:templateId.
func (s *Server) getTemplateHandler(c *gin.Context) {
	tmpl, err := s.registry.GetTemplate(c.Request.Context(), c.Param("templateId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// historyHandler handles GET /api/v1/prompts/:templateId/versions.
func (s *Server) historyHandler(c *gin.Context) {
	versions, err := s.registry.History(c.Request.Context(), c.Param("templateId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// createVersionHandler handles POST /api/v1/prompts/:templateId/versions.
func (s *Server) createVersionHandler(c *gin.Context) {
	var req CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "VALIDATION")
		return
	}

	version, err := s.registry.CreateVersion(c.Request.Context(), services.CreateVersionRequest{
		TemplateID:          c.Param("templateId"),
		Content:             req.Content,
		Metadata:            req.Metadata,
		ActivateImmediately: req.ActivateImmediately,
		Actor:               callerIdentity(c).UserID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, version)
}

// activateVersionHandler handles PUT /api/v1/prompts/:templateId/activate.
func (s *Server) activateVersionHandler(c *gin.Context) {
	var req ActivateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "VALIDATION")
		return
	}
	if req.VersionID == "" {
		abortError(c, http.StatusBadRequest, "versionId is required", "VALIDATION")
		return
	}

	err := s.registry.ActivateVersion(c.Request.Context(),
		c.Param("templateId"), req.VersionID, req.Reason, callerIdentity(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activated": req.VersionID})
}

// auditsHandler handles GET /api/v1/prompts/:templateId/audits.
func (s *Server) auditsHandler(c *gin.Context) {
	audits, err := s.registry.Audits(c.Request.Context(), c.Param("templateId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audits": audits})
}
