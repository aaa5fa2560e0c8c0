package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/stagehand-run/stagehand/pkg/models"
)

func templateToResponse(t models.Template) *TemplateResponse {
	return &TemplateResponse{
		TemplateID:   t.ID,
		BusinessID:   t.BusinessID,
		TemplateName: t.TemplateName,
		TemplateType: string(t.TemplateType),
		Content:      t.Content,
		SystemPrompt: t.SystemPrompt,
	}
}

// handleCreateTemplate handles POST /templates.
func (s *Server) handleCreateTemplate(c *echo.Context) error {
	var req TemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.BusinessID == "" || req.TemplateName == "" || req.TemplateType == "" || req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "business_id, template_name, template_type, and content are required")
	}
	if err := requireTenantMatch(c, req.BusinessID); err != nil {
		return err
	}

	t, err := s.store.CreateTemplate(c.Request().Context(), models.Template{
		BusinessID:   req.BusinessID,
		TemplateName: req.TemplateName,
		TemplateType: models.TemplateType(req.TemplateType),
		Content:      req.Content,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, templateToResponse(t))
}

// handleListTemplates handles GET /templates?business_id=...[&template_type=...].
func (s *Server) handleListTemplates(c *echo.Context) error {
	businessID := c.QueryParam("business_id")
	if businessID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "business_id is required")
	}
	if err := requireTenantMatch(c, businessID); err != nil {
		return err
	}

	templateType := models.TemplateType(c.QueryParam("template_type"))
	templates, err := s.store.ListTemplates(c.Request().Context(), businessID, templateType)
	if err != nil {
		return mapServiceError(err)
	}
	out := make([]*TemplateResponse, len(templates))
	for i, t := range templates {
		out[i] = templateToResponse(t)
	}
	return c.JSON(http.StatusOK, out)
}

// handleGetTemplate handles GET /templates/:id?business_id=....
func (s *Server) handleGetTemplate(c *echo.Context) error {
	t, err := s.store.GetTemplate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	if err := requireTenantMatch(c, t.BusinessID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, templateToResponse(t))
}

// handleUpdateTemplate handles PUT /templates/:id.
func (s *Server) handleUpdateTemplate(c *echo.Context) error {
	ctx := c.Request().Context()
	existing, err := s.store.GetTemplate(ctx, c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	if err := requireTenantMatch(c, existing.BusinessID); err != nil {
		return err
	}

	var req TemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	existing.TemplateName = req.TemplateName
	if req.TemplateType != "" {
		existing.TemplateType = models.TemplateType(req.TemplateType)
	}
	existing.Content = req.Content
	existing.SystemPrompt = req.SystemPrompt

	if err := s.store.UpdateTemplate(ctx, existing); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, templateToResponse(existing))
}

// handleDeleteTemplate handles DELETE /templates/:id?business_id=....
func (s *Server) handleDeleteTemplate(c *echo.Context) error {
	ctx := c.Request().Context()
	existing, err := s.store.GetTemplate(ctx, c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	if err := requireTenantMatch(c, existing.BusinessID); err != nil {
		return err
	}
	if err := s.store.DeleteTemplate(ctx, existing.ID); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
