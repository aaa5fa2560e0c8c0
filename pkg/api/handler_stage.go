package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/stagehand-run/stagehand/pkg/models"
)

func stageToResponse(st models.Stage) *StageResponse {
	return &StageResponse{
		StageID:                  st.ID,
		BusinessID:               st.BusinessID,
		AgentID:                  st.AgentID,
		StageName:                st.StageName,
		StageDescription:         st.StageDescription,
		StageType:                st.StageType,
		StageSelectionTemplateID: st.StageSelectionTemplateID,
		DataExtractionTemplateID: st.DataExtractionTemplateID,
		ResponseGenerationTmplID: st.ResponseGenerationTmplID,
	}
}

// handleCreateStage handles POST /stages.
func (s *Server) handleCreateStage(c *echo.Context) error {
	var req StageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.BusinessID == "" || req.StageName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "business_id and stage_name are required")
	}
	if err := requireTenantMatch(c, req.BusinessID); err != nil {
		return err
	}

	st, err := s.store.CreateStage(c.Request().Context(), models.Stage{
		BusinessID:               req.BusinessID,
		AgentID:                  req.AgentID,
		StageName:                req.StageName,
		StageDescription:         req.StageDescription,
		StageType:                req.StageType,
		StageSelectionTemplateID: req.StageSelectionTemplateID,
		DataExtractionTemplateID: req.DataExtractionTemplateID,
		ResponseGenerationTmplID: req.ResponseGenerationTmplID,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, stageToResponse(st))
}

// handleListStages handles GET /stages?business_id=....
func (s *Server) handleListStages(c *echo.Context) error {
	businessID := c.QueryParam("business_id")
	if businessID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "business_id is required")
	}
	if err := requireTenantMatch(c, businessID); err != nil {
		return err
	}

	stages, err := s.store.ListStages(c.Request().Context(), businessID)
	if err != nil {
		return mapServiceError(err)
	}
	out := make([]*StageResponse, len(stages))
	for i, st := range stages {
		out[i] = stageToResponse(st)
	}
	return c.JSON(http.StatusOK, out)
}

// handleGetStage handles GET /stages/:id?business_id=....
func (s *Server) handleGetStage(c *echo.Context) error {
	st, err := s.store.GetStage(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	if err := requireTenantMatch(c, st.BusinessID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stageToResponse(st))
}

// handleUpdateStage handles PUT /stages/:id.
func (s *Server) handleUpdateStage(c *echo.Context) error {
	ctx := c.Request().Context()
	existing, err := s.store.GetStage(ctx, c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	if err := requireTenantMatch(c, existing.BusinessID); err != nil {
		return err
	}

	var req StageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	existing.AgentID = req.AgentID
	existing.StageName = req.StageName
	existing.StageDescription = req.StageDescription
	existing.StageType = req.StageType
	existing.StageSelectionTemplateID = req.StageSelectionTemplateID
	existing.DataExtractionTemplateID = req.DataExtractionTemplateID
	existing.ResponseGenerationTmplID = req.ResponseGenerationTmplID

	if err := s.store.UpdateStage(ctx, existing); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, stageToResponse(existing))
}

// handleDeleteStage handles DELETE /stages/:id?business_id=...: it MUST
// return 204 on success (spec.md section 6.1).
func (s *Server) handleDeleteStage(c *echo.Context) error {
	ctx := c.Request().Context()
	existing, err := s.store.GetStage(ctx, c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	if err := requireTenantMatch(c, existing.BusinessID); err != nil {
		return err
	}
	if err := s.store.DeleteStage(ctx, existing.ID); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
