package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/stagehand-run/stagehand/pkg/models"
)

// handleCreateBusiness handles POST /businesses, master-key only: it
// generates the tenant's one-time internal API key (spec.md section 6.1).
func (s *Server) handleCreateBusiness(c *echo.Context) error {
	var req CreateBusinessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.OwnerID == "" || req.BusinessName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id and business_name are required")
	}

	business, err := s.store.CreateBusiness(c.Request().Context(), models.Business{
		OwnerID:      req.OwnerID,
		BusinessName: req.BusinessName,
		Description:  req.BusinessDescription,
		Address:      req.Address,
		PhoneNumber:  req.PhoneNumber,
		Website:      req.Website,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusCreated, &CreateBusinessResponse{
		BusinessID: business.ID,
		APIKey:     business.InternalAPIKey,
	})
}

// handleGetBusiness handles GET /businesses/:id.
func (s *Server) handleGetBusiness(c *echo.Context) error {
	id := c.Param("id")
	if err := requireTenantMatch(c, id); err != nil {
		return err
	}

	business, err := s.store.GetBusiness(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &BusinessResponse{
		BusinessID:  business.ID,
		OwnerID:     business.OwnerID,
		Name:        business.BusinessName,
		Description: business.Description,
		Address:     business.Address,
		PhoneNumber: business.PhoneNumber,
		Website:     business.Website,
	})
}
