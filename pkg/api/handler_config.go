package api

import (
	"crypto/subtle"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// handleSaveConfig handles POST /api/save-config, the unauthenticated entry
// point a web-chat widget calls to bind itself to a business: it validates
// the tuple {userId, businessId, businessApiKey} and, on success, sets an
// HttpOnly businessApiKey cookie the widget presents on later requests
// (spec.md section 6.1). Re-posting the same valid tuple is idempotent: it
// yields another 200 and an unchanged cookie.
func (s *Server) handleSaveConfig(c *echo.Context) error {
	var req SaveConfigRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" || req.BusinessID == "" || req.BusinessAPIKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId, businessId, and businessApiKey are required")
	}

	ctx := c.Request().Context()
	business, err := s.store.GetBusiness(ctx, req.BusinessID)
	if err != nil {
		return mapServiceError(err)
	}
	if subtle.ConstantTimeCompare([]byte(req.BusinessAPIKey), []byte(business.InternalAPIKey)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "businessApiKey does not match business")
	}

	if _, err := s.store.GetUser(ctx, req.UserID); err != nil {
		return mapServiceError(err)
	}

	http.SetCookie(c.Response(), &http.Cookie{
		Name:     "businessApiKey",
		Value:    req.BusinessAPIKey,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.NoContent(http.StatusOK)
}
