package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// handleListConversations handles GET /conversations/:user_id?business_id=....
func (s *Server) handleListConversations(c *echo.Context) error {
	userID := c.Param("user_id")
	businessID := c.QueryParam("business_id")
	if businessID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "business_id is required")
	}
	if err := requireTenantMatch(c, businessID); err != nil {
		return err
	}

	conversations, err := s.store.ListConversationsForUser(c.Request().Context(), businessID, userID)
	if err != nil {
		return mapServiceError(err)
	}

	out := make([]ConversationResponse, len(conversations))
	for i, conv := range conversations {
		out[i] = ConversationResponse{
			ConversationID: conv.ID,
			BusinessID:     conv.BusinessID,
			UserID:         conv.UserID,
			CurrentStageID: conv.CurrentStageID,
			Status:         string(conv.Status),
			StartTime:      conv.StartTime.Format(time.RFC3339),
			LastUpdated:    conv.LastUpdated.Format(time.RFC3339),
		}
	}
	return c.JSON(http.StatusOK, &ConversationsResponse{Conversations: out})
}
