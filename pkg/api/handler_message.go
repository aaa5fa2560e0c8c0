package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/orchestrator"
)

// handleMessage handles POST /message: the HTTP ingress counterpart to the
// platform webhooks in pkg/webhook, driving the same orchestrator pipeline
// (spec.md section 6.1). user_id must reference a user created out-of-band
// (a prior platform webhook resolution, or a future user-management
// endpoint); models.User.ID is always store-generated, so a caller cannot
// mint one by supplying an arbitrary ID here.
func (s *Server) handleMessage(c *echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.BusinessID == "" || req.UserID == "" || req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "business_id, user_id, and message are required")
	}
	if err := requireTenantMatch(c, req.BusinessID); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if _, err := s.store.GetUser(ctx, req.UserID); err != nil {
		return mapServiceError(err)
	}

	sessionID := req.ConversationID
	if sessionID == "" {
		sessionID = "api:" + req.UserID
	}

	result, err := s.orch.ProcessMessage(ctx, orchestrator.Inbound{
		BusinessID: req.BusinessID,
		UserID:     req.UserID,
		AgentID:    req.AgentID,
		SessionID:  sessionID,
		Content:    req.Message,
	})
	if err != nil {
		if apierr.As(err) == apierr.Busy {
			applyRetryAfter(c)
		}
		return mapServiceError(err)
	}

	conv, err := s.store.OpenOrResumeConversation(ctx, req.BusinessID, req.UserID, req.AgentID, sessionID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &MessageResponse{
		Response:       result.Reply,
		ConversationID: conv.ID,
	})
}
