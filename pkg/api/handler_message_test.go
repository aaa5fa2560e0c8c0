package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/models"
	"github.com/stagehand-run/stagehand/pkg/orchestrator"
)

func TestHandleMessageHappyPath(t *testing.T) {
	store := newFakeStore()
	biz, err := store.CreateBusiness(context.Background(), businessFixture("Acme"))
	require.NoError(t, err)
	user := store.putUser(models.User{FirstName: "Sam"})
	orch := &fakeOrchestrator{result: orchestrator.Result{Reply: "hi there", StageID: "stage-1"}}
	s := newTestServer(store, orch)

	rec := doJSON(t, s, http.MethodPost, "/message", biz.InternalAPIKey, &MessageRequest{
		BusinessID: biz.ID, UserID: user.ID, Message: "hello",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hi there", resp.Response)
	assert.NotEmpty(t, resp.ConversationID)

	require.Len(t, orch.calls, 1)
	assert.Equal(t, biz.ID, orch.calls[0].BusinessID)
	assert.Equal(t, user.ID, orch.calls[0].UserID)
	assert.Equal(t, "api:"+user.ID, orch.calls[0].SessionID)
}

func TestHandleMessageUnknownUserIsNotFound(t *testing.T) {
	store := newFakeStore()
	biz, err := store.CreateBusiness(context.Background(), businessFixture("Acme"))
	require.NoError(t, err)
	s := newTestServer(store, &fakeOrchestrator{})

	rec := doJSON(t, s, http.MethodPost, "/message", biz.InternalAPIKey, &MessageRequest{
		BusinessID: biz.ID, UserID: "no-such-user", Message: "hello",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMessageSetsRetryAfterOnBusy(t *testing.T) {
	store := newFakeStore()
	biz, err := store.CreateBusiness(context.Background(), businessFixture("Acme"))
	require.NoError(t, err)
	user := store.putUser(models.User{FirstName: "Sam"})
	orch := &fakeOrchestrator{err: apierr.New(apierr.Busy, "conversation is currently being processed")}
	s := newTestServer(store, orch)

	rec := doJSON(t, s, http.MethodPost, "/message", biz.InternalAPIKey, &MessageRequest{
		BusinessID: biz.ID, UserID: user.ID, Message: "hello",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestHandleMessageUsesGivenConversationIDAsSession(t *testing.T) {
	store := newFakeStore()
	biz, err := store.CreateBusiness(context.Background(), businessFixture("Acme"))
	require.NoError(t, err)
	user := store.putUser(models.User{FirstName: "Sam"})
	orch := &fakeOrchestrator{result: orchestrator.Result{Reply: "ok"}}
	s := newTestServer(store, orch)

	rec := doJSON(t, s, http.MethodPost, "/message", biz.InternalAPIKey, &MessageRequest{
		BusinessID: biz.ID, UserID: user.ID, Message: "hello", ConversationID: "session-42",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, orch.calls, 1)
	assert.Equal(t, "session-42", orch.calls[0].SessionID)
}
