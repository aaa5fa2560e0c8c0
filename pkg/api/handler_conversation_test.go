package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-run/stagehand/pkg/models"
	"github.com/stagehand-run/stagehand/pkg/orchestrator"
)

func TestListConversationsReturnsConversationsForUser(t *testing.T) {
	store := newFakeStore()
	biz, err := store.CreateBusiness(context.Background(), businessFixture("Acme"))
	require.NoError(t, err)
	user := store.putUser(models.User{FirstName: "Sam"})
	orch := &fakeOrchestrator{result: orchestrator.Result{Reply: "hi"}}
	s := newTestServer(store, orch)

	msgRec := doJSON(t, s, http.MethodPost, "/message", biz.InternalAPIKey, &MessageRequest{
		BusinessID: biz.ID, UserID: user.ID, Message: "hello",
	})
	require.Equal(t, http.StatusOK, msgRec.Code)

	rec := doJSON(t, s, http.MethodGet, "/conversations/"+user.ID+"?business_id="+biz.ID, biz.InternalAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConversationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, user.ID, resp.Conversations[0].UserID)
}

func TestListConversationsRejectsMismatchedTenant(t *testing.T) {
	store := newFakeStore()
	biz, err := store.CreateBusiness(context.Background(), businessFixture("Acme"))
	require.NoError(t, err)
	other, err := store.CreateBusiness(context.Background(), businessFixture("Widgets"))
	require.NoError(t, err)
	s := newTestServer(store, &fakeOrchestrator{})

	rec := doJSON(t, s, http.MethodGet, "/conversations/some-user?business_id="+biz.ID, other.InternalAPIKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
