package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateCRUDLifecycle(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store, &fakeOrchestrator{})
	biz, err := store.CreateBusiness(context.Background(), businessFixture("Acme"))
	require.NoError(t, err)

	createRec := doJSON(t, s, http.MethodPost, "/templates", biz.InternalAPIKey, &TemplateRequest{
		BusinessID: biz.ID, TemplateName: "Greeting", TemplateType: "stage_selection", Content: "{stage_list}|{user_message}",
	})
	require.Equal(t, http.StatusCreated, createRec.Code)
	var created TemplateResponse
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	assert.Equal(t, "stage_selection", created.TemplateType)

	listRec := doJSON(t, s, http.MethodGet, "/templates?business_id="+biz.ID+"&template_type=stage_selection", biz.InternalAPIKey, nil)
	require.Equal(t, http.StatusOK, listRec.Code)
	var listed []TemplateResponse
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	deleteRec := doJSON(t, s, http.MethodDelete, "/templates/"+created.TemplateID, biz.InternalAPIKey, nil)
	assert.Equal(t, http.StatusNoContent, deleteRec.Code)
}
