package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-run/stagehand/pkg/models"
)

func TestSaveConfigSetsCookieOnValidTuple(t *testing.T) {
	store := newFakeStore()
	biz, err := store.CreateBusiness(context.Background(), businessFixture("Acme"))
	require.NoError(t, err)
	user := store.putUser(models.User{FirstName: "Sam"})
	s := newTestServer(store, &fakeOrchestrator{})

	rec := doJSON(t, s, http.MethodPost, "/api/save-config", "", &SaveConfigRequest{
		UserID: user.ID, BusinessID: biz.ID, BusinessAPIKey: biz.InternalAPIKey,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "businessApiKey", cookies[0].Name)
	assert.Equal(t, biz.InternalAPIKey, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestSaveConfigRejectsWrongAPIKey(t *testing.T) {
	store := newFakeStore()
	biz, err := store.CreateBusiness(context.Background(), businessFixture("Acme"))
	require.NoError(t, err)
	user := store.putUser(models.User{FirstName: "Sam"})
	s := newTestServer(store, &fakeOrchestrator{})

	rec := doJSON(t, s, http.MethodPost, "/api/save-config", "", &SaveConfigRequest{
		UserID: user.ID, BusinessID: biz.ID, BusinessAPIKey: "wrong-key",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSaveConfigIsIdempotent(t *testing.T) {
	store := newFakeStore()
	biz, err := store.CreateBusiness(context.Background(), businessFixture("Acme"))
	require.NoError(t, err)
	user := store.putUser(models.User{FirstName: "Sam"})
	s := newTestServer(store, &fakeOrchestrator{})

	req := &SaveConfigRequest{UserID: user.ID, BusinessID: biz.ID, BusinessAPIKey: biz.InternalAPIKey}
	first := doJSON(t, s, http.MethodPost, "/api/save-config", "", req)
	second := doJSON(t, s, http.MethodPost, "/api/save-config", "", req)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Result().Cookies()[0].Value, second.Result().Cookies()[0].Value)
}
