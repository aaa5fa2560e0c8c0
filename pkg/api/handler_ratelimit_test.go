package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echo "github.com/labstack/echo/v5"

	"github.com/stagehand-run/stagehand/pkg/auth"
	"github.com/stagehand-run/stagehand/pkg/models"
	"github.com/stagehand-run/stagehand/pkg/webhook"
)

// TestAdminWriteRateLimitRejectsEleventhRequest matches spec.md section 8
// scenario 6: with the master key, 11 POST /businesses within a minute
// succeed ten times and the 11th returns 429.
func TestAdminWriteRateLimitRejectsEleventhRequest(t *testing.T) {
	store := newFakeStore()
	s := &Server{
		store:          store,
		orch:           &fakeOrchestrator{},
		webhook:        webhook.NewHandler(store, &fakeOrchestrator{}),
		masterKey:      testMasterKey,
		adminLimiter:   auth.NewRateLimiter(10, time.Minute),
		messageLimiter: auth.NewRateLimiter(10000, time.Minute),
		globalLimiter:  auth.NewRateLimiter(10000, time.Minute),
	}
	s.echo = echo.New()
	s.setupRoutes()

	for i := 0; i < 10; i++ {
		rec := doJSON(t, s, http.MethodPost, "/businesses", testMasterKey, &CreateBusinessRequest{
			OwnerID: "owner-1", BusinessName: businessNameForIndex(i),
		})
		require.Equal(t, http.StatusCreated, rec.Code, "request %d should succeed", i)
	}

	rec := doJSON(t, s, http.MethodPost, "/businesses", testMasterKey, &CreateBusinessRequest{
		OwnerID: "owner-1", BusinessName: businessNameForIndex(10),
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func businessNameForIndex(i int) string {
	return "Acme-" + string(rune('A'+i))
}

// TestMessageIngressHasItsOwnRateLimitTier confirms the message tier is
// independent from the admin-write tier: exhausting one doesn't affect
// the other.
func TestMessageIngressHasItsOwnRateLimitTier(t *testing.T) {
	store := newFakeStore()
	biz, err := store.CreateBusiness(context.Background(), businessFixture("Acme"))
	require.NoError(t, err)
	user := store.putUser(models.User{FirstName: "Sam"})

	s := &Server{
		store:          store,
		orch:           &fakeOrchestrator{},
		webhook:        webhook.NewHandler(store, &fakeOrchestrator{}),
		masterKey:      testMasterKey,
		adminLimiter:   auth.NewRateLimiter(1, time.Minute),
		messageLimiter: auth.NewRateLimiter(10000, time.Minute),
		globalLimiter:  auth.NewRateLimiter(10000, time.Minute),
	}
	s.echo = echo.New()
	s.setupRoutes()

	// Exhaust the admin tier.
	rec := doJSON(t, s, http.MethodPost, "/businesses", testMasterKey, &CreateBusinessRequest{
		OwnerID: "owner-1", BusinessName: "Other",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, s, http.MethodPost, "/businesses", testMasterKey, &CreateBusinessRequest{
		OwnerID: "owner-1", BusinessName: "Other2",
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// The message tier is untouched.
	rec = doJSON(t, s, http.MethodPost, "/message", testMasterKey, &MessageRequest{
		BusinessID: biz.ID, UserID: user.ID, Message: "hi",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
