package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/models"
	"github.com/stagehand-run/stagehand/pkg/orchestrator"
	"github.com/stagehand-run/stagehand/pkg/webhook"
)

const testSecret = "test-webhook-secret"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type fakeStore struct {
	businessByRecipient map[string]models.Business
	userBySender        map[string]models.User
}

func (f *fakeStore) ResolveBusinessByPlatformRecipient(_ context.Context, platform, recipientID string) (models.Business, error) {
	b, ok := f.businessByRecipient[platform+":"+recipientID]
	if !ok {
		return models.Business{}, apierr.New(apierr.NotFound, "no binding")
	}
	return b, nil
}

func (f *fakeStore) ResolveOrCreateUserByPlatformIdentity(_ context.Context, platform, senderID string) (models.User, error) {
	if u, ok := f.userBySender[platform+":"+senderID]; ok {
		return u, nil
	}
	u := models.User{ID: "user-" + senderID}
	f.userBySender[platform+":"+senderID] = u
	return u, nil
}

type fakeOrchestrator struct {
	lastInbound orchestrator.Inbound
	reply       string
	err         error
	calls       int
}

func (f *fakeOrchestrator) ProcessMessage(_ context.Context, in orchestrator.Inbound) (orchestrator.Result, error) {
	f.lastInbound = in
	f.calls++
	if f.err != nil {
		return orchestrator.Result{}, f.err
	}
	return orchestrator.Result{Reply: f.reply, StageID: "stage-a"}, nil
}

type fakeAdapter struct {
	name        string
	secret      string
	verifyToken string
	sent        []string
	sendErr     error
}

func (a *fakeAdapter) Name() string   { return a.name }
func (a *fakeAdapter) Secret() string { return a.secret }

func (a *fakeAdapter) VerifyChallenge(query map[string]string) (string, error) {
	if query["hub.verify_token"] != a.verifyToken {
		return "", assert.AnError
	}
	return query["hub.challenge"], nil
}

func (a *fakeAdapter) ParseEvents(body []byte) ([]webhook.Event, error) {
	var raw struct {
		RecipientID string `json:"recipient_id"`
		SenderID    string `json:"sender_id"`
		Text        string `json:"text"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if raw.Text == "" {
		return nil, nil
	}
	return []webhook.Event{{RecipientPlatformID: raw.RecipientID, SenderPlatformID: raw.SenderID, Text: raw.Text}}, nil
}

func (a *fakeAdapter) SendReply(_ context.Context, senderPlatformID, text string) error {
	if a.sendErr != nil {
		return a.sendErr
	}
	a.sent = append(a.sent, senderPlatformID+":"+text)
	return nil
}

func newTestServer(h *webhook.Handler) *echo.Echo {
	e := echo.New()
	e.GET("/webhooks/:platform", h.VerifyChallenge)
	e.POST("/webhooks/:platform", h.HandleEvent)
	return e
}

func TestHandleEventResolvesAndRepliesOnValidSignature(t *testing.T) {
	store := &fakeStore{
		businessByRecipient: map[string]models.Business{"facebook:page-1": {ID: "biz-1"}},
		userBySender:        map[string]models.User{},
	}
	orch := &fakeOrchestrator{reply: "hello back"}
	adapter := &fakeAdapter{name: "facebook", secret: testSecret}
	h := webhook.NewHandler(store, orch, adapter)
	e := newTestServer(h)

	body := []byte(`{"recipient_id":"page-1","sender_id":"user-9","text":"hi there"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", strings.NewReader(string(body)))
	req.Header.Set("X-Hub-Signature-256", sign(body))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, orch.calls)
	assert.Equal(t, "biz-1", orch.lastInbound.BusinessID)
	assert.Equal(t, "user-user-9", orch.lastInbound.UserID)
	assert.Equal(t, []string{"user-9:hello back"}, adapter.sent)
}

func TestHandleEventRejectsTamperedBody(t *testing.T) {
	store := &fakeStore{businessByRecipient: map[string]models.Business{}, userBySender: map[string]models.User{}}
	orch := &fakeOrchestrator{reply: "hello back"}
	adapter := &fakeAdapter{name: "facebook", secret: testSecret}
	h := webhook.NewHandler(store, orch, adapter)
	e := newTestServer(h)

	body := []byte(`{"recipient_id":"page-1","sender_id":"user-9","text":"hi there"}`)
	sig := sign(body)
	tampered := []byte(`{"recipient_id":"page-1","sender_id":"user-9","text":"hi tHere"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", strings.NewReader(string(tampered)))
	req.Header.Set("X-Hub-Signature-256", sig)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, orch.calls)
}

func TestHandleEventUnknownPlatformIs404(t *testing.T) {
	store := &fakeStore{businessByRecipient: map[string]models.Business{}, userBySender: map[string]models.User{}}
	orch := &fakeOrchestrator{}
	h := webhook.NewHandler(store, orch)
	e := newTestServer(h)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleEventUnboundRecipientIsAcknowledgedWithoutProcessing(t *testing.T) {
	store := &fakeStore{businessByRecipient: map[string]models.Business{}, userBySender: map[string]models.User{}}
	orch := &fakeOrchestrator{reply: "hello back"}
	adapter := &fakeAdapter{name: "facebook", secret: testSecret}
	h := webhook.NewHandler(store, orch, adapter)
	e := newTestServer(h)

	body := []byte(`{"recipient_id":"unknown-page","sender_id":"user-9","text":"hi there"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", strings.NewReader(string(body)))
	req.Header.Set("X-Hub-Signature-256", sign(body))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, orch.calls)
}

func TestHandleEventSkipsEmptyTextEvents(t *testing.T) {
	store := &fakeStore{
		businessByRecipient: map[string]models.Business{"facebook:page-1": {ID: "biz-1"}},
		userBySender:        map[string]models.User{},
	}
	orch := &fakeOrchestrator{reply: "hello back"}
	adapter := &fakeAdapter{name: "facebook", secret: testSecret}
	h := webhook.NewHandler(store, orch, adapter)
	e := newTestServer(h)

	body := []byte(`{"recipient_id":"page-1","sender_id":"user-9","text":""}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", strings.NewReader(string(body)))
	req.Header.Set("X-Hub-Signature-256", sign(body))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, orch.calls)
}

func TestHandleEventDoesNotReplyWhenAIControlPaused(t *testing.T) {
	store := &fakeStore{
		businessByRecipient: map[string]models.Business{"facebook:page-1": {ID: "biz-1"}},
		userBySender:        map[string]models.User{},
	}
	orch := &fakeOrchestrator{reply: ""} // empty reply: paused conversation
	adapter := &fakeAdapter{name: "facebook", secret: testSecret}
	h := webhook.NewHandler(store, orch, adapter)
	e := newTestServer(h)

	body := []byte(`{"recipient_id":"page-1","sender_id":"user-9","text":"hi there"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", strings.NewReader(string(body)))
	req.Header.Set("X-Hub-Signature-256", sign(body))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, orch.calls)
	assert.Empty(t, adapter.sent)
}

func TestVerifyChallengeEchoesChallengeOnValidToken(t *testing.T) {
	store := &fakeStore{businessByRecipient: map[string]models.Business{}, userBySender: map[string]models.User{}}
	orch := &fakeOrchestrator{}
	adapter := &fakeAdapter{name: "facebook", secret: testSecret, verifyToken: "expected-token"}
	h := webhook.NewHandler(store, orch, adapter)
	e := newTestServer(h)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/facebook?hub.mode=subscribe&hub.verify_token=expected-token&hub.challenge=123456", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "123456", rec.Body.String())
}

func TestVerifyChallengeRejectsWrongToken(t *testing.T) {
	store := &fakeStore{businessByRecipient: map[string]models.Business{}, userBySender: map[string]models.User{}}
	orch := &fakeOrchestrator{}
	adapter := &fakeAdapter{name: "facebook", secret: testSecret, verifyToken: "expected-token"}
	h := webhook.NewHandler(store, orch, adapter)
	e := newTestServer(h)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/facebook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=123456", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
