package api

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"sync"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/auth"
	"github.com/stagehand-run/stagehand/pkg/models"
	"github.com/stagehand-run/stagehand/pkg/orchestrator"
	"github.com/stagehand-run/stagehand/pkg/webhook"
)

// fakeStore is an in-memory stand-in for *store.Store covering exactly the
// apiStore method set.
type fakeStore struct {
	mu sync.Mutex

	businesses map[string]models.Business
	byKey      map[string]string // api key -> business id
	users      map[string]models.User
	stages     map[string]models.Stage
	templates  map[string]models.Template
	convs      map[string]models.Conversation

	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		businesses: make(map[string]models.Business),
		byKey:      make(map[string]string),
		users:      make(map[string]models.User),
		stages:     make(map[string]models.Stage),
		templates:  make(map[string]models.Template),
		convs:      make(map[string]models.Conversation),
	}
}

func (f *fakeStore) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) DB() *stdsql.DB { return nil }

func (f *fakeStore) CreateBusiness(_ context.Context, b models.Business) (models.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.businesses {
		if existing.BusinessName == b.BusinessName {
			return models.Business{}, apierr.New(apierr.Conflict, "business name already taken")
		}
	}
	b.ID = f.genID("biz")
	b.InternalAPIKey = f.genID("key")
	f.businesses[b.ID] = b
	f.byKey[b.InternalAPIKey] = b.ID
	return b, nil
}

func (f *fakeStore) GetBusiness(_ context.Context, id string) (models.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.businesses[id]
	if !ok {
		return models.Business{}, apierr.New(apierr.NotFound, "business not found")
	}
	return b, nil
}

func (f *fakeStore) LookupBusinessByKey(_ context.Context, apiKey string) (models.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byKey[apiKey]
	if !ok {
		return models.Business{}, apierr.New(apierr.NotFound, "unknown api key")
	}
	return f.businesses[id], nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return models.User{}, apierr.New(apierr.NotFound, "user not found")
	}
	return u, nil
}

func (f *fakeStore) putUser(u models.User) models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == "" {
		u.ID = f.genID("user")
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeStore) CreateStage(_ context.Context, st models.Stage) (models.Stage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st.ID = f.genID("stage")
	f.stages[st.ID] = st
	return st, nil
}

func (f *fakeStore) UpdateStage(_ context.Context, st models.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stages[st.ID]; !ok {
		return apierr.New(apierr.NotFound, "stage not found")
	}
	f.stages[st.ID] = st
	return nil
}

func (f *fakeStore) GetStage(_ context.Context, id string) (models.Stage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stages[id]
	if !ok {
		return models.Stage{}, apierr.New(apierr.NotFound, "stage not found")
	}
	return st, nil
}

func (f *fakeStore) ListStages(_ context.Context, businessID string) ([]models.Stage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Stage
	for _, st := range f.stages {
		if st.BusinessID == businessID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteStage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stages, id)
	return nil
}

func (f *fakeStore) CreateTemplate(_ context.Context, t models.Template) (models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = f.genID("tmpl")
	f.templates[t.ID] = t
	return t, nil
}

func (f *fakeStore) UpdateTemplate(_ context.Context, t models.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.templates[t.ID]; !ok {
		return apierr.New(apierr.NotFound, "template not found")
	}
	f.templates[t.ID] = t
	return nil
}

func (f *fakeStore) GetTemplate(_ context.Context, id string) (models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.templates[id]
	if !ok {
		return models.Template{}, apierr.New(apierr.NotFound, "template not found")
	}
	return t, nil
}

func (f *fakeStore) ListTemplates(_ context.Context, businessID string, templateType models.TemplateType) ([]models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Template
	for _, t := range f.templates {
		if t.BusinessID != businessID {
			continue
		}
		if templateType != "" && t.TemplateType != templateType {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) DeleteTemplate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.templates, id)
	return nil
}

func (f *fakeStore) ListConversationsForUser(_ context.Context, businessID, userID string) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Conversation
	for _, c := range f.convs {
		if c.BusinessID == businessID && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

// ResolveBusinessByPlatformRecipient and ResolveOrCreateUserByPlatformIdentity
// satisfy webhook.platformStore structurally; the webhook routes mounted
// alongside the HTTP API aren't exercised by these tests.
func (f *fakeStore) ResolveBusinessByPlatformRecipient(_ context.Context, platform, recipientID string) (models.Business, error) {
	return models.Business{}, apierr.New(apierr.NotFound, "no platform binding")
}

func (f *fakeStore) ResolveOrCreateUserByPlatformIdentity(_ context.Context, platform, senderID string) (models.User, error) {
	return models.User{}, apierr.New(apierr.Internal, "not implemented in test fake")
}

func (f *fakeStore) OpenOrResumeConversation(_ context.Context, businessID, userID, agentID, sessionID string) (models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.BusinessID == businessID && c.UserID == userID && c.SessionID == sessionID {
			return c, nil
		}
	}
	conv := models.Conversation{
		ID:         f.genID("conv"),
		BusinessID: businessID,
		UserID:     userID,
		AgentID:    agentID,
		SessionID:  sessionID,
		Status:     models.ConversationActive,
	}
	f.convs[conv.ID] = conv
	return conv, nil
}

// fakeOrchestrator is a stand-in for *orchestrator.Orchestrator.
type fakeOrchestrator struct {
	result orchestrator.Result
	err    error
	calls  []orchestrator.Inbound
}

func (f *fakeOrchestrator) ProcessMessage(_ context.Context, in orchestrator.Inbound) (orchestrator.Result, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return orchestrator.Result{}, f.err
	}
	return f.result, nil
}

const testMasterKey = "master-secret"

// newTestServer wires a Server around fakes, routing every request through
// the real setupRoutes table so auth middleware and tenant enforcement are
// exercised the same way a live deployment would hit them.
func newTestServer(store *fakeStore, orch *fakeOrchestrator) *Server {
	s := &Server{
		store:          store,
		orch:           orch,
		webhook:        webhook.NewHandler(store, orch),
		masterKey:      testMasterKey,
		adminLimiter:   auth.NewRateLimiter(10000, time.Minute),
		messageLimiter: auth.NewRateLimiter(10000, time.Minute),
		globalLimiter:  auth.NewRateLimiter(10000, time.Minute),
	}
	s.echo = echo.New()
	s.setupRoutes()
	return s
}
