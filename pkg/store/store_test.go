package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/models"
	"github.com/stagehand-run/stagehand/pkg/store"
)

// newTestStore spins up a disposable Postgres container, runs the embedded
// migrations through store.New, and registers cleanup. Each test gets its
// own container rather than a shared schema, mirroring the isolation the
// teacher's test harness gave each package suite.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("stagehand_test"),
		tcpostgres.WithUsername("stagehand"),
		tcpostgres.WithPassword("stagehand"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	st, err := store.New(ctx, store.Config{
		Host:               host,
		Port:               port.Int(),
		User:               "stagehand",
		Password:           "stagehand",
		Database:           "stagehand_test",
		SSLMode:            "disable",
		MaxOpenConns:       5,
		MaxIdleConns:       5,
		ConnMaxLifetime:    time.Hour,
		ConnMaxIdleTime:    time.Hour,
		PoolAcquireTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mustBusiness(t *testing.T, st *store.Store) models.Business {
	t.Helper()
	b, err := st.CreateBusiness(context.Background(), models.Business{
		OwnerID:      "00000000-0000-0000-0000-000000000001",
		BusinessName: "Acme Gadgets",
	})
	require.NoError(t, err)
	require.Len(t, b.InternalAPIKey, 64)
	return b
}

func TestCreateBusinessGeneratesAPIKeyAndRejectsDuplicateName(t *testing.T) {
	st := newTestStore(t)
	b := mustBusiness(t, st)

	found, err := st.LookupBusinessByKey(context.Background(), b.InternalAPIKey)
	require.NoError(t, err)
	require.Equal(t, b.ID, found.ID)

	_, err = st.CreateBusiness(context.Background(), models.Business{
		OwnerID:      "00000000-0000-0000-0000-000000000002",
		BusinessName: "Acme Gadgets",
	})
	require.Error(t, err)
	require.Equal(t, apierr.Conflict, apierr.As(err))
}

func TestTemplateVariableUsageRescanOnUpdate(t *testing.T) {
	st := newTestStore(t)
	b := mustBusiness(t, st)
	ctx := context.Background()

	tmpl, err := st.CreateTemplate(ctx, models.Template{
		BusinessID:   b.ID,
		TemplateName: "Greeting",
		TemplateType: models.TemplateStageSelection,
		Content:      "Hello {user_name}, current stage is {current_stage}.",
		SystemPrompt: "Pick the next stage from {available_stages}.",
	})
	require.NoError(t, err)

	vars, err := st.ListVariables(ctx)
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, v := range vars {
		names[v.Name] = true
	}
	require.True(t, names["user_name"])
	require.True(t, names["current_stage"])
	require.True(t, names["available_stages"])

	tmpl.Content = "Hi {user_name}!"
	tmpl.SystemPrompt = "no variables here"
	require.NoError(t, st.UpdateTemplate(ctx, tmpl))

	reloaded, err := st.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Equal(t, "Hi {user_name}!", reloaded.Content)
}

func TestLeaseAcquireIsExclusiveUntilReleased(t *testing.T) {
	st := newTestStore(t)
	b := mustBusiness(t, st)
	ctx := context.Background()

	u, err := st.CreateUser(ctx, models.User{FirstName: "Jamie"})
	require.NoError(t, err)

	conv, err := st.OpenOrResumeConversation(ctx, b.ID, u.ID, "", "session-1")
	require.NoError(t, err)

	require.NoError(t, st.TryAcquireLease(ctx, conv.ID, "worker-a", 30*time.Second))

	err = st.TryAcquireLease(ctx, conv.ID, "worker-b", 30*time.Second)
	require.Error(t, err)
	require.Equal(t, apierr.Busy, apierr.As(err))

	require.NoError(t, st.ReleaseLease(ctx, conv.ID, "worker-a"))
	require.NoError(t, st.TryAcquireLease(ctx, conv.ID, "worker-b", 30*time.Second))
}

func TestReclaimOrphanedLeases(t *testing.T) {
	st := newTestStore(t)
	b := mustBusiness(t, st)
	ctx := context.Background()

	u, err := st.CreateUser(ctx, models.User{FirstName: "Sam"})
	require.NoError(t, err)
	conv, err := st.OpenOrResumeConversation(ctx, b.ID, u.ID, "", "session-2")
	require.NoError(t, err)

	require.NoError(t, st.TryAcquireLease(ctx, conv.ID, "worker-a", -time.Second))

	n, err := st.ReclaimOrphanedLeases(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	require.NoError(t, st.TryAcquireLease(ctx, conv.ID, "worker-b", 30*time.Second))
}

func TestAIControlResolutionOrder(t *testing.T) {
	st := newTestStore(t)
	b := mustBusiness(t, st)
	ctx := context.Background()

	u, err := st.CreateUser(ctx, models.User{FirstName: "Riley"})
	require.NoError(t, err)
	conv, err := st.OpenOrResumeConversation(ctx, b.ID, u.ID, "", "session-3")
	require.NoError(t, err)

	_, err = st.SetAIControl(ctx, models.AIControlSetting{
		BusinessID: b.ID, Scope: models.ScopeBusiness, Paused: true,
	})
	require.NoError(t, err)

	resolved, err := st.ResolveAIControl(ctx, b.ID, u.ID, conv.ID)
	require.NoError(t, err)
	require.Equal(t, models.ScopeBusiness, resolved.Scope)

	_, err = st.SetAIControl(ctx, models.AIControlSetting{
		BusinessID: b.ID, Scope: models.ScopeConversation, ConversationID: conv.ID, UserID: u.ID, Paused: false,
	})
	require.NoError(t, err)

	resolved, err = st.ResolveAIControl(ctx, b.ID, u.ID, conv.ID)
	require.NoError(t, err)
	require.Equal(t, models.ScopeConversation, resolved.Scope)
	require.False(t, resolved.Paused)
}

func TestMessagesAreStrictlyMonotonic(t *testing.T) {
	st := newTestStore(t)
	b := mustBusiness(t, st)
	ctx := context.Background()

	u, err := st.CreateUser(ctx, models.User{FirstName: "Morgan"})
	require.NoError(t, err)
	conv, err := st.OpenOrResumeConversation(ctx, b.ID, u.ID, "", "session-4")
	require.NoError(t, err)

	var last time.Time
	for i := 0; i < 5; i++ {
		m, err := st.AppendMessage(ctx, models.Message{
			ConversationID: conv.ID,
			Content:        "hi",
			SenderType:     models.SenderUser,
		})
		require.NoError(t, err)
		require.True(t, m.CreatedAt.After(last))
		last = m.CreatedAt
	}

	msgs, err := st.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i := 1; i < len(msgs); i++ {
		require.True(t, msgs[i].CreatedAt.After(msgs[i-1].CreatedAt))
	}
}

func TestResolveBusinessByPlatformRecipient(t *testing.T) {
	st := newTestStore(t)
	b := mustBusiness(t, st)
	ctx := context.Background()

	_, err := st.ResolveBusinessByPlatformRecipient(ctx, "facebook", "page-123")
	require.Error(t, err)
	require.Equal(t, apierr.NotFound, apierr.As(err))

	require.NoError(t, st.PutPlatformBinding(ctx, models.PlatformBinding{
		Platform:            "facebook",
		PlatformRecipientID: "page-123",
		BusinessID:          b.ID,
	}))

	found, err := st.ResolveBusinessByPlatformRecipient(ctx, "facebook", "page-123")
	require.NoError(t, err)
	require.Equal(t, b.ID, found.ID)

	// Rebinding the same recipient to a different business overwrites
	// rather than conflicting.
	b2 := mustBusiness(t, st)
	require.NoError(t, st.PutPlatformBinding(ctx, models.PlatformBinding{
		Platform:            "facebook",
		PlatformRecipientID: "page-123",
		BusinessID:          b2.ID,
	}))
	found, err = st.ResolveBusinessByPlatformRecipient(ctx, "facebook", "page-123")
	require.NoError(t, err)
	require.Equal(t, b2.ID, found.ID)
}

func TestPutPlatformBindingRejectsUnknownBusiness(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.PutPlatformBinding(ctx, models.PlatformBinding{
		Platform:            "whatsapp",
		PlatformRecipientID: "phone-1",
		BusinessID:          "00000000-0000-0000-0000-000000000099",
	})
	require.Error(t, err)
	require.Equal(t, apierr.InvalidRequest, apierr.As(err))
}

func TestResolveOrCreateUserByPlatformIdentityIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.ResolveOrCreateUserByPlatformIdentity(ctx, "whatsapp", "+15551234567")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := st.ResolveOrCreateUserByPlatformIdentity(ctx, "whatsapp", "+15551234567")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	third, err := st.ResolveOrCreateUserByPlatformIdentity(ctx, "whatsapp", "+15559999999")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, third.ID)
}
