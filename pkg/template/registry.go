package template

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stagehand-run/stagehand/pkg/models"
)

// Registry holds the named Providers an Engine can resolve against.
type Registry struct {
	providers map[string]Provider
	ds        dataSource // set by NewDefaultRegistry; nil for NewRegistry
}

// NewRegistry returns an empty Registry. Use NewDefaultRegistry to get one
// seeded with the built-in variables spec.md section 4.3 names.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a named Provider.
func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

// Lookup returns the Provider for name, resolving "last_N_messages" (any N)
// to a Provider built on the fly, since that family can't be registered
// ahead of time for every possible N.
func (r *Registry) Lookup(name string) (Provider, bool) {
	if p, ok := r.providers[name]; ok {
		return p, true
	}
	if n, ok := parseLastNMessages(name); ok {
		return r.lastNMessagesProvider(n), true
	}
	return nil, false
}

func parseLastNMessages(name string) (int, bool) {
	const prefix, suffix = "last_", "_messages"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	mid := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	n, err := strconv.Atoi(mid)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// dataSource is the narrow slice of *store.Store the built-in providers
// need. Declared here (rather than importing pkg/store directly) so the
// template package's dependency surface stays legible from its own code.
type dataSource interface {
	GetBusiness(ctx context.Context, id string) (models.Business, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetStage(ctx context.Context, id string) (models.Stage, error)
	ListStages(ctx context.Context, businessID string) ([]models.Stage, error)
	ListMessages(ctx context.Context, conversationID string, n int) ([]models.Message, error)
	ListExtractedData(ctx context.Context, conversationID string) ([]models.ExtractedData, error)
	ListConversationsForUser(ctx context.Context, businessID, userID string) ([]models.Conversation, error)
}

// NewDefaultRegistry seeds a Registry with the built-in variables
// spec.md section 4.3 enumerates: stage metadata, conversation history,
// business/user identity, and the current message being processed.
func NewDefaultRegistry(ds dataSource) *Registry {
	r := NewRegistry()
	r.ds = ds

	r.Register("current_time", func(_ context.Context, _ RenderContext) (string, error) {
		return time.Now().UTC().Format("15:04 MST"), nil
	})
	r.Register("current_date", func(_ context.Context, _ RenderContext) (string, error) {
		return time.Now().UTC().Format("2006-01-02"), nil
	})

	r.Register("business_name", func(ctx context.Context, rc RenderContext) (string, error) {
		b, err := ds.GetBusiness(ctx, rc.BusinessID)
		if err != nil {
			return "", err
		}
		return b.BusinessName, nil
	})
	r.Register("business_info", func(ctx context.Context, rc RenderContext) (string, error) {
		b, err := ds.GetBusiness(ctx, rc.BusinessID)
		if err != nil {
			return "", err
		}
		parts := []string{b.BusinessName}
		if b.Description != "" {
			parts = append(parts, b.Description)
		}
		if b.Address != "" {
			parts = append(parts, b.Address)
		}
		if b.PhoneNumber != "" {
			parts = append(parts, b.PhoneNumber)
		}
		return strings.Join(parts, " | "), nil
	})

	r.Register("user_name", func(ctx context.Context, rc RenderContext) (string, error) {
		u, err := ds.GetUser(ctx, rc.UserID)
		if err != nil {
			return "", err
		}
		return u.FullName(), nil
	})

	r.Register("agent_type", func(_ context.Context, rc RenderContext) (string, error) {
		return rc.AgentType, nil
	})

	r.Register("current_stage", func(ctx context.Context, rc RenderContext) (string, error) {
		if rc.CurrentStageID == "" {
			return "", fmt.Errorf("no current stage")
		}
		st, err := ds.GetStage(ctx, rc.CurrentStageID)
		if err != nil {
			return "", err
		}
		return st.StageName, nil
	})

	r.Register("stage_list", func(ctx context.Context, rc RenderContext) (string, error) {
		stages, err := ds.ListStages(ctx, rc.BusinessID)
		if err != nil {
			return "", err
		}
		return formatStageBracketList(stages), nil
	})
	r.Register("available_stages", func(ctx context.Context, rc RenderContext) (string, error) {
		stages, err := ds.ListStages(ctx, rc.BusinessID)
		if err != nil {
			return "", err
		}
		return formatStageList(stages), nil
	})

	r.Register("user_message", func(_ context.Context, rc RenderContext) (string, error) {
		return rc.UserMessage, nil
	})
	r.Register("message_content", func(_ context.Context, rc RenderContext) (string, error) {
		return rc.UserMessage, nil
	})

	r.Register("conversation_history", func(ctx context.Context, rc RenderContext) (string, error) {
		msgs, err := ds.ListMessages(ctx, rc.ConversationID, 0)
		if err != nil {
			return "", err
		}
		return formatTranscript(msgs), nil
	})
	r.Register("user_messages", func(ctx context.Context, rc RenderContext) (string, error) {
		msgs, err := ds.ListMessages(ctx, rc.ConversationID, 0)
		if err != nil {
			return "", err
		}
		var lines []string
		for _, m := range msgs {
			if m.SenderType == models.SenderUser {
				lines = append(lines, m.Content)
			}
		}
		return strings.Join(lines, "\n"), nil
	})
	r.Register("last_10_messages", func(ctx context.Context, rc RenderContext) (string, error) {
		msgs, err := ds.ListMessages(ctx, rc.ConversationID, 10)
		if err != nil {
			return "", err
		}
		return formatTranscript(msgs), nil
	})

	r.Register("fields", func(ctx context.Context, rc RenderContext) (string, error) {
		data, err := ds.ListExtractedData(ctx, rc.ConversationID)
		if err != nil {
			return "", err
		}
		return formatExtractedData(data), nil
	})

	r.Register("summary_of_last_conversations", func(ctx context.Context, rc RenderContext) (string, error) {
		convs, err := ds.ListConversationsForUser(ctx, rc.BusinessID, rc.UserID)
		if err != nil {
			return "", err
		}
		return formatRecentSummaries(convs, 3), nil
	})

	return r
}

func (r *Registry) lastNMessagesProvider(n int) Provider {
	return func(ctx context.Context, rc RenderContext) (string, error) {
		if r.ds == nil {
			return "", fmt.Errorf("last_%d_messages requires a data-source-bound registry", n)
		}
		msgs, err := r.ds.ListMessages(ctx, rc.ConversationID, n)
		if err != nil {
			return "", err
		}
		return formatTranscript(msgs), nil
	}
}

// formatStageList renders the available_stages variable: one
// "name: description" line per business stage (spec.md section 4.3).
func formatStageList(stages []models.Stage) string {
	lines := make([]string, 0, len(stages))
	for _, s := range stages {
		line := s.StageName
		if s.StageDescription != "" {
			line += ": " + s.StageDescription
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// formatStageBracketList renders the stage_list variable: a bracketed,
// comma-joined list of stage names, e.g. "[Greet, Assist, Close]"
// (spec.md section 4.3).
func formatStageBracketList(stages []models.Stage) string {
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.StageName)
	}
	return "[" + strings.Join(names, ", ") + "]"
}

func formatTranscript(msgs []models.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.SenderType, m.Content))
	}
	return strings.Join(lines, "\n")
}

func formatExtractedData(data []models.ExtractedData) string {
	if len(data) == 0 {
		return ""
	}
	lines := make([]string, 0, len(data))
	for _, d := range data {
		for k, v := range d.Data {
			lines = append(lines, fmt.Sprintf("%s: %v", k, v))
		}
	}
	return strings.Join(lines, "\n")
}

func formatRecentSummaries(convs []models.Conversation, limit int) string {
	var lines []string
	for _, c := range convs {
		if c.Summary == nil {
			continue
		}
		lines = append(lines, c.Summary.Overview)
		if len(lines) >= limit {
			break
		}
	}
	return strings.Join(lines, "\n")
}
