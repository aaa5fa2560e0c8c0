// Package orchestrator drives the three-phase message pipeline that turns
// one inbound message into a reply: stage selection, data extraction, and
// response generation (spec.md section 4.7), each an LLM call rendered
// through a business's configured templates.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/llm"
	"github.com/stagehand-run/stagehand/pkg/models"
	"github.com/stagehand-run/stagehand/pkg/stage"
	"github.com/stagehand-run/stagehand/pkg/template"
)

// dataStore is the slice of *store.Store the orchestrator depends on.
type dataStore interface {
	GetBusiness(ctx context.Context, id string) (models.Business, error)
	OpenOrResumeConversation(ctx context.Context, businessID, userID, agentID, sessionID string) (models.Conversation, error)
	AppendMessage(ctx context.Context, m models.Message) (models.Message, error)
	GetTemplate(ctx context.Context, id string) (models.Template, error)
	ListStages(ctx context.Context, businessID string) ([]models.Stage, error)
	RecordLLMCall(ctx context.Context, c models.LLMCall) (models.LLMCall, error)
	RecordExtractedData(ctx context.Context, e models.ExtractedData) (models.ExtractedData, error)
	ResolveAIControl(ctx context.Context, businessID, userID, conversationID string) (models.AIControlSetting, error)
	TryAcquireLease(ctx context.Context, conversationID, holderID string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, conversationID, holderID string) error
}

// Config tunes pipeline behavior.
type Config struct {
	LeaseTTL           time.Duration
	CircuitBreakerSize int
	HolderID           string // identifies this process for lease ownership
}

// Orchestrator runs the prepare -> select -> extract -> generate pipeline
// for one inbound message at a time, per conversation.
type Orchestrator struct {
	store    dataStore
	engine   *template.Engine
	machine  *stage.Machine
	llm      llm.Client
	cfg      Config
	local    *localLeases
	breaker  *breaker
}

// New builds an Orchestrator.
func New(store dataStore, engine *template.Engine, machine *stage.Machine, client llm.Client, cfg Config) *Orchestrator {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.HolderID == "" {
		cfg.HolderID = "stagehand"
	}
	return &Orchestrator{
		store:   store,
		engine:  engine,
		machine: machine,
		llm:     client,
		cfg:     cfg,
		local:   newLocalLeases(),
		breaker: newBreaker(cfg.CircuitBreakerSize),
	}
}

// Inbound is one message arriving for a conversation, platform-agnostic.
// pkg/webhook normalizes Messenger/WhatsApp payloads into this shape, and
// pkg/api builds it from POST /message requests.
type Inbound struct {
	BusinessID string
	UserID     string
	AgentID    string
	SessionID  string
	Content    string
}

// Result is what ProcessMessage produces: the reply to send back, and
// whether it came from the LLM or from the business's configured fallback.
type Result struct {
	Reply    string
	Degraded bool
	StageID  string
}

// ProcessMessage runs the full pipeline for one inbound message: it opens
// or resumes the conversation, checks AI control, selects the next stage,
// extracts structured data, and generates a reply. It is serialized per
// conversation by a lease so concurrent messages for the same user never
// interleave (spec.md section 5).
func (o *Orchestrator) ProcessMessage(ctx context.Context, in Inbound) (Result, error) {
	business, err := o.store.GetBusiness(ctx, in.BusinessID)
	if err != nil {
		return Result{}, err
	}

	conv, err := o.store.OpenOrResumeConversation(ctx, in.BusinessID, in.UserID, in.AgentID, in.SessionID)
	if err != nil {
		return Result{}, err
	}

	if !o.local.tryLock(conv.ID) {
		return Result{}, apierr.New(apierr.Busy, "conversation is currently being processed")
	}
	defer o.local.unlock(conv.ID)

	if err := o.store.TryAcquireLease(ctx, conv.ID, o.cfg.HolderID, o.cfg.LeaseTTL); err != nil {
		return Result{}, err
	}
	defer func() { _ = o.store.ReleaseLease(ctx, conv.ID, o.cfg.HolderID) }()

	if _, err := o.store.AppendMessage(ctx, models.Message{
		ConversationID: conv.ID,
		Content:        in.Content,
		SenderType:     models.SenderUser,
	}); err != nil {
		return Result{}, err
	}

	if paused, err := o.aiControlPaused(ctx, in.BusinessID, in.UserID, conv.ID); err != nil {
		slog.Warn("ai control resolution failed, proceeding as unpaused", "error", err, "conversation_id", conv.ID)
	} else if paused {
		return Result{Reply: "", StageID: conv.CurrentStageID}, nil
	}

	rc := template.RenderContext{
		BusinessID:     in.BusinessID,
		ConversationID: conv.ID,
		UserID:         in.UserID,
		CurrentStageID: conv.CurrentStageID,
		UserMessage:    in.Content,
	}

	stageID, err := o.selectStage(ctx, business, conv, rc)
	if err != nil {
		slog.Error("stage selection failed", "error", err, "conversation_id", conv.ID)
		stageID = conv.CurrentStageID
	}
	rc.CurrentStageID = stageID

	if err := o.extractData(ctx, business, conv, stageID, rc); err != nil {
		slog.Error("data extraction failed", "error", err, "conversation_id", conv.ID)
	}

	reply, degraded := o.generateResponse(ctx, business, conv, stageID, rc)

	if _, err := o.store.AppendMessage(ctx, models.Message{
		ConversationID: conv.ID,
		Content:        reply,
		SenderType:     models.SenderAssistant,
	}); err != nil {
		return Result{}, err
	}

	return Result{Reply: reply, Degraded: degraded, StageID: stageID}, nil
}

// aiControlPaused resolves whether automated replies are currently paused
// for this conversation (spec.md section 9, Open Question 3).
func (o *Orchestrator) aiControlPaused(ctx context.Context, businessID, userID, conversationID string) (bool, error) {
	setting, err := o.store.ResolveAIControl(ctx, businessID, userID, conversationID)
	if apierr.Is(err, apierr.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return setting.Paused, nil
}

func (o *Orchestrator) renderTemplate(ctx context.Context, templateID string, rc template.RenderContext) (system, user string, err error) {
	tmpl, err := o.store.GetTemplate(ctx, templateID)
	if err != nil {
		return "", "", err
	}
	return o.engine.Render(ctx, tmpl.SystemPrompt, rc), o.engine.Render(ctx, tmpl.Content, rc), nil
}

func (o *Orchestrator) call(ctx context.Context, businessID string, callType models.LLMCallType, systemPrompt, userPrompt string) (string, error) {
	text, callErr := o.llm.Complete(ctx, systemPrompt, userPrompt, llm.DefaultCallOptions())

	errClass := ""
	if callErr != nil {
		errClass = callErr.Error()
	}
	if _, recErr := o.store.RecordLLMCall(ctx, models.LLMCall{
		BusinessID:   businessID,
		InputText:    userPrompt,
		SystemPrompt: systemPrompt,
		Response:     text,
		CallType:     callType,
		ErrorClass:   errClass,
	}); recErr != nil {
		slog.Error("failed to record llm call", "error", recErr, "call_type", callType)
	}

	return text, callErr
}
