// Package models holds the plain data-transfer types shared by the store,
// template engine, stage machine, and orchestrator. These mirror the data
// model in spec.md section 3 and carry forward the field set of the
// teacher's ent/schema definitions without the ORM code-generation layer.
package models

import "time"

// Business is a tenant: an organization with its own stages, templates,
// users, and API key.
type Business struct {
	ID              string
	OwnerID         string
	BusinessName    string
	Description     string
	Address         string
	PhoneNumber     string
	Website         string
	InternalAPIKey  string // opaque 32+ byte secret; only returned on create
	FallbackMessage string // Phase-3 fallback reply, defaulted by store.CreateBusiness
	CreatedAt       time.Time
}

// User is an end customer interacting with a business's conversation flow.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	CreatedAt time.Time
}

// FullName returns "first last", trimmed, or "Guest" if both are empty.
func (u User) FullName() string {
	switch {
	case u.FirstName == "" && u.LastName == "":
		return "Guest"
	case u.LastName == "":
		return u.FirstName
	case u.FirstName == "":
		return u.LastName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Agent is an optional per-business sub-scope a stage may bind to.
type Agent struct {
	ID         string
	BusinessID string
	AgentName  string
	CreatedAt  time.Time
}

// TemplateType enumerates the three prompt roles a stage references, plus
// their business-wide and global "default_" fallbacks.
type TemplateType string

const (
	TemplateStageSelection    TemplateType = "stage_selection"
	TemplateDataExtraction    TemplateType = "data_extraction"
	TemplateResponseGenerate  TemplateType = "response_generation"
	DefaultPrefix                          = "default_"
)

// Template is text-with-placeholders used to build an LLM prompt.
type Template struct {
	ID           string
	BusinessID   string
	TemplateName string
	TemplateType TemplateType
	Content      string
	SystemPrompt string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// VariableCategory classifies a TemplateVariable for admin display.
type VariableCategory string

const (
	CategoryStage        VariableCategory = "stage"
	CategoryUser         VariableCategory = "user"
	CategoryConversation VariableCategory = "conversation"
	CategoryBusiness     VariableCategory = "business"
	CategorySystem       VariableCategory = "system"
	CategoryUnknown      VariableCategory = "unknown"
)

// TemplateVariable is a named placeholder resolvable at render time.
type TemplateVariable struct {
	ID           string
	Name         string
	Description  string
	DefaultValue string
	Example      string
	Category     VariableCategory
	IsDynamic    bool
}

// Stage is a named state in a business's conversation flow, bundling three
// template references.
type Stage struct {
	ID                        string
	BusinessID                string
	AgentID                   string // optional
	StageName                 string
	StageDescription          string
	StageType                 string // e.g. "first_interaction", "information", "transaction"
	StageSelectionTemplateID  string
	DataExtractionTemplateID  string
	ResponseGenerationTmplID  string
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// StageTransition optionally restricts which stages may follow which.
type StageTransition struct {
	BusinessID  string
	FromStageID string
	ToStageID   string
	Condition   string
}

// ConversationStatus enumerates the lifecycle of a Conversation.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationPaused    ConversationStatus = "paused"
	ConversationCompleted ConversationStatus = "completed"
	ConversationError     ConversationStatus = "error"
)

// ConversationSummary is the optional structured wrap-up of a conversation.
type ConversationSummary struct {
	Overview     string   `json:"overview,omitempty"`
	KeyPoints    []string `json:"key_points,omitempty"`
	Decisions    []string `json:"decisions,omitempty"`
	PendingItems []string `json:"pending_items,omitempty"`
	NextSteps    []string `json:"next_steps,omitempty"`
	Sentiment    string   `json:"sentiment,omitempty"`
	Confidence   float64  `json:"confidence,omitempty"`
}

// Conversation is one ongoing exchange between a user and a business.
type Conversation struct {
	ID              string
	BusinessID      string
	UserID          string
	AgentID         string
	CurrentStageID  string
	SessionID       string
	StartTime       time.Time
	LastUpdated     time.Time
	Status          ConversationStatus
	Summary         *ConversationSummary
	LastLLMCallID   string
}

// SenderType enumerates who authored a Message.
type SenderType string

const (
	SenderUser      SenderType = "user"
	SenderAssistant SenderType = "assistant"
	SenderStaff     SenderType = "staff"
	SenderAI        SenderType = "ai"
)

// Message is one turn in a conversation's transcript.
type Message struct {
	ID             string
	ConversationID string
	Content        string
	SenderType     SenderType
	CreatedAt      time.Time
}

// ExtractedData is one row produced by a successful extraction phase.
type ExtractedData struct {
	ID             string
	ConversationID string
	StageID        string
	DataType       string
	Data           map[string]any
	CreatedAt      time.Time
}

// LLMCallType enumerates which pipeline phase issued an LLMCall.
type LLMCallType string

const (
	LLMCallSelection  LLMCallType = "selection"
	LLMCallExtraction LLMCallType = "extraction"
	LLMCallGeneration LLMCallType = "generation"
)

// LLMCall is the audit record of one call to the language model.
type LLMCall struct {
	ID           string
	BusinessID   string
	InputText    string
	SystemPrompt string
	Response     string
	CallType     LLMCallType
	ErrorClass   string // empty on success
	Timestamp    time.Time
}

// AuditLog is a write-only audit trail entry.
type AuditLog struct {
	ID         string
	BusinessID string
	UserID     string // optional
	ActionType string
	ActionData map[string]any
	CreatedAt  time.Time
}

// AIControlScope identifies the resolution tier of an AIControlSetting,
// resolved most-specific-first: conversation, then user+business, then
// business-wide (spec.md section 9, Open Question 3; see DESIGN.md).
type AIControlScope string

const (
	ScopeConversation AIControlScope = "conversation"
	ScopeUser         AIControlScope = "user"
	ScopeBusiness      AIControlScope = "business"
)

// AIControlSetting pauses/resumes AI replies while a human takes over.
type AIControlSetting struct {
	ID             string
	BusinessID     string
	Scope          AIControlScope
	ConversationID string // set when Scope == ScopeConversation
	UserID         string // set when Scope == ScopeUser or ScopeConversation
	Paused         bool
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// Expired reports whether this setting's pause has lapsed as of now.
func (s AIControlSetting) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// PlatformBinding maps a platform's own recipient identifier (a Facebook
// page ID, a WhatsApp phone number ID) to the business it belongs to, so
// an inbound webhook event can be routed without the platform knowing
// anything about internal business IDs (spec.md section 6.2).
type PlatformBinding struct {
	Platform            string
	PlatformRecipientID string
	BusinessID          string
	CreatedAt           time.Time
}
